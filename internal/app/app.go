// Package app wires configuration, credential storage, the API gateways,
// the refresh coordinator and the session into one runnable client.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"git.sr.ht/~jakintosh/cashmate/internal/config"
	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"git.sr.ht/~jakintosh/cashmate/pkg/credentials"
	"git.sr.ht/~jakintosh/cashmate/pkg/session"
	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrWatchUnsupported = errors.New("only the sqlite store can be watched")

type App struct {
	Config      *config.Config
	Store       credentials.Store
	Keyring     *credentials.Keyring
	Public      *client.Public
	API         *client.Client
	Coordinator *tokens.Coordinator
	Session     *session.Session
	Metrics     *tokens.Metrics

	logger *slog.Logger
	closer io.Closer
}

type Options struct {
	Logger    *slog.Logger
	Registry  prometheus.Registerer
	Navigator session.Navigator
	Observer  func(session.Transition)
	// Store overrides the store named in the configuration.
	Store credentials.Store
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, closer := opts.Store, io.Closer(nil)
	if store == nil {
		var err error
		if store, closer, err = OpenStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	a := &App{
		Config:  cfg,
		Store:   store,
		Keyring: credentials.NewKeyring(store),
		Metrics: tokens.NewMetrics(opts.Registry),
		logger:  logger,
		closer:  closer,
	}

	a.Public = client.NewPublic(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout})

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithCooldown(session.NewCooldown(cfg.Activation.ResendCooldown, time.Second)),
	}
	if opts.Observer != nil {
		sessionOpts = append(sessionOpts, session.WithObserver(opts.Observer))
	}
	a.Session = session.New(a.Keyring, a.Public, opts.Navigator, sessionOpts...)

	a.Coordinator = tokens.NewCoordinator(a.Public, a.Keyring,
		tokens.WithLogger(logger),
		tokens.WithMetrics(a.Metrics),
		tokens.WithExpiredHook(a.Session.Expire),
	)
	a.API = client.New(cfg.APIURL, a.Keyring, a.Coordinator,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(logger),
	)

	if _, err := a.Session.Restore(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return a, nil
}

// OpenStore opens the credential store the configuration names. The closer
// is nil for stores that hold no resources.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (credentials.Store, io.Closer, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return credentials.NewMemoryStore(), nil, nil

	case config.StoreRedis:
		store, err := credentials.NewRedisStore(ctx, credentials.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case config.StoreSQLite, "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
				return nil, nil, fmt.Errorf("failed to create credential directory: %v", err)
			}
		}
		store, err := credentials.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}

// Watch re-derives the session state whenever another process writes the
// credential database, and reports the resulting state.
func (a *App) Watch(ctx context.Context, onChange func(session.State)) (io.Closer, error) {
	store, ok := a.Store.(*credentials.SQLiteStore)
	if !ok || store.Path() == ":memory:" {
		return nil, ErrWatchUnsupported
	}

	watcher, err := credentials.Watch(store.Path(), func() {
		state, err := a.Session.Restore(ctx)
		if err != nil {
			a.logger.Warn("failed to reload session", slog.String("error", err.Error()))
			return
		}
		onChange(state)
	})
	if err != nil {
		return nil, err
	}
	return watcher, nil
}

func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
