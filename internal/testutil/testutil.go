// Package testutil provides test environment setup and utilities for internal package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/cashmate/internal/app"
	"git.sr.ht/~jakintosh/cashmate/internal/config"
	"git.sr.ht/~jakintosh/cashmate/pkg/cashmatetest"
	"git.sr.ht/~jakintosh/cashmate/pkg/credentials"
	"git.sr.ht/~jakintosh/cashmate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// RecordingNavigator remembers every view the session navigated to.
type RecordingNavigator struct {
	mu    sync.Mutex
	views []session.View
}

func (n *RecordingNavigator) Navigate(view session.View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, view)
}

// Last returns the most recent view, or "" if nothing navigated yet.
func (n *RecordingNavigator) Last() session.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.views) == 0 {
		return ""
	}
	return n.views[len(n.views)-1]
}

func (n *RecordingNavigator) Views() []session.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]session.View(nil), n.views...)
}

// TestEnv provides all dependencies needed for testing
type TestEnv struct {
	Backend   *cashmatetest.Server
	URL       string
	Store     *credentials.MemoryStore
	Navigator *RecordingNavigator
	Registry  *prometheus.Registry
	App       *app.App

	mu          sync.Mutex
	transitions []session.Transition
}

// SetupTestEnv starts a fake backend and wires an App against it with an
// in-memory credential store.
func SetupTestEnv(
	t *testing.T,
	opts cashmatetest.Options,
) *TestEnv {
	t.Helper()

	backend := cashmatetest.NewServer(opts)
	env := &TestEnv{
		Backend:   backend,
		URL:       backend.Serve(t),
		Store:     credentials.NewMemoryStore(),
		Navigator: &RecordingNavigator{},
		Registry:  prometheus.NewRegistry(),
	}
	env.App = env.newApp(t, env.Registry)
	return env
}

// NewApp wires a fresh App over the environment's store, as a second
// process sharing the same credentials would.
func (env *TestEnv) NewApp(
	t *testing.T,
) *app.App {
	t.Helper()
	return env.newApp(t, prometheus.NewRegistry())
}

func (env *TestEnv) newApp(
	t *testing.T,
	registry prometheus.Registerer,
) *app.App {
	t.Helper()

	cfg := &config.Config{
		APIURL:      env.URL,
		HTTPTimeout: 5 * time.Second,
		LogLevel:    "debug",
		Store:       config.StoreConfig{Kind: config.StoreMemory},
		Activation:  config.Activation{ResendCooldown: 60},
	}
	a, err := app.New(context.Background(), cfg, app.Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry:  registry,
		Navigator: env.Navigator,
		Observer:  env.observe,
		Store:     env.Store,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(func() {
		_ = a.Close()
	})
	return a
}

func (env *TestEnv) observe(transition session.Transition) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.transitions = append(env.transitions, transition)
}

// Transitions returns every state change the apps observed.
func (env *TestEnv) Transitions() []session.Transition {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]session.Transition(nil), env.transitions...)
}

// RegisterTestUser creates an activated account on the backend
func (env *TestEnv) RegisterTestUser(
	t *testing.T,
	email string,
	password string,
	role string,
) {
	t.Helper()
	if _, err := env.Backend.AddUser(email, password, role); err != nil {
		t.Fatalf("failed to register test user: %v", err)
	}
}

// LoginTestUser registers an account and logs the app in as it.
func (env *TestEnv) LoginTestUser(
	t *testing.T,
	email string,
	password string,
	role string,
) {
	t.Helper()
	env.RegisterTestUser(t, email, password, role)
	form := session.LoginForm{Email: email, Password: password}
	if _, err := env.App.Session.Login(context.Background(), form); err != nil {
		t.Fatalf("failed to log in test user: %v", err)
	}
}
