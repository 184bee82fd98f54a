package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator owns the single-flight refresh protocol: at most one refresh
// token exchange is in flight at any time, and every caller that asks for a
// token while it runs shares its outcome.
type Coordinator struct {
	refresher Refresher
	vault     Vault
	onExpired func(error)
	logger    *slog.Logger
	metrics   *Metrics

	mu         sync.Mutex
	refreshing bool
	waiters    []chan result
}

type result struct {
	token string
	err   error
}

type Option func(*Coordinator)

// WithExpiredHook registers the callback fired after a terminal refresh
// failure has cleared the credentials. It replaces a hard redirect to login.
func WithExpiredHook(hook func(error)) Option {
	return func(c *Coordinator) { c.onExpired = hook }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

func NewCoordinator(
	refresher Refresher,
	vault Vault,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		refresher: refresher,
		vault:     vault,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// testHookSettle observes each waiter as it is settled.
var testHookSettle func(position int, wait chan result)

// AcquireToken returns a fresh access token, exchanging the stored refresh
// token if no exchange is running, or waiting for the running one.
//
// A waiter whose context ends stops waiting and returns ctx.Err(); its slot
// is still settled when the episode completes. The exchange itself is not
// bound to the caller's context.
func (c *Coordinator) AcquireToken(ctx context.Context) (token string, err error) {
	c.mu.Lock()
	if c.refreshing {
		wait := make(chan result, 1)
		c.waiters = append(c.waiters, wait)
		c.mu.Unlock()
		c.metrics.waiter()

		select {
		case r := <-wait:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	// a panicking Refresher still releases the flag and the queue
	err = ErrExchangeAborted
	defer func() { c.settle(token, err) }()

	return c.exchange(context.WithoutCancel(ctx))
}

func (c *Coordinator) settle(token string, err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for i, wait := range waiters {
		if testHookSettle != nil {
			testHookSettle(i, wait)
		}
		wait <- result{token: token, err: err}
	}
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	generation := c.vault.Generation()

	refreshToken, err := c.vault.RefreshToken(ctx)
	if err != nil {
		return "", c.fail(ctx, generation, "", fmt.Errorf("read refresh token: %w", err))
	}
	if refreshToken == "" {
		return "", c.fail(ctx, generation, "", ErrNoRefreshToken)
	}

	pair, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", c.fail(ctx, generation, refreshToken, err)
	}
	if pair == nil || pair.AccessToken == "" {
		return "", c.fail(ctx, generation, refreshToken, ErrEmptyExchange)
	}

	applied, err := c.vault.Refreshed(ctx, generation, refreshToken, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		return "", c.fail(ctx, generation, refreshToken, fmt.Errorf("store refreshed tokens: %w", err))
	}
	if !applied {
		return c.superseded(ctx, ErrSessionReplaced)
	}

	c.metrics.episode(outcomeSuccess)
	c.logger.Debug("access token refreshed", slog.Uint64("generation", generation))
	return pair.AccessToken, nil
}

// fail ends the episode with a terminal error. Credentials are cleared only
// if they still belong to the session the episode started from.
func (c *Coordinator) fail(
	ctx context.Context,
	generation uint64,
	previous string,
	cause error,
) error {
	expired, err := c.vault.Expire(ctx, generation, previous)
	if err != nil {
		c.logger.Error("failed to clear credentials after refresh failure",
			slog.String("error", err.Error()))
		expired = true
	}
	if !expired {
		_, err := c.superseded(ctx, cause)
		return err
	}

	c.metrics.episode(outcomeFailure)
	c.logger.Warn("token refresh failed, session expired", slog.String("error", cause.Error()))
	if c.onExpired != nil {
		c.onExpired(cause)
	}
	return cause
}

// superseded resolves an episode whose session was replaced while the
// exchange was in flight: callers continue with the newer session's token.
func (c *Coordinator) superseded(ctx context.Context, cause error) (string, error) {
	c.metrics.episode(outcomeSuperseded)
	c.logger.Info("discarding refresh result from a replaced session")

	token, err := c.vault.AccessToken(ctx)
	if err != nil {
		return "", errors.Join(cause, err)
	}
	if token == "" {
		return "", cause
	}
	return token, nil
}
