package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryVault struct {
	mu           sync.Mutex
	access       string
	refresh      string
	generation   uint64
	expireCalls  int
	refreshCalls int
}

func (v *memoryVault) AccessToken(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.access, nil
}

func (v *memoryVault) RefreshToken(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refresh, nil
}

func (v *memoryVault) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

func (v *memoryVault) Refreshed(_ context.Context, generation uint64, previous, access, refresh string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshCalls++
	if generation != v.generation || previous != v.refresh {
		return false, nil
	}
	v.access = access
	if refresh != "" {
		v.refresh = refresh
	}
	return true, nil
}

func (v *memoryVault) Expire(_ context.Context, generation uint64, previous string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expireCalls++
	if generation != v.generation || previous != v.refresh {
		return false, nil
	}
	v.generation++
	v.access, v.refresh = "", ""
	return true, nil
}

func (v *memoryVault) replace(access, refresh string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.access, v.refresh = access, refresh
}

// overwrite rewrites the tokens without moving the generation, as another
// process writing to a shared store does.
func (v *memoryVault) overwrite(access, refresh string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.access, v.refresh = access, refresh
}

// gatedRefresher blocks every exchange until release is closed.
type gatedRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	pair    *Pair
	err     error
}

func newGatedRefresher(pair *Pair, err error) *gatedRefresher {
	return &gatedRefresher{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		pair:    pair,
		err:     err,
	}
}

func (r *gatedRefresher) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	if r.err != nil {
		return nil, r.err
	}
	return r.pair, nil
}

type instantRefresher struct {
	calls atomic.Int32
	pair  *Pair
	err   error
}

func (r *instantRefresher) Refresh(context.Context, string) (*Pair, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.pair, nil
}

func pendingWaiters(c *Coordinator) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func waitForWaiters(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return pendingWaiters(c) == n
	}, time.Second, time.Millisecond)
}

func TestAcquireToken_Success(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := &instantRefresher{pair: &Pair{AccessToken: "A1", RefreshToken: "R1"}}
	c := NewCoordinator(refresher, vault)

	token, err := c.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", token)
	assert.Equal(t, "A1", vault.access)
	assert.Equal(t, "R1", vault.refresh)
	assert.False(t, c.refreshing)
}

func TestAcquireToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	c := NewCoordinator(&instantRefresher{pair: &Pair{AccessToken: "A1"}}, vault)

	_, err := c.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R0", vault.refresh)
}

func TestAcquireToken_NoRefreshToken(t *testing.T) {
	vault := &memoryVault{access: "A0"}
	refresher := &instantRefresher{}
	var expired error
	c := NewCoordinator(refresher, vault, WithExpiredHook(func(err error) { expired = err }))

	_, err := c.AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.ErrorIs(t, expired, ErrNoRefreshToken)
	assert.Zero(t, refresher.calls.Load())
	assert.Empty(t, vault.access)
	assert.False(t, c.refreshing)
}

func TestAcquireToken_RejectedClearsCredentials(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := &instantRefresher{err: ErrRefreshRejected}
	hooks := 0
	c := NewCoordinator(refresher, vault, WithExpiredHook(func(error) { hooks++ }))

	_, err := c.AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrRefreshRejected)
	assert.Empty(t, vault.access)
	assert.Empty(t, vault.refresh)
	assert.Equal(t, 1, hooks)

	// the next episode finds nothing to refresh with
	_, err = c.AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, 2, hooks)
}

func TestAcquireToken_SingleFlight(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1", RefreshToken: "R1"}, nil)
	c := NewCoordinator(refresher, vault)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], errs[0] = c.AcquireToken(context.Background())
	}()
	<-refresher.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.AcquireToken(context.Background())
		}()
	}
	waitForWaiters(t, c, callers-1)

	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	for i := range callers {
		assert.NoError(t, errs[i])
		assert.Equal(t, "A1", tokens[i])
	}
	assert.Zero(t, pendingWaiters(c))
	assert.False(t, c.refreshing)
}

func TestAcquireToken_FailureSharedWithWaiters(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(nil, ErrRefreshRejected)
	hooks := atomic.Int32{}
	c := NewCoordinator(refresher, vault, WithExpiredHook(func(error) { hooks.Add(1) }))

	errs := make(chan error, 3)
	go func() {
		_, err := c.AcquireToken(context.Background())
		errs <- err
	}()
	<-refresher.started
	for range 2 {
		go func() {
			_, err := c.AcquireToken(context.Background())
			errs <- err
		}()
	}
	waitForWaiters(t, c, 2)
	close(refresher.release)

	for range 3 {
		assert.ErrorIs(t, <-errs, ErrRefreshRejected)
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(1), hooks.Load())
	assert.Equal(t, 1, vault.expireCalls)
}

func TestAcquireToken_SettlesWaitersInOrder(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1"}, nil)
	c := NewCoordinator(refresher, vault)

	var mu sync.Mutex
	var settled []chan result
	testHookSettle = func(_ int, wait chan result) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, wait)
	}
	t.Cleanup(func() { testHookSettle = nil })

	done := make(chan struct{})
	go func() {
		c.AcquireToken(context.Background())
		close(done)
	}()
	<-refresher.started

	// each waiter joins only after the previous one is queued, so arrival
	// order is known; remember the slot each one was given
	const waiters = 4
	arrived := make([]chan result, waiters)
	results := make([]chan string, waiters)
	for i := range waiters {
		results[i] = make(chan string, 1)
		go func() {
			token, _ := c.AcquireToken(context.Background())
			results[i] <- token
		}()
		waitForWaiters(t, c, i+1)
		c.mu.Lock()
		arrived[i] = c.waiters[i]
		c.mu.Unlock()
	}

	close(refresher.release)
	<-done
	for i := range results {
		assert.Equal(t, "A1", <-results[i])
	}

	mu.Lock()
	defer mu.Unlock()
	// channels compare by identity
	assert.Equal(t, arrived, settled)
}

func TestAcquireToken_WaiterContextCancelled(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1"}, nil)
	c := NewCoordinator(refresher, vault)

	first := make(chan string, 1)
	go func() {
		token, _ := c.AcquireToken(context.Background())
		first <- token
	}()
	<-refresher.started

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := c.AcquireToken(ctx)
		waiterErr <- err
	}()
	waitForWaiters(t, c, 1)

	cancel()
	assert.ErrorIs(t, <-waiterErr, context.Canceled)

	// the exchange is not cancelled with the waiter
	close(refresher.release)
	assert.Equal(t, "A1", <-first)
	assert.Zero(t, pendingWaiters(c))
}

func TestAcquireToken_ExchangeOutlivesCallerContext(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := &contextRefresher{}
	c := NewCoordinator(refresher, vault)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := c.AcquireToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", token)
}

type contextRefresher struct{}

func (contextRefresher) Refresh(ctx context.Context, _ string) (*Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Pair{AccessToken: "A1"}, nil
}

func TestAcquireToken_SessionReplacedDuringRefresh(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1", RefreshToken: "R1"}, nil)
	c := NewCoordinator(refresher, vault)

	result := make(chan string, 1)
	go func() {
		token, _ := c.AcquireToken(context.Background())
		result <- token
	}()
	<-refresher.started

	// a new login lands while the old session's refresh is in flight
	vault.replace("B0", "S0")
	close(refresher.release)

	assert.Equal(t, "B0", <-result)
	assert.Equal(t, "B0", vault.access)
	assert.Equal(t, "S0", vault.refresh)
}

func TestAcquireToken_LogoutDuringRefresh(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1", RefreshToken: "R1"}, nil)
	c := NewCoordinator(refresher, vault)

	errs := make(chan error, 1)
	go func() {
		_, err := c.AcquireToken(context.Background())
		errs <- err
	}()
	<-refresher.started

	vault.replace("", "")
	close(refresher.release)

	assert.ErrorIs(t, <-errs, ErrSessionReplaced)
	assert.Empty(t, vault.access)
}

func TestAcquireToken_StaleFailureKeepsNewSession(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(nil, ErrRefreshRejected)
	hooks := 0
	c := NewCoordinator(refresher, vault, WithExpiredHook(func(error) { hooks++ }))

	result := make(chan string, 1)
	go func() {
		token, _ := c.AcquireToken(context.Background())
		result <- token
	}()
	<-refresher.started

	vault.replace("B0", "S0")
	close(refresher.release)

	assert.Equal(t, "B0", <-result)
	assert.Equal(t, "S0", vault.refresh)
	assert.Zero(t, hooks)
}

func TestAcquireToken_StaleResultKeepsSharedStoreLogin(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1", RefreshToken: "R1"}, nil)
	c := NewCoordinator(refresher, vault)

	result := make(chan string, 1)
	go func() {
		token, _ := c.AcquireToken(context.Background())
		result <- token
	}()
	<-refresher.started

	// another process signs in; this coordinator's generation is unchanged
	vault.overwrite("B0", "S0")
	close(refresher.release)

	assert.Equal(t, "B0", <-result)
	assert.Equal(t, "B0", vault.access)
	assert.Equal(t, "S0", vault.refresh)
}

func TestAcquireToken_StaleFailureKeepsSharedStoreLogin(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(nil, ErrRefreshRejected)
	hooks := 0
	c := NewCoordinator(refresher, vault, WithExpiredHook(func(error) { hooks++ }))

	result := make(chan string, 1)
	go func() {
		token, _ := c.AcquireToken(context.Background())
		result <- token
	}()
	<-refresher.started

	vault.overwrite("B0", "S0")
	close(refresher.release)

	assert.Equal(t, "B0", <-result)
	assert.Equal(t, "S0", vault.refresh)
	assert.Zero(t, hooks)
}

type panickingRefresher struct {
	started chan struct{}
	release chan struct{}
}

func (r *panickingRefresher) Refresh(context.Context, string) (*Pair, error) {
	r.started <- struct{}{}
	<-r.release
	panic("refresher exploded")
}

func TestAcquireToken_PanicReleasesWaiters(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := &panickingRefresher{started: make(chan struct{}, 1), release: make(chan struct{})}
	c := NewCoordinator(refresher, vault)

	recovered := make(chan any, 1)
	go func() {
		defer func() { recovered <- recover() }()
		c.AcquireToken(context.Background())
	}()
	<-refresher.started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := c.AcquireToken(context.Background())
		waiterErr <- err
	}()
	waitForWaiters(t, c, 1)
	close(refresher.release)

	assert.Equal(t, "refresher exploded", <-recovered)
	assert.ErrorIs(t, <-waiterErr, ErrExchangeAborted)
	assert.False(t, c.refreshing)
	assert.Zero(t, pendingWaiters(c))

	// the coordinator accepts a new episode
	c.refresher = &instantRefresher{pair: &Pair{AccessToken: "A1"}}
	token, err := c.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", token)
}

func TestAcquireToken_EmptyExchange(t *testing.T) {
	for name, pair := range map[string]*Pair{
		"nil pair":     nil,
		"empty access": {RefreshToken: "R1"},
	} {
		t.Run(name, func(t *testing.T) {
			vault := &memoryVault{access: "A0", refresh: "R0"}
			c := NewCoordinator(&instantRefresher{pair: pair}, vault)

			_, err := c.AcquireToken(context.Background())
			assert.ErrorIs(t, err, ErrEmptyExchange)
			assert.Empty(t, vault.refresh)
			assert.False(t, c.refreshing)
		})
	}
}

func TestAcquireToken_NetworkFailure(t *testing.T) {
	vault := &memoryVault{access: "A0", refresh: "R0"}
	cause := errors.New("dial tcp: connection refused")
	c := NewCoordinator(&instantRefresher{err: cause}, vault)

	_, err := c.AcquireToken(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, vault.refresh)
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	vault := &memoryVault{access: "A0", refresh: "R0"}
	refresher := newGatedRefresher(&Pair{AccessToken: "A1"}, nil)
	c := NewCoordinator(refresher, vault, WithMetrics(metrics))

	done := make(chan struct{}, 2)
	go func() {
		c.AcquireToken(context.Background())
		done <- struct{}{}
	}()
	<-refresher.started
	go func() {
		c.AcquireToken(context.Background())
		done <- struct{}{}
	}()
	waitForWaiters(t, c, 1)
	close(refresher.release)
	<-done
	<-done

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.episodes.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.waiters))
}
