package session

import (
	"errors"
	"sync"
	"time"
)

const DefaultCooldownLength = 60

var (
	ErrCooldownActive = errors.New("resend cooldown active")
	ErrResendInFlight = errors.New("resend already in flight")
)

// Cooldown gates activation resends: a resend is accepted only when the
// countdown is zero and no other resend is outstanding. The countdown starts
// at length after a successful resend and drops by one per unit.
type Cooldown struct {
	length int
	unit   time.Duration
	now    func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	inFlight  bool
}

type CooldownOption func(*Cooldown)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CooldownOption {
	return func(c *Cooldown) { c.now = now }
}

func NewCooldown(length int, unit time.Duration, opts ...CooldownOption) *Cooldown {
	if unit <= 0 {
		unit = time.Second
	}
	c := &Cooldown{
		length: length,
		unit:   unit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remaining returns the countdown value, between 0 and length.
func (c *Cooldown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining()
}

// Begin claims the resend slot.
func (c *Cooldown) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return ErrResendInFlight
	}
	if c.remaining() > 0 {
		return ErrCooldownActive
	}
	c.inFlight = true
	return nil
}

// End releases the resend slot; a successful resend restarts the countdown.
func (c *Cooldown) End(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	if success {
		c.startedAt = c.now()
	}
}

// StartedAt returns when the running countdown began, or the zero time.
func (c *Cooldown) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Restore resumes a countdown that began at startedAt, typically in another
// process. An older or zero startedAt leaves the current countdown alone.
func (c *Cooldown) Restore(startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if startedAt.After(c.startedAt) {
		c.startedAt = startedAt
	}
}

// Reset drops any running countdown.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = time.Time{}
}

func (c *Cooldown) remaining() int {
	if c.startedAt.IsZero() {
		return 0
	}
	elapsed := int(c.now().Sub(c.startedAt) / c.unit)
	return max(c.length-elapsed, 0)
}
