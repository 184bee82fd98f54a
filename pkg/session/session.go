// Package session drives the CashMate account lifecycle: registration,
// activation, login, logout and session expiry, plus the guards that decide
// which views a user may enter.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"git.sr.ht/~jakintosh/cashmate/pkg/credentials"
	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
)

var ErrNoPendingActivation = errors.New("no activation pending")

// Credentials is the slice of the keyring the session writes through.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
	Identity(ctx context.Context) (*tokens.Identity, error)
	PendingEmail(ctx context.Context) (string, error)
	SetPendingEmail(ctx context.Context, email string) error
	ClearPendingEmail(ctx context.Context) error
	ResendAt(ctx context.Context) (time.Time, error)
	SetResendAt(ctx context.Context, at time.Time) error
	Replace(ctx context.Context, accessToken string, refreshToken string) (*tokens.Identity, error)
	Clear(ctx context.Context) error
}

var _ Credentials = (*credentials.Keyring)(nil)

type Session struct {
	creds     Credentials
	auth      client.Authenticator
	nav       Navigator
	cooldown  *Cooldown
	logger    *slog.Logger
	observers []func(Transition)

	mu    sync.Mutex
	state State
}

type Option func(*Session)

func WithCooldown(cooldown *Cooldown) Option {
	return func(s *Session) { s.cooldown = cooldown }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithObserver registers a callback run after every transition.
func WithObserver(observer func(Transition)) Option {
	return func(s *Session) { s.observers = append(s.observers, observer) }
}

func New(
	creds Credentials,
	auth client.Authenticator,
	nav Navigator,
	opts ...Option,
) *Session {
	s := &Session{
		creds:  creds,
		auth:   auth,
		nav:    nav,
		logger: slog.Default(),
		state:  Anonymous,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cooldown == nil {
		s.cooldown = NewCooldown(DefaultCooldownLength, time.Second)
	}
	if s.nav == nil {
		s.nav = NavigatorFunc(func(View) {})
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Cooldown() *Cooldown {
	return s.cooldown
}

// Restore derives the state from persisted credentials. It runs at start-up
// and again whenever another process rewrites the credential store.
func (s *Session) Restore(ctx context.Context) (State, error) {
	usable, err := s.usableToken(ctx)
	if err != nil {
		return s.State(), err
	}
	if usable {
		s.transition(Authenticated, nil)
		return Authenticated, nil
	}

	email, err := s.creds.PendingEmail(ctx)
	if err != nil {
		return s.State(), err
	}
	if email != "" {
		if err := s.restoreCooldown(ctx); err != nil {
			return s.State(), err
		}
		s.transition(PendingActivation, nil)
		return PendingActivation, nil
	}
	s.transition(Anonymous, nil)
	return Anonymous, nil
}

// Identity returns the decoded identity of the signed-in user, or nil.
func (s *Session) Identity(ctx context.Context) (*tokens.Identity, error) {
	identity, err := s.creds.Identity(ctx)
	if errors.Is(err, tokens.ErrMalformedToken) {
		return nil, nil
	}
	return identity, err
}

func (s *Session) Login(ctx context.Context, form LoginForm) (*tokens.Identity, error) {
	if err := Validate(form); err != nil {
		return nil, err
	}

	pair, err := s.auth.Login(ctx, client.LoginRequest{
		Email:    form.Email,
		Password: form.Password,
	})
	if errors.Is(err, client.ErrNotActivated) {
		if err := s.creds.SetPendingEmail(ctx, form.Email); err != nil {
			return nil, err
		}
		s.transition(PendingActivation, err)
		s.nav.Navigate(ViewActivate)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	identity, err := s.creds.Replace(ctx, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.cooldown.Reset()
	s.transition(Authenticated, nil)
	s.nav.Navigate(ViewDashboard)
	return identity, nil
}

func (s *Session) Register(ctx context.Context, form RegisterForm) error {
	if err := Validate(form); err != nil {
		return err
	}

	err := s.auth.Register(ctx, client.RegisterRequest{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		return err
	}

	if err := s.creds.SetPendingEmail(ctx, form.Email); err != nil {
		return err
	}
	if err := s.creds.SetResendAt(ctx, time.Time{}); err != nil {
		return err
	}
	s.cooldown.Reset()
	s.transition(PendingActivation, nil)
	s.nav.Navigate(ViewActivate)
	return nil
}

// Activate confirms the pending account. When the backend signs the user in
// the session becomes Authenticated; otherwise the user is sent to login.
// A failed activation keeps the pending email so the user can retry.
func (s *Session) Activate(ctx context.Context, form ActivateForm) (*tokens.Identity, error) {
	email, err := s.pendingEmail(ctx)
	if err != nil {
		return nil, err
	}
	if err := Validate(form); err != nil {
		return nil, err
	}

	pair, err := s.auth.Activate(ctx, client.ActivateRequest{
		Email: email,
		Code:  form.Code,
	})
	if err != nil {
		return nil, err
	}
	s.cooldown.Reset()

	if pair == nil {
		if err := s.creds.ClearPendingEmail(ctx); err != nil {
			return nil, err
		}
		s.transition(Anonymous, nil)
		s.nav.Navigate(ViewLogin)
		return nil, nil
	}

	identity, err := s.creds.Replace(ctx, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.transition(Authenticated, nil)
	s.nav.Navigate(ViewDashboard)
	return identity, nil
}

// ResendActivation asks the backend for a new activation code. It is
// refused locally, without a request, while the cooldown runs or another
// resend is outstanding. The countdown is persisted with the pending email
// so it also holds across processes.
func (s *Session) ResendActivation(ctx context.Context) error {
	email, err := s.pendingEmail(ctx)
	if err != nil {
		return err
	}
	if err := s.restoreCooldown(ctx); err != nil {
		return err
	}
	if err := s.cooldown.Begin(); err != nil {
		return err
	}

	err = s.auth.ResendActivation(ctx, email)
	s.cooldown.End(err == nil)
	if err != nil {
		return err
	}
	return s.creds.SetResendAt(ctx, s.cooldown.StartedAt())
}

func (s *Session) restoreCooldown(ctx context.Context) error {
	at, err := s.creds.ResendAt(ctx)
	if err != nil {
		return err
	}
	s.cooldown.Restore(at)
	return nil
}

// AbandonActivation drops the pending account and returns to login.
func (s *Session) AbandonActivation(ctx context.Context) error {
	if err := s.creds.ClearPendingEmail(ctx); err != nil {
		return err
	}
	s.cooldown.Reset()
	s.transition(Anonymous, nil)
	s.nav.Navigate(ViewLogin)
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	s.transition(Anonymous, nil)
	s.nav.Navigate(ViewLogin)
	return nil
}

// Expire handles a terminal refresh failure. The credentials are already
// cleared by the time it runs, unless a login landed in between; that
// session is kept.
func (s *Session) Expire(cause error) {
	identity, err := s.creds.Identity(context.Background())
	if err == nil && identity != nil {
		s.logger.Info("refresh failed but a newer session is stored",
			slog.String("cause", cause.Error()))
		s.transition(Authenticated, nil)
		return
	}

	s.logger.Info("session expired", slog.String("cause", cause.Error()))
	s.transition(SessionExpired, cause)
	s.transition(Anonymous, cause)
	s.nav.Navigate(ViewLogin)
}

// Enter applies the guard for view and returns the view actually shown.
// A redirect is also sent to the navigator.
func (s *Session) Enter(ctx context.Context, view View) (View, error) {
	target, err := s.guard(ctx, view)
	if err != nil {
		return "", err
	}
	if target != view {
		s.logger.Debug("guard redirect",
			slog.String("from", string(view)),
			slog.String("to", string(target)))
		s.nav.Navigate(target)
	}
	return target, nil
}

func (s *Session) guard(ctx context.Context, view View) (View, error) {
	switch view {
	case ViewDashboard:
		usable, err := s.usableToken(ctx)
		if err != nil {
			return "", err
		}
		if !usable {
			return ViewLogin, nil
		}
		return ViewDashboard, nil

	case ViewActivate:
		email, err := s.creds.PendingEmail(ctx)
		if err != nil {
			return "", err
		}
		if email == "" {
			return ViewLogin, nil
		}
		return ViewActivate, nil

	case ViewLogin, ViewRegister:
		usable, err := s.usableToken(ctx)
		if err != nil {
			return "", err
		}
		if usable {
			return ViewDashboard, nil
		}
		return view, nil

	default:
		return view, nil
	}
}

// usableToken reports whether an access token is stored and decodes. A
// token that fails to decode is treated as no session at all and cleared.
func (s *Session) usableToken(ctx context.Context) (bool, error) {
	identity, err := s.creds.Identity(ctx)
	if errors.Is(err, tokens.ErrMalformedToken) {
		s.logger.Warn("clearing undecodable access token")
		if err := s.creds.Clear(ctx); err != nil {
			return false, err
		}
		s.transition(Anonymous, nil)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return identity != nil, nil
}

func (s *Session) pendingEmail(ctx context.Context) (string, error) {
	email, err := s.creds.PendingEmail(ctx)
	if err != nil {
		return "", err
	}
	if email == "" {
		s.nav.Navigate(ViewLogin)
		return "", ErrNoPendingActivation
	}
	return email, nil
}

func (s *Session) transition(to State, cause error) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Debug("session transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	for _, observe := range s.observers {
		observe(Transition{From: from, To: to, Cause: cause})
	}
}
