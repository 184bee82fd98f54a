package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
)

// Keyring is the typed view of the session held in a Store. It is the only
// writer of the persisted keys: login, refresh success, refresh failure and
// logout all go through it.
//
// Every write that starts or ends a session bumps the generation. Refresh
// results are only applied while the generation they started from is still
// current and the store still holds the refresh token they exchanged. The
// second check covers other processes sharing the same store.
type Keyring struct {
	store Store

	mu         sync.Mutex
	generation uint64
}

var _ tokens.Vault = (*Keyring)(nil)

func NewKeyring(store Store) *Keyring {
	return &Keyring{store: store}
}

func (k *Keyring) Store() Store {
	return k.store
}

func (k *Keyring) Generation() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.generation
}

// AccessToken returns the stored access token, or "" if there is none.
func (k *Keyring) AccessToken(ctx context.Context) (string, error) {
	return k.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" if there is none.
func (k *Keyring) RefreshToken(ctx context.Context) (string, error) {
	return k.get(ctx, KeyRefreshToken)
}

// PendingEmail returns the email awaiting activation, or "" if there is none.
func (k *Keyring) PendingEmail(ctx context.Context) (string, error) {
	return k.get(ctx, KeyPendingEmail)
}

func (k *Keyring) SetPendingEmail(ctx context.Context, email string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.Set(ctx, KeyPendingEmail, email)
}

// ClearPendingEmail drops the pending activation along with its resend
// countdown.
func (k *Keyring) ClearPendingEmail(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.Delete(ctx, KeyPendingEmail, KeyResendAt)
}

// ResendAt returns when the last accepted activation resend happened, or the
// zero time if none is recorded.
func (k *Keyring) ResendAt(ctx context.Context) (time.Time, error) {
	raw, err := k.get(ctx, KeyResendAt)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("couldn't decode resend time: %v", err)
	}
	return at, nil
}

// SetResendAt records an accepted resend. The zero time removes the record.
func (k *Keyring) SetResendAt(ctx context.Context, at time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if at.IsZero() {
		return k.store.Delete(ctx, KeyResendAt)
	}
	return k.store.Set(ctx, KeyResendAt, at.UTC().Format(time.RFC3339Nano))
}

// Identity decodes the stored access token. It returns nil with no error
// when there is no access token, and an error matching
// tokens.ErrMalformedToken when the stored token cannot be decoded.
func (k *Keyring) Identity(ctx context.Context) (*tokens.Identity, error) {
	accessToken, err := k.AccessToken(ctx)
	if err != nil || accessToken == "" {
		return nil, err
	}
	return tokens.Decode(accessToken)
}

// UserInfo returns the cached identity as persisted under user_info.
func (k *Keyring) UserInfo(ctx context.Context) (*tokens.Identity, error) {
	raw, err := k.get(ctx, KeyUserInfo)
	if err != nil || raw == "" {
		return nil, err
	}
	identity := &tokens.Identity{}
	if err := json.Unmarshal([]byte(raw), identity); err != nil {
		return nil, fmt.Errorf("couldn't decode user info: %v", err)
	}
	return identity, nil
}

// Replace stores a freshly issued session, dropping any pending activation
// and any refresh token left over from an earlier session.
// A malformed access token is rejected before anything is written.
func (k *Keyring) Replace(
	ctx context.Context,
	accessToken string,
	refreshToken string,
) (*tokens.Identity, error) {
	identity, err := tokens.Decode(accessToken)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.generation++
	if err := k.store.Delete(ctx, KeyPendingEmail, KeyResendAt, KeyRefreshToken); err != nil {
		return nil, err
	}
	if err := k.write(ctx, accessToken, refreshToken, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Refreshed stores the result of a refresh episode that started at
// generation by exchanging previous. It reports false, writing nothing, if
// the session was replaced or cleared since. An empty refreshToken keeps the
// stored one.
func (k *Keyring) Refreshed(
	ctx context.Context,
	generation uint64,
	previous string,
	accessToken string,
	refreshToken string,
) (bool, error) {
	identity, err := tokens.Decode(accessToken)
	if err != nil {
		return false, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	current, err := k.current(ctx, generation, previous)
	if err != nil || !current {
		return false, err
	}
	if err := k.write(ctx, accessToken, refreshToken, identity); err != nil {
		return false, err
	}
	return true, nil
}

// Expire clears the session after a terminal refresh failure, unless the
// session was replaced since generation or no longer holds previous.
func (k *Keyring) Expire(
	ctx context.Context,
	generation uint64,
	previous string,
) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	current, err := k.current(ctx, generation, previous)
	if err != nil || !current {
		return false, err
	}
	k.generation++
	if err := k.store.Delete(ctx, Keys...); err != nil {
		return true, err
	}
	return true, nil
}

// Clear removes every persisted key.
func (k *Keyring) Clear(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.generation++
	return k.store.Delete(ctx, Keys...)
}

// current reports whether the session an episode started from is still the
// stored one. Callers hold k.mu.
func (k *Keyring) current(
	ctx context.Context,
	generation uint64,
	previous string,
) (bool, error) {
	if generation != k.generation {
		return false, nil
	}
	stored, err := k.get(ctx, KeyRefreshToken)
	if err != nil {
		return false, err
	}
	return stored == previous, nil
}

func (k *Keyring) write(
	ctx context.Context,
	accessToken string,
	refreshToken string,
	identity *tokens.Identity,
) error {
	userInfo, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("couldn't encode user info: %v", err)
	}

	if err := k.store.Set(ctx, KeyAccessToken, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := k.store.Set(ctx, KeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return k.store.Set(ctx, KeyUserInfo, string(userInfo))
}

func (k *Keyring) get(ctx context.Context, key string) (string, error) {
	value, err := k.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}
