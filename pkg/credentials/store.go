// Package credentials persists the CashMate session: the access and refresh
// tokens, the decoded user info, and a pending activation email with the
// time of its last resend.
package credentials

import (
	"context"
	"errors"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserInfo     = "user_info"
	KeyPendingEmail = "pending_email"
	KeyResendAt     = "resend_at"
)

// Keys lists every persisted key. Logout and terminal refresh failure remove
// all of them together.
var Keys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyUserInfo,
	KeyPendingEmail,
	KeyResendAt,
}

var ErrNotFound = errors.New("credential not found")

// Store is string-keyed durable storage. Get returns ErrNotFound for absent
// keys; Delete ignores keys that are already absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, keys ...string) error
}
