package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken  = errors.New("token malformed")
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrRefreshRejected = errors.New("refresh token rejected")
	ErrSessionReplaced = errors.New("session replaced during refresh")
	ErrEmptyExchange   = errors.New("token exchange returned no access token")
	ErrExchangeAborted = errors.New("token exchange aborted")
)

// Pair is the result of a successful token exchange. RefreshToken is empty
// when the backend did not rotate the refresh token.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for a new token pair. Implementations
// report a refused refresh token with an error matching ErrRefreshRejected.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Pair, error)
}

// Vault is the slice of credential storage the Coordinator depends on.
// Writes are conditional on the credential generation observed when a
// refresh episode started and on the refresh token it exchanged (previous),
// so a newer login is never overwritten, even one made by another process.
type Vault interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Generation() uint64
	Refreshed(ctx context.Context, generation uint64, previous string, accessToken string, refreshToken string) (bool, error)
	Expire(ctx context.Context, generation uint64, previous string) (bool, error)
}

// Identity holds the decoded claims of an access token. Its JSON form is the
// persisted user_info value.
type Identity struct {
	Subject    string `json:"sub"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	IssuedAt   int64  `json:"iat"`
	Expiration int64  `json:"exp"`
}

// Expired reports whether the token carried an expiry that is before now.
func (id *Identity) Expired(now time.Time) bool {
	if id.Expiration == 0 {
		return false
	}
	return time.Unix(id.Expiration, 0).Before(now)
}

// Decode extracts the identity claims from an access token without verifying
// its signature. The client never holds the signing key; the backend is the
// only party that validates tokens.
func Decode(token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	subject := claimID(claims["sub"])
	if subject == "" {
		subject = claimID(claims["id"])
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	identity := &Identity{
		Subject:  subject,
		Username: claimString(claims["username"]),
		Email:    claimString(claims["email"]),
		Role:     claimString(claims["role"]),
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if iat != nil {
		identity.IssuedAt = iat.Unix()
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp != nil {
		identity.Expiration = exp.Unix()
	}

	return identity, nil
}

func claimID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func claimString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
