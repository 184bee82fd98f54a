package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ActivateRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResendActivationRequest struct {
	Email string `json:"email"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is the token payload the backend issues on login, refresh and
// (optionally) activation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Public is the unauthenticated gateway for the auth endpoints. It never
// attaches credentials and never refreshes.
type Public struct {
	requester
}

func NewPublic(baseURL string, httpClient *http.Client) *Public {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Public{requester{baseURL: baseURL, httpClient: httpClient}}
}

func (p *Public) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	pair := &TokenPair{}
	if err := p.do(ctx, http.MethodPost, "/auth/login", req, pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}
	return pair, nil
}

func (p *Public) Register(ctx context.Context, req RegisterRequest) error {
	return p.do(ctx, http.MethodPost, "/auth/register", req, nil)
}

// Activate confirms an account. The returned pair is nil when the backend
// does not sign the user in on activation.
func (p *Public) Activate(ctx context.Context, req ActivateRequest) (*TokenPair, error) {
	pair := &TokenPair{}
	if err := p.do(ctx, http.MethodPost, "/auth/activate", req, pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, nil
	}
	return pair, nil
}

func (p *Public) ResendActivation(ctx context.Context, email string) error {
	return p.do(ctx, http.MethodPost, "/auth/resend-activation", ResendActivationRequest{Email: email}, nil)
}

// Refresh exchanges a refresh token. A 400, 401 or 403 answer means the
// backend refused the token and is reported as tokens.ErrRefreshRejected.
func (p *Public) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	pair := &TokenPair{}
	err := p.do(ctx, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, pair)

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%w: %w", tokens.ErrRefreshRejected, err)
		}
	}
	if err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", tokens.ErrRefreshRejected)
	}

	return &tokens.Pair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
