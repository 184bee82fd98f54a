package cashmatetest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey struct{}

var errRevoked = errors.New("token revoked")

// issuePair signs an access token and records a fresh refresh token.
// Callers hold s.mu.
func (s *Server) issuePair(a *account) (*client.TokenPair, error) {
	accessToken, err := s.signAccessToken(a)
	if err != nil {
		return nil, err
	}
	refreshToken := uuid.NewString()
	s.refresh[refreshToken] = a.id
	return &client.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Server) signAccessToken(a *account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(a.id, 10),
		"id":       a.id,
		"email":    a.email,
		"username": a.username,
		"role":     a.role,
		"iat":      now.Unix(),
		"exp":      now.Add(s.opts.AccessLifetime).Unix(),
		"gen":      s.generation,
		"jti":      uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %v", err)
	}
	return token, nil
}

// verify checks signature, expiry and revocation, and returns the account
// the token was issued to.
func (s *Server) verify(token string) (*account, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.opts.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen, _ := claims["gen"].(float64)
	if int64(gen) != s.generation {
		return nil, errRevoked
	}
	id, err := strconv.ParseInt(fmt.Sprint(claims["sub"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad subject: %v", err)
	}
	a := s.accountByID(id)
	if a == nil {
		return nil, fmt.Errorf("account %d no longer exists", id)
	}
	return a, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			returnError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		a, err := s.verify(token)
		if err != nil {
			s.opts.Logger.Debug("rejected access token",
				slog.String("route", r.URL.Path),
				slog.String("error", err.Error()))
			returnError(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, a)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, _ := r.Context().Value(contextKey{}).(*account)
		if a == nil || a.role != RoleAdmin {
			returnError(w, http.StatusForbidden, "admin role required", nil)
			return
		}
		next(w, r)
	}
}
