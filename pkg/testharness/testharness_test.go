package testharness

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"git.sr.ht/~jakintosh/cashmate/pkg/credentials"
	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireBinary(t *testing.T, cfg Config) {
	t.Helper()
	if !Available(cfg) {
		t.Skip("cashmate-testserver not found; build it and set " + envBinary)
	}
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(Config{
		ListenAddr:             "127.0.0.1:9999",
		AccessLifetime:         time.Minute,
		ActivationIssuesTokens: true,
		Quiet:                  true,
		Users: []User{
			{Email: "ada@example.com", Password: "hunter22", Role: "admin"},
			{Email: "bob@example.com", Password: "pw"},
		},
	})

	assert.Equal(t, []string{
		"--listen", "127.0.0.1:9999",
		"--access-lifetime", "1m0s",
		"--activation-issues-tokens",
		"--quiet",
		"--user", "ada@example.com:hunter22:admin",
		"--user", "bob@example.com:pw",
	}, args)
}

func TestStart(t *testing.T) {
	cfg := Config{
		Users: []User{
			{Email: "alice@example.com", Password: "password123", Role: "admin"},
			{Email: "bob@example.com", Password: "secret456"},
		},
		Quiet: true,
	}
	requireBinary(t, cfg)

	h := Start(t, cfg)
	assert.NotEmpty(t, h.BaseURL)
	require.Len(t, h.Users, 2)
	assert.Equal(t, User{ID: 1, Email: "alice@example.com", Password: "password123", Role: "admin"}, h.Users[0])
	assert.Equal(t, "user", h.Users[1].Role)

	res, err := http.Get(h.MetricsURL)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestStartWithDefaults(t *testing.T) {
	cfg := Config{Quiet: true}
	requireBinary(t, cfg)

	h := Start(t, cfg)
	require.Len(t, h.Users, 1)
	assert.Equal(t, "test@example.com", h.Users[0].Email)
	assert.Equal(t, "test", h.Users[0].Password)
	assert.False(t, h.ActivationIssuesTokens)
}

func TestIntegrationWithClient(t *testing.T) {
	cfg := Config{
		Users:          []User{{Email: "ada@example.com", Password: "hunter22"}},
		AccessLifetime: -time.Minute,
		Quiet:          true,
	}
	requireBinary(t, cfg)
	h := Start(t, cfg)
	ctx := context.Background()

	public := client.NewPublic(h.BaseURL, nil)
	keyring := credentials.NewKeyring(credentials.NewMemoryStore())
	coordinator := tokens.NewCoordinator(public, keyring)
	api := client.New(h.BaseURL, keyring, coordinator)

	pair, err := public.Login(ctx, client.LoginRequest{Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	_, err = keyring.Replace(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)

	// every access token is born expired, so each call refreshes and then
	// fails on the retry
	_, err = api.ListCategories(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	res, err := http.Get(h.MetricsURL)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `cashmatetest_route_hits_total{route="refresh"} 1`)
}
