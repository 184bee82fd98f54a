package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/cashmatetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserFlag(t *testing.T) {
	var users UserFlag
	require.NoError(t, users.Set("ada@example.com:hunter22:admin"))
	require.NoError(t, users.Set("eve@example.com:secret"))

	assert.Equal(t, UserFlag{
		{Email: "ada@example.com", Password: "hunter22", Role: cashmatetest.RoleAdmin},
		{Email: "eve@example.com", Password: "secret", Role: cashmatetest.RoleUser},
	}, users)
	assert.Equal(t, "ada@example.com,eve@example.com", users.String())
}

func TestUserFlag_Invalid(t *testing.T) {
	cases := []string{"", "ada@example.com", "ada@example.com:", ":pw", "ada@example.com:pw:root", "bob@example.com:pa:ss"}
	for _, value := range cases {
		var users UserFlag
		assert.Error(t, users.Set(value), value)
	}
}

func TestRun_EmitsContractAndServes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, Config{
			ListenAddr: "127.0.0.1:0",
			Users: UserFlag{
				{Email: "ada@example.com", Password: "hunter22", Role: cashmatetest.RoleAdmin},
			},
			AccessLifetime: time.Minute,
			Quiet:          true,
		}, writer, io.Discard)
		writer.Close()
	}()

	line, err := bufio.NewReader(stdout).ReadBytes('\n')
	require.NoError(t, err)
	var contract OutputContract
	require.NoError(t, json.Unmarshal(line, &contract))

	require.Len(t, contract.Users, 1)
	assert.Equal(t, int64(1), contract.Users[0].ID)
	assert.Equal(t, cashmatetest.RoleAdmin, contract.Users[0].Role)

	res, err := http.Post(contract.BaseURL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"ada@example.com","password":"hunter22"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(contract.MetricsURL)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `cashmatetest_route_hits_total{route="login"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_DefaultUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	stdout, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, Config{ListenAddr: "127.0.0.1:0", Quiet: true}, writer, io.Discard)
		writer.Close()
	}()

	var contract OutputContract
	require.NoError(t, json.NewDecoder(stdout).Decode(&contract))
	cancel()
	require.NoError(t, <-done)

	require.Len(t, contract.Users, 1)
	assert.Equal(t, "test@example.com", contract.Users[0].Email)
	assert.Equal(t, "test", contract.Users[0].Password)
}
