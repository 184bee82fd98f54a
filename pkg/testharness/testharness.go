// Package testharness starts a cashmate-testserver process for end-to-end
// tests that need the backend out of process.
package testharness

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

const envBinary = "CASHMATE_TESTSERVER_BIN"

// Config holds configuration for starting the test harness.
type Config struct {
	Users                  []User
	ListenAddr             string
	AccessLifetime         time.Duration
	ActivationIssuesTokens bool
	BinaryPath             string
	Quiet                  bool
}

// User holds test user credentials.
type User struct {
	ID       int64
	Email    string
	Password string
	Role     string
}

// Harness represents a running cashmate-testserver instance.
type Harness struct {
	BaseURL                string
	MetricsURL             string
	ActivationIssuesTokens bool
	Users                  []User

	// Internal state
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// outputContract matches the JSON structure from cashmate-testserver
type outputContract struct {
	BaseURL                string       `json:"base_url"`
	MetricsURL             string       `json:"metrics_url"`
	ActivationIssuesTokens bool         `json:"activation_issues_tokens"`
	Users                  []outputUser `json:"users"`
}

type outputUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Available reports whether a cashmate-testserver binary can be found.
func Available(cfg Config) bool {
	return findBinary(cfg.BinaryPath) != ""
}

// Start spawns a cashmate-testserver and returns a handle to it.
// It registers cleanup with t.Cleanup().
func Start(t *testing.T, cfg Config) *Harness {
	t.Helper()

	// Find binary
	binaryPath := findBinary(cfg.BinaryPath)
	if binaryPath == "" {
		t.Fatal("cashmate-testserver binary not found (check PATH or set Config.BinaryPath or " + envBinary + ")")
	}

	// Create context for process lifecycle
	ctx, cancel := context.WithCancel(context.Background())

	// Start process
	cmd := exec.CommandContext(ctx, binaryPath, buildArgs(cfg)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		t.Fatalf("failed to create stdout pipe: %v", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		t.Fatalf("failed to create stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start cashmate-testserver: %v", err)
	}

	// Read first line (JSON contract) from stdout
	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		cancel()
		cmd.Wait()
		t.Fatal("failed to read JSON contract from cashmate-testserver")
	}

	var contract outputContract
	if err := json.Unmarshal(scanner.Bytes(), &contract); err != nil {
		cancel()
		cmd.Wait()
		t.Fatalf("failed to parse JSON contract: %v", err)
	}

	// Stream logs to test output if not quiet
	if !cfg.Quiet {
		go func() {
			stderrScanner := bufio.NewScanner(stderr)
			for stderrScanner.Scan() {
				t.Logf("[cashmate-testserver] %s", stderrScanner.Text())
			}
		}()
	}

	harness := &Harness{
		BaseURL:                contract.BaseURL,
		MetricsURL:             contract.MetricsURL,
		ActivationIssuesTokens: contract.ActivationIssuesTokens,
		Users:                  make([]User, len(contract.Users)),
		cmd:                    cmd,
		cancel:                 cancel,
	}
	for i, user := range contract.Users {
		harness.Users[i] = User{
			ID:       user.ID,
			Email:    user.Email,
			Password: user.Password,
			Role:     user.Role,
		}
	}

	t.Cleanup(func() {
		if err := harness.Close(); err != nil {
			t.Logf("warning: harness cleanup failed: %v", err)
		}
	})

	return harness
}

// Close interrupts the cashmate-testserver process and waits for it to exit.
// The process is killed if it has not exited after five seconds.
func (h *Harness) Close() error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}

	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil && h.cmd.ProcessState.Success() {
		return nil
	}
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	return nil
}

func findBinary(configPath string) string {
	// Check config path first
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	// Check environment variable
	if envPath := os.Getenv(envBinary); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Check PATH
	if pathBinary, err := exec.LookPath("cashmate-testserver"); err == nil {
		return pathBinary
	}

	return ""
}

func buildArgs(cfg Config) []string {
	var args []string

	if cfg.ListenAddr != "" {
		args = append(args, "--listen", cfg.ListenAddr)
	}

	if cfg.AccessLifetime != 0 {
		args = append(args, "--access-lifetime", cfg.AccessLifetime.String())
	}

	if cfg.ActivationIssuesTokens {
		args = append(args, "--activation-issues-tokens")
	}

	if cfg.Quiet {
		args = append(args, "--quiet")
	}

	for _, user := range cfg.Users {
		value := fmt.Sprintf("%s:%s", user.Email, user.Password)
		if user.Role != "" {
			value += ":" + user.Role
		}
		args = append(args, "--user", value)
	}

	return args
}
