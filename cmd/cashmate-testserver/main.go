// Package main runs the fake CashMate backend as a standalone process, for
// end-to-end tests of the cashmate binary and of other clients.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/cashmatetest"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

// Config holds all command-line configuration
type Config struct {
	ListenAddr             string
	Users                  UserFlag
	AccessLifetime         time.Duration
	ActivationIssuesTokens bool
	Quiet                  bool
}

// UserCredentials is one seeded, activated account.
type UserCredentials struct {
	Email    string
	Password string
	Role     string
}

// OutputContract is the JSON structure emitted on stdout
type OutputContract struct {
	BaseURL                string       `json:"base_url"`
	MetricsURL             string       `json:"metrics_url"`
	ActivationIssuesTokens bool         `json:"activation_issues_tokens"`
	Users                  []OutputUser `json:"users"`
}

type OutputUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserFlag is a repeatable --user flag of the form email:password[:role]
type UserFlag []UserCredentials

func (u *UserFlag) String() string {
	emails := make([]string, len(*u))
	for i, user := range *u {
		emails[i] = user.Email
	}
	return strings.Join(emails, ",")
}

func (u *UserFlag) Set(value string) error {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("user must be in format 'email:password[:role]'")
	}
	user := UserCredentials{Email: parts[0], Password: parts[1], Role: cashmatetest.RoleUser}
	if len(parts) == 3 {
		switch parts[2] {
		case cashmatetest.RoleUser, cashmatetest.RoleAdmin:
			user.Role = parts[2]
		default:
			return fmt.Errorf("unknown role %q", parts[2])
		}
	}
	*u = append(*u, user)
	return nil
}

func (u *UserFlag) Type() string {
	return "email:password[:role]"
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:           "cashmate-testserver",
		Short:         "Run the fake CashMate backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ListenAddr, "listen", "127.0.0.1:0", "Listen address (default uses ephemeral port)")
	flags.Var(&cfg.Users, "user", "Seeded account as 'email:password[:role]' (repeatable)")
	flags.DurationVar(&cfg.AccessLifetime, "access-lifetime", 30*time.Minute, "Access token lifetime")
	flags.BoolVar(&cfg.ActivationIssuesTokens, "activation-issues-tokens", false, "Sign users in on activation")
	flags.BoolVar(&cfg.Quiet, "quiet", false, "Suppress log output")
	return cmd
}

func run(ctx context.Context, cfg Config, stdout, stderr io.Writer) error {
	if cfg.Quiet {
		stderr = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(cfg.Users) == 0 {
		cfg.Users = UserFlag{{Email: "test@example.com", Password: "test", Role: cashmatetest.RoleUser}}
	}

	backend := cashmatetest.NewServer(cashmatetest.Options{
		AccessLifetime:         cfg.AccessLifetime,
		ActivationIssuesTokens: cfg.ActivationIssuesTokens,
		Logger:                 logger,
	})

	contract := OutputContract{
		ActivationIssuesTokens: cfg.ActivationIssuesTokens,
		Users:                  make([]OutputUser, len(cfg.Users)),
	}
	for i, user := range cfg.Users {
		seeded, err := backend.AddUser(user.Email, user.Password, user.Role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", user.Email, err)
		}
		contract.Users[i] = OutputUser{
			ID:       seeded.ID,
			Email:    seeded.Email,
			Password: user.Password,
			Role:     seeded.Role,
		}
	}

	r := mux.NewRouter()
	r.Handle("/metrics", backend.Metrics().Handler())
	r.PathPrefix("/").Handler(backend.Handler())

	// Start HTTP server with ephemeral port
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	contract.BaseURL = fmt.Sprintf("http://%s", addr.String())
	contract.MetricsURL = contract.BaseURL + "/metrics"

	// Emit JSON contract to stdout
	if err := json.NewEncoder(stdout).Encode(contract); err != nil {
		return fmt.Errorf("failed to encode JSON contract: %w", err)
	}

	server := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(listener)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", slog.String("cause", context.Cause(ctx).Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
