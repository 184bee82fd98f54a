// Package main provides the cashmate command line client.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.sr.ht/~jakintosh/cashmate/internal/app"
	"git.sr.ht/~jakintosh/cashmate/internal/config"
	"git.sr.ht/~jakintosh/cashmate/pkg/session"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	c := &cli{out: out, errOut: errOut}
	defer func() {
		if c.app != nil {
			c.app.Close()
		}
	}()

	cmd := c.rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	return cmd.ExecuteContext(ctx)
}

// cli holds what every subcommand shares. app is set by the root's
// PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string
	output     string

	out    io.Writer
	errOut io.Writer
	app    *app.App
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cashmate",
		Short:         "Command line client for the CashMate API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}
	cmd.SetOut(c.out)
	cmd.SetErr(c.errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML), overrides "+config.EnvConfigPath)
	flags.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&c.output, "output", "o", formatTable, "Output format (table, yaml, json)")

	cmd.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.activateCmd(),
		c.resendCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.dashboardCmd(),
		c.categoriesCmd(),
		c.usersCmd(),
		c.transactionsCmd(),
		c.watchCmd(),
		c.envCmd(),
	)
	return cmd
}

func (c *cli) setup(ctx context.Context) error {
	if !validFormat(c.output) {
		return fmt.Errorf("unknown output format %q", c.output)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	c.app, err = app.New(ctx, cfg, app.Options{
		Logger:    logger,
		Navigator: session.NavigatorFunc(c.hint),
	})
	return err
}

// hint tells the user which command leads to the view the session moved to.
func (c *cli) hint(view session.View) {
	switch view {
	case session.ViewLogin:
		fmt.Fprintln(c.errOut, "Not signed in. Run: cashmate login --email <email>")
	case session.ViewRegister:
		fmt.Fprintln(c.errOut, "Create an account with: cashmate register")
	case session.ViewActivate:
		fmt.Fprintln(c.errOut, "Check your email, then run: cashmate activate --code <code>")
	case session.ViewDashboard:
		fmt.Fprintln(c.errOut, "Signed in. Run: cashmate dashboard")
	}
}

func (c *cli) envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables cashmate reads",
		// skips the root's setup, so it works without a configured API URL
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(c.out, config.Usage())
			return err
		},
	}
}
