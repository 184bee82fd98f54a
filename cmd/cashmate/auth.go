package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"git.sr.ht/~jakintosh/cashmate/pkg/session"
	"github.com/spf13/cobra"
)

const envPassword = "CASHMATE_PASSWORD"

// password returns the flag value, then $CASHMATE_PASSWORD, then the first
// line of stdin.
func password(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(envPassword); env != "" {
		return env, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCmd() *cobra.Command {
	var form session.LoginForm
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if form.Password, err = password(cmd, form.Password); err != nil {
				return err
			}
			identity, err := c.app.Session.Login(cmd.Context(), form)
			if err != nil {
				return explain(err)
			}
			return c.renderProfile(identity)
		},
	}
	cmd.Flags().StringVar(&form.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&form.Password, "password", "", "Account password (default $"+envPassword+" or stdin)")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var form session.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and wait for its activation code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if form.Password, err = password(cmd, form.Password); err != nil {
				return err
			}
			if form.ConfirmPassword == "" {
				form.ConfirmPassword = form.Password
			}
			if err := c.app.Session.Register(cmd.Context(), form); err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Registered %s; an activation code was sent.\n", form.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Username, "username", "", "Display name")
	cmd.Flags().StringVar(&form.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&form.Password, "password", "", "Account password (default $"+envPassword+" or stdin)")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "Password confirmation (default --password)")
	return cmd
}

func (c *cli) activateCmd() *cobra.Command {
	var form session.ActivateForm
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate the pending account with the emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := c.app.Session.Activate(cmd.Context(), form)
			if err != nil {
				return explain(err)
			}
			if identity == nil {
				fmt.Fprintln(c.out, "Account activated.")
				return nil
			}
			return c.renderProfile(identity)
		},
	}
	cmd.Flags().StringVar(&form.Code, "code", "", "Six digit activation code")
	return cmd
}

func (c *cli) resendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend",
		Short: "Send the activation code again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.app.Session.ResendActivation(cmd.Context())
			if errors.Is(err, session.ErrCooldownActive) {
				return fmt.Errorf("%w: wait %ds", err, c.app.Session.Cooldown().Remaining())
			}
			if err != nil {
				return explain(err)
			}
			fmt.Fprintln(c.out, "Activation code sent.")
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Session.Logout(cmd.Context())
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(cmd); err != nil {
				return err
			}
			identity, err := c.app.Session.Identity(cmd.Context())
			if err != nil {
				return err
			}
			return c.renderProfile(identity)
		},
	}
}

var errNotSignedIn = errors.New("not signed in")

// requireSession runs the dashboard guard; anything but the dashboard means
// there is no usable session.
func (c *cli) requireSession(cmd *cobra.Command) error {
	view, err := c.app.Session.Enter(cmd.Context(), session.ViewDashboard)
	if err != nil {
		return err
	}
	if view != session.ViewDashboard {
		return errNotSignedIn
	}
	return nil
}

// explain turns API failures into messages fit for a terminal.
func explain(err error) error {
	var formErr *session.ValidationError
	var statusErr *client.StatusError
	var refreshErr *client.RefreshError
	switch {
	case errors.As(err, &formErr):
		return err
	case errors.Is(err, client.ErrNotActivated):
		return errors.New("account not activated; run: cashmate activate --code <code>")
	case errors.As(err, &refreshErr):
		return fmt.Errorf("session expired: %w", refreshErr.Err)
	case errors.As(err, &statusErr):
		return fmt.Errorf("request failed: %s", statusErr.Error())
	}
	return err
}
