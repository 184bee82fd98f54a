package main

import (
	"fmt"

	"git.sr.ht/~jakintosh/cashmate/pkg/session"
	"github.com/spf13/cobra"
)

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow sign-ins and sign-outs made by other cashmate processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fmt.Fprintf(c.out, "%s\n", c.app.Session.State())

			watcher, err := c.app.Watch(ctx, func(state session.State) {
				fmt.Fprintf(c.out, "%s\n", state)
			})
			if err != nil {
				return err
			}
			defer watcher.Close()

			<-ctx.Done()
			return nil
		},
	}
}
