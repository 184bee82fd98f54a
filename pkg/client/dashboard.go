package client

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Dashboard is everything the dashboard view shows.
type Dashboard struct {
	Categories   []Category    `json:"categories" yaml:"categories"`
	Users        []User        `json:"users,omitempty" yaml:"users,omitempty"`
	Transactions []Transaction `json:"transactions" yaml:"transactions"`
}

// Dashboard loads categories, users and transactions concurrently. The user
// list is admin-only; a 403 on it leaves Users empty instead of failing the
// whole load.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	dashboard := &Dashboard{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		categories, err := c.ListCategories(ctx)
		dashboard.Categories = categories
		return err
	})
	g.Go(func() error {
		users, err := c.ListUsers(ctx)
		if errors.Is(err, ErrForbidden) {
			return nil
		}
		dashboard.Users = users
		return err
	})
	g.Go(func() error {
		transactions, err := c.ListTransactions(ctx)
		dashboard.Transactions = transactions
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dashboard, nil
}
