package main

import (
	"fmt"
	"strconv"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarise categories, transactions and users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(cmd); err != nil {
				return err
			}
			dashboard, err := c.app.API.Dashboard(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return c.render(dashboard, func() table { return dashboardRows(dashboard) })
		},
	}
}

func (c *cli) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "Manage income and expense categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := c.app.API.ListCategories(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return c.render(categories, func() table { return categoryRows(categories...) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			category, err := c.app.API.GetCategory(cmd.Context(), id)
			if err != nil {
				return explain(err)
			}
			return c.render(category, func() table { return categoryRows(*category) })
		},
	})

	var category client.Category
	var categoryType string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			category.Type = client.CategoryType(categoryType)
			created, err := c.app.API.CreateCategory(cmd.Context(), category)
			if err != nil {
				return explain(err)
			}
			return c.render(created, func() table { return categoryRows(*created) })
		},
	}
	create.Flags().StringVar(&category.Name, "name", "", "Category name")
	create.Flags().StringVar(&categoryType, "type", string(client.CategoryExpense), "income or expense")
	create.Flags().StringVar(&category.Description, "description", "", "Description")
	create.Flags().StringVar(&category.Icon, "icon", "", "Icon name")
	create.Flags().StringVar(&category.Color, "color", "", "Display colour")
	cmd.AddCommand(create)

	var name, updateType, description, icon, color string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the given fields of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var change client.CategoryUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				change.Name = &name
			}
			if flags.Changed("type") {
				t := client.CategoryType(updateType)
				change.Type = &t
			}
			if flags.Changed("description") {
				change.Description = &description
			}
			if flags.Changed("icon") {
				change.Icon = &icon
			}
			if flags.Changed("color") {
				change.Color = &color
			}
			updated, err := c.app.API.UpdateCategory(cmd.Context(), id, change)
			if err != nil {
				return explain(err)
			}
			return c.render(updated, func() table { return categoryRows(*updated) })
		},
	}
	update.Flags().StringVar(&name, "name", "", "Category name")
	update.Flags().StringVar(&updateType, "type", "", "income or expense")
	update.Flags().StringVar(&description, "description", "", "Description")
	update.Flags().StringVar(&icon, "icon", "", "Icon name")
	update.Flags().StringVar(&color, "color", "", "Display colour")
	cmd.AddCommand(update)

	cmd.AddCommand(c.deleteCmd("category", c.deleteCategory))
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage user accounts (admin only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := c.app.API.ListUsers(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return c.render(users, func() table { return userRows(users...) })
		},
	})
	cmd.AddCommand(c.deleteCmd("user", c.deleteUser))
	return cmd
}

func (c *cli) transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"transaction", "tx"},
		Short:   "Record and review transactions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transactions, err := c.app.API.ListTransactions(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return c.render(transactions, func() table { return transactionRows(transactions...) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			transaction, err := c.app.API.GetTransaction(cmd.Context(), id)
			if err != nil {
				return explain(err)
			}
			return c.render(transaction, func() table { return transactionRows(*transaction) })
		},
	})

	var transaction client.Transaction
	var date string
	create := &cobra.Command{
		Use:   "create",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transaction.Date = time.Now().UTC().Truncate(24 * time.Hour)
			if date != "" {
				parsed, err := time.Parse(dateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
				}
				transaction.Date = parsed
			}
			created, err := c.app.API.CreateTransaction(cmd.Context(), transaction)
			if err != nil {
				return explain(err)
			}
			return c.render(created, func() table { return transactionRows(*created) })
		},
	}
	create.Flags().Int64Var(&transaction.CategoryID, "category", 0, "Category id")
	create.Flags().Float64Var(&transaction.Amount, "amount", 0, "Amount")
	create.Flags().StringVar(&transaction.Description, "description", "", "Description")
	create.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD (default today)")
	cmd.AddCommand(create)

	cmd.AddCommand(c.deleteCmd("transaction", c.deleteTransaction))
	return cmd
}

func (c *cli) deleteCategory(cmd *cobra.Command, id int64) error {
	return c.app.API.DeleteCategory(cmd.Context(), id)
}

func (c *cli) deleteUser(cmd *cobra.Command, id int64) error {
	return c.app.API.DeleteUser(cmd.Context(), id)
}

func (c *cli) deleteTransaction(cmd *cobra.Command, id int64) error {
	return c.app.API.DeleteTransaction(cmd.Context(), id)
}

func (c *cli) deleteCmd(noun string, remove func(*cobra.Command, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a " + noun,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := remove(cmd, id); err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Deleted %s %d.\n", noun, id)
			return nil
		},
	}
}
