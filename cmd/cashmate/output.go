package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

func validFormat(format string) bool {
	switch format {
	case formatTable, formatYAML, formatJSON:
		return true
	}
	return false
}

type table struct {
	header []string
	rows   [][]string
}

// render writes v in the selected format. rows builds the table form.
func (c *cli) render(v any, rows func() table) error {
	switch c.output {
	case formatJSON:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case formatYAML:
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()

	default:
		t := rows()
		w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(t.header, "\t"))
		for _, row := range t.rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return w.Flush()
	}
}

// profile is the identity as the CLI shows it.
type profile struct {
	ID        string `json:"id" yaml:"id"`
	Username  string `json:"username" yaml:"username"`
	Email     string `json:"email" yaml:"email"`
	Role      string `json:"role,omitempty" yaml:"role,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func newProfile(identity *tokens.Identity) profile {
	p := profile{
		ID:       identity.Subject,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
	}
	if identity.Expiration != 0 {
		p.ExpiresAt = time.Unix(identity.Expiration, 0).UTC().Format(time.RFC3339)
	}
	return p
}

func (c *cli) renderProfile(identity *tokens.Identity) error {
	p := newProfile(identity)
	return c.render(p, func() table {
		return table{
			header: []string{"ID", "USERNAME", "EMAIL", "ROLE", "EXPIRES"},
			rows:   [][]string{{p.ID, p.Username, p.Email, p.Role, p.ExpiresAt}},
		}
	})
}

func categoryRows(categories ...client.Category) table {
	t := table{header: []string{"ID", "NAME", "TYPE", "DESCRIPTION"}}
	for _, category := range categories {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(category.ID, 10),
			category.Name,
			string(category.Type),
			category.Description,
		})
	}
	return t
}

func userRows(users ...client.User) table {
	t := table{header: []string{"ID", "USERNAME", "EMAIL", "ROLE"}}
	for _, user := range users {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(user.ID, 10),
			user.Username,
			user.Email,
			user.Role,
		})
	}
	return t
}

func transactionRows(transactions ...client.Transaction) table {
	t := table{header: []string{"ID", "DATE", "CATEGORY", "AMOUNT", "DESCRIPTION"}}
	for _, transaction := range transactions {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(transaction.ID, 10),
			transaction.Date.Format("2006-01-02"),
			strconv.FormatInt(transaction.CategoryID, 10),
			strconv.FormatFloat(transaction.Amount, 'f', 2, 64),
			transaction.Description,
		})
	}
	return t
}

func dashboardRows(d *client.Dashboard) table {
	var income, expense float64
	types := make(map[int64]client.CategoryType, len(d.Categories))
	for _, category := range d.Categories {
		types[category.ID] = category.Type
	}
	for _, transaction := range d.Transactions {
		switch types[transaction.CategoryID] {
		case client.CategoryIncome:
			income += transaction.Amount
		case client.CategoryExpense:
			expense += transaction.Amount
		}
	}

	t := table{header: []string{"ITEM", "VALUE"}}
	t.rows = [][]string{
		{"categories", strconv.Itoa(len(d.Categories))},
		{"transactions", strconv.Itoa(len(d.Transactions))},
		{"income", strconv.FormatFloat(income, 'f', 2, 64)},
		{"expense", strconv.FormatFloat(expense, 'f', 2, 64)},
		{"balance", strconv.FormatFloat(income-expense, 'f', 2, 64)},
	}
	if d.Users != nil {
		t.rows = append(t.rows, []string{"users", strconv.Itoa(len(d.Users))})
	}
	return t
}
