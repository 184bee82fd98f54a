package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Transaction struct {
	ID          int64     `json:"id" yaml:"id"`
	CategoryID  int64     `json:"category_id" yaml:"category_id"`
	Amount      float64   `json:"amount" yaml:"amount"`
	Description string    `json:"description" yaml:"description"`
	Date        time.Time `json:"date" yaml:"date"`
}

// TransactionUpdate carries only the fields to change.
type TransactionUpdate struct {
	CategoryID  *int64     `json:"category_id,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

func (c *Client) ListTransactions(ctx context.Context) ([]Transaction, error) {
	var transactions []Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions", nil, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (c *Client) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	transaction := &Transaction{}
	if err := c.do(ctx, http.MethodGet, transactionPath(id), nil, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func (c *Client) CreateTransaction(ctx context.Context, transaction Transaction) (*Transaction, error) {
	created := &Transaction{}
	if err := c.do(ctx, http.MethodPost, "/transactions", transaction, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) (*Transaction, error) {
	updated := &Transaction{}
	if err := c.do(ctx, http.MethodPut, transactionPath(id), update, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, transactionPath(id), nil, nil)
}

func transactionPath(id int64) string {
	return fmt.Sprintf("/transactions/%d", id)
}
