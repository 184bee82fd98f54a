package client

import (
	"context"

	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
)

// Authenticator exposes the unauthenticated auth endpoints.
// Consuming packages should depend on this interface rather than *Public
// to enable testing with fake implementations.
type Authenticator interface {
	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Register(ctx context.Context, req RegisterRequest) error
	Activate(ctx context.Context, req ActivateRequest) (*TokenPair, error)
	ResendActivation(ctx context.Context, email string) error
}

// API exposes the authenticated resource endpoints.
type API interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, category Category) (*Category, error)
	UpdateCategory(ctx context.Context, id int64, update CategoryUpdate) (*Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) error

	ListTransactions(ctx context.Context) ([]Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	CreateTransaction(ctx context.Context, transaction Transaction) (*Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) (*Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	Dashboard(ctx context.Context) (*Dashboard, error)
}

// Compile-time checks.
var _ Authenticator = (*Public)(nil)
var _ tokens.Refresher = (*Public)(nil)
var _ API = (*Client)(nil)
