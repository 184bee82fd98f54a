package client

import (
	"context"
	"fmt"
	"net/http"
)

type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

func (t CategoryType) Valid() bool {
	return t == CategoryIncome || t == CategoryExpense
}

type Category struct {
	ID          int64        `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Type        CategoryType `json:"type" yaml:"type"`
	Description string       `json:"description" yaml:"description"`
	Icon        string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color       string       `json:"color,omitempty" yaml:"color,omitempty"`
}

// CategoryUpdate carries only the fields to change.
type CategoryUpdate struct {
	Name        *string       `json:"name,omitempty"`
	Type        *CategoryType `json:"type,omitempty"`
	Description *string       `json:"description,omitempty"`
	Icon        *string       `json:"icon,omitempty"`
	Color       *string       `json:"color,omitempty"`
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) GetCategory(ctx context.Context, id int64) (*Category, error) {
	category := &Category{}
	if err := c.do(ctx, http.MethodGet, categoryPath(id), nil, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (c *Client) CreateCategory(ctx context.Context, category Category) (*Category, error) {
	created := &Category{}
	if err := c.do(ctx, http.MethodPost, "/categories", category, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, update CategoryUpdate) (*Category, error) {
	updated := &Category{}
	if err := c.do(ctx, http.MethodPut, categoryPath(id), update, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, categoryPath(id), nil, nil)
}

func categoryPath(id int64) string {
	return fmt.Sprintf("/categories/%d", id)
}
