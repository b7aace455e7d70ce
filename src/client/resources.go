package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/orchestra-mcp/notify-harness/src/types"
)

type categoryBody struct {
	Title string `json:"title"`
}

type statementBody struct {
	Text       string `json:"text"`
	CategoryID string `json:"categoryId"`
}

// ListCategories returns the caller's categories.
func (c *Client) ListCategories(ctx context.Context) ([]types.Category, error) {
	var out struct {
		Categories []types.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) GetCategory(ctx context.Context, id string) (*types.Category, error) {
	var out types.Category
	if err := c.do(ctx, http.MethodGet, "/categories/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateCategory(ctx context.Context, title string) (*types.Category, error) {
	var out types.Category
	if err := c.do(ctx, http.MethodPost, "/categories", categoryBody{title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id, title string) (*types.Category, error) {
	var out types.Category
	if err := c.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), categoryBody{title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil)
}

// ListStatements returns the caller's statements.
func (c *Client) ListStatements(ctx context.Context) ([]types.Statement, error) {
	var out struct {
		Statements []types.Statement `json:"statements"`
	}
	if err := c.do(ctx, http.MethodGet, "/statements", nil, &out); err != nil {
		return nil, err
	}
	return out.Statements, nil
}

func (c *Client) GetStatement(ctx context.Context, id string) (*types.Statement, error) {
	var out types.Statement
	if err := c.do(ctx, http.MethodGet, "/statements/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateStatement(ctx context.Context, text, categoryID string) (*types.Statement, error) {
	var out types.Statement
	if err := c.do(ctx, http.MethodPost, "/statements", statementBody{text, categoryID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatement replaces text and category reference.
func (c *Client) UpdateStatement(ctx context.Context, id, text, categoryID string) (*types.Statement, error) {
	var out types.Statement
	if err := c.do(ctx, http.MethodPut, "/statements/"+url.PathEscape(id), statementBody{text, categoryID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStatement(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/statements/"+url.PathEscape(id), nil, nil)
}
