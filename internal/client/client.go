// Package client talks to the shared note HTTP API and its push channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/response"
)

const defaultTimeout = 10 * time.Second

// APIError is returned for every non-2xx response. A 404 unwraps to
// domain.ErrNoteNotFound.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("shared notes api: %d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("shared notes api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNoteNotFound
	}
	return nil
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Fetch(ctx context.Context, id string) (*domain.SharedNote, error) {
	var note domain.SharedNote
	if err := c.do(ctx, http.MethodGet, c.notePath(id), nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) Create(ctx context.Context, title, content string) (*domain.SharedNote, error) {
	var note domain.SharedNote
	req := domain.CreateSharedNoteRequest{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/notes", req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) Update(ctx context.Context, id, title, content string) (*domain.SharedNote, error) {
	var note domain.SharedNote
	req := domain.UpdateSharedNoteRequest{Title: &title, Content: &content}
	if err := c.do(ctx, http.MethodPut, c.notePath(id), req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	var resp domain.DeleteResponse
	return c.do(ctx, http.MethodDelete, c.notePath(id), nil, &resp)
}

func (c *Client) Share(ctx context.Context, title, content string) (*domain.ShareLinkResponse, error) {
	var link domain.ShareLinkResponse
	req := domain.CreateSharedNoteRequest{Title: title, Content: content}
	if err := c.do(ctx, http.MethodPost, "/share", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errBody response.ErrorBody
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.Details = errBody.Details
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
