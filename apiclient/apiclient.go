// Package apiclient speaks the callable wire protocol of the firepanel
// backend: POST {"data": ...} with a Bearer ID token, answered by
// {"result": ...} or {"error": {...}}.
//
// Client implements treecache.Lister, making it the remote listing
// collaborator for the database browser.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrPermissionDenied indicates the backend rejected the call because the
// authenticated user lacks the required permission claim.
var ErrPermissionDenied = errors.New("permission denied")

type Client struct {
	hc      *http.Client
	baseURL string
	idToken string
}

// New builds a client for the callable endpoints rooted at baseURL,
// authenticating every call with idToken.
func New(baseURL, idToken string) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		idToken: idToken,
	}
}

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, name string, data, result interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return fmt.Errorf("while encoding %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("while building %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.idToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("while calling %s: %w", name, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *callableError  `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("while decoding %s response (HTTP %d): %w", name, resp.StatusCode, err)
	}

	if envelope.Error != nil {
		if envelope.Error.Status == "permission-denied" {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, envelope.Error.Message)
		}
		return fmt.Errorf("%s failed: %s: %s", name, envelope.Error.Status, envelope.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("while decoding %s result: %w", name, err)
		}
	}
	return nil
}

// ListCollections returns the child collection paths of a root or document
// path.
func (c *Client) ListCollections(ctx context.Context, path string) ([]string, error) {
	var out []string
	err := c.call(ctx, "listCollections", struct {
		Path string `json:"path"`
	}{path}, &out)
	return out, err
}

// ListDocuments returns up to limit document paths from a collection.
func (c *Client) ListDocuments(ctx context.Context, path string, limit int) ([]string, error) {
	var out []string
	err := c.call(ctx, "listDocuments", struct {
		Path  string `json:"path"`
		Limit int    `json:"limit,omitempty"`
	}{path, limit}, &out)
	return out, err
}

// DeleteCollection recursively deletes every document in a collection. It
// returns only after the backend commits the last batch.
func (c *Client) DeleteCollection(ctx context.Context, path string) (bool, error) {
	var done bool
	err := c.call(ctx, "deleteCollection", struct {
		Path string `json:"path"`
	}{path}, &done)
	return done, err
}
