package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/notebridge/marksync/pkg/agent"
	"github.com/notebridge/marksync/pkg/api"
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/types"
)

// Client wraps the control API for CLI usage.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the daemon listening at addr
// (host:port or a full http URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the agent status summary.
func (c *Client) Status() (*agent.Status, error) {
	var out agent.Status
	if err := c.do(http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync triggers a manual sync round.
func (c *Client) Sync() error {
	return c.do(http.MethodPost, "/v1/sync", nil, nil)
}

// GetConfig fetches the bridge configuration. Tokens come back
// redacted.
func (c *Client) GetConfig() (*types.BridgeConfig, error) {
	var out types.BridgeConfig
	if err := c.do(http.MethodGet, "/v1/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutConfig replaces the bridge configuration. Profiles carrying the
// redacted token marker keep their stored tokens.
func (c *Client) PutConfig(cfg *types.BridgeConfig) error {
	return c.do(http.MethodPut, "/v1/config", cfg, nil)
}

// Events fetches the debug timeline, oldest first.
func (c *Client) Events() ([]types.DebugEvent, error) {
	var out struct {
		Events []types.DebugEvent `json:"events"`
	}
	if err := c.do(http.MethodGet, "/v1/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ClearEvents drops the debug timeline.
func (c *Client) ClearEvents() error {
	return c.do(http.MethodDelete, "/v1/events", nil, nil)
}

// GetTree fetches the full local bookmark tree.
func (c *Client) GetTree() (*bookmarks.Node, error) {
	var out bookmarks.Node
	if err := c.do(http.MethodGet, "/v1/bookmarks", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChildren fetches the ordered children of a folder.
func (c *Client) ListChildren(id string) ([]*bookmarks.Node, error) {
	var out struct {
		Children []*bookmarks.Node `json:"children"`
	}
	path := "/v1/bookmarks/" + url.PathEscape(id) + "/children"
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Children, nil
}

// CreateBookmark creates a bookmark or folder.
func (c *Client) CreateBookmark(req api.CreateBookmarkRequest) (*bookmarks.Node, error) {
	var out bookmarks.Node
	if err := c.do(http.MethodPost, "/v1/bookmarks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBookmark rewrites title and/or url of a node.
func (c *Client) UpdateBookmark(id string, req api.UpdateBookmarkRequest) (*bookmarks.Node, error) {
	var out bookmarks.Node
	path := "/v1/bookmarks/" + url.PathEscape(id)
	if err := c.do(http.MethodPatch, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveBookmark reparents and/or repositions a node.
func (c *Client) MoveBookmark(id string, req api.MoveBookmarkRequest) (*bookmarks.Node, error) {
	var out bookmarks.Node
	path := "/v1/bookmarks/" + url.PathEscape(id) + "/move"
	if err := c.do(http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveBookmark deletes a node; recursive removes a folder and its
// subtree.
func (c *Client) RemoveBookmark(id string, recursive bool) error {
	path := "/v1/bookmarks/" + url.PathEscape(id)
	if recursive {
		path += "?recursive=true"
	}
	return c.do(http.MethodDelete, path, nil, nil)
}

func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is the daemon running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
