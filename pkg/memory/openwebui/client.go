// Package openwebui talks to the Open WebUI memory REST API, which provides
// the rich add and query operations for a signed-in user.
package openwebui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/utils"
)

const (
	queryPath = "/api/v1/memories/query"
	addPath   = "/api/v1/memories/add"

	// DefaultTimeout bounds a single memory API call.
	DefaultTimeout = 15 * time.Second

	logBodyLimit = 200
)

// Config holds configuration for a Client.
type Config struct {
	// BaseURL is the Open WebUI root, e.g. "http://localhost:8080".
	BaseURL string

	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client implements memory.Querier and memory.Adder against Open WebUI.
// Each call authenticates with the session token of the owner.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ memory.Querier = (*Client)(nil)
	_ memory.Adder   = (*Client)(nil)
)

// New creates a Client.
func New(c Config) (*Client, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("openwebui: base URL is required")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

type queryRequest struct {
	Content string `json:"content"`
	K       int    `json:"k"`
}

type addRequest struct {
	Content string `json:"content"`
}

// Query implements memory.Querier.
func (c *Client) Query(ctx context.Context, owner memory.Owner, content string, k int) (*memory.QueryResult, error) {
	var res memory.QueryResult
	if err := c.post(ctx, owner, queryPath, queryRequest{Content: content, K: k}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Add implements memory.Adder.
func (c *Client) Add(ctx context.Context, owner memory.Owner, content string) error {
	return c.post(ctx, owner, addPath, addRequest{Content: content}, nil)
}

func (c *Client) post(ctx context.Context, owner memory.Owner, path string, body, out any) error {
	if owner.Session == nil || owner.Session.Token == "" {
		return memory.ErrMissingHandles
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+owner.Session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("memory API error",
			"path", path,
			"status", resp.StatusCode,
			"user_id", utils.ShortID(owner.ID()),
		)
		return fmt.Errorf("memory API error (status %d): %s",
			resp.StatusCode, utils.Truncate(string(respBody), logBodyLimit))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
