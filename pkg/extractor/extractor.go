// Package extractor asks an OpenAI-compatible chat completion endpoint to pull
// durable facts out of a single user turn.
//
// The extractor never fails: every transport, status or decoding problem is
// logged and mapped to EmptyList, so callers treat it as "nothing found".
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/automem/pkg/utils"
)

const (
	// EmptyList is returned whenever no list-shaped content can be recovered.
	EmptyList = "[]"

	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel should be fast and cheap; extraction runs on every turn.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultTimeout bounds a single extraction call.
	DefaultTimeout = 30 * time.Second

	temperature = 0.1
	maxTokens   = 500

	// logBodyLimit caps how much of a response body lands in a log line.
	logBodyLimit = 200
)

// Config holds configuration for an Extractor.
type Config struct {
	// BaseURL is the API root; "/chat/completions" is appended.
	BaseURL string

	// Model is the model identifier sent with each request.
	Model string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Extractor calls the completion endpoint with the fixed extraction prompt.
type Extractor struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Extractor, filling defaults for zero-value fields.
func New(c Config) *Extractor {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		url:        baseURL + "/chat/completions",
		model:      model,
		apiKey:     c.APIKey,
		httpClient: client,
		logger:     logger,
	}
}

// Model returns the configured model identifier.
func (e *Extractor) Model() string {
	return e.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// statusError carries the HTTP status of a failed completion call.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("completion API error (status %d): %s", e.code, e.body)
}

// Extract sends text to the model and returns its raw reply, expected to be a
// JSON array of strings. Any failure yields EmptyList.
func (e *Extractor) Extract(ctx context.Context, text string) string {
	content, err := e.complete(ctx, text)
	if err != nil {
		e.logFailure(err)
		return EmptyList
	}
	return content
}

func (e *Extractor) complete(ctx context.Context, text string) (string, error) {
	reqBody := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{code: resp.StatusCode, body: utils.Truncate(string(body), logBodyLimit)}
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}

	content := result.Choices[0].Message.Content
	if content == nil {
		return "", errors.New("completion choice has no message content")
	}

	return *content, nil
}

func (e *Extractor) logFailure(err error) {
	var se *statusError
	if !errors.As(err, &se) {
		e.logger.Error("memory extraction failed",
			"model", e.model,
			"error", err,
		)
		return
	}

	msg := "memory extraction failed"
	switch se.code {
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "memory extraction rejected: check extraction.api_key"
	case http.StatusTooManyRequests:
		msg = "memory extraction rate limited"
	}

	e.logger.Error(msg,
		"status", se.code,
		"model", e.model,
		"body", se.body,
	)
}
