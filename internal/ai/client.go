// Package ai wraps the model gateway behind an opaque generate capability.
// The ledger decides whether a request may run; this client only runs it.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

// ErrServiceUnavailable means the model's service has no active API key.
var ErrServiceUnavailable = errors.New("ai service unavailable")

// KeySource resolves the active API key for a provider service, or "" when
// the service is disabled.
type KeySource interface {
	ActiveSecret(ctx context.Context, serviceName string) (string, error)
}

type Client struct {
	baseURL    string
	keys       KeySource
	httpClient *http.Client
	log        *slog.Logger
}

type Request struct {
	Prompt         string
	Instructions   string
	AttachmentURLs []string
}

type Response struct {
	Text     string
	MediaURL string
}

func NewClient(baseURL string, timeout time.Duration, keys KeySource, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keys:       keys,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Generate runs one request against the gateway. The caller has already
// consumed a ledger request; an error here is grounds for a refund.
func (c *Client) Generate(ctx context.Context, model models.ModelInfo, req Request) (*Response, error) {
	secret, err := c.keys.ActiveSecret(ctx, model.Service)
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: no active key for %s", ErrServiceUnavailable, model.Service)
	}

	payload := map[string]any{
		"model":  model.Name,
		"prompt": req.Prompt,
	}
	if req.Instructions != "" {
		payload["instructions"] = req.Instructions
	}
	if len(req.AttachmentURLs) > 0 {
		payload["attachment_urls"] = req.AttachmentURLs
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL + "/v1/generate")
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("gateway request failed", "model", model.Name, "status", resp.StatusCode, "body", truncateBody(rawBody))
		return nil, fmt.Errorf("gateway error: status=%d model=%s body=%s", resp.StatusCode, model.Name, truncateBody(rawBody))
	}

	var parsed struct {
		Text     string `json:"text"`
		MediaURL string `json:"media_url"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("gateway error: %s", parsed.Error)
	}
	if parsed.Text == "" && parsed.MediaURL == "" {
		return nil, fmt.Errorf("empty gateway response for model %s", model.Name)
	}

	return &Response{Text: parsed.Text, MediaURL: parsed.MediaURL}, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
