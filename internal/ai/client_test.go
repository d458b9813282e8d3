package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type staticKeys map[string]string

func (k staticKeys) ActiveSecret(_ context.Context, serviceName string) (string, error) {
	return k[serviceName], nil
}

func testModel() models.ModelInfo {
	info, _ := models.LookupModel("GPT-4o mini")
	return info
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateSendsAuthorizedRequest(t *testing.T) {
	var captured struct {
		Model          string   `json:"model"`
		Prompt         string   `json:"prompt"`
		AttachmentURLs []string `json:"attachment_urls"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"pong"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticKeys{"OpenAI": "sk-test"}, discardLogger())
	resp, err := c.Generate(context.Background(), testModel(), Request{
		Prompt:         "ping",
		AttachmentURLs: []string{"https://cdn.example/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text)
	assert.Equal(t, "GPT-4o mini", captured.Model)
	assert.Equal(t, "ping", captured.Prompt)
	assert.Equal(t, []string{"https://cdn.example/a.png"}, captured.AttachmentURLs)
}

func TestGenerateMissingKey(t *testing.T) {
	c := NewClient("https://gateway.example", time.Second, staticKeys{}, discardLogger())

	_, err := c.Generate(context.Background(), testModel(), Request{Prompt: "ping"})
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestGenerateGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticKeys{"OpenAI": "sk-test"}, discardLogger())
	_, err := c.Generate(context.Background(), testModel(), Request{Prompt: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"content filtered"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticKeys{"OpenAI": "sk-test"}, discardLogger())
	_, err := c.Generate(context.Background(), testModel(), Request{Prompt: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content filtered")
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticKeys{"OpenAI": "sk-test"}, discardLogger())
	_, err := c.Generate(context.Background(), testModel(), Request{Prompt: "ping"})
	require.Error(t, err)
}
