package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, server *httptest.Server, buf *bytes.Buffer, timeout time.Duration) *Client {
	t.Helper()
	c := NewClient(server.Client(), newTestLogger(buf), ClientConfig{
		APIKey:  "test-key",
		Timeout: timeout,
	})
	c.endpoint = server.URL + "/v1/models/test:generateContent"
	return c
}

func writeCandidates(w http.ResponseWriter, texts ...string) {
	parts := make([]map[string]any, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, map[string]any{"text": t})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": parts}},
		},
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(http.DefaultClient, nil, ClientConfig{})

	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, 90*time.Second, c.timeout)
	assert.Equal(t, DefaultGenerationConfig(), c.config)
}

func TestClient_Generate_SendsPayloadAndKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))

		contents := payload["contents"].([]any)
		first := contents[0].(map[string]any)
		assert.Equal(t, "user", first["role"])
		text := first["parts"].([]any)[0].(map[string]any)["text"]
		assert.Equal(t, "write something", text)

		cfg := payload["generationConfig"].(map[string]any)
		assert.Equal(t, 0.3, cfg["temperature"])
		assert.Equal(t, 0.95, cfg["topP"])
		assert.Equal(t, float64(32), cfg["topK"])
		assert.Equal(t, float64(1200), cfg["maxOutputTokens"])

		writeCandidates(w, "generated text")
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, time.Second)

	text, err := c.Generate(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
}

func TestClient_Generate_JoinsNonBlankParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[
			{"content":{"parts":[{"text":"first"},{"text":"   "},{"text":"second"}]}},
			{"content":null},
			{"content":{"parts":[{"inlineData":{}},{"text":"third\n"}]}}
		]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, time.Second)

	text, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\nthird", text)
}

func TestClient_Generate_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, time.Second)

	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_Generate_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, time.Second)

	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_Generate_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, time.Second)

	_, err := c.Generate(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "boom")
	assert.Contains(t, buf.String(), "generation service returned error status")
}

func TestClient_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(t, server, &buf, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Generate(context.Background(), "p")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotContains(t, err.Error(), "test-key", "error must not leak the API key")
	assert.NotContains(t, buf.String(), "test-key", "log must not leak the API key")
}

func TestClient_Generate_NotConfigured(t *testing.T) {
	c := NewClient(http.DefaultClient, nil, ClientConfig{})

	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.True(t, strings.HasSuffix(truncate(strings.Repeat("x", 600), maxErrorBodyBytes), "..."))
}
