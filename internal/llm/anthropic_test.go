package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// opencensus (pulled in via genai) starts a permanent worker at init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func newTestClient(url string) *AnthropicClient {
	return NewAnthropicClient(AnthropicConfig{
		APIKey:    "test-key",
		BaseURL:   url,
		Model:     "claude-test",
		MaxTokens: 1000,
		Timeout:   5 * time.Second,
	})
}

func okBody(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"usage":   map[string]any{"input_tokens": 12, "output_tokens": 34},
	}
}

func TestAnthropicGenerate_Success(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(okBody(" hola csv "))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, usage, err := c.Generate(context.Background(), "instrucciones", "bloque")
	require.NoError(t, err)

	assert.Equal(t, "hola csv", text)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 34}, usage)
	assert.Equal(t, "instrucciones", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "bloque", gotReq.Messages[0].Content)
	assert.Zero(t, gotReq.Temperature)
}

func TestAnthropicGenerate_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(okBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	text, _, err := c.Generate(context.Background(), "", "bloque")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnthropicGenerate_ClientErrorIsFatal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Generate(context.Background(), "", "bloque")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestAnthropicGenerate_APIErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "overloaded_error", "message": "saturado"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Generate(context.Background(), "", "bloque")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saturado")
}

func TestAnthropicGenerate_TimeoutBoundsOneCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnecting;
		// otherwise the request context never cancels and Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-test",
		Timeout: 100 * time.Millisecond,
	})

	// The caller passes no deadline; the configured timeout must bound the
	// call anyway instead of letting it hang on the stalled server.
	start := time.Now()
	_, _, err := c.Generate(context.Background(), "", "bloque")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestAnthropicGenerate_MissingAPIKey(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{Model: "claude-test"})
	_, _, err := c.Generate(context.Background(), "", "bloque")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestAnthropicGenerate_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Generate(context.Background(), "", "bloque")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion")
}
