package service

import (
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/pkg/logger"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("debug")
	os.Exit(m.Run())
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newTestAIService(baseURL string, maxRetries int) *AIService {
	return NewAIService(config.AIConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		MaxTokens:      1024,
		Temperature:    0.7,
		TimeoutSeconds: 5,
		MaxRetries:     maxRetries,
	})
}

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		w.Write([]byte(completionBody("generated text")))
	}))
	defer srv.Close()

	s := newTestAIService(srv.URL, 3)
	text, err := s.Complete(context.Background(), CompletionRequest{Prompt: "write something"})
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)
}

func TestCompleteMissingAPIKeyFailsFast(t *testing.T) {
	s := NewAIService(config.AIConfig{BaseURL: "http://localhost:1", APIKey: ""})
	_, err := s.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionBody("second time lucky")))
	}))
	defer srv.Close()

	var retries int32
	s := newTestAIService(srv.URL, 3)
	text, err := s.Complete(context.Background(), CompletionRequest{
		Prompt: "x",
		OnRetry: func(attempt int, err error, delay time.Duration) {
			atomic.AddInt32(&retries, 1)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&retries))
}

func TestCompleteNonRetryableReturnsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer srv.Close()

	s := newTestAIService(srv.URL, 3)
	_, err := s.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable errors must not be retried")
	assert.Equal(t, KindService, Classify(err).Kind)
}

func TestCompleteStopsAtRetryCeiling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestAIService(srv.URL, 1)
	_, err := s.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	// 初始请求 + 1 次重试
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, KindNetwork, Classify(err).Kind)
}

func TestCompleteHonorsRetryAfter(t *testing.T) {
	var calls int32
	var firstRetryDelay time.Duration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("after the limit")))
	}))
	defer srv.Close()

	s := newTestAIService(srv.URL, 3)
	text, err := s.Complete(context.Background(), CompletionRequest{
		Prompt: "x",
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if firstRetryDelay == 0 {
				firstRetryDelay = delay
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "after the limit", text)
	// 延迟以服务端建议为基底，抖动最多 +25%
	assert.GreaterOrEqual(t, firstRetryDelay, time.Second)
	assert.LessOrEqual(t, firstRetryDelay, 1250*time.Millisecond)
}

func TestCompleteBadResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "plainly not json"},
		{"error field", `{"error":{"message":"model overloaded"}}`},
		{"empty choices", `{"choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := newTestAIService(srv.URL, 0)
			_, err := s.Complete(context.Background(), CompletionRequest{Prompt: "x"})
			require.Error(t, err)
			var bad *ErrBadResponse
			assert.ErrorAs(t, err, &bad)
		})
	}
}

func TestCompleteContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestAIService(srv.URL, 3)
	_, err := s.Complete(ctx, CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddJitterBounds(t *testing.T) {
	base := 4 * time.Second
	for i := 0; i < 100; i++ {
		d := addJitter(base)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Second)
	}
	assert.Equal(t, time.Duration(0), addJitter(0))
}
