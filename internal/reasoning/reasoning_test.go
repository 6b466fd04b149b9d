// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func testAIConfig(provider, baseURL string) types.AIConfig {
	return types.AIConfig{
		Provider:  provider,
		APIKey:    "test-key",
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		MaxTokens: 256,
	}
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  error
		check    func(t *testing.T, svc Service)
	}{
		{
			name:     "default is openai",
			provider: "",
			check: func(t *testing.T, svc Service) {
				_, ok := svc.(*OpenAI)
				assert.True(t, ok)
			},
		},
		{
			name:     "anthropic",
			provider: "Anthropic",
			check: func(t *testing.T, svc Service) {
				_, ok := svc.(*Anthropic)
				assert.True(t, ok)
			},
		},
		{
			name:     "unknown",
			provider: "mystery",
			wantErr:  ErrUnknownProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(testAIConfig(tt.provider, ""))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, svc)
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := testAIConfig(ProviderOpenAI, "")
	cfg.APIKey = "  "
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAPIErrorIsTransient(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			e := &APIError{Provider: ProviderOpenAI, StatusCode: tt.status, Err: errors.New("x")}
			assert.Equal(t, tt.want, e.IsTransient())
		})
	}
}

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIComplete(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "  [\"Google\"]\n"}
			}]
		}`))
	}))
	defer ts.Close()

	svc := NewOpenAI(testAIConfig(ProviderOpenAI, ts.URL))
	out, err := svc.Complete(context.Background(), []Message{
		System("sys"), User("first"), Assistant("answer"), User("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, `["Google"]`, out)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Zero(t, got.Temperature)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "second", got.Messages[3].Content)
}

func TestOpenAICompleteErrorIsNotRetried(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer ts.Close()

	_, err := NewOpenAI(testAIConfig(ProviderOpenAI, ts.URL)).Complete(context.Background(), []Message{User("hi")})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ProviderOpenAI, apiErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4o", "choices": []}`))
	}))
	defer ts.Close()

	_, err := NewOpenAI(testAIConfig(ProviderOpenAI, ts.URL)).Complete(context.Background(), []Message{User("hi")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

type messagesRequest struct {
	Model  string `json:"model"`
	System []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func TestAnthropicComplete(t *testing.T) {
	var got messagesRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "是"}],
			"usage": {"input_tokens": 3, "output_tokens": 1}
		}`))
	}))
	defer ts.Close()

	svc := NewAnthropic(testAIConfig(ProviderAnthropic, ts.URL))
	out, err := svc.Complete(context.Background(), []Message{
		System("sys"), User("q"), Assistant("a"), User("q2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "是", out)

	assert.Equal(t, defaultAnthropicModel, got.Model)
	require.Len(t, got.System, 1)
	assert.Equal(t, "sys", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicCompleteError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`))
	}))
	defer ts.Close()

	_, err := NewAnthropic(testAIConfig(ProviderAnthropic, ts.URL)).Complete(context.Background(), []Message{User("hi")})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, apiErr.IsTransient())
}

type stubService struct {
	err error
}

func (s stubService) Complete(context.Context, []Message) (string, error) {
	return "ok", s.err
}

func TestInstrumentCountsCalls(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())

	ok := Instrument(stubService{}, m, "classify")
	bad := Instrument(stubService{err: errors.New("boom")}, m, "classify")

	_, _ = ok.Complete(context.Background(), nil)
	_, _ = ok.Complete(context.Background(), nil)
	_, _ = bad.Complete(context.Background(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReasoningCalls.WithLabelValues("classify", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReasoningCalls.WithLabelValues("classify", "error")))
}

func TestInstrumentNilMetrics(t *testing.T) {
	svc := stubService{}
	assert.Equal(t, Service(svc), Instrument(svc, nil, "x"))
}
