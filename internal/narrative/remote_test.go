package narrative_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/myrjola/whistleblower/internal/narrative"
	"github.com/myrjola/whistleblower/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role string `json:"role"`
		// Content is either a string or a list of typed parts depending on the client library.
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func textContent(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(raw, &parts))
	for _, part := range parts {
		text += part.Text
	}
	return text
}

// completionServer mimics an OpenAI-compatible /chat/completions endpoint.
func completionServer(t *testing.T, status int, content string, received *atomic.Pointer[chatRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, `{"error":{"message":"unauthorized"}}`, http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && received != nil {
			received.Store(&req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"upstream failure","type":"server_error"}}`)
			return
		}
		choices := []map[string]any{}
		if content != "" {
			choices = append(choices, map[string]any{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": choices,
			"usage":   map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatStrategy(t *testing.T) {
	var received atomic.Pointer[chatRequest]
	srv := completionServer(t, http.StatusOK, "Signals suggest caution.", &received)
	s := narrative.NewChatStrategy(narrative.ChatConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	})
	require.True(t, s.Available())
	require.Equal(t, narrative.TierChat, s.Name())

	p := narrative.BuildPrompt(risky())
	got, err := s.Narrate(t.Context(), p)
	require.NoError(t, err)
	require.Equal(t, "Signals suggest caution.", got)

	req := received.Load()
	require.NotNil(t, req)
	require.Equal(t, narrative.DefaultChatModel, req.Model)
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, p.System, textContent(t, req.Messages[0].Content))
	require.Equal(t, "user", req.Messages[1].Role)
	require.Equal(t, p.User, textContent(t, req.Messages[1].Content))
}

func TestChatStrategy_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "no choices", status: http.StatusOK, content: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content, nil)
			s := narrative.NewChatStrategy(narrative.ChatConfig{
				APIKey:     "test-key",
				BaseURL:    srv.URL + "/v1",
				HTTPClient: srv.Client(),
			})
			_, err := s.Narrate(t.Context(), narrative.BuildPrompt(risky()))
			require.Error(t, err)
		})
	}
}

func TestChatStrategy_RateLimited(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "ok", nil)
	s := narrative.NewChatStrategy(narrative.ChatConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		HTTPClient:  srv.Client(),
		MinInterval: time.Hour,
	})
	_, err := s.Narrate(t.Context(), narrative.BuildPrompt(risky()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	_, err = s.Narrate(ctx, narrative.BuildPrompt(risky()))
	require.Error(t, err, "second call within the interval must not reach the endpoint")
}

func TestStrategiesWithoutCredentials(t *testing.T) {
	chat := narrative.NewChatStrategy(narrative.ChatConfig{})
	require.False(t, chat.Available())
	_, err := chat.Narrate(t.Context(), narrative.Prompt{})
	require.ErrorIs(t, err, narrative.ErrUnavailable)

	agent := narrative.NewAgentStrategy(narrative.AgentConfig{}, testhelpers.NewLogger(io.Discard))
	require.False(t, agent.Available())
	_, err = agent.Narrate(t.Context(), narrative.Prompt{})
	require.ErrorIs(t, err, narrative.ErrUnavailable)
}

func TestAgentStrategy(t *testing.T) {
	var received atomic.Pointer[chatRequest]
	srv := completionServer(t, http.StatusOK, "Agent summary.", &received)
	s := narrative.NewAgentStrategy(narrative.AgentConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	}, testhelpers.NewLogger(io.Discard))
	require.True(t, s.Available())
	require.Equal(t, narrative.TierAgent, s.Name())

	got, err := s.Narrate(t.Context(), narrative.BuildPrompt(risky()))
	require.NoError(t, err)
	require.Equal(t, "Agent summary.", got)

	req := received.Load()
	require.NotNil(t, req)
	require.Equal(t, narrative.DefaultAgentModel, req.Model)
	require.Len(t, req.Messages, 2)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, "user", req.Messages[1].Role)
}

func TestChain_RemoteTiers(t *testing.T) {
	failing := completionServer(t, http.StatusBadGateway, "", nil)
	working := completionServer(t, http.StatusOK, "Agent summary.", nil)
	logger := testhelpers.NewLogger(io.Discard)

	chain := narrative.NewChain(logger, nil, 5*time.Second,
		narrative.NewChatStrategy(narrative.ChatConfig{
			APIKey: "test-key", BaseURL: failing.URL + "/v1", HTTPClient: failing.Client(),
		}),
		narrative.NewAgentStrategy(narrative.AgentConfig{
			APIKey: "test-key", BaseURL: working.URL + "/v1", HTTPClient: working.Client(),
		}, logger),
	)
	got := chain.Narrate(t.Context(), risky())
	require.Equal(t, narrative.TierAgent, got.Tier)
	require.Equal(t, "Agent summary.", got.Text)
}

func TestStrategies_ConfiguredTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	const timeout = 100 * time.Millisecond
	tests := []struct {
		name     string
		strategy narrative.Strategy
	}{
		{
			name: "chat",
			strategy: narrative.NewChatStrategy(narrative.ChatConfig{
				APIKey: "test-key", BaseURL: srv.URL + "/v1", Timeout: timeout,
			}),
		},
		{
			name: "agent",
			strategy: narrative.NewAgentStrategy(narrative.AgentConfig{
				APIKey: "test-key", BaseURL: srv.URL + "/v1", Timeout: timeout,
			}, testhelpers.NewLogger(io.Discard)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := tt.strategy.Narrate(t.Context(), narrative.BuildPrompt(risky()))
			require.Error(t, err)
			require.Less(t, time.Since(start), 3*time.Second, "request must be cut by the configured timeout")
		})
	}
}
