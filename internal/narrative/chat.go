package narrative

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	TierChat = "chat"

	DefaultChatBaseURL = "https://router.huggingface.co/v1"
	DefaultChatModel   = "moonshotai/Kimi-K2-Instruct:novita"
)

// ChatConfig configures the primary OpenAI-compatible chat completion tier.
type ChatConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// MinInterval spaces out consecutive requests. Zero means unlimited.
	MinInterval time.Duration
	// Timeout bounds each request of the default HTTP client. Zero means DefaultTimeout. Ignored with HTTPClient.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ChatStrategy asks an OpenAI-compatible chat completion endpoint for the narrative.
type ChatStrategy struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewChatStrategy creates the chat tier. Without an API key the strategy reports itself unavailable.
func NewChatStrategy(cfg ChatConfig) *ChatStrategy {
	if cfg.APIKey == "" {
		return &ChatStrategy{client: nil, model: "", limiter: nil}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultChatBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = cfg.HTTPClient

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &ChatStrategy{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout} //nolint:exhaustruct // defaults are fine
}

func (s *ChatStrategy) Name() string {
	return TierChat
}

func (s *ChatStrategy) Available() bool {
	return s.client != nil
}

func (s *ChatStrategy) Narrate(ctx context.Context, p Prompt) (string, error) {
	if s.client == nil {
		return "", ErrUnavailable
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "wait for rate limiter")
	}
	completion, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: p.System},
				{Role: openai.ChatMessageRoleUser, Content: p.User},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "create chat completion", slog.String("model", s.model))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion without choices", slog.String("model", s.model))
	}
	return completion.Choices[0].Message.Content, nil
}
