package narrative

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	TierAgent = "agent"

	DefaultAgentModel = "gpt-4o-mini"
)

// AgentConfig configures the secondary summarizer tier.
type AgentConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the OpenAI endpoint when set.
	BaseURL string
	// Timeout bounds each request of the default HTTP client. Zero means DefaultTimeout. Ignored with HTTPClient.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AgentStrategy runs a single-turn system and human conversation through a langchaingo model.
type AgentStrategy struct {
	llm   llms.Model
	model string
}

// NewAgentStrategy creates the agent tier. A missing API key, or a model that can't be constructed, leaves the
// strategy unavailable. The decision is made here, once, and never re-probed.
func NewAgentStrategy(cfg AgentConfig, logger *slog.Logger) *AgentStrategy {
	if cfg.APIKey == "" {
		return &AgentStrategy{llm: nil, model: ""}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAgentModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(cfg.HTTPClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		logger.LogAttrs(context.Background(), slog.LevelWarn, "agent narrative tier disabled",
			slog.String("model", cfg.Model), errors.SlogError(err))
		return &AgentStrategy{llm: nil, model: ""}
	}
	return NewAgentStrategyWithModel(llm, cfg.Model)
}

// NewAgentStrategyWithModel wraps an already constructed langchaingo model.
func NewAgentStrategyWithModel(llm llms.Model, model string) *AgentStrategy {
	return &AgentStrategy{llm: llm, model: model}
}

func (s *AgentStrategy) Name() string {
	return TierAgent
}

func (s *AgentStrategy) Available() bool {
	return s.llm != nil
}

func (s *AgentStrategy) Narrate(ctx context.Context, p Prompt) (string, error) {
	if s.llm == nil {
		return "", ErrUnavailable
	}
	resp, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, p.System),
		llms.TextParts(llms.ChatMessageTypeHuman, p.User),
	})
	if err != nil {
		return "", errors.Wrap(err, "generate content", slog.String("model", s.model))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("agent response without choices", slog.String("model", s.model))
	}
	return resp.Choices[0].Content, nil
}
