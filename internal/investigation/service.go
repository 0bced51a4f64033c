// Package investigation coordinates source generation, fetching, flag detection and narrative generation into a
// single assessment of a named individual or organisation.
package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/whistleblower/internal/config"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/fetch"
	"github.com/myrjola/whistleblower/internal/flags"
	"github.com/myrjola/whistleblower/internal/metrics"
	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/narrative"
	"github.com/myrjola/whistleblower/internal/sources"
)

// SourceFetcher retrieves candidate URLs. Implementations return one record per URL.
type SourceFetcher interface {
	Fetch(ctx context.Context, urls []string) ([]models.SourceRecord, error)
}

// Narrator turns the collected evidence into commentary. It must not fail.
type Narrator interface {
	Narrate(ctx context.Context, in narrative.Input) narrative.Narrative
}

type Service struct {
	fetcher  SourceFetcher
	narrator Narrator
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Service. A nil fetcher makes deep searches fall back to the baseline sources. m may be nil.
func New(logger *slog.Logger, m *metrics.Metrics, fetcher SourceFetcher, narrator Narrator) *Service {
	return &Service{
		fetcher:  fetcher,
		narrator: narrator,
		logger:   logger.With("source", "investigation"),
		metrics:  m,
	}
}

// NewFromConfig wires the production collaborators: the HTTP fetcher and the chat, agent and template narrative
// chain.
func NewFromConfig(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Service {
	fetcher := fetch.New(logger, m, fetch.WithTimeout(cfg.FetchTimeout))
	chain := narrative.NewChain(logger, m, cfg.NarrativeTimeout,
		narrative.NewChatStrategy(narrative.ChatConfig{
			APIKey:      cfg.HFAPIKey,
			Model:       cfg.HFModel,
			BaseURL:     cfg.HFBaseURL,
			MinInterval: cfg.HFMinInterval,
			Timeout:     cfg.NarrativeTimeout,
			HTTPClient:  nil,
		}),
		narrative.NewAgentStrategy(narrative.AgentConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			Timeout:    cfg.NarrativeTimeout,
			HTTPClient: nil,
		}, logger),
	)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "narrative chain configured",
		slog.String("tiers", strings.Join(chain.Tiers(), ",")),
		slog.Bool("chat_configured", cfg.HFAPIKey != ""),
		slog.Bool("agent_configured", cfg.OpenAIAPIKey != ""))
	return New(logger, m, fetcher, chain)
}

// Normalize trims the request and lower-cases the target type, then validates it. It performs no I/O.
func Normalize(req models.InvestigationRequest) (models.InvestigationRequest, error) {
	req.TargetType = models.TargetType(strings.ToLower(strings.TrimSpace(string(req.TargetType))))
	req.Name = strings.TrimSpace(req.Name)
	req.Organisation = strings.TrimSpace(req.Organisation)
	req.Timeframe = strings.TrimSpace(req.Timeframe)
	if req.TargetType != models.TargetTypeIndividual && req.TargetType != models.TargetTypeOrganisation {
		return req, models.ErrInvalidTargetType
	}
	if req.Name == "" {
		return req, models.ErrInvalidName
	}
	return req, nil
}

// Investigate assesses the target of req.
//
// Only validation errors are returned, as models.ValidationError. Every later failure degrades: a failed deep search
// leaves the baseline sources and a failed narrative tier falls through to the next one.
func (s *Service) Investigate(ctx context.Context, req models.InvestigationRequest) (*models.InvestigationResult, error) {
	start := time.Now()
	req, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	records := sources.Baseline(req.Name, req.Organisation)
	if req.DeepSearch {
		records = append(records, s.deepSources(ctx, req.Name, req.EffectiveDeepLimit())...)
	}

	snippets := make([]string, 0, len(records)+1)
	for _, r := range records {
		snippets = append(snippets, r.Snippet)
	}
	if c := strings.TrimSpace(req.Context); c != "" {
		snippets = append(snippets, req.Context)
	}
	flagResult := flags.Detect(snippets)
	verdict := flags.Verdict(flagResult.Risk)

	n := s.narrator.Narrate(ctx, narrative.Input{
		TargetType:   req.TargetType,
		Name:         req.Name,
		Organisation: req.Organisation,
		Timeframe:    req.Timeframe,
		Sources:      records,
		Flags:        flagResult,
		RiskScore:    flagResult.Risk,
	})

	duration := time.Since(start)
	s.metrics.ObserveInvestigation(string(verdict), req.DeepSearch, flagResult.Risk, duration)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "investigation completed",
		slog.String("target_type", string(req.TargetType)),
		slog.String("verdict", string(verdict)),
		slog.Float64("risk", flagResult.Risk),
		slog.Int("hits", flagResult.Hits),
		slog.Int("sources", len(records)),
		slog.String("tier", n.Tier),
		slog.Duration("duration", duration))

	return &models.InvestigationResult{
		Verdict:       verdict,
		Comments:      n.Text,
		Sources:       records,
		RiskScore:     flagResult.Risk,
		Flags:         flagResult,
		NarrativeTier: n.Tier,
	}, nil
}

// deepSources fetches the deep candidates for name. Any failure, including a panic in the fetcher, yields no records.
func (s *Service) deepSources(ctx context.Context, name string, limit int) (records []models.SourceRecord) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New("deep search panicked", slog.String("panic", fmt.Sprint(r)))
			s.logger.LogAttrs(ctx, slog.LevelError, "deep search degraded to baseline", errors.SlogError(err))
			records = nil
		}
	}()
	if s.fetcher == nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "deep search requested without a fetcher")
		return nil
	}
	urls := sources.Deep(name, limit)
	fetched, err := s.fetcher.Fetch(ctx, urls)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "deep search degraded to baseline",
			slog.Int("candidates", len(urls)), errors.SlogError(err))
		return nil
	}
	return fetched
}
