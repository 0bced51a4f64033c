// Package narrative produces the commentary of an investigation through an ordered chain of strategies.
//
// The chain short-circuits on the first strategy that returns text. Remote strategies are never consulted when no
// risk signal matched, and a deterministic template is used when every strategy is unavailable.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/metrics"
)

const (
	TierCautious = "cautious"
	TierTemplate = "template"

	DefaultTimeout = 30 * time.Second
)

var (
	ErrEmptyOutput = errors.NewSentinel("empty narrative")
	ErrUnavailable = errors.NewSentinel("strategy unavailable")
)

// Strategy is one tier of the narrative chain.
type Strategy interface {
	// Name identifies the tier in logs, metrics and results.
	Name() string
	// Available reports whether the strategy is configured. It must not perform I/O.
	Available() bool
	Narrate(ctx context.Context, p Prompt) (string, error)
}

// Narrative is the produced text and the tier that produced it.
type Narrative struct {
	Text string
	Tier string
}

type Chain struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewChain creates a chain that tries strategies in the given order. Each attempt is bounded by timeout, or
// DefaultTimeout when timeout is not positive. m may be nil.
func NewChain(logger *slog.Logger, m *metrics.Metrics, timeout time.Duration, strategies ...Strategy) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		strategies: strategies,
		timeout:    timeout,
		logger:     logger.With("source", "narrative"),
		metrics:    m,
	}
}

// Tiers lists the strategy names in evaluation order, followed by the template fallback.
func (c *Chain) Tiers() []string {
	tiers := make([]string, 0, len(c.strategies)+1)
	for _, s := range c.strategies {
		tiers = append(tiers, s.Name())
	}
	return append(tiers, TierTemplate)
}

// Narrate returns the first successful narrative for in. It never fails.
func (c *Chain) Narrate(ctx context.Context, in Input) Narrative {
	if in.Flags.Hits == 0 {
		return c.done(Narrative{Text: CautiousText, Tier: TierCautious})
	}

	prompt := BuildPrompt(in)
	for _, s := range c.strategies {
		if !s.Available() {
			c.logger.LogAttrs(ctx, slog.LevelDebug, "narrative strategy not configured", slog.String("tier", s.Name()))
			continue
		}
		text, err := c.attempt(ctx, s, prompt)
		if err != nil {
			c.metrics.ObserveNarrativeError(s.Name())
			c.logger.LogAttrs(ctx, slog.LevelWarn, "narrative strategy failed, trying next",
				slog.String("tier", s.Name()), errors.SlogError(err))
			continue
		}
		return c.done(Narrative{Text: text, Tier: s.Name()})
	}
	return c.done(Narrative{Text: TemplateText(in.Flags.Matched), Tier: TierTemplate})
}

func (c *Chain) done(n Narrative) Narrative {
	c.metrics.ObserveNarrative(n.Tier)
	return n
}

// attempt runs a single strategy with its own timeout. Panics and blank output are reported as errors so that
// nothing from a failed tier reaches the caller.
func (c *Chain) attempt(ctx context.Context, s Strategy, p Prompt) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = errors.New("strategy panicked", slog.String("tier", s.Name()), slog.String("panic", fmt.Sprint(r)))
		}
	}()

	out, err := s.Narrate(ctx, p)
	if err != nil {
		return "", errors.Wrap(err, "narrate", slog.String("tier", s.Name()))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.Wrap(ErrEmptyOutput, "narrate", slog.String("tier", s.Name()))
	}
	return out, nil
}
