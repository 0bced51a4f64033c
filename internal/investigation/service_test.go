package investigation_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/whistleblower/internal/config"
	"github.com/myrjola/whistleblower/internal/fetch"
	"github.com/myrjola/whistleblower/internal/investigation"
	"github.com/myrjola/whistleblower/internal/metrics"
	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/narrative"
	"github.com/myrjola/whistleblower/internal/sources"
	"github.com/myrjola/whistleblower/internal/testhelpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context, urls []string) ([]models.SourceRecord, error)

func (f fetcherFunc) Fetch(ctx context.Context, urls []string) ([]models.SourceRecord, error) {
	return f(ctx, urls)
}

// recordingFetcher echoes every URL back with a fixed snippet.
type recordingFetcher struct {
	mu      sync.Mutex
	calls   int
	urls    []string
	snippet string
}

func (f *recordingFetcher) Fetch(_ context.Context, urls []string) ([]models.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.urls = append(f.urls, urls...)
	out := make([]models.SourceRecord, len(urls))
	for i, u := range urls {
		out[i] = models.SourceRecord{URL: u, Snippet: f.snippet, CredibilityScore: fetch.Credibility(u)}
	}
	return out, nil
}

func newService(t *testing.T, fetcher investigation.SourceFetcher) *investigation.Service {
	t.Helper()
	logger := testhelpers.NewLogger(io.Discard)
	return investigation.New(logger, nil, fetcher, narrative.NewChain(logger, nil, time.Second))
}

func TestInvestigate_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		req         models.InvestigationRequest
		wantVerdict models.Verdict
		wantRisk    float64
		wantMatched []string
		wantPrefix  string
		wantTier    string
	}{
		{
			name: "context with fraud and investigation is problematic",
			req: models.InvestigationRequest{
				TargetType: "individual",
				Name:       "John Doe",
				Context:    "alleged fraud investigation reported",
			},
			wantVerdict: models.VerdictProblematic,
			wantRisk:    0.70,
			wantMatched: []string{"fraud", "investigation"},
			wantPrefix:  "Public-source review indicates possible concerns. Matched signals: fraud, investigation.",
			wantTier:    narrative.TierTemplate,
		},
		{
			name:        "organisation without signals is clean",
			req:         models.InvestigationRequest{TargetType: "organisation", Name: "Acme Corp"},
			wantVerdict: models.VerdictClean,
			wantRisk:    0.30,
			wantMatched: []string{},
			wantPrefix:  "Cautious assessment",
			wantTier:    narrative.TierCautious,
		},
		{
			name:        "target type is case insensitive and trimmed",
			req:         models.InvestigationRequest{TargetType: "  Organisation ", Name: "  Acme Corp  "},
			wantVerdict: models.VerdictClean,
			wantRisk:    0.30,
			wantMatched: []string{},
			wantPrefix:  "Cautious assessment",
			wantTier:    narrative.TierCautious,
		},
		{
			name: "blank context is ignored",
			req: models.InvestigationRequest{
				TargetType: "individual",
				Name:       "Jane Roe",
				Context:    "   ",
			},
			wantVerdict: models.VerdictClean,
			wantRisk:    0.30,
			wantMatched: []string{},
			wantPrefix:  "Cautious assessment",
			wantTier:    narrative.TierCautious,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newService(t, nil).Investigate(t.Context(), tt.req)
			require.NoError(t, err)
			require.Equal(t, tt.wantVerdict, got.Verdict)
			require.InDelta(t, tt.wantRisk, got.RiskScore, 1e-9)
			require.Equal(t, tt.wantMatched, got.Flags.Matched)
			require.Equal(t, len(tt.wantMatched), got.Flags.Hits)
			require.True(t, strings.HasPrefix(got.Comments, tt.wantPrefix), got.Comments)
			require.Equal(t, tt.wantTier, got.NarrativeTier)
			require.Len(t, got.Sources, len(sources.Baseline("x", "")))
		})
	}
}

func TestInvestigate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.InvestigationRequest
		want error
	}{
		{name: "unknown target type", req: models.InvestigationRequest{TargetType: "person", Name: ""}, want: models.ErrInvalidTargetType},
		{name: "empty target type", req: models.InvestigationRequest{TargetType: "", Name: "John"}, want: models.ErrInvalidTargetType},
		{name: "blank name", req: models.InvestigationRequest{TargetType: "individual", Name: " \t "}, want: models.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &recordingFetcher{}
			req := tt.req
			req.DeepSearch = true
			got, err := newService(t, fetcher).Investigate(t.Context(), req)
			require.ErrorIs(t, err, tt.want)
			require.Nil(t, got)
			require.Zero(t, fetcher.calls, "validation happens before any network activity")

			var verr models.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.want.Error(), string(verr.Code))
		})
	}
}

func TestInvestigate_DeepSearchAppends(t *testing.T) {
	for _, limit := range []int{1, 5, 20, 50, 0} {
		fetcher := &recordingFetcher{snippet: "Profile page"}
		got, err := newService(t, fetcher).Investigate(t.Context(), models.InvestigationRequest{
			TargetType: "individual",
			Name:       "Jane Roe",
			DeepSearch: true,
			DeepLimit:  limit,
		})
		require.NoError(t, err)

		baseline := sources.Baseline("Jane Roe", "")
		want := min(models.DefaultDeepLimit, len(sources.DeepCandidates("Jane Roe")))
		if limit > 0 {
			want = min(limit, want)
		}
		require.Len(t, got.Sources, len(baseline)+want, "limit=%d", limit)
		require.Equal(t, baseline, got.Sources[:len(baseline)], "baseline comes first")
		require.Equal(t, sources.Deep("Jane Roe", limit), fetcher.urls, "deep query uses the name only")
	}
}

func TestInvestigate_DeepSearchWithFetcher(t *testing.T) {
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		body := "<title>Jane Roe profile</title>"
		if r.URL.Host == "www.thestar.com.my" {
			body = "<title>Jane Roe charged over kickback scheme</title>"
		}
		if r.URL.Host == "www.nst.com.my" {
			return nil, errors.New("connection refused")
		}
		return &http.Response{ //nolint:exhaustruct // only what the client reads
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})
	logger := testhelpers.NewLogger(io.Discard)
	fetcher := fetch.New(logger, nil, fetch.WithTransport(transport))
	svc := investigation.New(logger, nil, fetcher, narrative.NewChain(logger, nil, time.Second))

	got, err := svc.Investigate(t.Context(), models.InvestigationRequest{
		TargetType: "individual",
		Name:       "Jane Roe",
		DeepSearch: true,
		DeepLimit:  5,
	})
	require.NoError(t, err)
	require.Len(t, got.Sources, 6+5)
	require.Equal(t, []string{"kickback", "charged"}, got.Flags.Matched)
	require.Equal(t, models.VerdictProblematic, got.Verdict)
	require.InDelta(t, 0.70, got.RiskScore, 1e-9)

	deep := got.Sources[6:]
	require.Equal(t, "Jane Roe profile", deep[0].Snippet)
	require.InDelta(t, 0.5, deep[0].CredibilityScore, 1e-9)
	require.Equal(t, "", deep[2].Snippet, "failed fetch keeps its slot")
	require.InDelta(t, fetch.FailedCredibility, deep[2].CredibilityScore, 1e-9)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestInvestigate_DeepSearchDegrades(t *testing.T) {
	tests := []struct {
		name    string
		fetcher investigation.SourceFetcher
	}{
		{
			name: "batch error",
			fetcher: fetcherFunc(func(context.Context, []string) ([]models.SourceRecord, error) {
				return []models.SourceRecord{{URL: "https://leak.example", Snippet: "fraud", CredibilityScore: 1}},
					errors.New("batch failed")
			}),
		},
		{
			name: "panic",
			fetcher: fetcherFunc(func(context.Context, []string) ([]models.SourceRecord, error) {
				panic("fetcher exploded")
			}),
		},
		{
			name:    "no fetcher",
			fetcher: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newService(t, tt.fetcher).Investigate(t.Context(), models.InvestigationRequest{
				TargetType: "organisation",
				Name:       "Acme Corp",
				DeepSearch: true,
			})
			require.NoError(t, err)
			require.Equal(t, sources.Baseline("Acme Corp", ""), got.Sources)
			require.Equal(t, models.VerdictClean, got.Verdict)
			require.Zero(t, got.Flags.Hits)
		})
	}
}

func TestInvestigate_Idempotent(t *testing.T) {
	svc := newService(t, &recordingFetcher{snippet: "sanction notice"})
	req := models.InvestigationRequest{
		TargetType:   "individual",
		Name:         "John Doe",
		Organisation: "Acme",
		Context:      "procurement dispute",
		DeepSearch:   true,
		DeepLimit:    3,
	}
	first, err := svc.Investigate(t.Context(), req)
	require.NoError(t, err)
	second, err := svc.Investigate(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestInvestigate_NarratorInput(t *testing.T) {
	logger := testhelpers.NewLogger(io.Discard)
	var seen narrative.Input
	narrator := narratorFunc(func(_ context.Context, in narrative.Input) narrative.Narrative {
		seen = in
		return narrative.Narrative{Text: "custom", Tier: "custom"}
	})
	svc := investigation.New(logger, nil, nil, narrator)
	got, err := svc.Investigate(t.Context(), models.InvestigationRequest{
		TargetType:   "organisation",
		Name:         "Acme Corp",
		Organisation: "Acme Group",
		Timeframe:    "2023",
		Context:      "subject to a trade ban",
	})
	require.NoError(t, err)
	require.Equal(t, "custom", got.Comments)
	require.Equal(t, "custom", got.NarrativeTier)
	require.Equal(t, models.TargetTypeOrganisation, seen.TargetType)
	require.Equal(t, "Acme Group", seen.Organisation)
	require.Equal(t, "2023", seen.Timeframe)
	require.Equal(t, got.Sources, seen.Sources)
	require.Equal(t, []string{"ban"}, seen.Flags.Matched)
	require.InDelta(t, 0.5, seen.RiskScore, 1e-9)
}

type narratorFunc func(ctx context.Context, in narrative.Input) narrative.Narrative

func (f narratorFunc) Narrate(ctx context.Context, in narrative.Input) narrative.Narrative {
	return f(ctx, in)
}

func TestInvestigate_Metrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	logger := testhelpers.NewLogger(io.Discard)
	m := metrics.New(reg)
	svc := investigation.New(logger, m, nil, narrative.NewChain(logger, m, time.Second))

	_, err := svc.Investigate(t.Context(), models.InvestigationRequest{TargetType: "individual", Name: "John Doe"})
	require.NoError(t, err)
	_, err = svc.Investigate(t.Context(), models.InvestigationRequest{
		TargetType: "individual", Name: "John Doe", Context: "fraud",
	})
	require.NoError(t, err)
	_, err = svc.Investigate(t.Context(), models.InvestigationRequest{TargetType: "nobody", Name: "John Doe"})
	require.Error(t, err)

	require.Equal(t, 2, testutil.CollectAndCount(reg, "whistleblower_investigation_total"))
	require.Equal(t, 2, testutil.CollectAndCount(reg, "whistleblower_narrative_total"))
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.Load(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	svc := investigation.NewFromConfig(cfg, testhelpers.NewLogger(io.Discard), nil)

	// Without credentials no remote tier is consulted.
	got, err := svc.Investigate(t.Context(), models.InvestigationRequest{
		TargetType: "individual", Name: "John Doe", Context: "convicted of fraud",
	})
	require.NoError(t, err)
	require.Equal(t, narrative.TierTemplate, got.NarrativeTier)
	require.Equal(t, "Public-source review indicates possible concerns. Matched signals: fraud, convicted.", got.Comments)
}
