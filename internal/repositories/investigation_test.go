package repositories_test

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/repositories"
	"github.com/myrjola/whistleblower/internal/sqlite"
	"github.com/myrjola/whistleblower/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *repositories.InvestigationRepository {
	t.Helper()
	logger := testhelpers.NewLogger(io.Discard)
	dbs, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dbs.Close())
	})
	return repositories.NewInvestigationRepository(dbs, logger)
}

func sampleResult(verdict models.Verdict, risk float64) models.InvestigationResult {
	return models.InvestigationResult{
		Verdict:  verdict,
		Comments: "Public-source review indicates possible concerns. Matched signals: fraud.",
		Sources: []models.SourceRecord{
			{URL: "https://en.wikipedia.org/wiki/John_Doe", Snippet: "General profile of John Doe.", CredibilityScore: 0.6},
		},
		RiskScore:     risk,
		Flags:         models.FlagResult{Hits: 1, Matched: []string{"fraud"}, Risk: risk},
		NarrativeTier: "template",
	}
}

func TestInvestigationRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := t.Context()

	req := models.InvestigationRequest{
		TargetType:   models.TargetTypeIndividual,
		Name:         "John Doe",
		Organisation: "Acme",
		Context:      "alleged fraud",
		DeepSearch:   true,
		DeepLimit:    5,
	}
	saved, err := repo.Save(ctx, req, sampleResult(models.VerdictProblematic, 0.5))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved.ID, got.ID)
	require.Equal(t, req, got.Request)
	require.Equal(t, sampleResult(models.VerdictProblematic, 0.5), got.Result)
	require.WithinDuration(t, saved.Created, got.Created, time.Microsecond)
}

func TestInvestigationRepository_GetNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Get(t.Context(), "does-not-exist")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestInvestigationRepository_SaveRejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Save(t.Context(),
		models.InvestigationRequest{TargetType: "person", Name: "John Doe"},
		sampleResult(models.VerdictClean, 0.3))
	require.Error(t, err)
}

func TestInvestigationRepository_ListRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := t.Context()

	summaries, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, summaries)

	var ids []string
	for i := range 5 {
		req := models.InvestigationRequest{TargetType: models.TargetTypeOrganisation, Name: fmt.Sprintf("Org %d", i)}
		saved, saveErr := repo.Save(ctx, req, sampleResult(models.VerdictClean, 0.3))
		require.NoError(t, saveErr)
		ids = append(ids, saved.ID)
	}

	tests := []struct {
		name      string
		limit     int
		wantNames []string
	}{
		{name: "default limit", limit: 0, wantNames: []string{"Org 4", "Org 3", "Org 2", "Org 1", "Org 0"}},
		{name: "limited", limit: 2, wantNames: []string{"Org 4", "Org 3"}},
		{name: "above max is clamped", limit: 1000, wantNames: []string{"Org 4", "Org 3", "Org 2", "Org 1", "Org 0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, listErr := repo.ListRecent(ctx, tt.limit)
			require.NoError(t, listErr)
			names := make([]string, len(got))
			for i, s := range got {
				names[i] = s.Name
				require.Equal(t, models.TargetTypeOrganisation, s.TargetType)
				require.Equal(t, models.VerdictClean, s.Verdict)
				require.InDelta(t, 0.3, s.RiskScore, 1e-9)
			}
			require.Equal(t, tt.wantNames, names)
		})
	}
	require.Len(t, ids, 5)
}
