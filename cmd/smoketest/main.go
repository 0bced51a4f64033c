package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/myrjola/whistleblower/internal/e2etest"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/logging"
	"github.com/myrjola/whistleblower/internal/models"
)

// TestAnalyze runs a baseline investigation that needs no outbound network access from the server.
func TestAnalyze(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second) //nolint:mnd // two narrative tiers may time out.
	defer cancel()

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for ready")
	}

	var result struct {
		ID string `json:"id"`
		models.InvestigationResult
	}
	status, err := client.PostJSON(ctx, "/api/whistleblower/analyze", models.InvestigationRequest{
		TargetType:   models.TargetTypeOrganisation,
		Name:         "Smoke Test Sdn Bhd",
		Organisation: "",
		Timeframe:    "",
		Context:      "",
		DeepSearch:   false,
		DeepLimit:    0,
	}, &result)
	if err != nil {
		return errors.Wrap(err, "analyze")
	}
	if status != http.StatusOK {
		return errors.New("unexpected status", slog.Int("status", status))
	}
	if result.Verdict != models.VerdictClean || len(result.Sources) == 0 {
		return errors.New("unexpected result",
			slog.String("verdict", string(result.Verdict)), slog.Int("sources", len(result.Sources)))
	}

	var record models.InvestigationRecord
	if status, err = client.GetJSON(ctx, "/api/whistleblower/investigations/"+result.ID, &record); err != nil {
		return errors.Wrap(err, "get stored investigation")
	}
	if status != http.StatusOK {
		return errors.New("stored investigation not found", slog.Int("status", status), slog.String("id", result.ID))
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug, nil)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if err := TestAnalyze(ctx, e2etest.NewClient(url)); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing analyze", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
