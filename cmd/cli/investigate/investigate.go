// Package investigate runs investigations from the command line.
package investigate

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/myrjola/whistleblower/internal/config"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/investigation"
	"github.com/myrjola/whistleblower/internal/logging"
	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/repositories"
	"github.com/myrjola/whistleblower/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "investigate",
	Title: "Investigations",
}

// Command returns the investigate command. lookupEnv has the signature of [os.LookupEnv].
func Command(lookupEnv func(string) (string, bool)) *cobra.Command {
	var (
		targetType string
		req        models.InvestigationRequest
		asJSON     bool
		save       bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:     "investigate [name]",
		GroupID: Group.ID,
		Short:   "Assess the public reputation of an individual or organisation",
		Long: `Collects public reference sources for the target, scans them for risk signals and prints a verdict with
commentary. Deep search additionally fetches search and news pages, which needs network access.

Examples:
  whistleblower-cli investigate "John Doe" --org Acme --context "alleged fraud"
  whistleblower-cli investigate --type organisation "Acme Corp" --deep --limit 5
  whistleblower-cli investigate "John Doe" --json --save`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(lookupEnv)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := logging.NewLogger(cmd.ErrOrStderr(), level, nil)

			req.TargetType = models.TargetType(targetType)
			req.Name = strings.Join(args, " ")
			if req, err = investigation.Normalize(req); err != nil {
				return errors.Wrap(err, "invalid request")
			}

			var result *models.InvestigationResult
			if result, err = investigation.NewFromConfig(cfg, logger, nil).Investigate(ctx, req); err != nil {
				return errors.Wrap(err, "investigate")
			}

			id := ""
			if save {
				var record models.InvestigationRecord
				if record, err = store(cmd, cfg, logger, req, *result); err != nil {
					return err
				}
				id = record.ID
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), id, result)
			}
			writeText(cmd.OutOrStdout(), id, result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&targetType, "type", string(models.TargetTypeIndividual), "target type: individual or organisation")
	flags.StringVar(&req.Organisation, "org", "", "organisation the target is associated with")
	flags.StringVar(&req.Timeframe, "timeframe", "", "period of interest, passed to the narrative")
	flags.StringVar(&req.Context, "context", "", "free text scanned for risk signals together with the sources")
	flags.BoolVar(&req.DeepSearch, "deep", false, "fetch search and news pages in addition to the reference sources")
	flags.IntVar(&req.DeepLimit, "limit", models.DefaultDeepLimit, "maximum number of deep pages to fetch")
	flags.BoolVar(&asJSON, "json", false, "print the result as JSON")
	flags.BoolVar(&save, "save", false, "store the result in the investigation history")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	return cmd
}

func store(
	cmd *cobra.Command,
	cfg config.Config,
	logger *slog.Logger,
	req models.InvestigationRequest,
	result models.InvestigationResult,
) (models.InvestigationRecord, error) {
	db, err := sqlite.NewDatabase(cmd.Context(), cfg.SqliteURL, logger)
	if err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		_ = db.Close()
	}()
	record, err := repositories.NewInvestigationRepository(db, logger).Save(cmd.Context(), req, result)
	if err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "save investigation")
	}
	return record, nil
}

type output struct {
	ID string `json:"id,omitempty"`
	*models.InvestigationResult
}

func writeJSON(w io.Writer, id string, result *models.InvestigationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{ID: id, InvestigationResult: result}); err != nil {
		return errors.Wrap(err, "encode result")
	}
	return nil
}

func writeText(w io.Writer, id string, result *models.InvestigationResult) {
	matched := "none"
	if len(result.Flags.Matched) > 0 {
		matched = strings.Join(result.Flags.Matched, ", ")
	}
	_, _ = fmt.Fprintf(w, "Verdict:    %s\n", result.Verdict)
	_, _ = fmt.Fprintf(w, "Risk score: %.2f\n", result.RiskScore)
	_, _ = fmt.Fprintf(w, "Signals:    %s\n\n", matched)
	_, _ = fmt.Fprintf(w, "%s\n(%s)\n\n", result.Comments, result.NarrativeTier)
	_, _ = fmt.Fprintln(w, "Sources:")
	for _, s := range result.Sources {
		_, _ = fmt.Fprintf(w, "  [%.2f] %s\n", s.CredibilityScore, s.URL)
		if s.Snippet != "" {
			_, _ = fmt.Fprintf(w, "         %s\n", s.Snippet)
		}
	}
	if id != "" {
		_, _ = fmt.Fprintf(w, "\nSaved as %s\n", id)
	}
}
