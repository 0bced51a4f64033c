// Package history reads stored investigations.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/myrjola/whistleblower/internal/config"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/logging"
	"github.com/myrjola/whistleblower/internal/repositories"
	"github.com/myrjola/whistleblower/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "history",
	Title: "Investigation history",
}

// Command returns the history command with its show subcommand.
func Command(lookupEnv func(string) (string, bool)) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:          "history",
		GroupID:      Group.ID,
		Short:        "List recent investigations, newest first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd, lookupEnv, func(repo *repositories.InvestigationRepository) error {
				summaries, err := repo.ListRecent(cmd.Context(), limit)
				if err != nil {
					return errors.Wrap(err, "list investigations")
				}
				if asJSON {
					return encode(cmd.OutOrStdout(), summaries)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0) //nolint:mnd // two spaces of padding
				_, _ = fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tNAME\tVERDICT\tRISK")
				for _, s := range summaries {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
						s.ID, s.Created.Local().Format(time.DateTime), s.TargetType, s.Name, s.Verdict, s.RiskScore)
				}
				return errors.Wrap(tw.Flush(), "flush table")
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", repositories.DefaultListLimit, "number of investigations to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")

	show := &cobra.Command{
		Use:          "show [id]",
		Short:        "Print a stored investigation as JSON",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, lookupEnv, func(repo *repositories.InvestigationRepository) error {
				record, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return errors.Wrap(err, "get investigation")
				}
				return encode(cmd.OutOrStdout(), record)
			})
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func withRepository(
	cmd *cobra.Command,
	lookupEnv func(string) (string, bool),
	fn func(repo *repositories.InvestigationRepository) error,
) error {
	cfg, err := config.Load(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger := logging.NewLogger(cmd.ErrOrStderr(), slog.LevelWarn, nil)
	db, err := sqlite.NewDatabase(cmd.Context(), cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		_ = db.Close()
	}()
	return fn(repositories.NewInvestigationRepository(db, logger))
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode JSON")
}
