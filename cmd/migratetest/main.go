package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/repositories"
	"github.com/myrjola/whistleblower/internal/sqlite"
	"github.com/myrjola/whistleblower/internal/testhelpers"
)

// migratetest migrates a copy of the production database to the current schema and reads the history back.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("WHISTLEBLOWER_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "WHISTLEBLOWER_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Every stored row must still decode after the migration.
	var count int
	if err = db.ReadOnly.QueryRowContext(ctx, `SELECT COUNT(*) FROM investigations`).Scan(&count); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error counting investigations", errors.SlogError(err))
		os.Exit(1)
	}
	repo := repositories.NewInvestigationRepository(db, logger)
	summaries, err := repo.ListRecent(ctx, repositories.MaxListLimit)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error listing investigations", errors.SlogError(err))
		os.Exit(1)
	}
	for _, s := range summaries {
		if _, err = repo.Get(ctx, s.ID); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error reading investigation", errors.SlogError(err))
			os.Exit(1)
		}
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "investigation count",
		slog.Int("count", count), slog.Int("verified", len(summaries)))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	_ = db.Close()
	os.Exit(0)
}
