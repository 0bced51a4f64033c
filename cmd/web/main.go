package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/whistleblower/internal/config"
	"github.com/myrjola/whistleblower/internal/debugserver"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/investigation"
	"github.com/myrjola/whistleblower/internal/logging"
	"github.com/myrjola/whistleblower/internal/metrics"
	"github.com/myrjola/whistleblower/internal/repositories"
	"github.com/myrjola/whistleblower/internal/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type application struct {
	logger         *slog.Logger
	investigator   *investigation.Service
	investigations *repositories.InvestigationRepository
	allowedOrigins []string
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	cfg, err := config.Load(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults
	)
	m := metrics.New(registry)

	if cfg.DebugAddr != "" {
		// Profiles and metrics are served on loopback only so that they're not open to the world.
		if _, err = debugserver.Launch(ctx, cfg.DebugAddr, registry, logger); err != nil {
			return errors.Wrap(err, "launch debug server")
		}
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "close database", errors.SlogError(closeErr))
		}
	}()

	app := application{
		logger:         logger,
		investigator:   investigation.NewFromConfig(cfg, logger, m),
		investigations: repositories.NewInvestigationRepository(db, logger),
		allowedOrigins: cfg.Origins(),
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

func main() {
	ctx := context.Background()
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug, nil)

	// The .env file is a development convenience. Deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
