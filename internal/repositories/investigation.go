package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/sqlite"
)

var ErrNotFound = errors.NewSentinel("not found")

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// timeFormat is fixed width so that the stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

type InvestigationRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewInvestigationRepository(dbs *sqlite.Database, logger *slog.Logger) *InvestigationRepository {
	return &InvestigationRepository{
		dbs:    dbs,
		logger: logger.With("source", "InvestigationRepository"),
	}
}

// Save stores a completed investigation under a new random ID.
func (r *InvestigationRepository) Save(
	ctx context.Context,
	req models.InvestigationRequest,
	result models.InvestigationResult,
) (models.InvestigationRecord, error) {
	record := models.InvestigationRecord{
		ID:      uuid.NewString(),
		Request: req,
		Result:  result,
		Created: time.Now().UTC(),
	}
	var (
		requestJSON []byte
		resultJSON  []byte
		err         error
	)
	if requestJSON, err = json.Marshal(req); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "marshal request")
	}
	if resultJSON, err = json.Marshal(result); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "marshal result")
	}

	stmt := `INSERT INTO investigations
    (id, target_type, name, organisation, deep_search, verdict, risk_score, narrative_tier, request, result, created)
VALUES (:id, :target_type, :name, :organisation, :deep_search, :verdict, :risk_score, :narrative_tier, :request,
        :result, :created)`
	if _, err = r.dbs.ReadWrite.ExecContext(ctx, stmt,
		sql.Named("id", record.ID),
		sql.Named("target_type", string(req.TargetType)),
		sql.Named("name", req.Name),
		sql.Named("organisation", req.Organisation),
		sql.Named("deep_search", req.DeepSearch),
		sql.Named("verdict", string(result.Verdict)),
		sql.Named("risk_score", result.RiskScore),
		sql.Named("narrative_tier", result.NarrativeTier),
		sql.Named("request", string(requestJSON)),
		sql.Named("result", string(resultJSON)),
		sql.Named("created", record.Created.Format(timeFormat)),
	); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "insert investigation", slog.String("id", record.ID))
	}
	return record, nil
}

// Get returns the investigation with id or ErrNotFound.
func (r *InvestigationRepository) Get(ctx context.Context, id string) (models.InvestigationRecord, error) {
	var (
		record      models.InvestigationRecord
		requestJSON string
		resultJSON  string
		created     string
		err         error
	)
	stmt := `SELECT id, request, result, created FROM investigations WHERE id = ?`
	if err = r.dbs.ReadOnly.QueryRowContext(ctx, stmt, id).Scan(&record.ID, &requestJSON, &resultJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.InvestigationRecord{}, errors.Wrap(ErrNotFound, "get investigation", slog.String("id", id))
		}
		return models.InvestigationRecord{}, errors.Wrap(err, "read investigation", slog.String("id", id))
	}
	if err = json.Unmarshal([]byte(requestJSON), &record.Request); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "unmarshal request", slog.String("id", id))
	}
	if err = json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "unmarshal result", slog.String("id", id))
	}
	if record.Created, err = time.Parse(timeFormat, created); err != nil {
		return models.InvestigationRecord{}, errors.Wrap(err, "parse created", slog.String("id", id))
	}
	return record, nil
}

// ListRecent returns summaries of the newest investigations first. The limit is clamped to [1, MaxListLimit] and
// defaults to DefaultListLimit when not positive.
func (r *InvestigationRepository) ListRecent(ctx context.Context, limit int) ([]models.InvestigationSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	stmt := `SELECT id, target_type, name, verdict, risk_score, created
FROM investigations
ORDER BY created DESC, rowid DESC
LIMIT ?`
	rows, err := r.dbs.ReadOnly.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query investigations")
	}
	defer func() {
		if err = rows.Close(); err != nil {
			err = errors.Wrap(err, "close rows")
			r.logger.LogAttrs(ctx, slog.LevelError, "could not close rows", errors.SlogError(err))
		}
	}()

	summaries := []models.InvestigationSummary{}
	for rows.Next() {
		var (
			summary models.InvestigationSummary
			created string
		)
		if err = rows.Scan(&summary.ID, &summary.TargetType, &summary.Name, &summary.Verdict, &summary.RiskScore,
			&created); err != nil {
			return nil, errors.Wrap(err, "scan investigation")
		}
		if summary.Created, err = time.Parse(timeFormat, created); err != nil {
			return nil, errors.Wrap(err, "parse created", slog.String("id", summary.ID))
		}
		summaries = append(summaries, summary)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return summaries, nil
}
