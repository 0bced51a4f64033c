package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/investigation"
	"github.com/myrjola/whistleblower/internal/models"
	"github.com/myrjola/whistleblower/internal/repositories"
)

const detailInvalidRequest = "invalid_request"

type analyzeResponse struct {
	// ID is empty when the investigation could not be stored.
	ID string `json:"id,omitempty"`
	models.InvestigationResult
}

// analyze runs an investigation and stores it in the history.
func (app *application) analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.InvestigationRequest
	if err := decodeJSON(r, w, &req); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "malformed investigation request", errors.SlogError(err))
		app.clientError(w, r, http.StatusBadRequest, detailInvalidRequest)
		return
	}
	if req.TargetType == "" {
		req.TargetType = models.TargetTypeIndividual
	}

	req, err := investigation.Normalize(req)
	if err != nil {
		app.validationError(w, r, err)
		return
	}

	var result *models.InvestigationResult
	if result, err = app.investigator.Investigate(ctx, req); err != nil {
		app.validationError(w, r, err)
		return
	}

	resp := analyzeResponse{ID: "", InvestigationResult: *result}
	record, err := app.investigations.Save(ctx, req, *result)
	if err != nil {
		// The caller still gets the assessment; only the history entry is lost.
		app.logger.LogAttrs(ctx, slog.LevelError, "investigation not stored", errors.SlogError(err))
	} else {
		resp.ID = record.ID
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}

func (app *application) validationError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr models.ValidationError
	if errors.As(err, &validationErr) {
		app.clientError(w, r, http.StatusBadRequest, string(validationErr.Code))
		return
	}
	app.serverError(w, r, errors.Wrap(err, "investigate"))
}

func (app *application) listInvestigations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			app.clientError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
	}
	summaries, err := app.investigations.ListRecent(r.Context(), limit)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "list investigations"))
		return
	}
	app.writeJSON(w, r, http.StatusOK, summaries)
}

func (app *application) getInvestigation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := app.investigations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, errors.Wrap(err, "get investigation", slog.String("id", id)))
		return
	}
	app.writeJSON(w, r, http.StatusOK, record)
}
