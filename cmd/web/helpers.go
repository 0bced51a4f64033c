package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/whistleblower/internal/errors"
)

// maxBodyBytes caps request bodies. Investigation requests are a handful of short strings.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Detail string `json:"detail"`
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "write JSON response",
			errors.SlogError(errors.Wrap(err, "encode response")))
	}
}

// decodeJSON decodes a single JSON document from the request body into dst.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON document")
	}
	return nil
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Detail: "internal_error"})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status), slog.String("detail", detail))
	app.writeJSON(w, r, status, errorResponse{Detail: detail})
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, "not_found")
}
