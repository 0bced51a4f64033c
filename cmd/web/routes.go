package main

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
)

func (app *application) routes(serverTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)

	api := alice.New(app.cors, noStore)
	mux.Handle("POST /api/whistleblower/analyze", api.ThenFunc(app.analyze))
	mux.Handle("GET /api/whistleblower/investigations", api.ThenFunc(app.listInvestigations))
	mux.Handle("GET /api/whistleblower/investigations/{id}", api.ThenFunc(app.getInvestigation))
	mux.Handle("OPTIONS /api/whistleblower/", api.ThenFunc(preflight))

	common := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	return common.Then(timeoutHandler(mux, serverTimeout))
}
