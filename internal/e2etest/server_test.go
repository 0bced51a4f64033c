package e2etest_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/myrjola/whistleblower/internal/e2etest"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) {
	return "", false
}

// healthyRun serves HealthPath on a random port until ctx is done.
func healthyRun(ctx context.Context, logger *slog.Logger, _ func(string) (string, bool)) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0") //nolint:exhaustruct // defaults are fine
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+e2etest.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second} //nolint:exhaustruct // test server
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "config", slog.String(e2etest.LogAddrKey, "not an address"))
	logger.LogAttrs(ctx, slog.LevelInfo, "starting server", slog.String(e2etest.LogAddrKey, listener.Addr().String()))
	if err = srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

func TestStartServer(t *testing.T) {
	server, err := e2etest.StartServer(t.Context(), io.Discard, noEnv, healthyRun)
	require.NoError(t, err)
	require.Regexp(t, `^http://127\.0\.0\.1:\d+$`, server.URL())

	var body map[string]string
	status, err := server.Client().GetJSON(t.Context(), e2etest.HealthPath, &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestStartServer_RunFailsBeforeListening(t *testing.T) {
	errBind := errors.NewSentinel("address already in use")
	run := func(context.Context, *slog.Logger, func(string) (string, bool)) error {
		return errors.Wrap(errBind, "listen")
	}
	server, err := e2etest.StartServer(t.Context(), io.Discard, noEnv, run)
	require.ErrorIs(t, err, errBind)
	require.Nil(t, server)
}

func TestStartServer_RunReturnsWithoutAddress(t *testing.T) {
	run := func(ctx context.Context, logger *slog.Logger, _ func(string) (string, bool)) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "nothing to serve")
		return nil
	}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err := e2etest.StartServer(ctx, io.Discard, noEnv, run)
	require.ErrorIs(t, err, e2etest.ErrServerExited)
}
