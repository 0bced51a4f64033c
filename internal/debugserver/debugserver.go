// Package debugserver serves pprof profiles and Prometheus metrics on a loopback address.
package debugserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handle registers the pprof and /metrics handlers on mux.
func Handle(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})) //nolint:exhaustruct // defaults
}

// Launch starts the debug server on addr and returns its listening address. The server shuts down when ctx is done.
//
// Only loopback addresses are accepted so that profiles are never exposed to the network.
func Launch(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", errors.Wrap(err, "split debug address", slog.String("addr", addr))
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return "", errors.New("debug server must listen on loopback", slog.String("addr", addr))
	}

	var listener net.Listener
	if listener, err = net.Listen("tcp", addr); err != nil {
		return "", errors.Wrap(err, "TCP listen", slog.String("addr", addr))
	}
	mux := http.NewServeMux()
	Handle(mux, gatherer)
	srv := &http.Server{ //nolint:exhaustruct // profiles need long write timeouts
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // ctx is already done
	}()
	go func() {
		if serveErr := srv.Serve(listener); !errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = errors.Wrap(serveErr, "debug server serve")
			logger.LogAttrs(ctx, slog.LevelError, "debug server stopped", errors.SlogError(serveErr))
		}
	}()

	listenAddr := listener.Addr().String()
	logger.LogAttrs(ctx, slog.LevelInfo, "starting debug server", slog.String("debug_addr", listenAddr))
	return listenAddr, nil
}
