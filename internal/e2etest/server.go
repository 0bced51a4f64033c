package e2etest

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/logging"
)

const (
	// LogAddrKey is the log attribute carrying the listen address. StartServer waits for it.
	LogAddrKey = "addr"
	// HealthPath answers 200 once the API accepts investigations.
	HealthPath = "/api/healthy"
)

// ErrServerExited is the cause when run returns nil before announcing its address.
var ErrServerExited = errors.NewSentinel("server exited before announcing its address")

// RunFunc has the shape of the web binary's run function.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

// Server is an in-process whistleblower API under test.
type Server struct {
	baseURL string
	client  *Client
}

// StartServer runs the API in a goroutine and returns once HealthPath answers.
//
// Server logs go to logSink, usually [io.Discard]. The listen address is scraped from the LogAddrKey attribute, so
// run can bind port 0. The server stops when ctx is cancelled.
func StartServer(
	ctx context.Context,
	logSink io.Writer,
	lookupEnv func(string) (string, bool),
	run RunFunc,
) (*Server, error) {
	ctx, stop := context.WithCancelCause(ctx)

	addrs := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: captureAddr(addrs),
	})))

	go func() {
		err := run(ctx, logger, lookupEnv)
		if err == nil {
			err = ErrServerExited
		}
		stop(err)
	}()

	var addr string
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "start server")
	case addr = <-addrs:
	}

	baseURL := "http://" + addr
	client := NewClient(baseURL)
	if err := client.WaitForReady(ctx, HealthPath); err != nil {
		return nil, errors.Wrap(err, "wait for ready", slog.String("addr", addr))
	}
	return &Server{baseURL: baseURL, client: client}, nil
}

// captureAddr forwards the first host:port logged under LogAddrKey. Later values are dropped so logging never blocks.
func captureAddr(addrs chan<- string) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Key != LogAddrKey {
			return a
		}
		if _, _, err := net.SplitHostPort(a.Value.String()); err == nil {
			select {
			case addrs <- a.Value.String():
			default:
			}
		}
		return a
	}
}

func (s *Server) Client() *Client {
	return s.client
}

func (s *Server) URL() string {
	return s.baseURL
}
