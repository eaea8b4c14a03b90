package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

const readHeaderTimeout = 5 * time.Second

// handler serves /metrics, /healthz and /readyz.
func (a *App) handler() http.Handler {
	mux := http.NewServeMux()

	if a.providers.MetricsHandler != nil {
		mux.Handle("/metrics", a.providers.MetricsHandler)
	}

	mux.Handle("/healthz", observability.HealthHandler())
	mux.Handle("/readyz", observability.ReadyHandler(map[string]observability.ReadyCheck{
		"discovery": func(context.Context) error {
			if a.Discovery.Degraded() {
				return discovery.ErrDegraded
			}

			return nil
		},
	}))

	return observability.HTTPMiddleware(a.providers.Tracer, a.red, mux)
}

// serveHTTP listens on metrics.addr and serves until the returned shutdown
// function is called. An empty address serves nothing.
func (a *App) serveHTTP(ctx context.Context) (func(context.Context) error, error) {
	addr := a.Config.Metrics.Addr
	if addr == "" {
		return func(context.Context) error { return nil }, nil
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	a.logger.Info("serving metrics", "addr", listener.Addr().String())

	return srv.Shutdown, nil
}
