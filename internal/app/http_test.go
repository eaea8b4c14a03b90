package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
)

func TestHandler_Endpoints(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	cfg.Output.Dir = t.TempDir()
	cfg.Metrics.Addr = "127.0.0.1:0"

	a, err := New(Options{Config: cfg, Network: loopback.NewNetwork()})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, a.Close(context.Background()))
	})

	_, err = a.Discovery.DiscoverOnce(context.Background(), 0)
	require.NoError(t, err)

	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, http.NoBody)
		require.NoError(t, reqErr)

		resp, doErr := http.DefaultClient.Do(req)
		require.NoError(t, doErr, path)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.NoError(t, resp.Body.Close())
	}
}

func TestServeHTTP_DisabledWithoutAddr(t *testing.T) {
	t.Parallel()

	a := &App{Config: &config.Config{}}

	shutdown, err := a.serveHTTP(context.Background())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
