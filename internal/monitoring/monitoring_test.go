package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
)

func TestHealthCheck(t *testing.T) {
	var conf config.Config
	conf.Monitoring.HealthcheckEndpoint = true
	conf.Monitoring.PrometheusEndpoint = true
	mux := newMux(conf)

	RegisterHealthCheck("redis", func(ctx context.Context) error { return nil })

	t.Run("healthy", func(t *testing.T) {
		assert := require.New(t)
		RegisterHealthCheck("loop", func(ctx context.Context) error { return nil })

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(http.StatusOK, rec.Code)
	})

	t.Run("unhealthy", func(t *testing.T) {
		assert := require.New(t)
		RegisterHealthCheck("loop", func(ctx context.Context) error { return errors.New("halted") })

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(http.StatusServiceUnavailable, rec.Code)
		assert.Equal("loop: halted", rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		assert := require.New(t)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(http.StatusOK, rec.Code)
	})
}

func TestSetupDisabled(t *testing.T) {
	assert := require.New(t)

	assert.NoError(Setup(config.Config{}))
	assert.NoError(Shutdown(context.Background()))
}
