package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/storage"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheckFunc returns an error when the checked component is unhealthy.
type HealthCheckFunc func(ctx context.Context) error

var (
	checksMu sync.RWMutex
	checks   = map[string]HealthCheckFunc{
		"redis": redisHealthCheck,
	}
)

// RegisterHealthCheck registers the given health check, replacing a
// previously registered check with the same name.
func RegisterHealthCheck(name string, f HealthCheckFunc) {
	checksMu.Lock()
	defer checksMu.Unlock()

	checks[name] = f
}

func redisHealthCheck(ctx context.Context) error {
	if err := storage.RedisClient().Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping error")
	}
	return nil
}

func healthCheckHandlerFunc(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checksMu.RLock()
	defer checksMu.RUnlock()

	for name, f := range checks {
		if err := f(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(errors.Wrap(err, name).Error()))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}
