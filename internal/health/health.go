// Package health wires liveness and readiness probes (§6: /health/live,
// /health/ready) for Kubernetes-style orchestration, backed by
// github.com/heptiolabs/healthcheck the way the rest of the corpus
// exposes health endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// storePinger is the subset of store.Store this package depends on:
// a reachability check, not the full mirror-store surface.
type storePinger interface {
	Health(ctx context.Context) error
}

// Checker exposes the liveness/readiness handlers the HTTP router
// mounts directly.
type Checker struct {
	live  healthcheck.Handler
	ready healthcheck.Handler
}

// New builds a Checker whose liveness check only confirms the process
// is responsive, and whose readiness check confirms the database and
// Redis (job queue) are both reachable.
func New(store storePinger, rdb *goredis.Client, log *zap.Logger) *Checker {
	c := &Checker{
		live:  healthcheck.NewHandler(),
		ready: healthcheck.NewHandler(),
	}

	c.ready.AddReadinessCheck("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.Health(ctx)
	})

	c.ready.AddReadinessCheck("redis", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rdb.Ping(ctx).Err()
	})

	log.Debug("health checker initialized")
	return c
}

// LiveHandler backs /health/live: confirms the process can serve HTTP.
func (c *Checker) LiveHandler() http.Handler { return c.live }

// ReadyHandler backs /health/ready: confirms downstream dependencies
// the sync pipeline needs are reachable.
func (c *Checker) ReadyHandler() http.Handler { return c.ready }
