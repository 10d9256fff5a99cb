// Package health aggregates liveness checks for the API's external
// dependencies. Deployments without a dependency simply register no
// checker for it.
package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkTimeout bounds each individual dependency probe.
const checkTimeout = 2 * time.Second

// Checker probes one dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker probes a SQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// RedisChecker probes a Redis server.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING command.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Registry holds named dependency checkers.
type Registry struct {
	checkers map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a named checker.
func (reg *Registry) Register(name string, c Checker) {
	reg.checkers[name] = c
}

// Check runs every registered checker and returns per-dependency error
// messages. Healthy dependencies map to an empty string.
func (reg *Registry) Check(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(reg.checkers))
	healthy := true
	for name, c := range reg.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.HealthCheck(probeCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = ""
	}
	return results, healthy
}
