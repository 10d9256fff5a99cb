// Package main is the entry point for the proximity API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/softspot/proximity/internal/api"
	"github.com/softspot/proximity/internal/auth"
	"github.com/softspot/proximity/internal/config"
	"github.com/softspot/proximity/internal/db"
	"github.com/softspot/proximity/internal/health"
	"github.com/softspot/proximity/internal/location"
	"github.com/softspot/proximity/internal/middleware"
	"github.com/softspot/proximity/internal/psi"
	"github.com/softspot/proximity/internal/user"

	"github.com/prometheus/client_golang/prometheus"
)

// sweepInterval is how often expired PSI sessions are collected in the
// background. Correctness does not depend on it; per-access expiry
// checks already guarantee expired sessions are never served.
const sweepInterval = 5 * time.Minute

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Proximity API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	// Stores: Postgres/PostGIS when configured, in-memory otherwise
	// (development only; config validation enforces a DATABASE_URL in
	// production).
	var (
		userStore     user.Store
		locationStore location.Store
	)
	checks := health.NewRegistry()
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		users := user.NewPostgresStore(conn)
		locations := location.NewPostgresStore(conn)
		if err := users.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure user schema", "error", err)
			os.Exit(1)
		}
		if err := locations.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure location schema", "error", err)
			os.Exit(1)
		}
		if err := db.VerifyPostGIS(ctx, conn); err != nil {
			logger.Error("postgis check failed", "error", err)
			os.Exit(1)
		}
		userStore = users
		locationStore = locations
		checks.Register("database", health.NewDBChecker(conn))
	} else {
		logger.Warn("no DATABASE_URL configured, using in-memory stores")
		userStore = user.NewInMemoryStore()
		locationStore = location.NewInMemoryStore()
	}

	if err := provisionUsers(userStore, logger); err != nil {
		logger.Error("failed to provision users", "error", err)
		os.Exit(1)
	}

	// Login rate limiting: shared via Redis when configured.
	var limitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		limitStore = middleware.NewRedisRateLimitStore(client)
		checks.Register("redis", health.NewRedisChecker(client))
	}

	tokens := auth.NewTokenServiceWithTTL(cfg.JWTSecret, cfg.TokenTTL, auth.DefaultLeeway)
	sessions := psi.NewManager(cfg.SessionTimeout)

	mux := api.NewRouter(api.Deps{
		Auth:      api.NewAuthHandlers(tokens, userStore),
		Locations: api.NewLocationHandlers(locationStore),
		PSI:       api.NewPSIHandlers(sessions),
		Health:    checks,
		LoginLimiter: middleware.RateLimiter(
			limitStore, middleware.DefaultLoginLimit(), middleware.IPKeyFunc()),
	})

	// Middleware: RequestID -> Logging -> Metrics -> routes.
	metrics := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	handler := middleware.RequestID(middleware.Logging(logger)(metrics.Middleware(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Opportunistic expiry sweep.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessions.SweepExpired(); n > 0 {
					logger.Info("swept expired sessions", "count", n)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// provisionUsers upserts accounts listed in SEED_USERS (comma-separated
// user IDs) with the password from SEED_PASSWORD. Intended for
// development; production provisions users out-of-band.
func provisionUsers(store user.Store, logger *slog.Logger) error {
	seed := os.Getenv("SEED_USERS")
	if seed == "" {
		return nil
	}
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		return fmt.Errorf("SEED_USERS set without SEED_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var provisioned []string
	for _, id := range strings.Split(seed, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := user.Provision(ctx, store, id, password); err != nil {
			return err
		}
		provisioned = append(provisioned, id)
	}
	logger.Info("provisioned users", "count", len(provisioned), "user_ids", provisioned)
	return nil
}
