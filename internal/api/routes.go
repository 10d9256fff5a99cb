package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softspot/proximity/internal/health"
)

// Deps bundles the handler groups and middleware stores needed to build
// the router.
type Deps struct {
	Auth      *AuthHandlers
	Locations *LocationHandlers
	PSI       *PSIHandlers

	// Health probes external dependencies. Optional; nil reports the
	// process itself as healthy.
	Health *health.Registry

	// LoginLimiter guards the token endpoint. Optional; nil disables
	// login rate limiting (tests).
	LoginLimiter func(http.Handler) http.Handler
}

// NewRouter builds the HTTP mux. All routes except /health, /metrics and
// the token endpoint require a valid bearer token.
func NewRouter(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}
		results, healthy := deps.Health.Check(r.Context())
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		WriteJSON(w, code, map[string]any{"status": status, "checks": results})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	login := http.Handler(http.HandlerFunc(deps.Auth.Login))
	if deps.LoginLimiter != nil {
		login = deps.LoginLimiter(login)
	}
	mux.Handle("POST /login_for_access_token", login)

	authed := func(h http.HandlerFunc) http.Handler {
		return deps.Auth.RequireAuth(h)
	}

	mux.Handle("GET /users/me", authed(deps.Auth.Me))

	mux.Handle("POST /locations", authed(deps.Locations.UpdateLocation))
	mux.Handle("GET /locations/nearby_users", authed(deps.Locations.NearbyUsers))

	mux.Handle("POST /psi/init", authed(deps.PSI.Initiate))
	mux.Handle("GET /psi/{id}", authed(deps.PSI.GetValues))
	mux.Handle("POST /psi/{id}/join", authed(deps.PSI.Join))
	mux.Handle("PATCH /psi/{id}/intersection", authed(deps.PSI.UpdateIntersection))
	mux.Handle("GET /psi/{id}/intersection", authed(deps.PSI.GetIntersection))

	return mux
}
