package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/softspot/proximity/internal/location"
	"github.com/softspot/proximity/internal/middleware"
)

// DefaultMaxDistanceKM is the nearby-users radius when the caller does
// not pass max_distance.
const DefaultMaxDistanceKM = 5.0

// LocationHandlers holds dependencies for location endpoints.
type LocationHandlers struct {
	store location.Store
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(store location.Store) *LocationHandlers {
	return &LocationHandlers{store: store}
}

// LocationUpdateRequest is the body of POST /locations. Clients are
// expected to perturb coordinates before sending them.
type LocationUpdateRequest struct {
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NearbyUser is one entry of the nearby-users response.
type NearbyUser struct {
	UserID   string        `json:"user_id"`
	Distance float64       `json:"distance"`
	Location NearbyUserLoc `json:"location"`
}

// NearbyUserLoc is the coordinate pair of a nearby user.
type NearbyUserLoc struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateLocation handles POST /locations. The body's user_id must match
// the authenticated user.
func (h *LocationHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.UserID != middleware.GetUserID(r.Context()) {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot update another user's location")
		return
	}
	if !location.ValidCoordinates(req.Latitude, req.Longitude) {
		WriteError(w, http.StatusBadRequest, ErrCodeValidation,
			"latitude must be in [-90, 90] and longitude in [-180, 180]")
		return
	}

	if err := h.store.UpsertPoint(r.Context(), req.UserID, req.Latitude, req.Longitude, time.Now().UTC()); err != nil {
		slog.ErrorContext(r.Context(), "location upsert failed", "error", err, "user_id", req.UserID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"latitude":  req.Latitude,
		"longitude": req.Longitude,
	})
}

// NearbyUsers handles GET /locations/nearby_users?user_id=...&max_distance=...
// The user_id must match the authenticated user.
func (h *LocationHandlers) NearbyUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID != middleware.GetUserID(r.Context()) {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot query another user's surroundings")
		return
	}

	maxDistance := DefaultMaxDistanceKM
	if raw := query.Get("max_distance"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			WriteError(w, http.StatusBadRequest, ErrCodeValidation, "max_distance must be a non-negative number")
			return
		}
		maxDistance = parsed
	}

	neighbors, err := h.store.QueryNearby(r.Context(), userID, maxDistance)
	if errors.Is(err, location.ErrNoLocation) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "User has no stored location")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "nearby query failed", "error", err, "user_id", userID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	out := make([]NearbyUser, len(neighbors))
	for i, n := range neighbors {
		out[i] = NearbyUser{
			UserID:   n.UserID,
			Distance: math.Round(n.DistanceKM*100) / 100,
			Location: NearbyUserLoc{Latitude: n.Latitude, Longitude: n.Longitude},
		}
	}
	WriteJSON(w, http.StatusOK, out)
}
