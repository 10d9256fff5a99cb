package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/softspot/proximity/internal/middleware"
	"github.com/softspot/proximity/internal/psi"
	"github.com/softspot/proximity/pkg/psigroup"
)

// PSIHandlers holds dependencies for the PSI coordination endpoints.
type PSIHandlers struct {
	sessions *psi.Manager
}

// NewPSIHandlers creates a new PSIHandlers instance.
func NewPSIHandlers(sessions *psi.Manager) *PSIHandlers {
	return &PSIHandlers{sessions: sessions}
}

// InitiateRequest is the body of POST /psi/init.
type InitiateRequest struct {
	BlindedValues psigroup.Elements `json:"blinded_values"`
	UserID        string            `json:"user_id"`
}

// JoinRequest is the body of POST /psi/{id}/join.
type JoinRequest struct {
	SessionID      string            `json:"session_id"`
	ResponseValues psigroup.Elements `json:"response_values"`
	UserID         string            `json:"user_id"`
}

// IntersectionUpdateRequest is the body of PATCH /psi/{id}/intersection.
type IntersectionUpdateRequest struct {
	UserID          string `json:"user_id"`
	OtherUserID     string `json:"other_user_id"`
	LenIntersection int    `json:"len_intersection"`
}

// writeSessionError maps session manager errors onto the API error
// taxonomy.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, psi.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
	case errors.Is(err, psi.ErrSessionExpired):
		WriteError(w, http.StatusGone, ErrCodeSessionExpired, "Session expired")
	case errors.Is(err, psi.ErrNotInitiator):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Access allowed only for initiator")
	case errors.Is(err, psi.ErrInitiatorJoin):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Initiator cannot join own session")
	case errors.Is(err, psi.ErrInvalidStatus):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidStatus, err.Error())
	case errors.Is(err, psi.ErrInvalidValues),
		errors.Is(err, psi.ErrAlreadyJoined),
		errors.Is(err, psi.ErrUnknownJoiner),
		errors.Is(err, psi.ErrNegativeCount):
		WriteError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// Initiate handles POST /psi/init: protocol step 1. Stores the
// initiator's blinded values and returns the new session ID with 201.
func (h *PSIHandlers) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.UserID != "" && req.UserID != userID {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot initiate for another user")
		return
	}

	sessionID, err := h.sessions.Create(userID, req.BlindedValues)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// Join handles POST /psi/{id}/join: protocol step 2. Stores the joiner's
// response values and moves the session to JOINED.
func (h *PSIHandlers) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.UserID != "" && req.UserID != userID {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot join for another user")
		return
	}

	status, err := h.sessions.Join(sessionID, userID, req.ResponseValues)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     int(status),
		"session_id": sessionID,
	})
}

// GetValues handles GET /psi/{id}. In INITIATED it returns the
// initiator's values to any authenticated user; from JOINED on it
// returns the joiner responses to the initiator only.
func (h *PSIHandlers) GetValues(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := middleware.GetUserID(r.Context())

	view, err := h.sessions.Values(sessionID, userID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	body := map[string]any{"status": int(view.Status)}
	if view.Status == psi.StatusInitiated {
		body["values"] = view.InitiatorValues
	} else {
		body["values"] = view.Responses
	}
	WriteJSON(w, http.StatusOK, body)
}

// UpdateIntersection handles PATCH /psi/{id}/intersection: the initiator
// reports the intersection size computed in protocol step 3.
func (h *PSIHandlers) UpdateIntersection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req IntersectionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if req.UserID != "" && req.UserID != userID {
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "Cannot report for another user")
		return
	}
	if req.OtherUserID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeValidation, "other_user_id is required")
		return
	}

	if err := h.sessions.RecordIntersection(sessionID, userID, req.OtherUserID, req.LenIntersection); err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": fmt.Sprintf("Intersection updated to %d", req.LenIntersection),
	})
}

// GetIntersection handles GET /psi/{id}/intersection, returning the size
// recorded for the calling user or -1 if absent.
func (h *PSIHandlers) GetIntersection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := middleware.GetUserID(r.Context())

	n, err := h.sessions.Intersection(sessionID, userID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"intersection_len": n})
}
