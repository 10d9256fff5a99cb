// Package psi provides the server-side session state machine that
// coordinates the private set intersection exchange between an initiator
// and one or more joiners.
//
// Sessions live in process-local memory and follow a three-state
// lifecycle: INITIATED -> JOINED -> COMPLETED. Status never moves
// backwards. Expired sessions are removed on access; SweepExpired can
// additionally be run opportunistically.
package psi

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softspot/proximity/pkg/psigroup"
)

// DefaultSessionTimeout is how long a session may be used after creation.
const DefaultSessionTimeout = 30 * time.Minute

// SessionStatus is the lifecycle state of a session.
type SessionStatus int

// Session lifecycle states. The wire encoding is the integer value.
const (
	StatusInitiated SessionStatus = iota + 1
	StatusJoined
	StatusCompleted
)

// String implements fmt.Stringer.
func (s SessionStatus) String() string {
	switch s {
	case StatusInitiated:
		return "INITIATED"
	case StatusJoined:
		return "JOINED"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("SessionStatus(%d)", int(s))
	}
}

// Sentinel errors returned by Manager operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidValues   = errors.New("values empty or outside group range")
	ErrInvalidStatus   = errors.New("operation not allowed in current session status")
	ErrNotInitiator    = errors.New("access allowed only for initiator")
	ErrInitiatorJoin   = errors.New("initiator cannot join own session")
	ErrAlreadyJoined   = errors.New("user already joined session")
	ErrUnknownJoiner   = errors.New("no response recorded for user")
	ErrNegativeCount   = errors.New("intersection size must be non-negative")
)

// Session is one PSI coordination record.
type Session struct {
	ID              string
	InitiatorID     string
	InitiatorValues psigroup.Elements
	Responses       map[string]psigroup.Elements
	Intersections   map[string]int
	Status          SessionStatus
	CreatedAt       time.Time
}

// View is a read snapshot of a session, shaped by the caller's role:
// in INITIATED any authenticated user sees the initiator values; in
// JOINED or COMPLETED only the initiator sees the joiner responses.
type View struct {
	Status          SessionStatus
	InitiatorValues psigroup.Elements
	Responses       map[string]psigroup.Elements
}

// Manager owns the session table. All operations are linearizable: a
// single mutex guards every state-machine step, so concurrent joins are
// serialized and partial updates are never observable.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
}

// NewManager creates a manager with the given session timeout.
// A non-positive timeout falls back to DefaultSessionTimeout.
func NewManager(timeout time.Duration) *Manager {
	return NewManagerWithClock(timeout, time.Now)
}

// NewManagerWithClock is like NewManager with an injectable clock.
func NewManagerWithClock(timeout time.Duration, now func() time.Time) *Manager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      now,
	}
}

// Create opens a new session for userID with its blinded values and
// returns the session ID. Values must be non-empty and inside [1, p-1].
func (m *Manager) Create(userID string, values psigroup.Elements) (string, error) {
	if err := validateElements(values); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.sessions[id] = &Session{
		ID:              id,
		InitiatorID:     userID,
		InitiatorValues: copyElements(values),
		Responses:       make(map[string]psigroup.Elements),
		Intersections:   make(map[string]int),
		Status:          StatusInitiated,
		CreatedAt:       m.now().UTC(),
	}
	return id, nil
}

// Join stores a joiner response. The response must contain the joiner's
// own blinded values followed by the re-blinded initiator values, so its
// length must exceed the initiator count by at least one. Allowed in
// INITIATED (first joiner) and JOINED (additional joiners); each user may
// join at most once and the initiator may not join at all. Failed joins
// leave the session untouched.
func (m *Manager) Join(sessionID, userID string, values psigroup.Elements) (SessionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return 0, err
	}
	if userID == s.InitiatorID {
		return 0, ErrInitiatorJoin
	}
	if s.Status != StatusInitiated && s.Status != StatusJoined {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, s.Status)
	}
	if _, ok := s.Responses[userID]; ok {
		return 0, ErrAlreadyJoined
	}
	if err := validateElements(values); err != nil {
		return 0, err
	}
	if len(values) <= len(s.InitiatorValues) {
		return 0, fmt.Errorf("%w: response must include at least one joiner value", ErrInvalidValues)
	}

	s.Responses[userID] = copyElements(values)
	s.Status = StatusJoined
	return s.Status, nil
}

// RecordIntersection stores the initiator-reported intersection size for
// one joiner and completes the session. Only the initiator may call it,
// only in JOINED, and only for a user that actually responded.
func (m *Manager) RecordIntersection(sessionID, callerID, otherID string, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return err
	}
	if callerID != s.InitiatorID {
		return ErrNotInitiator
	}
	if s.Status != StatusJoined {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, s.Status)
	}
	if _, ok := s.Responses[otherID]; !ok {
		return ErrUnknownJoiner
	}
	if size < 0 {
		return ErrNegativeCount
	}

	s.Intersections[otherID] = size
	s.Status = StatusCompleted
	return nil
}

// Values returns the role-shaped read view of a session. In INITIATED the
// initiator values are visible to any authenticated user (the joiner
// needs them); from JOINED on, the joiner responses are visible to the
// initiator only.
func (m *Manager) Values(sessionID, callerID string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return nil, err
	}

	view := &View{Status: s.Status}
	switch s.Status {
	case StatusInitiated:
		view.InitiatorValues = copyElements(s.InitiatorValues)
	case StatusJoined, StatusCompleted:
		if callerID != s.InitiatorID {
			return nil, ErrNotInitiator
		}
		view.Responses = make(map[string]psigroup.Elements, len(s.Responses))
		for user, values := range s.Responses {
			view.Responses[user] = copyElements(values)
		}
	}
	return view, nil
}

// Intersection returns the size recorded for callerID, or -1 if the
// initiator has not reported one for them.
func (m *Manager) Intersection(sessionID, callerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return 0, err
	}
	if n, ok := s.Intersections[callerID]; ok {
		return n, nil
	}
	return -1, nil
}

// SweepExpired removes all expired sessions and returns how many were
// dropped. Expired IDs are collected first so the map is never mutated
// while being iterated.
func (m *Manager) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, s := range m.sessions {
		if m.expired(s) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	return len(expired)
}

// Len returns the number of live entries in the session table.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// live looks up a session, removing it and reporting ErrSessionExpired if
// it is past the timeout. Callers must hold m.mu.
func (m *Manager) live(sessionID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(s) {
		delete(m.sessions, sessionID)
		return nil, ErrSessionExpired
	}
	return s, nil
}

func (m *Manager) expired(s *Session) bool {
	return m.now().Sub(s.CreatedAt) > m.timeout
}

func validateElements(values psigroup.Elements) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidValues)
	}
	for i, v := range values {
		if !psigroup.ValidElement(v) {
			return fmt.Errorf("%w: index %d", ErrInvalidValues, i)
		}
	}
	return nil
}

func copyElements(values psigroup.Elements) psigroup.Elements {
	out := make(psigroup.Elements, len(values))
	for i, v := range values {
		out[i] = new(big.Int).Set(v)
	}
	return out
}
