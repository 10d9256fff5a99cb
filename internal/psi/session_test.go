package psi

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/softspot/proximity/pkg/psigroup"
)

// elems builds n distinct valid group elements.
func elems(n int) psigroup.Elements {
	out := make(psigroup.Elements, n)
	for i := range out {
		out[i] = psigroup.HashToGroup([]byte(fmt.Sprintf("item-%d", i)))
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(0)

	id, err := m.Create("alice", elems(3))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty session ID")
	}

	// INITIATED: anyone may read the initiator values.
	view, err := m.Values(id, "bob")
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if view.Status != StatusInitiated || len(view.InitiatorValues) != 3 {
		t.Fatalf("Values() = status %v with %d values, want INITIATED with 3", view.Status, len(view.InitiatorValues))
	}

	status, err := m.Join(id, "bob", elems(5))
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if status != StatusJoined {
		t.Fatalf("Join() status = %v, want JOINED", status)
	}

	// JOINED: responses are initiator-only.
	if _, err := m.Values(id, "bob"); !errors.Is(err, ErrNotInitiator) {
		t.Errorf("joiner Values() error = %v, want ErrNotInitiator", err)
	}
	view, err = m.Values(id, "alice")
	if err != nil {
		t.Fatalf("initiator Values() error = %v", err)
	}
	if view.Status != StatusJoined || len(view.Responses["bob"]) != 5 {
		t.Fatalf("initiator view = status %v, responses %v", view.Status, view.Responses)
	}

	if err := m.RecordIntersection(id, "alice", "bob", 2); err != nil {
		t.Fatalf("RecordIntersection() error = %v", err)
	}

	n, err := m.Intersection(id, "bob")
	if err != nil {
		t.Fatalf("Intersection() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Intersection(bob) = %d, want 2", n)
	}
	n, err = m.Intersection(id, "carol")
	if err != nil {
		t.Fatalf("Intersection() error = %v", err)
	}
	if n != -1 {
		t.Errorf("Intersection(carol) = %d, want -1 when unrecorded", n)
	}

	view, err = m.Values(id, "alice")
	if err != nil {
		t.Fatalf("Values() after completion error = %v", err)
	}
	if view.Status != StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", view.Status)
	}
}

func TestJoinRules(t *testing.T) {
	m := NewManager(0)
	id, _ := m.Create("alice", elems(3))

	if _, err := m.Join(id, "alice", elems(5)); !errors.Is(err, ErrInitiatorJoin) {
		t.Errorf("initiator join error = %v, want ErrInitiatorJoin", err)
	}
	if _, err := m.Join(id, "bob", elems(3)); !errors.Is(err, ErrInvalidValues) {
		t.Errorf("short response error = %v, want ErrInvalidValues", err)
	}
	if _, err := m.Join(id, "bob", nil); !errors.Is(err, ErrInvalidValues) {
		t.Errorf("empty response error = %v, want ErrInvalidValues", err)
	}

	if _, err := m.Join(id, "bob", elems(4)); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := m.Join(id, "bob", elems(4)); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second join error = %v, want ErrAlreadyJoined", err)
	}

	// A further joiner is allowed while JOINED.
	if _, err := m.Join(id, "carol", elems(6)); err != nil {
		t.Fatalf("second joiner error = %v", err)
	}

	if err := m.RecordIntersection(id, "alice", "bob", 1); err != nil {
		t.Fatalf("RecordIntersection() error = %v", err)
	}
	if _, err := m.Join(id, "dave", elems(4)); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("join after completion error = %v, want ErrInvalidStatus", err)
	}

	if _, err := m.Join("no-such-session", "bob", elems(4)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session error = %v, want ErrSessionNotFound", err)
	}
}

func TestInvalidElementsLeaveSessionUntouched(t *testing.T) {
	m := NewManager(0)

	outOfRange := psigroup.Elements{new(big.Int).Set(psigroup.Modulus)}
	if _, err := m.Create("alice", outOfRange); !errors.Is(err, ErrInvalidValues) {
		t.Fatalf("Create() error = %v, want ErrInvalidValues", err)
	}
	if _, err := m.Create("alice", nil); !errors.Is(err, ErrInvalidValues) {
		t.Fatalf("Create(nil) error = %v, want ErrInvalidValues", err)
	}

	id, _ := m.Create("alice", elems(2))
	bad := append(elems(2), big.NewInt(0))
	if _, err := m.Join(id, "bob", bad); !errors.Is(err, ErrInvalidValues) {
		t.Fatalf("Join() error = %v, want ErrInvalidValues", err)
	}

	view, err := m.Values(id, "bob")
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if view.Status != StatusInitiated {
		t.Errorf("status after failed join = %v, want INITIATED", view.Status)
	}
}

func TestRecordIntersectionRules(t *testing.T) {
	m := NewManager(0)
	id, _ := m.Create("alice", elems(2))

	if err := m.RecordIntersection(id, "alice", "bob", 1); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("record in INITIATED error = %v, want ErrInvalidStatus", err)
	}

	if _, err := m.Join(id, "bob", elems(3)); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	if err := m.RecordIntersection(id, "bob", "alice", 1); !errors.Is(err, ErrNotInitiator) {
		t.Errorf("non-initiator record error = %v, want ErrNotInitiator", err)
	}
	if err := m.RecordIntersection(id, "alice", "carol", 1); !errors.Is(err, ErrUnknownJoiner) {
		t.Errorf("unknown joiner error = %v, want ErrUnknownJoiner", err)
	}
	if err := m.RecordIntersection(id, "alice", "bob", -1); !errors.Is(err, ErrNegativeCount) {
		t.Errorf("negative size error = %v, want ErrNegativeCount", err)
	}

	if err := m.RecordIntersection(id, "alice", "bob", 0); err != nil {
		t.Fatalf("RecordIntersection(0) error = %v", err)
	}
	// COMPLETED is terminal for intersection updates.
	if err := m.RecordIntersection(id, "alice", "bob", 2); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("record in COMPLETED error = %v, want ErrInvalidStatus", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	current := now
	m := NewManagerWithClock(30*time.Minute, func() time.Time { return current })

	id, _ := m.Create("alice", elems(2))

	// Just inside the timeout the session is still live.
	current = now.Add(30 * time.Minute)
	if _, err := m.Values(id, "bob"); err != nil {
		t.Fatalf("Values() at timeout boundary error = %v", err)
	}

	current = now.Add(30*time.Minute + time.Second)
	if _, err := m.Join(id, "bob", elems(3)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Join() after expiry error = %v, want ErrSessionExpired", err)
	}

	// The expired session was removed on access; later lookups miss.
	if _, err := m.Values(id, "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Values() after removal error = %v, want ErrSessionNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestSweepExpired(t *testing.T) {
	now := time.Now()
	current := now
	m := NewManagerWithClock(10*time.Minute, func() time.Time { return current })

	for i := 0; i < 3; i++ {
		if _, err := m.Create(fmt.Sprintf("user-%d", i), elems(1)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	current = now.Add(5 * time.Minute)
	fresh, _ := m.Create("late", elems(1))

	current = now.Add(12 * time.Minute)
	if n := m.SweepExpired(); n != 3 {
		t.Errorf("SweepExpired() = %d, want 3", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if _, err := m.Values(fresh, "anyone"); err != nil {
		t.Errorf("fresh session unreadable after sweep: %v", err)
	}
}

func TestConcurrentJoins(t *testing.T) {
	m := NewManager(0)
	id, _ := m.Create("alice", elems(2))

	const joiners = 16
	var wg sync.WaitGroup
	errCh := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Join(id, fmt.Sprintf("joiner-%d", i), elems(3)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent Join() error = %v", err)
	}

	view, err := m.Values(id, "alice")
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if len(view.Responses) != joiners {
		t.Errorf("responses = %d, want %d", len(view.Responses), joiners)
	}
}

func TestViewIsACopy(t *testing.T) {
	m := NewManager(0)
	id, _ := m.Create("alice", elems(2))

	view, _ := m.Values(id, "bob")
	view.InitiatorValues[0].SetInt64(1)

	fresh, _ := m.Values(id, "bob")
	if fresh.InitiatorValues[0].Cmp(big.NewInt(1)) == 0 {
		t.Error("mutating a view leaked into stored session state")
	}
}
