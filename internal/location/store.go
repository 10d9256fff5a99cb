// Package location provides storage and radius queries for user release
// points.
//
// Points arrive already noise-perturbed by the client; the store only
// enforces coordinate ranges and upsert semantics (one point per user,
// no history).
package location

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/softspot/proximity/pkg/geodist"
)

// MaxNearbyUsers caps how many neighbors a radius query returns.
const MaxNearbyUsers = 20

// ErrNoLocation is returned when the querying user has no stored point.
var ErrNoLocation = errors.New("no location stored for user")

// Entry is the stored release point for one user.
type Entry struct {
	UserID      string
	Latitude    float64
	Longitude   float64
	LastUpdated time.Time
}

// Neighbor is one radius-query result.
type Neighbor struct {
	UserID     string
	DistanceKM float64
	Latitude   float64
	Longitude  float64
}

// ValidCoordinates reports whether lat/lon lie in WGS-84 range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

// Store is the geospatial datastore contract.
type Store interface {
	// UpsertPoint stores or replaces the user's point.
	UpsertPoint(ctx context.Context, userID string, lat, lon float64, ts time.Time) error

	// QueryNearby returns up to MaxNearbyUsers users within
	// maxDistanceKM of userID's stored point, ordered by ascending
	// distance and excluding userID. ErrNoLocation if userID has no
	// point.
	QueryNearby(ctx context.Context, userID string, maxDistanceKM float64) ([]Neighbor, error)
}

// InMemoryStore implements Store with a mutex-guarded map and haversine
// distances. Used for testing and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryStore creates an empty in-memory location store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]Entry)}
}

// UpsertPoint stores or replaces the user's point.
func (s *InMemoryStore) UpsertPoint(ctx context.Context, userID string, lat, lon float64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = Entry{UserID: userID, Latitude: lat, Longitude: lon, LastUpdated: ts}
	return nil
}

// QueryNearby scans all points, filters by distance, sorts ascending and
// caps the result.
func (s *InMemoryStore) QueryNearby(ctx context.Context, userID string, maxDistanceKM float64) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base, ok := s.entries[userID]
	if !ok {
		return nil, ErrNoLocation
	}

	var neighbors []Neighbor
	for id, e := range s.entries {
		if id == userID {
			continue
		}
		d := geodist.Kilometers(base.Latitude, base.Longitude, e.Latitude, e.Longitude)
		if d <= maxDistanceKM {
			neighbors = append(neighbors, Neighbor{
				UserID:     id,
				DistanceKM: d,
				Latitude:   e.Latitude,
				Longitude:  e.Longitude,
			})
		}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].DistanceKM < neighbors[j].DistanceKM
	})
	if len(neighbors) > MaxNearbyUsers {
		neighbors = neighbors[:MaxNearbyUsers]
	}
	return neighbors, nil
}
