package location

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store on PostgreSQL with the PostGIS
// extension. Distances use the geography cast for geodesic accuracy.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostGIS-backed location store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema enables PostGIS and creates the locations table and its
// spatial index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		`CREATE TABLE IF NOT EXISTS user_locations (
			user_id      TEXT PRIMARY KEY,
			location     GEOMETRY(POINT, 4326) NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_locations_geography
			ON user_locations USING GIST ((location::geography))`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure location schema: %w", err)
		}
	}
	return nil
}

// UpsertPoint stores or replaces the user's point.
func (s *PostgresStore) UpsertPoint(ctx context.Context, userID string, lat, lon float64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_locations (user_id, location, last_updated)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4)
		ON CONFLICT (user_id)
		DO UPDATE SET location     = EXCLUDED.location,
		              last_updated = EXCLUDED.last_updated`,
		userID, lon, lat, ts.UTC())
	if err != nil {
		return fmt.Errorf("upsert point for %s: %w", userID, err)
	}
	return nil
}

// QueryNearby runs the radius query in the database: ST_DWithin over
// geography for the filter, ST_Distance for ordering.
func (s *PostgresStore) QueryNearby(ctx context.Context, userID string, maxDistanceKM float64) ([]Neighbor, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_locations WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check point for %s: %w", userID, err)
	}
	if !exists {
		return nil, ErrNoLocation
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			other.user_id,
			ST_Distance(other.location::geography, base.location::geography) / 1000 AS distance_km,
			ST_Y(other.location) AS latitude,
			ST_X(other.location) AS longitude
		FROM user_locations AS base
		JOIN user_locations AS other ON other.user_id != base.user_id
		WHERE base.user_id = $1
		  AND ST_DWithin(other.location::geography, base.location::geography, $2 * 1000)
		ORDER BY distance_km
		LIMIT $3`,
		userID, maxDistanceKM, MaxNearbyUsers)
	if err != nil {
		return nil, fmt.Errorf("radius query for %s: %w", userID, err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.UserID, &n.DistanceKM, &n.Latitude, &n.Longitude); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("radius query for %s: %w", userID, err)
	}
	return neighbors, nil
}
