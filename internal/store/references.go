package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FindSubstance looks up a substance by its canonical name.
func (s *Store) FindSubstance(ctx context.Context, userID uuid.UUID, canonicalName string) (uuid.UUID, bool, error) {
	const query = `SELECT id FROM substances WHERE user_id = $1 AND canonical_name = $2`
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, userID, canonicalName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find substance %q: %w", canonicalName, err)
	}
	return id, true, nil
}

// CreateSubstance inserts a minimal substance record.
func (s *Store) CreateSubstance(ctx context.Context, userID uuid.UUID, canonicalName, displayName string) (uuid.UUID, error) {
	const insert = `
		INSERT INTO substances (user_id, canonical_name, display_name, target_compartment_default)
		VALUES ($1, $2, $3, 'systemic')
		RETURNING id`
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, insert, userID, canonicalName, displayName).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("create substance %q: %w", canonicalName, err)
	}
	return id, nil
}

// FindRoute looks up a route by name, case-insensitively. Route natural keys
// come from free-text CSV cells, so "subq" and "SubQ" are the same route.
func (s *Store) FindRoute(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, bool, error) {
	const query = `SELECT id FROM routes WHERE user_id = $1 AND lower(name) = lower($2)`
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, userID, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find route %q: %w", name, err)
	}
	return id, true, nil
}

// CreateRoute inserts a minimal route record.
func (s *Store) CreateRoute(ctx context.Context, userID uuid.UUID, name, defaultInputKind, defaultInputUnit string) (uuid.UUID, error) {
	const insert = `
		INSERT INTO routes (user_id, name, default_input_kind, default_input_unit)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, insert, userID, name, defaultInputKind, defaultInputUnit).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("create route %q: %w", name, err)
	}
	return id, nil
}

// FindFormulation looks up a formulation by substance, route, and name.
func (s *Store) FindFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID, name string) (uuid.UUID, bool, error) {
	const query = `
		SELECT id FROM formulations
		WHERE user_id = $1 AND substance_id = $2 AND route_id = $3 AND lower(name) = lower($4)`
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, userID, substanceID, routeID, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find formulation %q: %w", name, err)
	}
	return id, true, nil
}

// HasDefaultFormulation reports whether the substance/route pair already has
// a default formulation.
func (s *Store) HasDefaultFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM formulations
			WHERE user_id = $1 AND substance_id = $2 AND route_id = $3 AND is_default_for_route
		)`
	var exists bool
	if err := s.db.QueryRow(ctx, query, userID, substanceID, routeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check default formulation: %w", err)
	}
	return exists, nil
}

// CreateFormulation inserts a minimal formulation record.
func (s *Store) CreateFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID, name string, isDefaultForRoute bool) (uuid.UUID, error) {
	const insert = `
		INSERT INTO formulations (user_id, substance_id, route_id, name, is_default_for_route)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, insert, userID, substanceID, routeID, name, isDefaultForRoute).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("create formulation %q: %w", name, err)
	}
	return id, nil
}
