package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Profile carries the per-user settings the import pipeline needs.
type Profile struct {
	UserID               uuid.UUID
	Timezone             string
	CycleGapDefaultDays  float64
	NotificationsEnabled bool
	CreatedAt            time.Time
}

// GetProfile fetches the user's profile without creating one. The returned
// profile falls back to UTC and a 7-day cycle gap when fields are unset; ok
// is false when no row exists.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, bool, error) {
	const query = `
		SELECT user_id, timezone, cycle_gap_default_days, notifications_enabled, created_at
		FROM profiles
		WHERE user_id = $1`
	var p Profile
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Timezone, &p.CycleGapDefaultDays, &p.NotificationsEnabled, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{UserID: userID, Timezone: "UTC", CycleGapDefaultDays: 7}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("load profile: %w", err)
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.CycleGapDefaultDays <= 0 {
		p.CycleGapDefaultDays = 7
	}
	return p, true, nil
}

// EnsureProfile returns the user's profile, creating a default one on first
// contact.
func (s *Store) EnsureProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	const insert = `
		INSERT INTO profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.Exec(ctx, insert, userID); err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}

	const query = `
		SELECT user_id, timezone, cycle_gap_default_days, notifications_enabled, created_at
		FROM profiles
		WHERE user_id = $1`
	var p Profile
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Timezone, &p.CycleGapDefaultDays, &p.NotificationsEnabled, &p.CreatedAt,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.CycleGapDefaultDays <= 0 {
		p.CycleGapDefaultDays = 7
	}
	return p, nil
}
