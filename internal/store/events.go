package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CycleInsert is a cycle instance to persist.
type CycleInsert struct {
	SubstanceID uuid.UUID
	Number      int
	Start       time.Time
	End         *time.Time
	Status      string
	Notes       *string
}

// CreateCycle inserts a cycle instance and returns its id.
func (s *Store) CreateCycle(ctx context.Context, userID uuid.UUID, c CycleInsert) (uuid.UUID, error) {
	const insert = `
		INSERT INTO cycle_instances (user_id, substance_id, cycle_number, start_ts, end_ts, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id uuid.UUID
	err := s.db.QueryRow(ctx, insert, userID, c.SubstanceID, c.Number, c.Start, c.End, c.Status, c.Notes).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create cycle %d: %w", c.Number, err)
	}
	return id, nil
}

// EventInsert is an administration event to persist.
type EventInsert struct {
	Ts              time.Time
	FormulationID   uuid.UUID
	CycleInstanceID *uuid.UUID
	InputText       string
	InputKind       string
	InputValue      *float64
	InputUnit       *string
	DoseMassMg      *float64
	DoseVolumeMl    *float64
	Notes           *string
	Tags            []string
}

// CreateEvent inserts an administration event and returns its id.
func (s *Store) CreateEvent(ctx context.Context, userID uuid.UUID, e EventInsert) (uuid.UUID, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode tags: %w", err)
	}

	const insert = `
		INSERT INTO administration_events
			(user_id, ts, formulation_id, cycle_instance_id, input_text, input_kind,
			 input_value, input_unit, dose_mass_mg, dose_volume_ml, notes, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
		RETURNING id`
	var id uuid.UUID
	err = s.db.QueryRow(ctx, insert,
		userID, e.Ts, e.FormulationID, e.CycleInstanceID, e.InputText, e.InputKind,
		e.InputValue, e.InputUnit, e.DoseMassMg, e.DoseVolumeMl, e.Notes, string(tagsJSON),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create event at %s: %w", e.Ts.Format(time.RFC3339), err)
	}
	return id, nil
}

// CountEvents returns the number of administration events a user has.
func (s *Store) CountEvents(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM administration_events WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
