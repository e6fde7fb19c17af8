package cycles

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}

func TestShouldSuggestNewCycle(t *testing.T) {
	last := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		next time.Time
		gap  float64
		want bool
	}{
		{"no prior event", nil, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), 7, false},
		{"exactly at threshold", &last, time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), 7, true},
		{"one minute short", &last, time.Date(2026, 2, 5, 23, 59, 0, 0, time.UTC), 7, false},
		{"well past threshold", &last, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 7, true},
		{"zero threshold always triggers", &last, last, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldSuggestNewCycle(tt.last, tt.next, tt.gap)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldSuggestNewCycleGapBoundary(t *testing.T) {
	last := ts(t, "2026-01-31T00:00:00Z")

	// The threshold itself is the first moment that triggers.
	got, err := ShouldSuggestNewCycle(&last, ts(t, "2026-02-07T00:00:00Z"), 7)
	if err != nil || !got {
		t.Errorf("exactly 7 days, threshold 7: got %v, %v; want true", got, err)
	}
	got, err = ShouldSuggestNewCycle(&last, ts(t, "2026-02-06T23:59:00Z"), 7)
	if err != nil || got {
		t.Errorf("one minute short of 7 days: got %v, %v; want false", got, err)
	}
}

func TestShouldSuggestNewCycleInvalidThreshold(t *testing.T) {
	last := time.Now()
	for _, gap := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := ShouldSuggestNewCycle(&last, time.Now(), gap); err == nil {
			t.Errorf("gap %v: expected error", gap)
		}
	}
}

func TestSuggestAction(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		last      *time.Time
		next      time.Time
		autoStart bool
		want      Action
	}{
		{"first event with auto-start", nil, last, true, ActionStartFirstCycle},
		{"first event without auto-start", nil, last, false, ActionNone},
		{"gap reached", &last, last.AddDate(0, 0, 10), true, ActionSuggestNewCycle},
		{"gap not reached", &last, last.AddDate(0, 0, 3), true, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SuggestAction(tt.last, tt.next, 7, tt.autoStart)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInferSplitsOnGap(t *testing.T) {
	now := ts(t, "2026-06-01T00:00:00Z")
	events := []Event{
		{Row: 0, SubstanceKey: "bpc-157", Ts: ts(t, "2026-01-01T12:00:00Z")},
		{Row: 1, SubstanceKey: "bpc-157", Ts: ts(t, "2026-01-03T12:00:00Z")},
		{Row: 2, SubstanceKey: "bpc-157", Ts: ts(t, "2026-02-01T12:00:00Z")},
		{Row: 3, SubstanceKey: "bpc-157", Ts: ts(t, "2026-02-02T12:00:00Z")},
	}

	cycles, assignment := Infer(events, 7, now)
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}

	first, second := cycles[0], cycles[1]
	if first.Number != 1 || second.Number != 2 {
		t.Errorf("cycle numbers = %d, %d; want 1, 2", first.Number, second.Number)
	}
	if first.Status != StatusCompleted {
		t.Errorf("first cycle status = %v, want completed", first.Status)
	}
	if !first.Start.Equal(events[0].Ts) || !first.End.Equal(events[1].Ts) {
		t.Errorf("first cycle span = %v..%v", first.Start, first.End)
	}
	if second.Status != StatusCompleted {
		t.Errorf("second cycle status = %v, want completed (now is long after)", second.Status)
	}

	want := map[int]string{0: "bpc-157#1", 1: "bpc-157#1", 2: "bpc-157#2", 3: "bpc-157#2"}
	if !reflect.DeepEqual(assignment, want) {
		t.Errorf("assignment = %v, want %v", assignment, want)
	}
}

func TestInferFinalCycleActive(t *testing.T) {
	now := ts(t, "2026-01-05T00:00:00Z")
	events := []Event{
		{Row: 0, SubstanceKey: "tb-500", Ts: ts(t, "2026-01-01T12:00:00Z")},
		{Row: 1, SubstanceKey: "tb-500", Ts: ts(t, "2026-01-03T12:00:00Z")},
	}

	cycles, _ := Infer(events, 7, now)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	if cycles[0].Status != StatusActive {
		t.Errorf("status = %v, want active", cycles[0].Status)
	}
}

func TestInferDeterministicOrderAcrossSubstances(t *testing.T) {
	now := ts(t, "2026-06-01T00:00:00Z")
	events := []Event{
		{Row: 0, SubstanceKey: "zzz", Ts: ts(t, "2026-01-01T12:00:00Z")},
		{Row: 1, SubstanceKey: "aaa", Ts: ts(t, "2026-01-02T12:00:00Z")},
		{Row: 2, SubstanceKey: "aaa", Ts: ts(t, "2026-03-01T12:00:00Z")},
	}

	cycles, _ := Infer(events, 7, now)
	var keys []string
	for _, c := range cycles {
		keys = append(keys, c.Key())
	}
	want := []string{"aaa#1", "aaa#2", "zzz#1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("cycle order = %v, want %v", keys, want)
	}
}

func TestInferClampsSubDayGap(t *testing.T) {
	now := ts(t, "2026-06-01T00:00:00Z")
	events := []Event{
		{Row: 0, SubstanceKey: "x", Ts: ts(t, "2026-01-01T08:00:00Z")},
		{Row: 1, SubstanceKey: "x", Ts: ts(t, "2026-01-01T20:00:00Z")},
	}

	// A gap threshold below one day is clamped to one day, so twelve hours
	// apart stays a single cycle.
	cycles, _ := Infer(events, 0, now)
	if len(cycles) != 1 {
		t.Errorf("got %d cycles, want 1", len(cycles))
	}
}
