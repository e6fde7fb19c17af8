// Package cycles decides when a run of administration events should be
// grouped into a new cycle. Everything here is pure; callers persist the
// outcome.
package cycles

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"time"
)

// Action is what the caller should do about a new event.
type Action string

const (
	ActionNone            Action = "none"
	ActionStartFirstCycle Action = "start_first_cycle"
	ActionSuggestNewCycle Action = "suggest_new_cycle"
)

// Status of an inferred cycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ErrInvalidGap is returned when the gap threshold is negative or not finite.
var ErrInvalidGap = errors.New("gap days threshold must be a finite non-negative number")

// ShouldSuggestNewCycle reports whether the gap between the previous event
// and the new one reaches the threshold. A nil lastEventTs means no prior
// event exists, which never suggests a new cycle. The comparison is
// inclusive: a gap of exactly gapDaysThreshold days triggers.
func ShouldSuggestNewCycle(lastEventTs *time.Time, newEventTs time.Time, gapDaysThreshold float64) (bool, error) {
	if lastEventTs == nil {
		return false, nil
	}
	if gapDaysThreshold < 0 || math.IsNaN(gapDaysThreshold) || math.IsInf(gapDaysThreshold, 0) {
		return false, ErrInvalidGap
	}
	gap := newEventTs.Sub(*lastEventTs)
	return gap >= daysToDuration(gapDaysThreshold), nil
}

// SuggestAction decides how a new event relates to cycles. With no prior
// event the answer depends on whether first cycles auto-start; otherwise it
// reduces to the gap test.
func SuggestAction(lastEventTs *time.Time, newEventTs time.Time, gapDaysThreshold float64, autoStartFirstCycle bool) (Action, error) {
	if lastEventTs == nil {
		if autoStartFirstCycle {
			return ActionStartFirstCycle, nil
		}
		return ActionNone, nil
	}
	suggest, err := ShouldSuggestNewCycle(lastEventTs, newEventTs, gapDaysThreshold)
	if err != nil {
		return ActionNone, err
	}
	if suggest {
		return ActionSuggestNewCycle, nil
	}
	return ActionNone, nil
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// Event is one administration event as seen by the inference pass.
type Event struct {
	Row          int // caller-side row index, echoed back in the assignment map
	SubstanceKey string
	Ts           time.Time
}

// Inferred is one cycle produced by Infer.
type Inferred struct {
	SubstanceKey string
	Number       int
	Start        time.Time
	End          time.Time
	Status       Status
}

// Key identifies the cycle uniquely within one inference pass.
func (c Inferred) Key() string {
	return c.SubstanceKey + "#" + strconv.Itoa(c.Number)
}

// Infer groups events into cycles per substance. Events are scanned in
// chronological order; a gap of at least gapDays days closes the current
// cycle and starts the next, numbering from 1. The final cycle per substance
// is active iff now is still within the gap of its last event. Gaps below
// one day are clamped to one day.
//
// The returned cycles are sorted by substance key then cycle number. The map
// assigns each event's Row to the Key of its cycle.
func Infer(events []Event, gapDays float64, now time.Time) ([]Inferred, map[int]string) {
	bySubstance := map[string][]Event{}
	for _, e := range events {
		bySubstance[e.SubstanceKey] = append(bySubstance[e.SubstanceKey], e)
	}

	gap := daysToDuration(math.Max(1, gapDays))
	var cycles []Inferred
	assignment := make(map[int]string, len(events))

	for subKey, list := range bySubstance {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Ts.Before(list[j].Ts) })

		number := 1
		startIdx := 0
		for i := 1; i < len(list); i++ {
			if list[i].Ts.Sub(list[i-1].Ts) < gap {
				continue
			}
			closed := Inferred{
				SubstanceKey: subKey,
				Number:       number,
				Start:        list[startIdx].Ts,
				End:          list[i-1].Ts,
				Status:       StatusCompleted,
			}
			cycles = append(cycles, closed)
			for j := startIdx; j < i; j++ {
				assignment[list[j].Row] = closed.Key()
			}
			number++
			startIdx = i
		}

		last := list[len(list)-1].Ts
		status := StatusCompleted
		if now.Sub(last) < gap {
			status = StatusActive
		}
		final := Inferred{
			SubstanceKey: subKey,
			Number:       number,
			Start:        list[startIdx].Ts,
			End:          last,
			Status:       status,
		}
		cycles = append(cycles, final)
		for j := startIdx; j < len(list); j++ {
			assignment[list[j].Row] = final.Key()
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].SubstanceKey != cycles[j].SubstanceKey {
			return cycles[i].SubstanceKey < cycles[j].SubstanceKey
		}
		return cycles[i].Number < cycles[j].Number
	})

	return cycles, assignment
}
