package importer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/domain/cycles"
	"github.com/peptaide/peptaide/internal/domain/dose"
	"github.com/peptaide/peptaide/internal/store"
)

// EventsOptions control an events CSV import.
type EventsOptions struct {
	Mode            Mode
	ReplaceExisting bool
	InferCycles     bool
}

// cycleNotes marks cycle instances that were derived rather than entered.
const cycleNotes = "Imported (inferred from event timestamps)"

// ImportEvents runs the simple events CSV pipeline for one user.
func (im *Importer) ImportEvents(ctx context.Context, userID uuid.UUID, csvText string, opts EventsOptions) Result {
	started := time.Now()

	profile, _, err := im.store.GetProfile(ctx, userID)
	if err != nil {
		return failedResult(opts.Mode, 0, nil, "load profile: "+err.Error())
	}

	loc, warnings := loadLocation(profile.Timezone)
	parsed := parseEvents(csvText, loc, profile.CycleGapDefaultDays, opts.InferCycles, time.Now().UTC())
	parsed.Warnings = append(warnings, parsed.Warnings...)

	var result Result
	if !parsed.OK || opts.Mode == ModeDryRun {
		result = im.planEvents(ctx, userID, parsed, opts)
	} else {
		result = im.applyEvents(ctx, userID, parsed, opts)
	}

	im.recordRun(ctx, userID, "events", result, started)
	return result
}

// planEvents produces the dry-run report: would-be creation counts from
// read-only lookups, no persistence.
func (im *Importer) planEvents(ctx context.Context, userID uuid.UUID, parsed parseOutcome, opts EventsOptions) Result {
	resolver := NewResolver(im.store, userID, true)

	if _, err := im.resolveReferences(ctx, resolver, parsed.Events); err != nil {
		return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "resolve references: "+err.Error())
	}

	imported := 0
	if parsed.OK {
		imported = len(parsed.Events)
	}
	return Result{
		OK:        parsed.OK,
		Mode:      opts.Mode,
		Errors:    parsed.Errors,
		Warnings:  parsed.Warnings,
		RowErrors: parsed.RowErrors,
		Summary: Summary{
			InputRows:           parsed.InputRows,
			ImportedEvents:      imported,
			CreatedSubstances:   resolver.CreatedSubstances,
			CreatedRoutes:       resolver.CreatedRoutes,
			CreatedFormulations: resolver.CreatedFormulations,
			CreatedCycles:       len(parsed.InferredCycles),
		},
	}
}

// applyEvents persists a validated run inside one transaction. Reference and
// cycle creation failures fail the whole run; a single event row's failure
// rolls back to its savepoint and is reported, letting the rest commit.
func (im *Importer) applyEvents(ctx context.Context, userID uuid.UUID, parsed parseOutcome, opts EventsOptions) Result {
	if _, err := im.store.EnsureProfile(ctx, userID); err != nil {
		return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "ensure profile: "+err.Error())
	}

	tx, err := im.store.Begin(ctx)
	if err != nil {
		return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "begin transaction: "+err.Error())
	}
	defer tx.Rollback(ctx)

	st := im.store.WithTx(tx)

	if opts.ReplaceExisting {
		if err := st.DeleteAllUserData(ctx, userID, true); err != nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "replace existing data: "+err.Error())
		}
	} else {
		n, err := st.CountEvents(ctx, userID)
		if err != nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "check existing events: "+err.Error())
		}
		if n > 0 {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings,
				`Refusing to import: events table is not empty. Use "replace existing data" to import.`)
		}
	}

	resolver := NewResolver(st, userID, false)
	refs, err := im.resolveReferences(ctx, resolver, parsed.Events)
	if err != nil {
		return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "Import apply failed: "+err.Error())
	}

	cycleIDByKey := map[string]uuid.UUID{}
	for _, c := range parsed.InferredCycles {
		substanceID, ok := refs.substances[c.SubstanceKey]
		if !ok {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings,
				fmt.Sprintf("Import apply failed: substance %q was not resolved", c.SubstanceKey))
		}
		notes := cycleNotes
		insert := store.CycleInsert{
			SubstanceID: substanceID,
			Number:      c.Number,
			Start:       c.Start,
			Status:      string(c.Status),
			Notes:       &notes,
		}
		if c.Status == cycles.StatusCompleted {
			end := c.End
			insert.End = &end
		}
		id, err := st.CreateCycle(ctx, userID, insert)
		if err != nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "Import apply failed: "+err.Error())
		}
		cycleIDByKey[c.Key()] = id
	}

	var rowErrors []RowError
	imported := 0
	for i, ev := range parsed.Events {
		formulationID, ok := refs.formulations[ev.FormulationKey]
		if !ok || formulationID == uuid.Nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings,
				fmt.Sprintf("Import apply failed: formulation %q was not resolved", ev.FormulationName))
		}

		insert := store.EventInsert{
			Ts:            ev.Ts,
			FormulationID: formulationID,
			InputText:     ev.InputText,
			InputKind:     string(ev.InputKind),
			InputValue:    ev.InputValue,
			InputUnit:     ev.InputUnit,
			DoseMassMg:    ev.DoseMassMg,
			DoseVolumeMl:  ev.DoseVolumeMl,
			Notes:         ev.Notes,
			Tags:          ev.Tags,
		}
		if key, ok := parsed.EventCycleKey[ev.Row]; ok {
			if cycleID, ok := cycleIDByKey[key]; ok {
				insert.CycleInstanceID = &cycleID
			}
		}

		sp := store.SavepointName(i)
		if err := store.Savepoint(ctx, tx, sp); err != nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "Import apply failed: "+err.Error())
		}
		if _, err := st.CreateEvent(ctx, userID, insert); err != nil {
			if rbErr := store.RollbackToSavepoint(ctx, tx, sp); rbErr != nil {
				return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "Import apply failed: "+rbErr.Error())
			}
			rowErrors = append(rowErrors, RowError{RowIndex: ev.Row, Message: "db error: " + err.Error()})
			continue
		}
		if err := store.ReleaseSavepoint(ctx, tx, sp); err != nil {
			return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "Import apply failed: "+err.Error())
		}
		imported++
	}

	if err := tx.Commit(ctx); err != nil {
		return failedResult(opts.Mode, parsed.InputRows, parsed.Warnings, "commit: "+err.Error())
	}

	if rowErrors == nil {
		rowErrors = []RowError{}
	}
	return Result{
		OK:        len(rowErrors) == 0,
		Mode:      opts.Mode,
		Errors:    []string{},
		Warnings:  parsed.Warnings,
		RowErrors: rowErrors,
		Summary: Summary{
			InputRows:           parsed.InputRows,
			ImportedEvents:      imported,
			CreatedSubstances:   resolver.CreatedSubstances,
			CreatedRoutes:       resolver.CreatedRoutes,
			CreatedFormulations: resolver.CreatedFormulations,
			CreatedCycles:       len(cycleIDByKey),
		},
	}
}

// resolvedRefs maps natural keys to the ids the resolver settled on.
type resolvedRefs struct {
	substances   map[string]uuid.UUID
	formulations map[string]uuid.UUID
}

// resolveReferences resolves every substance, route, and formulation the
// parsed events mention, in sorted key order for determinism.
func (im *Importer) resolveReferences(ctx context.Context, resolver *Resolver, events []parsedEvent) (resolvedRefs, error) {
	firstByKey := func(get func(parsedEvent) string) ([]string, map[string]parsedEvent) {
		byKey := map[string]parsedEvent{}
		for _, ev := range events {
			key := get(ev)
			if _, ok := byKey[key]; !ok {
				byKey[key] = ev
			}
		}
		keys := make([]string, 0, len(byKey))
		for key := range byKey {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return keys, byKey
	}

	refs := resolvedRefs{
		substances:   map[string]uuid.UUID{},
		formulations: map[string]uuid.UUID{},
	}

	subKeys, subFirst := firstByKey(func(ev parsedEvent) string { return ev.SubstanceKey })
	for _, key := range subKeys {
		id, err := resolver.ResolveSubstance(ctx, key, subFirst[key].SubstanceDisplay)
		if err != nil {
			return resolvedRefs{}, err
		}
		refs.substances[key] = id
	}

	routeKeys, routeFirst := routeKeysAndFirst(events)
	routeIDs := map[string]uuid.UUID{}
	for _, key := range routeKeys {
		kind, unit := routeDefaults(events, key)
		id, err := resolver.ResolveRoute(ctx, key, routeFirst[key], kind, unit)
		if err != nil {
			return resolvedRefs{}, err
		}
		routeIDs[key] = id
	}

	formKeys, formFirst := firstByKey(func(ev parsedEvent) string { return ev.FormulationKey })
	for _, key := range formKeys {
		ev := formFirst[key]
		pairKey := ev.SubstanceKey + "||" + ev.RouteKey
		id, err := resolver.ResolveFormulation(ctx, key, refs.substances[ev.SubstanceKey], routeIDs[ev.RouteKey], pairKey, ev.FormulationName)
		if err != nil {
			return resolvedRefs{}, err
		}
		refs.formulations[key] = id
	}
	return refs, nil
}

func routeKeysAndFirst(events []parsedEvent) ([]string, map[string]string) {
	first := map[string]string{}
	for _, ev := range events {
		if _, ok := first[ev.RouteKey]; !ok {
			first[ev.RouteKey] = ev.RouteName
		}
	}
	keys := make([]string, 0, len(first))
	for key := range first {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, first
}

// routeDefaults infers a new route's default input kind and unit from the
// dose kinds observed on its rows.
func routeDefaults(events []parsedEvent, routeKey string) (string, string) {
	volume, iu := 0, 0
	for _, ev := range events {
		if ev.RouteKey != routeKey {
			continue
		}
		switch ev.InputKind {
		case dose.KindVolume:
			volume++
		case dose.KindIU:
			iu++
		}
	}
	switch {
	case iu > 0 && iu >= volume:
		return "iu", "IU"
	case volume > 0:
		return "volume", "mL"
	default:
		return "mass", "mg"
	}
}

// loadLocation resolves an IANA timezone, falling back to UTC with a
// warning instead of failing the run.
func loadLocation(name string) (*time.Location, []string) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, []string{fmt.Sprintf("Unknown timezone %q; timestamps treated as UTC.", name)}
	}
	return loc, nil
}

func (im *Importer) recordRun(ctx context.Context, userID uuid.UUID, source string, result Result, started time.Time) {
	run := store.ImportRun{
		UserID:         userID,
		Source:         source,
		Mode:           string(result.Mode),
		OK:             result.OK,
		InputRows:      result.Summary.InputRows,
		ImportedEvents: result.Summary.ImportedEvents,
		ErrorCount:     len(result.Errors) + len(result.RowErrors),
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if err := im.store.RecordImportRun(ctx, run); err != nil {
		im.logger.Warn("record import run failed", "error", err, "source", source)
	}
}
