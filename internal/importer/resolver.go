package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/store"
)

// referenceStore is the slice of the store the resolver needs. Narrow so
// tests can fake it.
type referenceStore interface {
	FindSubstance(ctx context.Context, userID uuid.UUID, canonicalName string) (uuid.UUID, bool, error)
	CreateSubstance(ctx context.Context, userID uuid.UUID, canonicalName, displayName string) (uuid.UUID, error)
	FindRoute(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, bool, error)
	CreateRoute(ctx context.Context, userID uuid.UUID, name, defaultInputKind, defaultInputUnit string) (uuid.UUID, error)
	FindFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID, name string) (uuid.UUID, bool, error)
	HasDefaultFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID) (bool, error)
	CreateFormulation(ctx context.Context, userID, substanceID, routeID uuid.UUID, name string, isDefaultForRoute bool) (uuid.UUID, error)
}

// Resolver finds or creates reference entities for one import run. Each
// natural key is resolved at most once per run, which makes re-importing the
// same file idempotent. In read-only mode (dry-run) nothing is created;
// misses are counted as would-be creations.
type Resolver struct {
	store    referenceStore
	userID   uuid.UUID
	readOnly bool

	substances   map[string]uuid.UUID
	routes       map[string]uuid.UUID
	formulations map[string]uuid.UUID
	defaultTaken map[string]bool

	CreatedSubstances   int
	CreatedRoutes       int
	CreatedFormulations int
}

func NewResolver(st referenceStore, userID uuid.UUID, readOnly bool) *Resolver {
	return &Resolver{
		store:        st,
		userID:       userID,
		readOnly:     readOnly,
		substances:   map[string]uuid.UUID{},
		routes:       map[string]uuid.UUID{},
		formulations: map[string]uuid.UUID{},
		defaultTaken: map[string]bool{},
	}
}

// ResolveSubstance maps a substance natural key to its id, creating a
// minimal record on first sight.
func (r *Resolver) ResolveSubstance(ctx context.Context, key, display string) (uuid.UUID, error) {
	if id, ok := r.substances[key]; ok {
		return id, nil
	}

	canonical := slugifyCanonicalName(display)
	if canonical == "" {
		canonical = "substance"
	}

	id, found, err := r.store.FindSubstance(ctx, r.userID, canonical)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		r.substances[key] = id
		return id, nil
	}

	if r.readOnly {
		r.CreatedSubstances++
		r.substances[key] = uuid.Nil
		return uuid.Nil, nil
	}

	id, err = r.store.CreateSubstance(ctx, r.userID, canonical, display)
	if err != nil {
		return uuid.Nil, wrapConflict(err, "substance", canonical)
	}
	r.CreatedSubstances++
	r.substances[key] = id
	return id, nil
}

// ResolveRoute maps a route natural key to its id.
func (r *Resolver) ResolveRoute(ctx context.Context, key, name, defaultInputKind, defaultInputUnit string) (uuid.UUID, error) {
	if id, ok := r.routes[key]; ok {
		return id, nil
	}

	id, found, err := r.store.FindRoute(ctx, r.userID, name)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		r.routes[key] = id
		return id, nil
	}

	if r.readOnly {
		r.CreatedRoutes++
		r.routes[key] = uuid.Nil
		return uuid.Nil, nil
	}

	id, err = r.store.CreateRoute(ctx, r.userID, name, defaultInputKind, defaultInputUnit)
	if err != nil {
		return uuid.Nil, wrapConflict(err, "route", name)
	}
	r.CreatedRoutes++
	r.routes[key] = id
	return id, nil
}

// ResolveFormulation maps a formulation natural key to its id. The first
// formulation created for a substance/route pair in a run becomes the pair's
// default unless one already exists.
func (r *Resolver) ResolveFormulation(ctx context.Context, key string, substanceID, routeID uuid.UUID, pairKey, name string) (uuid.UUID, error) {
	if id, ok := r.formulations[key]; ok {
		return id, nil
	}

	// A formulation under a not-yet-created parent cannot exist.
	if substanceID == uuid.Nil || routeID == uuid.Nil {
		if !r.readOnly {
			return uuid.Nil, fmt.Errorf("formulation %q references unresolved parents", name)
		}
		r.CreatedFormulations++
		r.formulations[key] = uuid.Nil
		return uuid.Nil, nil
	}

	id, found, err := r.store.FindFormulation(ctx, r.userID, substanceID, routeID, name)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		r.formulations[key] = id
		return id, nil
	}

	if r.readOnly {
		r.CreatedFormulations++
		r.formulations[key] = uuid.Nil
		return uuid.Nil, nil
	}

	isDefault := false
	if !r.defaultTaken[pairKey] {
		hasDefault, err := r.store.HasDefaultFormulation(ctx, r.userID, substanceID, routeID)
		if err != nil {
			return uuid.Nil, err
		}
		isDefault = !hasDefault
	}

	id, err = r.store.CreateFormulation(ctx, r.userID, substanceID, routeID, name, isDefault)
	if err != nil {
		return uuid.Nil, wrapConflict(err, "formulation", name)
	}
	if isDefault {
		r.defaultTaken[pairKey] = true
	}
	r.CreatedFormulations++
	r.formulations[key] = id
	return id, nil
}

// wrapConflict marks uniqueness violations as ConflictError. The run-scoped
// cache means the resolver never races itself, so any violation here lost to
// a concurrent run and the whole run fails; silent cross-process
// deduplication is not attempted.
func wrapConflict(err error, kind, naturalKey string) error {
	if store.IsUniqueViolation(err) {
		return &ConflictError{Kind: kind, Key: naturalKey, Err: err}
	}
	return err
}
