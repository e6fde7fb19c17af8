package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRefStore is an in-memory referenceStore for resolver tests.
type fakeRefStore struct {
	substances   map[string]uuid.UUID // canonical name -> id
	routes       map[string]uuid.UUID // name -> id
	formulations map[string]uuid.UUID // substance|route|name -> id
	defaults     map[string]bool      // substance|route -> has default

	createErr error // returned by every create when set

	substanceCreates   int
	routeCreates       int
	formulationCreates int
}

func newFakeRefStore() *fakeRefStore {
	return &fakeRefStore{
		substances:   map[string]uuid.UUID{},
		routes:       map[string]uuid.UUID{},
		formulations: map[string]uuid.UUID{},
		defaults:     map[string]bool{},
	}
}

func (f *fakeRefStore) FindSubstance(_ context.Context, _ uuid.UUID, canonicalName string) (uuid.UUID, bool, error) {
	id, ok := f.substances[canonicalName]
	return id, ok, nil
}

func (f *fakeRefStore) CreateSubstance(_ context.Context, _ uuid.UUID, canonicalName, _ string) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.substanceCreates++
	id := uuid.New()
	f.substances[canonicalName] = id
	return id, nil
}

func (f *fakeRefStore) FindRoute(_ context.Context, _ uuid.UUID, name string) (uuid.UUID, bool, error) {
	id, ok := f.routes[name]
	return id, ok, nil
}

func (f *fakeRefStore) CreateRoute(_ context.Context, _ uuid.UUID, name, _, _ string) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.routeCreates++
	id := uuid.New()
	f.routes[name] = id
	return id, nil
}

func formKey(substanceID, routeID uuid.UUID, name string) string {
	return substanceID.String() + "|" + routeID.String() + "|" + name
}

func (f *fakeRefStore) FindFormulation(_ context.Context, _, substanceID, routeID uuid.UUID, name string) (uuid.UUID, bool, error) {
	id, ok := f.formulations[formKey(substanceID, routeID, name)]
	return id, ok, nil
}

func (f *fakeRefStore) HasDefaultFormulation(_ context.Context, _, substanceID, routeID uuid.UUID) (bool, error) {
	return f.defaults[substanceID.String()+"|"+routeID.String()], nil
}

func (f *fakeRefStore) CreateFormulation(_ context.Context, _, substanceID, routeID uuid.UUID, name string, isDefault bool) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.formulationCreates++
	id := uuid.New()
	f.formulations[formKey(substanceID, routeID, name)] = id
	if isDefault {
		f.defaults[substanceID.String()+"|"+routeID.String()] = true
	}
	return id, nil
}

func TestResolver_CreatesOncePerKey(t *testing.T) {
	fake := newFakeRefStore()
	r := NewResolver(fake, uuid.New(), false)
	ctx := context.Background()

	id1, err := r.ResolveSubstance(ctx, "bpc-157", "BPC-157")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := r.ResolveSubstance(ctx, "bpc-157", "BPC-157")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("same key resolved to different ids: %v, %v", id1, id2)
	}
	if fake.substanceCreates != 1 {
		t.Errorf("substanceCreates = %d, want 1", fake.substanceCreates)
	}
	if r.CreatedSubstances != 1 {
		t.Errorf("CreatedSubstances = %d, want 1", r.CreatedSubstances)
	}
}

func TestResolver_FindsExisting(t *testing.T) {
	fake := newFakeRefStore()
	existing := uuid.New()
	fake.substances["bpc-157"] = existing

	r := NewResolver(fake, uuid.New(), false)
	id, err := r.ResolveSubstance(context.Background(), "bpc-157", "BPC-157")
	if err != nil {
		t.Fatal(err)
	}
	if id != existing {
		t.Errorf("id = %v, want existing %v", id, existing)
	}
	if fake.substanceCreates != 0 || r.CreatedSubstances != 0 {
		t.Error("existing substance should not count as created")
	}
}

func TestResolver_ReadOnlyCountsWithoutCreating(t *testing.T) {
	fake := newFakeRefStore()
	r := NewResolver(fake, uuid.New(), true)
	ctx := context.Background()

	id, err := r.ResolveSubstance(ctx, "bpc-157", "BPC-157")
	if err != nil {
		t.Fatal(err)
	}
	if id != uuid.Nil {
		t.Errorf("read-only miss should resolve to Nil, got %v", id)
	}
	routeID, err := r.ResolveRoute(ctx, "subcutaneous", "Subcutaneous", "mass", "mg")
	if err != nil {
		t.Fatal(err)
	}
	// Formulations under uncreated parents still count in read-only mode.
	if _, err := r.ResolveFormulation(ctx, "f1", id, routeID, "pair", "BPC-157 - Subcutaneous"); err != nil {
		t.Fatal(err)
	}

	if fake.substanceCreates+fake.routeCreates+fake.formulationCreates != 0 {
		t.Error("read-only resolver must not create anything")
	}
	if r.CreatedSubstances != 1 || r.CreatedRoutes != 1 || r.CreatedFormulations != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", r.CreatedSubstances, r.CreatedRoutes, r.CreatedFormulations)
	}
}

func TestResolver_WriteModeRejectsUnresolvedParents(t *testing.T) {
	fake := newFakeRefStore()
	r := NewResolver(fake, uuid.New(), false)

	_, err := r.ResolveFormulation(context.Background(), "f1", uuid.Nil, uuid.New(), "pair", "name")
	if err == nil {
		t.Fatal("expected error for Nil substance parent")
	}
}

func TestResolver_FirstFormulationBecomesDefault(t *testing.T) {
	fake := newFakeRefStore()
	r := NewResolver(fake, uuid.New(), false)
	ctx := context.Background()

	subID, _ := r.ResolveSubstance(ctx, "bpc-157", "BPC-157")
	routeID, _ := r.ResolveRoute(ctx, "subcutaneous", "Subcutaneous", "mass", "mg")

	if _, err := r.ResolveFormulation(ctx, "f1", subID, routeID, "pair", "First"); err != nil {
		t.Fatal(err)
	}
	if !fake.defaults[subID.String()+"|"+routeID.String()] {
		t.Error("first formulation for the pair should be the default")
	}

	// Second one for the same pair must not steal the default.
	before := len(fake.defaults)
	if _, err := r.ResolveFormulation(ctx, "f2", subID, routeID, "pair", "Second"); err != nil {
		t.Fatal(err)
	}
	if len(fake.defaults) != before {
		t.Error("second formulation changed default state")
	}
}

func TestResolver_ConflictError(t *testing.T) {
	fake := newFakeRefStore()
	fake.createErr = &pgconn.PgError{Code: "23505"}
	r := NewResolver(fake, uuid.New(), false)

	_, err := r.ResolveSubstance(context.Background(), "bpc-157", "BPC-157")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Kind != "substance" || conflict.Key != "bpc-157" {
		t.Errorf("conflict = %+v", conflict)
	}

	// Other database errors pass through untouched.
	fake.createErr = errors.New("connection lost")
	_, err = r.ResolveRoute(context.Background(), "oral", "Oral", "mass", "mg")
	if errors.As(err, &conflict) {
		t.Error("plain errors must not become ConflictError")
	}
	if err == nil {
		t.Error("expected error")
	}
}
