// Package tables defines the closed set of exportable tables.
//
// The set is known at compile time: exports always emit every table (empty
// tables become header-only CSVs) and bundle imports reject archives whose
// table set differs. Column order is the canonical CSV column order for both
// directions.
package tables

import (
	"fmt"
	"sort"
)

// Kind describes how a CSV cell for a column is parsed and serialized.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindJSON
)

// Definition describes one exportable table.
type Definition struct {
	Name    string
	Columns []string
	Kinds   map[string]Kind // columns absent from the map are KindString
}

// KindOf returns the value kind for a column, defaulting to KindString.
func (d Definition) KindOf(column string) Kind {
	if k, ok := d.Kinds[column]; ok {
		return k
	}
	return KindString
}

// PrimaryKey returns the column used for duplicate detection during import.
func (d Definition) PrimaryKey() string {
	if d.Name == "profiles" {
		return "user_id"
	}
	return "id"
}

// OrderColumn picks the column used to produce deterministic export output.
// Preference order mirrors what most tables naturally sort by.
func (d Definition) OrderColumn() string {
	for _, candidate := range []string{"created_at", "ts", "ordered_at", "revised_at", "id", "user_id"} {
		for _, c := range d.Columns {
			if c == candidate {
				return candidate
			}
		}
	}
	return ""
}

var defs = map[string]Definition{}

func register(d Definition) {
	if _, exists := defs[d.Name]; exists {
		panic(fmt.Sprintf("table already registered: %s", d.Name))
	}
	for col := range d.Kinds {
		if !contains(d.Columns, col) {
			panic(fmt.Sprintf("table %s: kind declared for unknown column %s", d.Name, col))
		}
	}
	defs[d.Name] = d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Get returns the definition for a table name.
func Get(name string) (Definition, bool) {
	d, ok := defs[name]
	return d, ok
}

// Names returns all exportable table names, sorted alphabetically.
func Names() []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of exportable tables.
func Count() int {
	return len(defs)
}

// ImportOrder lists tables so that foreign-key parents precede children.
var ImportOrder = []string{
	"profiles",
	"distributions",
	"evidence_sources",
	"substances",
	"substance_aliases",
	"routes",
	"devices",
	"device_calibrations",
	"vendors",
	"orders",
	"formulations",
	"formulation_components",
	"bioavailability_specs",
	"formulation_modifier_specs",
	"component_modifier_specs",
	"cycle_rules",
	"cycle_instances",
	"order_items",
	"vials",
	"administration_events",
	"event_revisions",
	"substance_recommendations",
}

// DeleteOrder lists tables so that foreign-key children precede parents.
var DeleteOrder = []string{
	"event_revisions",
	"administration_events",
	"component_modifier_specs",
	"formulation_modifier_specs",
	"bioavailability_specs",
	"substance_recommendations",
	"substance_aliases",
	"formulation_components",
	"device_calibrations",
	"vials",
	"order_items",
	"orders",
	"vendors",
	"cycle_instances",
	"cycle_rules",
	"formulations",
	"devices",
	"routes",
	"substances",
	"evidence_sources",
	"distributions",
	"profiles",
}

func init() {
	// Orderings must cover the registered set exactly once each.
	for _, order := range [][]string{ImportOrder, DeleteOrder} {
		if len(order) != len(defs) {
			panic(fmt.Sprintf("table ordering has %d entries, registry has %d", len(order), len(defs)))
		}
		seen := map[string]bool{}
		for _, name := range order {
			if seen[name] {
				panic("duplicate table in ordering: " + name)
			}
			if _, ok := defs[name]; !ok {
				panic("unknown table in ordering: " + name)
			}
			seen[name] = true
		}
	}
}
