package tables

// schema.go registers every exportable table with its canonical column order
// and per-column value kinds. The registry is the single source of truth for
// CSV headers on both the export and import paths.

func init() {
	register(Definition{
		Name:    "profiles",
		Columns: []string{"user_id", "timezone", "cycle_gap_default_days", "notifications_enabled", "created_at"},
		Kinds: map[string]Kind{
			"cycle_gap_default_days": KindNumber,
			"notifications_enabled":  KindBool,
		},
	})
	register(Definition{
		Name:    "distributions",
		Columns: []string{"id", "user_id", "name", "kind", "params", "notes", "created_at"},
		Kinds:   map[string]Kind{"params": KindJSON},
	})
	register(Definition{
		Name:    "evidence_sources",
		Columns: []string{"id", "user_id", "title", "url", "kind", "citation", "notes", "created_at"},
	})
	register(Definition{
		Name:    "substances",
		Columns: []string{"id", "user_id", "canonical_name", "display_name", "family", "target_compartment_default", "notes", "created_at"},
	})
	register(Definition{
		Name:    "substance_aliases",
		Columns: []string{"id", "user_id", "substance_id", "alias", "created_at"},
	})
	register(Definition{
		Name:    "routes",
		Columns: []string{"id", "user_id", "name", "default_input_kind", "default_input_unit", "supports_device_calibration", "notes", "created_at"},
		Kinds:   map[string]Kind{"supports_device_calibration": KindBool},
	})
	register(Definition{
		Name:    "devices",
		Columns: []string{"id", "user_id", "name", "device_unit_label", "notes", "created_at"},
	})
	register(Definition{
		Name:    "device_calibrations",
		Columns: []string{"id", "user_id", "device_id", "unit_label", "volume_ml_per_unit", "calibrated_at", "notes", "created_at"},
		Kinds:   map[string]Kind{"volume_ml_per_unit": KindNumber},
	})
	register(Definition{
		Name:    "vendors",
		Columns: []string{"id", "user_id", "name", "url", "notes", "created_at"},
	})
	register(Definition{
		Name:    "orders",
		Columns: []string{"id", "user_id", "vendor_id", "ordered_at", "status", "shipping_cost", "notes", "created_at"},
		Kinds:   map[string]Kind{"shipping_cost": KindNumber},
	})
	register(Definition{
		Name:    "order_items",
		Columns: []string{"id", "user_id", "order_id", "substance_id", "label", "quantity", "unit_cost", "content_mass_mg", "notes", "created_at"},
		Kinds: map[string]Kind{
			"quantity":        KindNumber,
			"unit_cost":       KindNumber,
			"content_mass_mg": KindNumber,
		},
	})
	register(Definition{
		Name:    "formulations",
		Columns: []string{"id", "user_id", "substance_id", "route_id", "device_id", "name", "is_default_for_route", "notes", "created_at"},
		Kinds:   map[string]Kind{"is_default_for_route": KindBool},
	})
	register(Definition{
		Name:    "formulation_components",
		Columns: []string{"id", "user_id", "formulation_id", "substance_id", "content_mass_mg", "notes", "created_at"},
		Kinds:   map[string]Kind{"content_mass_mg": KindNumber},
	})
	register(Definition{
		Name:    "bioavailability_specs",
		Columns: []string{"id", "user_id", "substance_id", "route_id", "evidence_source_id", "distribution_id", "fraction", "params", "notes", "created_at"},
		Kinds: map[string]Kind{
			"fraction": KindNumber,
			"params":   KindJSON,
		},
	})
	register(Definition{
		Name:    "formulation_modifier_specs",
		Columns: []string{"id", "user_id", "formulation_id", "evidence_source_id", "effect_kind", "params", "notes", "created_at"},
		Kinds:   map[string]Kind{"params": KindJSON},
	})
	register(Definition{
		Name:    "component_modifier_specs",
		Columns: []string{"id", "user_id", "formulation_component_id", "evidence_source_id", "effect_kind", "params", "notes", "created_at"},
		Kinds:   map[string]Kind{"params": KindJSON},
	})
	register(Definition{
		Name:    "cycle_rules",
		Columns: []string{"id", "user_id", "substance_id", "gap_days", "auto_start_first_cycle", "notes", "created_at"},
		Kinds: map[string]Kind{
			"gap_days":               KindNumber,
			"auto_start_first_cycle": KindBool,
		},
	})
	register(Definition{
		Name:    "cycle_instances",
		Columns: []string{"id", "user_id", "substance_id", "cycle_number", "start_ts", "end_ts", "status", "goal", "notes", "created_at"},
		Kinds:   map[string]Kind{"cycle_number": KindNumber},
	})
	register(Definition{
		Name:    "vials",
		Columns: []string{"id", "user_id", "order_item_id", "formulation_id", "label", "content_mass_mg", "total_volume_ml", "concentration_mg_per_ml", "reconstituted_at", "discarded_at", "status", "notes", "created_at"},
		Kinds: map[string]Kind{
			"content_mass_mg":         KindNumber,
			"total_volume_ml":         KindNumber,
			"concentration_mg_per_ml": KindNumber,
		},
	})
	register(Definition{
		Name:    "administration_events",
		Columns: []string{"id", "user_id", "ts", "formulation_id", "cycle_instance_id", "vial_id", "input_text", "input_kind", "input_value", "input_unit", "dose_mass_mg", "dose_volume_ml", "notes", "tags", "created_at"},
		Kinds: map[string]Kind{
			"input_value":    KindNumber,
			"dose_mass_mg":   KindNumber,
			"dose_volume_ml": KindNumber,
			"tags":           KindJSON,
		},
	})
	register(Definition{
		Name:    "event_revisions",
		Columns: []string{"id", "user_id", "event_id", "revised_at", "reason", "patch", "created_at"},
		Kinds:   map[string]Kind{"patch": KindJSON},
	})
	register(Definition{
		Name:    "substance_recommendations",
		Columns: []string{"id", "user_id", "substance_id", "evidence_source_id", "kind", "body", "params", "created_at"},
		Kinds:   map[string]Kind{"params": KindJSON},
	})
}
