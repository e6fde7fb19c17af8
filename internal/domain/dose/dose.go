// Package dose parses free-text dose quantities ("2.5 mg", "10 IU",
// "2 sprays") and derives canonical mg/mL doses from them.
package dose

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies what a quantity measures.
type Kind string

const (
	KindMass        Kind = "mass"
	KindVolume      Kind = "volume"
	KindIU          Kind = "iu"
	KindDeviceUnits Kind = "device_units"
	KindOther       Kind = "other"
)

// Quantity is a parsed dose input. Unit is the first unit token as typed;
// NormalizedUnit is the canonical lowercase form used for comparisons and
// calibration lookup keys.
type Quantity struct {
	Kind           Kind
	Value          float64
	Unit           string
	NormalizedUnit string
}

// Accepts plain decimals (1000, 0.5, .5) and comma-grouped thousands
// (1,000 or 12,345.67). Decimal commas are not accepted.
var quantityRe = regexp.MustCompile(`^([+-]?(?:\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+))\s*(.*)$`)

// normalizeMicro maps the micro sign and greek mu to a plain ASCII 'u' so
// unit comparisons can stay ASCII-based.
func normalizeMicro(s string) string {
	s = strings.ReplaceAll(s, "µ", "u")
	return strings.ReplaceAll(s, "μ", "u")
}

func normalizeUnitToken(raw string) string {
	token := normalizeMicro(strings.TrimSpace(raw))
	token = strings.ReplaceAll(token, ".", "")
	token = strings.ReplaceAll(token, ",", "")

	// "IU" also appears in bracketed UCUM-style forms like "[iU]".
	iu := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(token, "[", ""), "]", ""))
	if iu == "iu" {
		return "iu"
	}
	return strings.ToLower(token)
}

// normalizeDeviceUnit singularizes plural unit tokens so "sprays" and
// "spray" share one calibration key.
func normalizeDeviceUnit(raw string) string {
	token := normalizeUnitToken(raw)
	if len(token) > 2 && strings.HasSuffix(token, "s") {
		return token[:len(token)-1]
	}
	return token
}

// NormalizeDeviceUnitLabel canonicalizes a device unit label the same way
// ParseQuantity does, so calibration records match what users type.
func NormalizeDeviceUnitLabel(raw string) string {
	first := strings.Fields(strings.TrimSpace(raw))
	if len(first) == 0 {
		return ""
	}
	return normalizeDeviceUnit(first[0])
}

// ParseQuantity splits a dose input into a value and a classified unit.
func ParseQuantity(inputText string) (Quantity, error) {
	raw := strings.TrimSpace(inputText)
	if raw == "" {
		return Quantity{}, fmt.Errorf("quantity is required")
	}

	m := quantityRe.FindStringSubmatch(raw)
	if m == nil {
		return Quantity{}, fmt.Errorf("could not parse quantity %q", inputText)
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || math.IsInf(value, 0) {
		return Quantity{}, fmt.Errorf("invalid number %q", m[1])
	}

	unitPart := strings.TrimSpace(m[2])
	if unitPart == "" {
		return Quantity{}, fmt.Errorf("missing unit (for example: %q, %q, %q, %q)", "mg", "mL", "IU", "sprays")
	}

	// The unit is the first token: "2 sprays nasal" -> "sprays".
	unit := strings.Fields(unitPart)[0]
	normalized := normalizeUnitToken(unit)

	switch normalized {
	case "ml", "cc", "ul":
		if normalized == "cc" {
			normalized = "ml"
		}
		return Quantity{Kind: KindVolume, Value: value, Unit: unit, NormalizedUnit: normalized}, nil
	case "mg", "mcg", "ug", "g":
		if normalized == "ug" {
			normalized = "mcg"
		}
		return Quantity{Kind: KindMass, Value: value, Unit: unit, NormalizedUnit: normalized}, nil
	case "iu":
		return Quantity{Kind: KindIU, Value: value, Unit: unit, NormalizedUnit: "iu"}, nil
	}

	return Quantity{Kind: KindDeviceUnits, Value: value, Unit: unit, NormalizedUnit: normalizeDeviceUnit(unit)}, nil
}

// CanonicalMassMg converts a mass value to milligrams.
func CanonicalMassMg(value float64, unit string) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("mass value must be finite")
	}
	switch normalizeUnitToken(unit) {
	case "mg":
		return value, nil
	case "mcg", "ug":
		return value / 1000, nil
	case "g":
		return value * 1000, nil
	}
	return 0, fmt.Errorf("unsupported mass unit %q", unit)
}

// CanonicalVolumeMl converts a volume value to milliliters.
func CanonicalVolumeMl(value float64, unit string) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("volume value must be finite")
	}
	switch normalizeUnitToken(unit) {
	case "ml", "cc":
		return value, nil
	case "ul":
		return value / 1000, nil
	}
	return 0, fmt.Errorf("unsupported volume unit %q", unit)
}

// Vial carries the vial attributes that determine concentration. Nil fields
// are unknown.
type Vial struct {
	ContentMassMg        *float64
	TotalVolumeMl        *float64
	ConcentrationMgPerMl *float64
}

// EffectiveConcentration returns the vial's mg/mL concentration, deriving it
// from content mass and total volume when not stored explicitly.
func (v *Vial) EffectiveConcentration() *float64 {
	if v == nil {
		return nil
	}
	if v.ConcentrationMgPerMl != nil {
		return v.ConcentrationMgPerMl
	}
	if v.ContentMassMg == nil || v.TotalVolumeMl == nil || *v.TotalVolumeMl <= 0 {
		return nil
	}
	c := *v.ContentMassMg / *v.TotalVolumeMl
	return &c
}

// Computed is the canonical dose derived from an input. Nil means the value
// could not be determined from the available data.
type Computed struct {
	MassMg   *float64
	VolumeMl *float64
}

// Compute derives the canonical mg/mL dose for an input quantity. IU and
// other inputs are recorded as-is and never converted.
func Compute(kind Kind, value float64, unit string, vial *Vial, volumeMlPerDeviceUnit *float64) (Computed, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Computed{}, fmt.Errorf("input value must be a finite non-negative number")
	}

	concentration := vial.EffectiveConcentration()

	switch kind {
	case KindMass:
		massMg, err := CanonicalMassMg(value, unit)
		if err != nil {
			return Computed{}, err
		}
		out := Computed{MassMg: &massMg}
		if concentration != nil && *concentration > 0 {
			volumeMl := massMg / *concentration
			out.VolumeMl = &volumeMl
		}
		return out, nil

	case KindVolume:
		volumeMl, err := CanonicalVolumeMl(value, unit)
		if err != nil {
			return Computed{}, err
		}
		out := Computed{VolumeMl: &volumeMl}
		if concentration != nil && *concentration > 0 {
			massMg := volumeMl * *concentration
			out.MassMg = &massMg
		}
		return out, nil

	case KindDeviceUnits:
		if volumeMlPerDeviceUnit == nil || *volumeMlPerDeviceUnit <= 0 {
			return Computed{}, nil
		}
		volumeMl := value * *volumeMlPerDeviceUnit
		out := Computed{VolumeMl: &volumeMl}
		if concentration != nil && *concentration > 0 {
			massMg := volumeMl * *concentration
			out.MassMg = &massMg
		}
		return out, nil
	}

	return Computed{}, nil
}
