// Package units normalises unit-tagged quantities to canonical grams and milliliters.
package units

import (
	"math"
	"strings"
)

// Kind groups units that convert into the same canonical unit.
type Kind string

const (
	KindUnknown Kind = ""
	KindMass    Kind = "mass"
	KindVolume  Kind = "volume"
)

// Canonical units per kind.
const (
	Grams       = "g"
	Milliliters = "ml"
)

type unitDef struct {
	kind       Kind
	toBaseUnit float64
}

var unitTable = map[string]unitDef{
	// mass (base = g)
	"g":   {kind: KindMass, toBaseUnit: 1},
	"mg":  {kind: KindMass, toBaseUnit: 0.001},
	"kg":  {kind: KindMass, toBaseUnit: 1000},
	"lb":  {kind: KindMass, toBaseUnit: 453.592},
	"lbs": {kind: KindMass, toBaseUnit: 453.592},

	// volume (base = ml)
	"ml":    {kind: KindVolume, toBaseUnit: 1},
	"dz":    {kind: KindVolume, toBaseUnit: 100},
	"l":     {kind: KindVolume, toBaseUnit: 1000},
	"liter": {kind: KindVolume, toBaseUnit: 1000},
	"litre": {kind: KindVolume, toBaseUnit: 1000},
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

func resolveUnit(unit string) (unitDef, bool) {
	def, ok := unitTable[normalizeUnit(unit)]
	return def, ok
}

// KindOf reports the kind of a unit string, or KindUnknown when it is not recognised.
func KindOf(unit string) Kind {
	def, ok := resolveUnit(unit)
	if !ok {
		return KindUnknown
	}
	return def.kind
}

// Known reports whether unit is part of the conversion table.
func Known(unit string) bool {
	_, ok := resolveUnit(unit)
	return ok
}

// ToGrams converts a mass value to grams. Unknown or non-mass units are treated as grams.
func ToGrams(value float64, unit string) float64 {
	return ToCanonical(KindMass, value, unit)
}

// ToMilliliters converts a volume value to milliliters. Unknown or non-volume units are treated as milliliters.
func ToMilliliters(value float64, unit string) float64 {
	return ToCanonical(KindVolume, value, unit)
}

// ToCanonical converts value expressed in unit into the canonical unit of kind.
// Absent (NaN/Inf) values are zero. Units that are unknown, or belong to another
// kind, convert as identity: a malformed tag degrades a total instead of failing it.
func ToCanonical(kind Kind, value float64, unit string) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	def, ok := resolveUnit(unit)
	if !ok || def.kind != kind {
		return value
	}
	return value * def.toBaseUnit
}

// FromCanonical converts a canonical value of kind back into unit. It is the inverse of ToCanonical.
func FromCanonical(kind Kind, value float64, unit string) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	def, ok := resolveUnit(unit)
	if !ok || def.kind != kind {
		return value
	}
	return value / def.toBaseUnit
}

// Supported lists the recognised unit strings of a kind.
func Supported(kind Kind) []string {
	out := make([]string, 0, len(unitTable))
	for name, def := range unitTable {
		if def.kind == kind {
			out = append(out, name)
		}
	}
	return out
}
