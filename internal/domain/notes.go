package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"example.com/fittrack/internal/units"
)

// Quantity is a unit-tagged amount carried in a notes blob.
type Quantity struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit,omitempty"`
}

// NutritionExtras are the per-entry values that have no dedicated column.
type NutritionExtras struct {
	Water    *Quantity `json:"water,omitempty"`
	Vitamin  *Quantity `json:"vitamin,omitempty"`
	Minerals *Quantity `json:"minerals,omitempty"`
	Fiber    *Quantity `json:"fiber,omitempty"`
	Sugar    *Quantity `json:"sugar,omitempty"`
}

type extraField struct {
	key         string
	aliases     []string
	kind        units.Kind
	defaultUnit string
	slot        func(*NutritionExtras) **Quantity
}

var extraFields = []extraField{
	{key: "water", aliases: []string{"hydration"}, kind: units.KindVolume, defaultUnit: units.Milliliters,
		slot: func(x *NutritionExtras) **Quantity { return &x.Water }},
	{key: "vitamin", aliases: []string{"vitamins"}, kind: units.KindMass, defaultUnit: units.Grams,
		slot: func(x *NutritionExtras) **Quantity { return &x.Vitamin }},
	{key: "minerals", aliases: []string{"mineral"}, kind: units.KindMass, defaultUnit: units.Grams,
		slot: func(x *NutritionExtras) **Quantity { return &x.Minerals }},
	{key: "fiber", aliases: []string{"fibre"}, kind: units.KindMass, defaultUnit: units.Grams,
		slot: func(x *NutritionExtras) **Quantity { return &x.Fiber }},
	{key: "sugar", aliases: []string{"sugars"}, kind: units.KindMass, defaultUnit: units.Grams,
		slot: func(x *NutritionExtras) **Quantity { return &x.Sugar }},
}

// Hydration returns the water amount in milliliters.
func (x NutritionExtras) Hydration() float64 {
	return canonicalAmount(x.Water, units.KindVolume, units.Milliliters)
}

// Vitamins returns the vitamin amount in grams.
func (x NutritionExtras) Vitamins() float64 {
	return canonicalAmount(x.Vitamin, units.KindMass, units.Grams)
}

// FiberGrams returns the fiber amount in grams.
func (x NutritionExtras) FiberGrams() float64 {
	return canonicalAmount(x.Fiber, units.KindMass, units.Grams)
}

// SugarGrams returns the sugar amount in grams.
func (x NutritionExtras) SugarGrams() float64 {
	return canonicalAmount(x.Sugar, units.KindMass, units.Grams)
}

// MineralsGrams returns the minerals amount in grams.
func (x NutritionExtras) MineralsGrams() float64 {
	return canonicalAmount(x.Minerals, units.KindMass, units.Grams)
}

// Empty reports whether no extra is set.
func (x NutritionExtras) Empty() bool {
	return x.Water == nil && x.Vitamin == nil && x.Minerals == nil && x.Fiber == nil && x.Sugar == nil
}

func canonicalAmount(q *Quantity, kind units.Kind, fallback string) float64 {
	if q == nil {
		return 0
	}
	unit := q.Unit
	if strings.TrimSpace(unit) == "" {
		unit = fallback
	}
	return units.ToCanonical(kind, q.Amount, unit)
}

// Encode validates the extras and renders the notes blob written with new entries.
func (x NutritionExtras) Encode() (string, error) {
	if err := x.validate(); err != nil {
		return "", err
	}
	if x.Empty() {
		return "", nil
	}
	body, err := json.Marshal(x)
	if err != nil {
		return "", fmt.Errorf("marshal nutrition notes: %w", err)
	}
	return string(body), nil
}

func (x NutritionExtras) validate() error {
	for _, field := range extraFields {
		q := *field.slot(&x)
		if q == nil {
			continue
		}
		if math.IsNaN(q.Amount) || math.IsInf(q.Amount, 0) || q.Amount < 0 {
			return fmt.Errorf("notes: %s amount must be a non-negative number", field.key)
		}
		if q.Unit != "" && units.KindOf(q.Unit) != field.kind {
			return fmt.Errorf("notes: %s unit %q is not a %s unit", field.key, q.Unit, field.kind)
		}
	}
	return nil
}

// DecodeNutritionExtras strictly decodes a notes blob written by Encode.
func DecodeNutritionExtras(raw string) (NutritionExtras, error) {
	var x NutritionExtras
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&x); err != nil {
		return NutritionExtras{}, fmt.Errorf("notes: %v", err)
	}
	if err := x.validate(); err != nil {
		return NutritionExtras{}, err
	}
	return x, nil
}

// ParseNutritionNotes reads extras from any historical notes format. It accepts the
// nested {"water":{"amount":..,"unit":..}} shape, flat {"water":..,"waterUnit":..}
// pairs, numeric strings, and missing unit tags. Plain-text notes yield empty extras
// and ErrMalformedNotes. Fields that cannot be read are skipped.
func ParseNutritionNotes(raw string) (NutritionExtras, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NutritionExtras{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return NutritionExtras{}, fmt.Errorf("%w: %v", ErrMalformedNotes, err)
	}
	lowered := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		lowered[strings.ToLower(k)] = v
	}

	var x NutritionExtras
	for _, field := range extraFields {
		value, key, ok := lookupField(lowered, field)
		if !ok {
			continue
		}
		q, ok := readQuantity(value)
		if !ok || q.Amount < 0 {
			continue
		}
		if q.Unit == "" {
			q.Unit = siblingUnit(lowered, key)
		}
		if q.Unit == "" {
			q.Unit = field.defaultUnit
		}
		*field.slot(&x) = &q
	}
	return x, nil
}

func lookupField(fields map[string]json.RawMessage, field extraField) (json.RawMessage, string, bool) {
	if v, ok := fields[field.key]; ok {
		return v, field.key, true
	}
	for _, alias := range field.aliases {
		if v, ok := fields[alias]; ok {
			return v, alias, true
		}
	}
	return nil, "", false
}

func siblingUnit(fields map[string]json.RawMessage, key string) string {
	for _, candidate := range []string{key + "unit", key + "_unit"} {
		if raw, ok := fields[candidate]; ok {
			var unit string
			if json.Unmarshal(raw, &unit) == nil {
				return strings.TrimSpace(unit)
			}
		}
	}
	return ""
}

var amountWithUnit = regexp.MustCompile(`^\s*(-?[0-9]*\.?[0-9]+)\s*([a-zA-Z]*)\s*$`)

func readQuantity(raw json.RawMessage) (Quantity, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Quantity{}, false
	}

	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Quantity{}, false
		}
		var q Quantity
		found := false
		for _, key := range []string{"amount", "value", "quantity"} {
			if v, ok := obj[key]; ok {
				if inner, ok := readQuantity(v); ok {
					q = inner
					found = true
					break
				}
			}
		}
		if !found {
			return Quantity{}, false
		}
		if u, ok := obj["unit"]; ok {
			var unit string
			if json.Unmarshal(u, &unit) == nil && strings.TrimSpace(unit) != "" {
				q.Unit = strings.TrimSpace(unit)
			}
		}
		return q, true
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Quantity{}, false
		}
		m := amountWithUnit.FindStringSubmatch(s)
		if m == nil {
			return Quantity{}, false
		}
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Quantity{}, false
		}
		return Quantity{Amount: amount, Unit: m[2]}, true
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Quantity{}, false
		}
		return Quantity{Amount: f}, true
	}
}

// WorkoutNotes identifies the exercise a set belongs to.
type WorkoutNotes struct {
	ExerciseName string   `json:"exercise_name"`
	BodyPart     BodyPart `json:"body_part,omitempty"`
	SetIndex     int      `json:"set_index,omitempty"`
	StartTime    string   `json:"start_time,omitempty"`
	EndTime      string   `json:"end_time,omitempty"`
}

const clockLayout = "15:04"

// Encode validates the notes and renders them as JSON.
func (n WorkoutNotes) Encode() (string, error) {
	if err := n.validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("marshal workout notes: %w", err)
	}
	return string(body), nil
}

func (n WorkoutNotes) validate() error {
	if strings.TrimSpace(n.ExerciseName) == "" {
		return errors.New("notes: exercise_name is required")
	}
	if n.BodyPart != "" && !n.BodyPart.Valid() {
		return fmt.Errorf("notes: body_part %q is not supported", n.BodyPart)
	}
	if n.SetIndex < 0 {
		return errors.New("notes: set_index must be >= 0")
	}
	for _, clock := range []string{n.StartTime, n.EndTime} {
		if clock == "" {
			continue
		}
		if _, err := time.Parse(clockLayout, clock); err != nil {
			return fmt.Errorf("notes: time %q must be HH:MM", clock)
		}
	}
	return nil
}

// Duration is the span between start and end time, wrapping past midnight.
// It is zero when either bound is missing.
func (n WorkoutNotes) Duration() time.Duration {
	if n.StartTime == "" || n.EndTime == "" {
		return 0
	}
	start, err := time.Parse(clockLayout, n.StartTime)
	if err != nil {
		return 0
	}
	end, err := time.Parse(clockLayout, n.EndTime)
	if err != nil {
		return 0
	}
	d := end.Sub(start)
	if d < 0 {
		d += 24 * time.Hour
	}
	return d
}

// DecodeWorkoutNotes strictly decodes notes produced by Encode.
func DecodeWorkoutNotes(raw string) (WorkoutNotes, error) {
	var n WorkoutNotes
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		return WorkoutNotes{}, fmt.Errorf("notes: %v", err)
	}
	if err := n.validate(); err != nil {
		return WorkoutNotes{}, err
	}
	return n, nil
}

var (
	legacySet   = regexp.MustCompile(`(?i)^set\s*#?\s*(\d+)$`)
	legacyRange = regexp.MustCompile(`^(\d{1,2}:\d{2})\s*-\s*(\d{1,2}:\d{2})$`)
)

// ParseWorkoutNotes reads JSON notes or the legacy "Name | body part | set N | HH:MM-HH:MM" text.
func ParseWorkoutNotes(raw string) (WorkoutNotes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return WorkoutNotes{}, nil
	}
	if strings.HasPrefix(raw, "{") {
		var n WorkoutNotes
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return WorkoutNotes{}, fmt.Errorf("%w: %v", ErrMalformedNotes, err)
		}
		return n, nil
	}

	parts := strings.Split(raw, "|")
	n := WorkoutNotes{ExerciseName: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if m := legacySet.FindStringSubmatch(part); m != nil {
			n.SetIndex, _ = strconv.Atoi(m[1])
			continue
		}
		if m := legacyRange.FindStringSubmatch(part); m != nil {
			n.StartTime, n.EndTime = padClock(m[1]), padClock(m[2])
			continue
		}
		if bp, ok := ParseBodyPart(part); ok {
			n.BodyPart = bp
		}
	}
	return n, nil
}

func padClock(clock string) string {
	if len(clock) == 4 {
		return "0" + clock
	}
	return clock
}

func normalizeToken(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
}
