package units

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToGrams(t *testing.T) {
	cases := []struct {
		value float64
		unit  string
		want  float64
	}{
		{value: 12, unit: "g", want: 12},
		{value: 500, unit: "mg", want: 0.5},
		{value: 1.5, unit: "kg", want: 1500},
		{value: 1, unit: "lb", want: 453.592},
		{value: 2, unit: " LBS ", want: 907.184},
	}
	for _, tc := range cases {
		require.InDelta(t, tc.want, ToGrams(tc.value, tc.unit), 1e-9, "unit %q", tc.unit)
	}
}

func TestToMilliliters(t *testing.T) {
	require.InDelta(t, 250.0, ToMilliliters(250, "ml"), 1e-9)
	require.InDelta(t, 300.0, ToMilliliters(3, "dz"), 1e-9)
	require.InDelta(t, 1500.0, ToMilliliters(1.5, "liter"), 1e-9)
	require.InDelta(t, 2000.0, ToMilliliters(2, "L"), 1e-9)
}

func TestUnknownUnitIsIdentity(t *testing.T) {
	require.Equal(t, 42.0, ToGrams(42, "handful"))
	require.Equal(t, 42.0, ToMilliliters(42, ""))
	// mass units do not convert volumes
	require.Equal(t, 3.0, ToMilliliters(3, "kg"))
}

func TestAbsentValueIsZero(t *testing.T) {
	require.Zero(t, ToGrams(math.NaN(), "kg"))
	require.Zero(t, ToMilliliters(math.Inf(1), "liter"))
	require.Zero(t, FromCanonical(KindMass, math.NaN(), "g"))
}

func TestCanonicalRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindMass, KindVolume} {
		names := Supported(kind)
		sort.Strings(names)
		require.NotEmpty(t, names)
		for _, unit := range names {
			for _, x := range []float64{0, 0.001, 1, 73.25, 12345.678} {
				got := ToCanonical(kind, FromCanonical(kind, x, unit), unit)
				require.InDelta(t, x, got, 1e-9*math.Max(1, x), "kind=%s unit=%s", kind, unit)
			}
		}
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindMass, KindOf("mg"))
	require.Equal(t, KindVolume, KindOf("dz"))
	require.Equal(t, KindUnknown, KindOf("cup"))
	require.True(t, Known("Liter"))
	require.False(t, Known("pinch"))
}
