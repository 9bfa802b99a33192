package pricing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRepriceClampsToBounds(t *testing.T) {
	e := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := RepriceInput{
		Now:                 now,
		HorizonDays:         14,
		SlotStart:           now.Add(48 * time.Hour),
		LocationTag:         "north-hall",
		Capacity:            10,
		LocationPopularity:  map[string]float64{"north-hall": 1.0},
		TimePopularity:      map[string]float64{},
		CapacityWeight:      1,
		LocationWeight:      1,
		TimeWeight:          1,
		DayOfWeekWeight:     1,
		LeadTimeWeight:      1,
		GlobalPriceModifier: 100, // deliberately extreme to exercise the ceiling
		RNG:                 rand.New(rand.NewSource(1)),
	}
	start, current, min := e.Reprice(in)
	require.True(t, start.GreaterThan(current))
	require.True(t, current.GreaterThan(min))
	// 500 * 1.6 ceiling on start, 500 on current, 500*0.4 on min
	require.True(t, start.LessThanOrEqual(decimal.NewFromFloat(500*1.6)))
	require.True(t, current.LessThanOrEqual(decimal.NewFromFloat(500)))
	require.True(t, min.LessThanOrEqual(decimal.NewFromFloat(500*0.4)))
}

func TestPeakCurveFallback(t *testing.T) {
	require.InDelta(t, 1.0, peakCurve(14), 1e-9)
	require.InDelta(t, 0.2, peakCurve(2), 1e-9)
	require.InDelta(t, 0.2, peakCurve(23), 1e-9)
}
