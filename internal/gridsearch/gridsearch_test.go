package gridsearch

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"roomauction/internal/simulator"
)

func baseSimConfig() simulator.Config {
	return simulator.Config{
		NumAgents:          30,
		NumRooms:           5,
		SlotsPerRoomPerDay: 3,
		MaxDays:            28,
		Dutch: simulator.DutchParams{
			StartPrice: decimal.NewFromInt(80),
			MinPrice:   decimal.NewFromInt(5),
			PriceStep:  decimal.NewFromInt(8),
		},
		AgentProfiles: []simulator.ProfileConfig{
			{Name: "heavy", Share: 0.3, UrgencyMin: 0.6, UrgencyMax: 1.0, BaseValueMin: 60, BaseValueMax: 100},
			{Name: "moderate", Share: 0.5, UrgencyMin: 0.3, UrgencyMax: 0.6, BaseValueMin: 30, BaseValueMax: 70},
			{Name: "light", Share: 0.2, UrgencyMin: 0.0, UrgencyMax: 0.3, BaseValueMin: 10, BaseValueMax: 40},
		},
		LocationWeights: map[string]float64{"library": 0.5, "gym": 0.5},
		TimeWeights:     map[int]float64{0: 0.5, 1: 0.5},
	}
}

// TestRunRanksByStabilityScore reproduces spec scenario 6: a grid over
// amounts {50,100,200}, frequencies {3,7,14}, seeds {0..4}.
func TestRunRanksByStabilityScore(t *testing.T) {
	cfg := Config{
		Base:             baseSimConfig(),
		TokenAmounts:     []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.NewFromInt(200)},
		TokenFrequencies: []int{3, 7, 14},
		NumSeeds:         5,
		BaseSeed:         0,
	}
	result, err := Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, result.Combos, 9)
	require.NotNil(t, result.Best)

	min := result.Combos[0].AvgMetrics.StabilityScore
	for _, c := range result.Combos {
		require.GreaterOrEqual(t, c.AvgMetrics.StabilityScore, min)
	}
	require.Equal(t, result.Best.AvgMetrics.StabilityScore, min)

	require.Len(t, result.BestDaily, cfg.Base.MaxDays)
}

func TestRunReportsProgress(t *testing.T) {
	cfg := Config{
		Base:             baseSimConfig(),
		TokenAmounts:     []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100)},
		TokenFrequencies: []int{7},
		NumSeeds:         1,
		BaseSeed:         0,
	}
	var calls []int
	_, err := Run(context.Background(), cfg, func(completed, total int) {
		calls = append(calls, completed)
		require.Equal(t, 2, total)
	})
	require.NoError(t, err)
	require.Len(t, calls, 2)
}

func TestRunCancellationReturnsPartialRanking(t *testing.T) {
	cfg := Config{
		Base:             baseSimConfig(),
		TokenAmounts:     []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.NewFromInt(200)},
		TokenFrequencies: []int{3, 7, 14},
		NumSeeds:         2,
		BaseSeed:         0,
		MaxConcurrency:   1,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before any combo can run
	result, err := Run(ctx, cfg, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.Combos), 9)
}

func TestHeatmapHasNaNForUnrunCells(t *testing.T) {
	done := []ComboResult{
		{TokenFrequency: 7, TokenAmount: decimal.NewFromInt(100), AvgMetrics: simulator.Metrics{StabilityScore: 1.5}},
	}
	grid := buildHeatmap(done, []int{7, 14}, []decimal.Decimal{decimal.NewFromInt(100)})
	require.Equal(t, 1.5, grid[0][0])
	require.True(t, math.IsNaN(grid[1][0]))
}
