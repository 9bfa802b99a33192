package simulator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		NumAgents:          30,
		NumRooms:           5,
		SlotsPerRoomPerDay: 3,
		MaxDays:            28,
		TokenAmount:        decimal.NewFromInt(100),
		TokenFrequency:     7,
		Dutch: DutchParams{
			StartPrice: decimal.NewFromInt(80),
			MinPrice:   decimal.NewFromInt(5),
			PriceStep:  decimal.NewFromInt(8),
		},
		AgentProfiles: []ProfileConfig{
			{Name: "heavy", Share: 0.3, UrgencyMin: 0.6, UrgencyMax: 1.0, BudgetSensitivityMin: 0.0, BudgetSensitivityMax: 0.3, BaseValueMin: 60, BaseValueMax: 100},
			{Name: "moderate", Share: 0.5, UrgencyMin: 0.3, UrgencyMax: 0.6, BudgetSensitivityMin: 0.2, BudgetSensitivityMax: 0.6, BaseValueMin: 30, BaseValueMax: 70},
			{Name: "light", Share: 0.2, UrgencyMin: 0.0, UrgencyMax: 0.3, BudgetSensitivityMin: 0.5, BudgetSensitivityMax: 0.9, BaseValueMin: 10, BaseValueMax: 40},
		},
		LocationWeights: map[string]float64{"library": 0.5, "gym": 0.3, "lab": 0.2},
		TimeWeights:     map[int]float64{0: 0.4, 1: 0.4, 2: 0.2},
		Seed:            42,
	}
}

// TestSameSeedIsBitIdentical reproduces spec scenario 5: running single
// with seed 42 twice must yield the exact same stability_score.
func TestSameSeedIsBitIdentical(t *testing.T) {
	cfg := baseConfig()
	first, err := Run(cfg)
	require.NoError(t, err)
	second, err := Run(cfg)
	require.NoError(t, err)
	require.Equal(t, first.Metrics, second.Metrics)
}

func TestDifferentSeedsCanDiverge(t *testing.T) {
	cfg := baseConfig()
	a, err := Run(cfg)
	require.NoError(t, err)
	cfg.Seed = 43
	b, err := Run(cfg)
	require.NoError(t, err)
	// Not a strict requirement of the spec, but a sanity check that the RNG
	// stream actually varies the outcome across seeds.
	require.NotEqual(t, a.BookingsByAgent, b.BookingsByAgent)
}

func TestRunProducesOneResultRowPerDay(t *testing.T) {
	cfg := baseConfig()
	res, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, res.Days, cfg.MaxDays)
	m := res.DailyMap()
	require.Len(t, m, cfg.MaxDays)
}

func TestMetricsStayWithinExpectedBounds(t *testing.T) {
	cfg := baseConfig()
	res, err := Run(cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Metrics.AccessRate, 0.0)
	require.LessOrEqual(t, res.Metrics.AccessRate, 1.0)
	require.GreaterOrEqual(t, res.Metrics.GiniCoefficient, 0.0)
	require.LessOrEqual(t, res.Metrics.GiniCoefficient, 1.0)
	require.GreaterOrEqual(t, res.Metrics.UtilizationRate, 0.0)
	require.LessOrEqual(t, res.Metrics.UtilizationRate, 1.0)
}

func TestValidateRejectsBadProfileShares(t *testing.T) {
	cfg := baseConfig()
	cfg.AgentProfiles[0].Share = 0.9
	_, err := Run(cfg)
	require.Error(t, err)
}

func TestValidateRejectsBadSlotsPerRoom(t *testing.T) {
	cfg := baseConfig()
	cfg.SlotsPerRoomPerDay = 4
	_, err := Run(cfg)
	require.Error(t, err)
}

func TestGiniCoefficientZeroWhenEqual(t *testing.T) {
	require.Equal(t, 0.0, giniCoefficient([]int{3, 3, 3, 3}))
}

func TestGiniCoefficientPositiveWhenUnequal(t *testing.T) {
	g := giniCoefficient([]int{0, 0, 0, 10})
	require.Greater(t, g, 0.0)
}
