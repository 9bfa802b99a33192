// Package simulator is the deterministic, seeded market simulator used to
// grid-search allocation parameters (spec §4.5). It is self-contained: it
// carries its own lightweight agent/auction state rather than going through
// internal/store, so a grid search can run thousands of seeds without a
// database round trip per tick, and every random draw flows through one
// value-typed *rand.Rand so identical seed+config produce a bit-identical
// result (spec §5, §8 "Under any same-seed simulator run, metrics are
// bitwise reproducible").
//
// Grounded in original_source/Backend/app/services/simulation_engine.py's
// run_environment_fast, reworked into the teacher's engine-struct shape
// (internal/engine/engine.go): a config-driven Run that owns its own RNG and
// returns a single Result rather than mutating shared state.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"roomauction/internal/errs"
)

// DutchParams seeds every auction created during a simulated day.
type DutchParams struct {
	StartPrice decimal.Decimal
	MinPrice   decimal.Decimal
	PriceStep  decimal.Decimal
}

// DayRange marks an inclusive [From, To] window of simulated days treated
// as high demand (spec §4.5's hd_mult).
type DayRange struct {
	From, To int
}

func (r DayRange) contains(day int) bool { return day >= r.From && day <= r.To }

// ProfileConfig is one agent tier (e.g. Heavy/Moderate/Light). Shares across
// all profiles must sum to 1 within tolerance; the last profile absorbs any
// rounding remainder so the population always totals NumAgents exactly.
type ProfileConfig struct {
	Name                                       string
	Share                                      float64
	UrgencyMin, UrgencyMax                     float64
	BudgetSensitivityMin, BudgetSensitivityMax float64
	BaseValueMin, BaseValueMax                 float64
}

// Config is one simulation run's full parameter set (spec §4.5).
type Config struct {
	NumAgents          int
	NumRooms           int
	SlotsPerRoomPerDay int // 1, 2, or 3
	MaxDays            int
	TokenAmount        decimal.Decimal
	TokenFrequency     int // days between grants
	Dutch              DutchParams
	HighDemandDayRanges []DayRange
	AgentProfiles      []ProfileConfig
	LocationWeights    map[string]float64 // location -> relative draw weight
	TimeWeights        map[int]float64    // time-of-day slot index -> relative draw weight
	Seed               int64

	// MaxTicksPerDay bounds the per-day tick loop. Spec §4.5 stops a day
	// only "if all auctions completed", which a pathological config (no
	// agent ever meets threshold) would never reach; this cap forces the
	// day to end and records the remainder as unmet demand. Defaults to
	// 200 when zero.
	MaxTicksPerDay int
}

func (c Config) maxTicks() int {
	if c.MaxTicksPerDay > 0 {
		return c.MaxTicksPerDay
	}
	return 200
}

func validate(cfg Config) error {
	if cfg.NumAgents <= 0 {
		return errs.New(errs.Validation, "num_agents must be positive")
	}
	if cfg.NumRooms <= 0 {
		return errs.New(errs.Validation, "num_rooms must be positive")
	}
	if cfg.SlotsPerRoomPerDay < 1 || cfg.SlotsPerRoomPerDay > 3 {
		return errs.New(errs.Validation, "slots_per_room_per_day must be 1, 2, or 3")
	}
	if cfg.MaxDays <= 0 {
		return errs.New(errs.Validation, "max_days must be positive")
	}
	if cfg.TokenFrequency <= 0 {
		return errs.New(errs.Validation, "token_frequency must be positive")
	}
	if len(cfg.AgentProfiles) == 0 {
		return errs.New(errs.Validation, "at least one agent profile is required")
	}
	sum := 0.0
	for _, p := range cfg.AgentProfiles {
		sum += p.Share
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return errs.New(errs.Validation, "agent profile shares must sum to 1, got %f", sum)
	}
	if cfg.Dutch.StartPrice.LessThan(cfg.Dutch.MinPrice) {
		return errs.New(errs.Validation, "dutch start_price must be >= min_price")
	}
	if !cfg.Dutch.PriceStep.IsPositive() {
		return errs.New(errs.Validation, "dutch price_step must be positive")
	}
	return nil
}

// agent is the simulator's own lightweight bidder state, independent of
// pkg/types.Agent: the simulator never touches the database, so its agent
// population carries only the fields should_bid and the metrics need.
type agent struct {
	ID                 string
	Profile            string
	Urgency            float64
	BudgetSensitivity  float64
	BaseValue          float64
	PreferredLocation  string
	PreferredTimeIndex int
	Balance            decimal.Decimal
	BookingCount       int
}

// auctionSim is one simulated descending-price sale for a day.
type auctionSim struct {
	RoomIdx       int
	Location      string
	TimeIndex     int
	CurrentPrice  decimal.Decimal
	MinPrice      decimal.Decimal
	PriceStep     decimal.Decimal
	Completed     bool
	ClearingPrice decimal.Decimal
	WinnerAgentID string
}

// DailyResult is one day's recorded outcome (spec §4.5 step 4).
type DailyResult struct {
	Day           int
	Offered       int
	Booked        int
	UnmetDemand   int
	AttemptedBids int
	ClearingPrices []decimal.Decimal
}

// Metrics is the composite market-health scorecard computed per run (spec
// §4.6's metric table; used by both run_single and the grid-search driver).
type Metrics struct {
	AccessRate          float64
	PreferenceMatchRate float64
	AvgConsumerSurplus  float64
	UtilizationRate     float64
	PriceVolatility     float64
	GiniCoefficient     float64
	SupplyDemandRatio   float64
	StabilityScore      float64
	AvgSatisfaction     float64
}

// Result is the full output of one simulation run.
type Result struct {
	Days            []DailyResult
	Metrics         Metrics
	BookingsByAgent map[string]int
}

// DailyMap re-keys Days by day number, for callers (the grid-search driver's
// best_daily report) that need direct lookup rather than a slice.
func (r *Result) DailyMap() map[int]DailyResult {
	m := make(map[int]DailyResult, len(r.Days))
	for _, d := range r.Days {
		m[d.Day] = d
	}
	return m
}

// Run executes one deterministic simulation. Identical cfg (including Seed)
// always produces a bit-identical Result.
func Run(cfg Config) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	agents := generateAgents(cfg, rng)
	maxTicks := cfg.maxTicks()

	result := &Result{BookingsByAgent: map[string]int{}}
	var allClearing []decimal.Decimal
	var totalOffered, totalBooked, totalAttempted int
	var totalSurplus, totalPrefScore float64

	for day := 0; day < cfg.MaxDays; day++ {
		if day%cfg.TokenFrequency == 0 {
			for i := range agents {
				agents[i].Balance = agents[i].Balance.Add(cfg.TokenAmount)
			}
		}

		auctions := createDayAuctions(cfg, day)
		highDemand := isHighDemandDay(cfg, day)
		dayResult := DailyResult{Day: day, Offered: len(auctions)}

		for tick := 0; tick < maxTicks; tick++ {
			rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })
			auctionOrder := rng.Perm(len(auctions))

			for ai := range agents {
				ag := &agents[ai]
				for _, oi := range auctionOrder {
					auc := &auctions[oi]
					if auc.Completed {
						continue
					}
					totalAttempted++
					dayResult.AttemptedBids++
					bid, wtp := shouldBid(ag, auc, highDemand)
					if !bid {
						continue
					}
					price := auc.CurrentPrice
					ag.Balance = ag.Balance.Sub(price)
					ag.BookingCount++
					auc.Completed = true
					auc.ClearingPrice = price
					auc.WinnerAgentID = ag.ID

					dayResult.ClearingPrices = append(dayResult.ClearingPrices, price)
					allClearing = append(allClearing, price)
					totalBooked++
					dayResult.Booked++
					result.BookingsByAgent[ag.ID]++
					totalSurplus += wtp - price.InexactFloat64()
					totalPrefScore += preferenceMatchScore(ag, auc)
					break // spec §4.5 step 3b: on success, break to the next agent
				}
			}

			allCompleted := true
			for i := range auctions {
				if !auctions[i].Completed {
					allCompleted = false
					break
				}
			}
			if allCompleted {
				break
			}
			for i := range auctions {
				if auctions[i].Completed {
					continue
				}
				next := auctions[i].CurrentPrice.Sub(auctions[i].PriceStep)
				if next.LessThan(auctions[i].MinPrice) {
					next = auctions[i].MinPrice
				}
				auctions[i].CurrentPrice = next
			}
		}

		for i := range auctions {
			if !auctions[i].Completed {
				dayResult.UnmetDemand++
			}
		}
		totalOffered += len(auctions)
		result.Days = append(result.Days, dayResult)
	}

	result.Metrics = computeMetrics(agents, allClearing, totalOffered, totalBooked, totalAttempted, totalSurplus, totalPrefScore)
	return result, nil
}

func shouldBid(a *agent, auc *auctionSim, highDemand bool) (bid bool, wtp float64) {
	locMult := 0.5
	if auc.Location == a.PreferredLocation {
		locMult = 1.0
	}
	timeMult := 0.6
	if auc.TimeIndex == a.PreferredTimeIndex {
		timeMult = 1.0
	}
	urgMult := 0.7 + 0.6*a.Urgency
	hdMult := 1.0
	if highDemand {
		hdMult = 1.4
	}
	needMult := math.Max(1.0, 1.5-0.1*math.Abs(float64(a.BookingCount)))
	wtp = a.BaseValue * locMult * timeMult * urgMult * hdMult * needMult
	threshold := wtp * (1 - 0.5*a.BudgetSensitivity)

	price := auc.CurrentPrice.InexactFloat64()
	balance := a.Balance.InexactFloat64()
	return price <= threshold && balance >= price, wtp
}

func preferenceMatchScore(a *agent, auc *auctionSim) float64 {
	locMatch := auc.Location == a.PreferredLocation
	timeMatch := auc.TimeIndex == a.PreferredTimeIndex
	switch {
	case locMatch && timeMatch:
		return 1.0
	case locMatch || timeMatch:
		return 0.5
	default:
		return 0.0
	}
}

func isHighDemandDay(cfg Config, day int) bool {
	for _, r := range cfg.HighDemandDayRanges {
		if r.contains(day) {
			return true
		}
	}
	return false
}

func createDayAuctions(cfg Config, day int) []auctionSim {
	locations := sortedKeys(cfg.LocationWeights)
	out := make([]auctionSim, 0, cfg.NumRooms*cfg.SlotsPerRoomPerDay)
	for room := 0; room < cfg.NumRooms; room++ {
		location := fmt.Sprintf("room-%d", room)
		if len(locations) > 0 {
			location = locations[room%len(locations)]
		}
		for slot := 0; slot < cfg.SlotsPerRoomPerDay; slot++ {
			out = append(out, auctionSim{
				RoomIdx:      room,
				Location:     location,
				TimeIndex:    slot,
				CurrentPrice: cfg.Dutch.StartPrice,
				MinPrice:     cfg.Dutch.MinPrice,
				PriceStep:    cfg.Dutch.PriceStep,
			})
		}
	}
	_ = day // auctions are identical in shape every day; only token grants and demand vary by day
	return out
}

func generateAgents(cfg Config, rng *rand.Rand) []agent {
	agents := make([]agent, 0, cfg.NumAgents)
	assigned := 0
	for ti, p := range cfg.AgentProfiles {
		count := int(math.Round(p.Share * float64(cfg.NumAgents)))
		if ti == len(cfg.AgentProfiles)-1 {
			count = cfg.NumAgents - assigned
		}
		assigned += count
		for i := 0; i < count; i++ {
			agents = append(agents, agent{
				ID:                 fmt.Sprintf("%s-%d", p.Name, i),
				Profile:            p.Name,
				Urgency:            uniform(rng, p.UrgencyMin, p.UrgencyMax),
				BudgetSensitivity:  uniform(rng, p.BudgetSensitivityMin, p.BudgetSensitivityMax),
				BaseValue:          uniform(rng, p.BaseValueMin, p.BaseValueMax),
				PreferredLocation:  weightedPickString(rng, cfg.LocationWeights),
				PreferredTimeIndex: weightedPickInt(rng, cfg.TimeWeights),
				Balance:            decimal.Zero,
			})
		}
	}
	return agents
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func weightedPickString(rng *rand.Rand, weights map[string]float64) string {
	keys := sortedKeys(weights)
	if len(keys) == 0 {
		return ""
	}
	total := 0.0
	for _, k := range keys {
		total += weights[k]
	}
	if total <= 0 {
		return keys[0]
	}
	r := rng.Float64() * total
	cum := 0.0
	for _, k := range keys {
		cum += weights[k]
		if r <= cum {
			return k
		}
	}
	return keys[len(keys)-1]
}

func weightedPickInt(rng *rand.Rand, weights map[int]float64) int {
	keys := make([]int, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) == 0 {
		return 0
	}
	total := 0.0
	for _, k := range keys {
		total += weights[k]
	}
	if total <= 0 {
		return keys[0]
	}
	r := rng.Float64() * total
	cum := 0.0
	for _, k := range keys {
		cum += weights[k]
		if r <= cum {
			return k
		}
	}
	return keys[len(keys)-1]
}

func computeMetrics(agents []agent, clearing []decimal.Decimal, offered, booked, attempted int, totalSurplus, totalPrefScore float64) Metrics {
	n := len(agents)
	access := 0
	counts := make([]int, n)
	for i, a := range agents {
		counts[i] = a.BookingCount
		if a.BookingCount > 0 {
			access++
		}
	}
	accessRate := 0.0
	if n > 0 {
		accessRate = float64(access) / float64(n)
	}

	prefMatchRate := 0.0
	if booked > 0 {
		prefMatchRate = totalPrefScore / float64(booked)
	}

	avgSurplus := 0.0
	if booked > 0 {
		avgSurplus = totalSurplus / float64(booked)
	}

	utilization := 0.0
	if offered > 0 {
		utilization = float64(booked) / float64(offered)
	}

	volatility := priceVolatility(clearing)
	gini := giniCoefficient(counts)

	supplyDemand := 0.0
	if attempted > 0 {
		supplyDemand = float64(offered) / float64(attempted)
	}

	stability := 4*(1-accessRate) + 2*(1-prefMatchRate) + 2*gini + (1 - utilization) + 0.5*volatility
	satisfaction := 0.35*accessRate + 0.25*prefMatchRate + 0.20*(1-gini) + 0.10*utilization + 0.10*math.Max(0, 1-volatility)

	return Metrics{
		AccessRate:          accessRate,
		PreferenceMatchRate: prefMatchRate,
		AvgConsumerSurplus:  avgSurplus,
		UtilizationRate:     utilization,
		PriceVolatility:     volatility,
		GiniCoefficient:     gini,
		SupplyDemandRatio:   supplyDemand,
		StabilityScore:      stability,
		AvgSatisfaction:     satisfaction,
	}
}

func priceVolatility(prices []decimal.Decimal) float64 {
	if len(prices) == 0 {
		return 0
	}
	vals := make([]float64, len(prices))
	sum := 0.0
	for i, p := range prices {
		vals[i] = p.InexactFloat64()
		sum += vals[i]
	}
	mean := sum / float64(len(vals))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return math.Sqrt(variance) / mean
}

func giniCoefficient(counts []int) float64 {
	n := len(counts)
	if n == 0 {
		return 0
	}
	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)
	var sumX, weighted float64
	for i, x := range sorted {
		sumX += float64(x)
		weighted += float64(i+1) * float64(x)
	}
	if sumX == 0 {
		return 0
	}
	return (2*weighted)/(float64(n)*sumX) - float64(n+1)/float64(n)
}
