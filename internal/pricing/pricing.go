// Package pricing implements the dynamic pricing engine: periodic
// repricing of a pending auction from learned demand (location, hour of
// day, day of week), slot capacity, and lead time, grounded in
// original_source/Backend/app/services/pricing_service.py and reproduced
// here exactly per spec §4.2.
package pricing

import (
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// priceFloor and priceCeiling bound the reprice output to [5, 500] tokens, the hard floor
// and ceiling spec §4.2 gives regardless of demand inputs.
const (
	priceFloor   = 5.0
	priceCeiling = 500.0
)

// Engine computes reprice() for pending auctions. It takes no state of its
// own; every input (AdminConfig weights, popularity maps, RNG) is passed
// in explicitly so the same engine value can be reused by the live market
// and by the simulator without any hidden shared state (spec §9: "inject
// RNG value into every function, never read global RNG").
type Engine struct{}

func New() *Engine { return &Engine{} }

// RepriceInput bundles everything reprice() needs beyond the slot/resource
// it is pricing.
type RepriceInput struct {
	Now         time.Time
	HorizonDays float64
	SlotStart   time.Time
	LocationTag string
	Capacity    int
	LocationPopularity  map[string]float64
	TimePopularity      map[string]float64
	CapacityWeight      float64
	LocationWeight      float64
	TimeWeight          float64
	DayOfWeekWeight     float64
	LeadTimeWeight       float64
	GlobalPriceModifier  float64
	RNG                  *rand.Rand
}

// Reprice computes the new start/current/min price for a pending auction,
// per spec §4.2's exact formula:
//
//	loc_score   = location_popularity[location] (default 0.5 if absent)
//	hour_score  = time_popularity["weekday-hour"] if present, else
//	              peak_curve(hour) = max(0.2, 1 - |hour-14|/10)
//	cap_score   = min(capacity, 100) / 100
//	lead_days   = max(0, (slot_start - now) in days)
//	lead_ratio  = min(1, lead_days / 30)
//	lead_mult   = 1 + w_lead * (1.1 - lead_ratio)
//	noise       = uniform(0.95, 1.05) drawn from the supplied RNG
//	demand      = (w_cap*cap_score*0.5 + w_loc*loc_score*2.0 + w_tod*hour_score*2.5 + w_dow*hour_score*1.5) / 5
//	price       = clamp(15 * global_mod * lead_mult * demand * noise, 5, 500)
//
// hour_score feeds both the time-of-day and day-of-week terms, exactly as
// spec §4.2 gives it — there is no separate day-of-week popularity lookup.
// HorizonDays bounds which slots the caller scans (spec §4.2's "(now,
// now+horizon]"); it plays no part in lead_ratio, which is fixed to a
// 30-day reference window regardless of horizon.
//
// The returned Auction fields follow spec §4.2: current_price = price,
// start_price = 1.6x price, min_price = 0.4x price. PricingModelVersion
// bump is the caller's responsibility (the AdminConfig single writer).
func (e *Engine) Reprice(in RepriceInput) (startPrice, currentPrice, minPrice decimal.Decimal) {
	locScore := 0.5
	if v, ok := in.LocationPopularity[in.LocationTag]; ok {
		locScore = v
	}

	weekday := int(in.SlotStart.Weekday())
	hour := in.SlotStart.Hour()
	hourKey := hourTimeKey(weekday, hour)
	hourScore, ok := in.TimePopularity[hourKey]
	if !ok {
		hourScore = peakCurve(hour)
	}

	capScore := math.Min(float64(in.Capacity), 100) / 100.0

	leadDays := math.Max(0, in.SlotStart.Sub(in.Now).Hours()/24.0)
	leadRatio := math.Min(1, leadDays/30.0)
	leadMult := 1 + in.LeadTimeWeight*(1.1-leadRatio)

	noise := 0.95 + in.RNG.Float64()*0.10

	demand := (in.CapacityWeight*capScore*0.5 +
		in.LocationWeight*locScore*2.0 +
		in.TimeWeight*hourScore*2.5 +
		in.DayOfWeekWeight*hourScore*1.5) / 5.0

	price := clamp(15.0*in.GlobalPriceModifier*leadMult*demand*noise, priceFloor, priceCeiling)

	currentPrice = decimal.NewFromFloat(price)
	startPrice = decimal.NewFromFloat(price * 1.6)
	minPrice = decimal.NewFromFloat(price * 0.4)
	return startPrice, currentPrice, minPrice
}

// peakCurve is the fallback hour-of-day demand score used when no learned
// popularity exists for this weekday-hour: peaks at 14:00 (2pm), floors at
// 0.2 ten hours away in either direction.
func peakCurve(hour int) float64 {
	return math.Max(0.2, 1-math.Abs(float64(hour-14))/10.0)
}

func hourTimeKey(weekday, hour int) string {
	return strconv.Itoa(weekday) + "-" + strconv.Itoa(hour)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// The rebound-on-floor tick behavior lives in internal/auction, not here;
// this package only owns the periodic reprice() computation above.
