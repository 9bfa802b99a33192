package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"roomauction/pkg/types"
)

// DutchStrategy is the descending-price auction: current_price starts at
// start_price and decreases by price_step each tick, floored at min_price.
// Once the floor is hit it switches to the rebound phase and climbs back up
// by price_step per tick instead of decaying further. Rebound is
// uncapped — spec §4.1 is explicit that "current_price may exceed
// start_price" once it turns around, and §8 states the invariant as
// current_price ∈ [min_price, max(start_price, any_rebound_peak)].
type DutchStrategy struct{}

func (DutchStrategy) Start(a *types.Auction, now time.Time) {
	a.CurrentPrice = a.StartPrice
	a.ReboundFloor = false
}

func (DutchStrategy) Tick(a *types.Auction) types.PriceHistory {
	step := a.PriceStep
	if !a.ReboundFloor {
		next := a.CurrentPrice.Sub(step)
		if next.LessThanOrEqual(a.MinPrice) {
			next = a.MinPrice
			a.ReboundFloor = true
		}
		a.CurrentPrice = next
	} else {
		a.CurrentPrice = a.CurrentPrice.Add(step)
	}
	return types.PriceHistory{AuctionID: a.ID, Price: a.CurrentPrice}
}

// Accepts reports whether bidAmount clears the current asking price. A
// bid at or above current_price wins and pays current_price — the
// displayed price, not the stated bid — exactly as a live Dutch auction
// clears at the price a buyer agrees to stop the clock on.
func (DutchStrategy) Accepts(a *types.Auction, bidAmount decimal.Decimal) (accept bool, paid decimal.Decimal) {
	if bidAmount.GreaterThanOrEqual(a.CurrentPrice) {
		return true, a.CurrentPrice
	}
	return false, decimal.Zero
}
