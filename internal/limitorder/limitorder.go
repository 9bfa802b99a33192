// Package limitorder is the standing-order matcher: it is invoked after
// every tick and after every manual bid that does not win (spec §4.3),
// synthesizes a bid at
// the auction's current price for any PENDING order whose max_price has
// been reached and whose owner still has sufficient balance, and routes
// that synthesized bid through the auction engine's PlaceBidInTx so every
// acceptance rule (per-auction write lock, at-most-one-ACCEPTED-bid)
// applies uniformly.
package limitorder

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/pkg/types"
)

// BidPlacer is the subset of the auction engine's behavior the matcher
// needs: admitting a solo bid within a transaction the caller already
// holds open. Implemented by *auction.Engine; defined here rather than
// imported to avoid a cycle, since the auction engine in turn depends on
// this package's Matcher type as its tick-time hook.
type BidPlacer interface {
	PlaceBidInTx(tx *gorm.DB, auctionID, agentID string, amount decimal.Decimal, now time.Time) (accepted bool, bidID string, err error)
}

// Matcher implements auction.Matcher.
type Matcher struct {
	placer BidPlacer
	now    func() time.Time
}

// New returns a Matcher that synthesizes bids through placer. nowFn lets
// tests and the simulator inject a deterministic clock; nil uses time.Now.
func New(placer BidPlacer, nowFn func() time.Time) *Matcher {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Matcher{placer: placer, now: nowFn}
}

// MatchAfterTick finds every PENDING limit order on slots whose auction is
// auctionID, in deterministic order (ascending created_at, then id), and
// attempts to fill the first one whose max_price is at or above the
// auction's current price and whose owner can still afford it. At most one
// order executes per auction per call: a successful fill leaves the
// auction with an ACCEPTED bid, so every later candidate is left PENDING
// for a future tick rather than attempted against a closed auction.
func (m *Matcher) MatchAfterTick(ctx context.Context, tx *gorm.DB, auctionID string) error {
	var a types.Auction
	if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
		return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
	}
	if a.Status != types.AuctionActive {
		return nil
	}

	var orders []types.LimitOrder
	if err := tx.Where("time_slot_id = ? AND status = ?", a.TimeSlotID, types.LimitOrderPending).Find(&orders).Error; err != nil {
		return errs.Wrap(errs.Internal, err, "load limit orders")
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	now := m.now()
	for i := range orders {
		order := &orders[i]
		if order.MaxPrice.LessThan(a.CurrentPrice) {
			continue
		}

		// Each candidate gets its own SAVEPOINT (gorm turns a nested
		// Transaction call into SAVEPOINT/ROLLBACK TO SAVEPOINT when tx is
		// already inside one): a settlement failure deep inside PlaceBidInTx
		// must only undo that candidate's bid and debits, never the whole
		// tick. Without this, a capacity/duplicate/overlap rejection after
		// the ledger debit would otherwise ride along and commit with the
		// rest of the tick, leaving the agent debited with no bid or
		// booking to show for it.
		var accepted bool
		var bidID string
		err := tx.Transaction(func(tx2 *gorm.DB) error {
			var placeErr error
			accepted, bidID, placeErr = m.placer.PlaceBidInTx(tx2, auctionID, order.AgentID, a.CurrentPrice, now)
			return placeErr
		})
		if err != nil || !accepted {
			order.Status = types.LimitOrderExpired
			if err != nil {
				order.Reason = err.Error()
			} else {
				order.Reason = "order could not be matched"
			}
			if saveErr := tx.Save(order).Error; saveErr != nil {
				return errs.Wrap(errs.Internal, saveErr, "save expired limit order")
			}
			continue
		}

		order.Status = types.LimitOrderExecuted
		order.ExecutedAt = &now
		order.BidID = bidID
		if err := tx.Save(order).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "save executed limit order")
		}
		// Stop after the first fill: the auction now carries an ACCEPTED
		// bid, so every remaining candidate this round would be rejected.
		break
	}
	return nil
}

// Create registers a new standing limit order.
func Create(tx *gorm.DB, agentID, timeSlotID string, maxPrice decimal.Decimal, now time.Time) (*types.LimitOrder, error) {
	order := &types.LimitOrder{
		ID:         ids.New(),
		AgentID:    agentID,
		TimeSlotID: timeSlotID,
		MaxPrice:   maxPrice,
		Status:     types.LimitOrderPending,
		CreatedAt:  now,
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create limit order")
	}
	return order, nil
}

// Cancel transitions a PENDING order to CANCELLED. Idempotent: cancelling
// an already-terminal order returns its current state without error.
func Cancel(tx *gorm.DB, orderID string) (*types.LimitOrder, error) {
	var order types.LimitOrder
	if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "limit order %s not found", orderID)
	}
	if order.Status != types.LimitOrderPending {
		return &order, nil
	}
	order.Status = types.LimitOrderCancelled
	if err := tx.Save(&order).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "save cancelled limit order")
	}
	return &order, nil
}
