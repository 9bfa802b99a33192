// Package auction is the Dutch auction engine: create/start/tick/place_bid
// /resolve, dispatched through a closed capability-set table keyed by
// auction type tag (spec §9). Only "dutch" is registered today, grounded
// directly in original_source/Backend/app/services/auction_engine.py's
// AuctionEngine ABC + DutchAuctionEngine + the `_engines` registry dict.
//
// Bids on the same auction are totally ordered by a per-auction write lock
// (spec §5); ticks across different auctions are unordered but
// linearizable per auction.
package auction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/internal/ledger"
	"roomauction/pkg/types"
)

// Matcher is the limit-order matcher hook invoked after every tick and
// after every manual bid that does not win (spec §4.3). Defined here, implemented by
// internal/limitorder, to avoid an import cycle between the two engines.
type Matcher interface {
	MatchAfterTick(ctx context.Context, tx *gorm.DB, auctionID string) error
}

// Settler is the booking service's settlement hook. PlaceBid calls it
// inside the same transaction that just accepted the winning bid, so a
// capacity/duplicate/overlap/quota failure rolls back the bid and its
// ledger debits along with the settlement attempt (spec §4.1: "the whole
// transaction is rolled back and the bid is rejected"). Defined here,
// implemented by internal/booking, to avoid an import cycle (booking in
// turn depends on *Engine to resolve the auction it just settled).
type Settler interface {
	SettleInTx(ctx context.Context, tx *gorm.DB, auctionID, bidID string, now time.Time) ([]types.Booking, error)
}

// Strategy is the per-auction-type behavior the dispatch table selects on.
// DutchStrategy is the only implementation registered today.
type Strategy interface {
	Start(auction *types.Auction, now time.Time)
	Tick(auction *types.Auction) types.PriceHistory
	Accepts(auction *types.Auction, bidAmount decimal.Decimal) (accept bool, paidAmount decimal.Decimal)
}

// Engine owns the dispatch table and the per-auction write locks.
type Engine struct {
	db         *gorm.DB
	ledger     *ledger.Ledger
	matcher    Matcher
	settler    Settler
	strategies map[types.AuctionType]Strategy

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an Engine with the dutch strategy registered. Register can
// add further strategies before first use; SetMatcher wires the
// limit-order matcher once it has been constructed (it depends on the
// engine, so it cannot be supplied at construction time without a cycle).
func New(db *gorm.DB, l *ledger.Ledger) *Engine {
	e := &Engine{
		db:     db,
		ledger: l,
		strategies: map[types.AuctionType]Strategy{
			types.AuctionDutch: DutchStrategy{},
		},
		locks: map[string]*sync.Mutex{},
	}
	return e
}

// SetMatcher wires the limit-order matcher invoked after every tick and
// after every manual bid that does not win.
func (e *Engine) SetMatcher(m Matcher) { e.matcher = m }

// SetSettler wires the booking service invoked after every accepted bid.
// It cannot be supplied at construction time: the booking service needs a
// live *Engine to resolve the auction it settles, so it is always
// constructed after New returns.
func (e *Engine) SetSettler(s Settler) { e.settler = s }

// Register adds or replaces a strategy for the given tag.
func (e *Engine) Register(tag types.AuctionType, s Strategy) {
	e.strategies[tag] = s
}

func (e *Engine) strategyFor(tag types.AuctionType) (Strategy, error) {
	s, ok := e.strategies[tag]
	if !ok {
		return nil, errs.New(errs.Validation, "no auction strategy registered for type %q", tag)
	}
	return s, nil
}

func (e *Engine) lockFor(auctionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	m, ok := e.locks[auctionID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[auctionID] = m
	}
	return m
}

// Start transitions a PENDING auction to ACTIVE.
func (e *Engine) Start(ctx context.Context, auctionID string, now time.Time) (*types.Auction, error) {
	lock := e.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	var out types.Auction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a types.Auction
		if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
		}
		if a.Status != types.AuctionPending {
			return errs.New(errs.StateInvalid, "auction %s is %s, not pending", auctionID, a.Status)
		}
		strat, err := e.strategyFor(a.AuctionType)
		if err != nil {
			return err
		}
		strat.Start(&a, now)
		a.Status = types.AuctionActive
		a.StartedAt = &now
		if err := tx.Save(&a).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "save auction")
		}
		ph := types.PriceHistory{ID: ids.New(), AuctionID: a.ID, Price: a.CurrentPrice, RecordedAt: now}
		if err := tx.Create(&ph).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "record price history")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Tick advances the auction's price one step and runs the limit-order
// matcher against the new price, per spec §4.3.
func (e *Engine) Tick(ctx context.Context, auctionID string, now time.Time) (*types.Auction, error) {
	lock := e.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	var out types.Auction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a types.Auction
		if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
		}
		if a.Status != types.AuctionActive {
			return errs.New(errs.StateInvalid, "auction %s is %s, not active", auctionID, a.Status)
		}
		strat, err := e.strategyFor(a.AuctionType)
		if err != nil {
			return err
		}
		ph := strat.Tick(&a)
		ph.ID = ids.New()
		ph.RecordedAt = now
		a.Tick++
		if err := tx.Save(&a).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "save auction")
		}
		if err := tx.Create(&ph).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "record price history")
		}
		out = a
		if e.matcher != nil {
			if err := e.matcher.MatchAfterTick(ctx, tx, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceBidInput is a solo or group bid submission.
type PlaceBidInput struct {
	AgentID      string
	Amount       decimal.Decimal
	IsGroupBid   bool
	GroupMembers []GroupMemberInput // contributions must sum to Amount
	// SplitWithAgentID, if set, names a partner the bidder wants to split
	// the cost with. Solo bids only: settlement records this on the
	// bidder's own booking as SplitStatus=PENDING (spec §4.4).
	SplitWithAgentID string
	Now              time.Time
}

// GroupMemberInput is one participant's contribution toward a group bid.
type GroupMemberInput struct {
	AgentID      string
	Contribution decimal.Decimal
}

// PlaceBid admits a bid against an ACTIVE auction. At most one bid per
// auction is ever ACCEPTED; bids below the current price are rejected
// (the current price is the asking price in a descending auction — a bid
// must meet or exceed it to win). The accepted bid pays the auction's
// current_price, not the bid amount, exactly as a Dutch auction clears at
// the displayed price. When the bid does not win, the limit-order matcher
// then runs against the auction in its own transaction.
func (e *Engine) PlaceBid(ctx context.Context, auctionID string, in PlaceBidInput) (*types.Bid, error) {
	lock := e.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	var result *types.Bid
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = e.placeBidInTx(tx, auctionID, in)
		return txErr
	})
	if err != nil && e.matcher != nil {
		// The bid did not win, so standing limit orders on the slot get
		// their turn at the current price.
		if mErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return e.matcher.MatchAfterTick(ctx, tx, auctionID)
		}); mErr != nil {
			err = errors.Join(err, mErr)
		}
	}
	if err != nil && result != nil && result.Status == types.BidRejected {
		// Rejected bids are a normal engine outcome, not a settlement
		// failure: the auction continues and balances are untouched
		// (spec §7), so the caller gets both the rejected bid and the
		// reason. The bid row itself is not kept: the transaction that
		// wrote it returned the error and was rolled back.
		return result, err
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PlaceBidInTx admits a solo bid of amount against auctionID from agentID,
// within a transaction the caller already holds open (the limit-order
// matcher calls this from inside its own Tick transaction, so a nested
// engine-level transaction would deadlock/no-op on most drivers). It
// satisfies limitorder.BidPlacer.
func (e *Engine) PlaceBidInTx(tx *gorm.DB, auctionID, agentID string, amount decimal.Decimal, now time.Time) (accepted bool, bidID string, err error) {
	bid, err := e.placeBidInTx(tx, auctionID, PlaceBidInput{AgentID: agentID, Amount: amount, Now: now})
	if bid == nil {
		return false, "", err
	}
	return bid.Status == types.BidAccepted, bid.ID, err
}

func (e *Engine) placeBidInTx(tx *gorm.DB, auctionID string, in PlaceBidInput) (*types.Bid, error) {
	var a types.Auction
	if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
	}
	if a.Status != types.AuctionActive {
		return nil, errs.New(errs.StateInvalid, "auction %s is %s, not active", auctionID, a.Status)
	}

	var acceptedCount int64
	if err := tx.Model(&types.Bid{}).Where("auction_id = ? AND status = ?", auctionID, types.BidAccepted).Count(&acceptedCount).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "count accepted bids")
	}
	if acceptedCount > 0 {
		return nil, errs.New(errs.StateInvalid, "auction %s already has an accepted bid", auctionID)
	}

	if in.IsGroupBid {
		sum := decimal.Zero
		for _, m := range in.GroupMembers {
			sum = sum.Add(m.Contribution)
		}
		if !sum.Equal(in.Amount) {
			return nil, errs.New(errs.Validation, "group member contributions %s do not sum to bid amount %s", sum, in.Amount)
		}
	}

	strat, err := e.strategyFor(a.AuctionType)
	if err != nil {
		return nil, err
	}
	accept, paid := strat.Accepts(&a, in.Amount)

	bid := &types.Bid{
		ID:               ids.New(),
		AuctionID:        auctionID,
		AgentID:          in.AgentID,
		Amount:           in.Amount,
		IsGroupBid:       in.IsGroupBid,
		SplitWithAgentID: in.SplitWithAgentID,
		PlacedAt:         in.Now,
	}
	if !accept {
		bid.Status = types.BidRejected
		if err := tx.Create(bid).Error; err != nil {
			return nil, errs.Wrap(errs.Internal, err, "create rejected bid")
		}
		return bid, errs.New(errs.Validation, "bid amount %s below current price %s", in.Amount, a.CurrentPrice)
	}

	payers := in.GroupMembers
	if !in.IsGroupBid {
		payers = []GroupMemberInput{{AgentID: in.AgentID, Contribution: paid}}
	} else {
		// Scale each member's contribution proportionally so the sum
		// charged equals the cleared price, not the stated bid amount.
		scale := decimal.NewFromInt(1)
		if !in.Amount.IsZero() {
			scale = paid.Div(in.Amount)
		}
		scaled := make([]GroupMemberInput, len(in.GroupMembers))
		for i, m := range in.GroupMembers {
			scaled[i] = GroupMemberInput{AgentID: m.AgentID, Contribution: m.Contribution.Mul(scale)}
		}
		payers = scaled
	}

	for _, p := range payers {
		if err := e.ledger.Debit(context.Background(), tx, p.AgentID, p.Contribution, types.TxKindBidPayment, bid.ID); err != nil {
			return nil, err
		}
	}

	bid.Status = types.BidAccepted
	bid.Amount = paid
	if err := tx.Create(bid).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create accepted bid")
	}
	if in.IsGroupBid {
		for _, p := range payers {
			gm := &types.GroupBidMember{ID: ids.New(), BidID: bid.ID, AgentID: p.AgentID, Contribution: p.Contribution}
			if err := tx.Create(gm).Error; err != nil {
				return nil, errs.Wrap(errs.Internal, err, "create group bid member")
			}
		}
	}

	if e.settler != nil {
		if _, err := e.settler.SettleInTx(context.Background(), tx, auctionID, bid.ID, in.Now); err != nil {
			// Settlement failure rolls back the whole transaction (bid,
			// debits, group members included): nothing the caller sees as
			// "accepted" actually persists, per spec §4.1.
			return nil, err
		}
	}
	return bid, nil
}

// Resolve transitions an ACTIVE auction to COMPLETED once its accepted bid
// has been settled into a booking. Called by the booking service, never
// by PlaceBid itself.
func (e *Engine) Resolve(ctx context.Context, tx *gorm.DB, auctionID string, now time.Time) error {
	var a types.Auction
	if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
		return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
	}
	if a.Status != types.AuctionActive {
		return errs.New(errs.StateInvalid, "auction %s is %s, not active", auctionID, a.Status)
	}
	clearing := a.CurrentPrice
	a.Status = types.AuctionCompleted
	a.EndedAt = &now
	a.ClearingPrice = &clearing
	return tx.Save(&a).Error
}

// Cancel transitions a PENDING or ACTIVE auction to CANCELLED (e.g. the
// resource was withdrawn). Idempotent: cancelling an already-CANCELLED
// auction returns its current state without error.
func (e *Engine) Cancel(ctx context.Context, auctionID string, now time.Time) (*types.Auction, error) {
	lock := e.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	var out types.Auction
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a types.Auction
		if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
		}
		if a.Status == types.AuctionCancelled {
			out = a
			return nil
		}
		if a.Status == types.AuctionCompleted {
			return errs.New(errs.StateInvalid, "cannot cancel a completed auction")
		}
		a.Status = types.AuctionCancelled
		a.EndedAt = &now
		if err := tx.Save(&a).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "save auction")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
