package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/auction"
	"roomauction/internal/clock"
	"roomauction/internal/errs"
	"roomauction/internal/limitorder"
	"roomauction/pkg/types"
)

// MarketService implements spec §6's Market operation group: auction
// lifecycle, bidding, and standing limit orders.
type MarketService struct {
	db         *gorm.DB
	auction    *auction.Engine
	limitorder *limitorder.Matcher
	clock      clock.Clock
	logger     *slog.Logger
}

// AuctionFilter narrows list_auctions by status and/or auction type; zero
// values mean "don't filter on this field".
type AuctionFilter struct {
	Status      types.AuctionStatus
	AuctionType types.AuctionType
}

// ListAuctions returns every Auction matching filter, most recently
// created first.
func (s *MarketService) ListAuctions(ctx context.Context, filter AuctionFilter) ([]types.Auction, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AuctionType != "" {
		q = q.Where("auction_type = ?", filter.AuctionType)
	}
	var out []types.Auction
	if err := q.Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "list auctions")
	}
	return out, nil
}

// GetAuction loads one Auction by id.
func (s *MarketService) GetAuction(ctx context.Context, auctionID string) (*types.Auction, error) {
	var a types.Auction
	if err := s.db.WithContext(ctx).First(&a, "id = ?", auctionID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
	}
	return &a, nil
}

// StartAuction transitions a PENDING auction to ACTIVE at the current time.
func (s *MarketService) StartAuction(ctx context.Context, auctionID string) (*types.Auction, error) {
	a, err := s.auction.Start(ctx, auctionID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("auction started", "auction_id", auctionID)
	return a, nil
}

// TickAuction advances the auction's price by one step and runs the
// limit-order matcher against the new price.
func (s *MarketService) TickAuction(ctx context.Context, auctionID string) (*types.Auction, error) {
	return s.auction.Tick(ctx, auctionID, s.clock.Now())
}

// PlaceBidRequest is the external shape of place_bid's `bid` argument.
type PlaceBidRequest struct {
	AgentID      string
	Amount       decimal.Decimal
	IsGroupBid   bool
	GroupMembers []auction.GroupMemberInput
	// SplitWithAgentID names a partner to split the cost with, if this bid
	// wins (spec §4.4). Solo bids only.
	SplitWithAgentID string
}

// PlaceBid submits bid against auctionID at the current time.
func (s *MarketService) PlaceBid(ctx context.Context, auctionID string, bid PlaceBidRequest) (*types.Bid, error) {
	return s.auction.PlaceBid(ctx, auctionID, auction.PlaceBidInput{
		AgentID:          bid.AgentID,
		Amount:           bid.Amount,
		IsGroupBid:       bid.IsGroupBid,
		GroupMembers:     bid.GroupMembers,
		SplitWithAgentID: bid.SplitWithAgentID,
		Now:              s.clock.Now(),
	})
}

// CreateLimitOrder registers a standing order for agentID on the TimeSlot
// behind auctionID, to be matched per spec §4.3 after every subsequent
// tick or bid on that slot.
func (s *MarketService) CreateLimitOrder(ctx context.Context, auctionID, agentID string, maxPrice decimal.Decimal) (*types.LimitOrder, error) {
	var a types.Auction
	if err := s.db.WithContext(ctx).First(&a, "id = ?", auctionID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
	}
	var order *types.LimitOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = limitorder.Create(tx, agentID, a.TimeSlotID, maxPrice, s.clock.Now())
		return txErr
	})
	return order, err
}

// CancelLimitOrder transitions a PENDING limit order to CANCELLED.
func (s *MarketService) CancelLimitOrder(ctx context.Context, orderID string) (*types.LimitOrder, error) {
	var order *types.LimitOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = limitorder.Cancel(tx, orderID)
		return txErr
	})
	return order, err
}

// GetPriceHistory returns every recorded price sample for auctionID,
// oldest first.
func (s *MarketService) GetPriceHistory(ctx context.Context, auctionID string) ([]types.PriceHistory, error) {
	var out []types.PriceHistory
	err := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("recorded_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load price history for auction %s", auctionID)
	}
	return out, nil
}

// MarketState is the dashboard-facing snapshot market_state() returns:
// counts by auction status plus the currently active auctions, enough for
// a read-only client to render without its own queries.
type MarketState struct {
	ObservedAt       time.Time
	PendingCount     int64
	ActiveCount      int64
	CompletedCount   int64
	CancelledCount   int64
	ActiveAuctions   []types.Auction
	PricingModelVersion int
}

// MarketState reports the current auction mix.
func (s *MarketService) MarketState(ctx context.Context) (*MarketState, error) {
	state := &MarketState{ObservedAt: s.clock.Now()}
	counts := []struct {
		status types.AuctionStatus
		dest   *int64
	}{
		{types.AuctionPending, &state.PendingCount},
		{types.AuctionActive, &state.ActiveCount},
		{types.AuctionCompleted, &state.CompletedCount},
		{types.AuctionCancelled, &state.CancelledCount},
	}
	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(&types.Auction{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return nil, errs.Wrap(errs.Internal, err, "count %s auctions", c.status)
		}
	}
	if err := s.db.WithContext(ctx).Where("status = ?", types.AuctionActive).Find(&state.ActiveAuctions).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load active auctions")
	}
	var cfg types.AdminConfig
	if err := s.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err == nil {
		state.PricingModelVersion = cfg.PricingModelVersion
	}
	return state, nil
}
