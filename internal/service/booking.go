package service

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"roomauction/internal/booking"
	"roomauction/internal/clock"
	"roomauction/pkg/types"
)

// BookingService implements spec §6's Booking operation group: the
// split-payment and sell-back follow-on flows over a confirmed Booking.
// It is a thin wrapper over internal/booking.Service, the same seam
// MarketService is over internal/auction.Engine — settlement itself
// happens inside booking.Service.SettleInTx, invoked from the auction
// engine's bid transaction (manual bids and limit-order fills alike)
// rather than exposed here directly. The split invitation itself is
// not a separate operation: a bid that names a split partner
// (MarketService.PlaceBid's PlaceBidRequest.SplitWithAgentID) already puts
// the booking settlement creates into split_status=PENDING, so this
// service only ever resolves that invitation via AcceptSplit/RejectSplit.
type BookingService struct {
	db      *gorm.DB
	booking *booking.Service
	clock   clock.Clock
	logger  *slog.Logger
}

// AcceptSplit accepts bookingID's pending split invitation, transferring
// 50% of the original bid amount from the partner to the original booker.
func (s *BookingService) AcceptSplit(ctx context.Context, bookingID string) (*types.Booking, error) {
	b, err := s.booking.AcceptSplit(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking split accepted", "booking_id", bookingID)
	return b, nil
}

// RejectSplit rejects bookingID's pending split invitation. Terminal:
// rejecting an already-accepted split fails StateInvalid.
func (s *BookingService) RejectSplit(ctx context.Context, bookingID string) (*types.Booking, error) {
	return s.booking.RejectSplit(ctx, bookingID)
}

// SellBack refunds 80% of the paid price to the booking's owner, cancels
// it, and opens a brand new auction for the freed slot.
func (s *BookingService) SellBack(ctx context.Context, bookingID string) (*types.Auction, error) {
	a, err := s.booking.SellBack(ctx, bookingID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking sold back", "booking_id", bookingID)
	return a, nil
}
