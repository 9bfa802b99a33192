// Package booking implements settlement: turning an auction's accepted bid
// into one or more Booking rows, plus the sell-back and split-payment
// follow-on flows, grounded in
// original_source/Backend/app/services/booking_service.py and spec §4.4.
package booking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"roomauction/internal/auction"
	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/internal/ledger"
	"roomauction/pkg/types"
)

// Service settles bids into bookings and handles sell-back/split flows.
type Service struct {
	db      *gorm.DB
	auction *auction.Engine
	ledger  *ledger.Ledger
}

// New returns a Service bound to db, the auction engine, and the ledger.
func New(db *gorm.DB, ae *auction.Engine, l *ledger.Ledger) *Service {
	return &Service{db: db, auction: ae, ledger: l}
}

// Settle turns bid (already ACCEPTED by the auction engine) into bookings
// for each participant, in the exact order spec §4.4 gives:
//
//  1. load participants (the bid's agent for a solo bid, or its
//     GroupMembers for a group bid)
//  2. skip any participant who already has a booking on this slot; if that
//     leaves zero participants, the whole settlement fails with
//     DuplicateBooking (the solo case: the single participant was already
//     booked, so there is nothing left to settle)
//  3. reject the whole settlement if any remaining participant already
//     holds a booking whose slot overlaps this one in time
//  4. reject if the slot's remaining capacity is less than the number of
//     remaining participants
//  5. reject any participant over their max_bookings quota — this also
//     fails the whole settlement, since spec's capacity model books every
//     participant or none
//  6. insert one Booking per participant (never one booking for a group
//     leader — spec §9(c))
//  7. transition the slot to BOOKED only once total bookings == capacity
//  8. resolve the auction to COMPLETED
func (s *Service) Settle(ctx context.Context, auctionID, bidID string, now time.Time) ([]types.Booking, error) {
	var created []types.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		created, txErr = s.settle(ctx, tx, auctionID, bidID, now)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SettleInTx runs the same settlement spec §4.4 describes, but inside a
// transaction the caller already holds open. The auction engine's PlaceBid
// calls this from within the transaction that just accepted the winning
// bid, so a settlement failure rolls back the bid, its ledger debits, and
// the settlement attempt together (spec §4.1). It satisfies
// auction.Settler.
func (s *Service) SettleInTx(ctx context.Context, tx *gorm.DB, auctionID, bidID string, now time.Time) ([]types.Booking, error) {
	return s.settle(ctx, tx, auctionID, bidID, now)
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, auctionID, bidID string, now time.Time) ([]types.Booking, error) {
	var created []types.Booking
	err := func() error {
		var a types.Auction
		if err := tx.First(&a, "id = ?", auctionID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "auction %s not found", auctionID)
		}
		var bid types.Bid
		if err := tx.Preload("GroupMembers").First(&bid, "id = ?", bidID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "bid %s not found", bidID)
		}
		if bid.Status != types.BidAccepted {
			return errs.New(errs.StateInvalid, "bid %s is %s, not accepted", bidID, bid.Status)
		}

		var slot types.TimeSlot
		if err := tx.First(&slot, "id = ?", a.TimeSlotID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "time slot %s not found", a.TimeSlotID)
		}
		var resource types.Resource
		if err := tx.First(&resource, "id = ?", slot.ResourceID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "resource %s not found", slot.ResourceID)
		}

		participants := participantsOf(bid)

		remaining := make([]string, 0, len(participants))
		for _, agentID := range participants {
			var dup int64
			if err := tx.Model(&types.Booking{}).
				Where("time_slot_id = ? AND agent_id = ? AND status = ?", slot.ID, agentID, types.BookingActive).
				Count(&dup).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "check duplicate booking")
			}
			if dup > 0 {
				continue
			}
			remaining = append(remaining, agentID)
		}
		if len(remaining) == 0 {
			return errs.New(errs.DuplicateBooking, "all participants already hold a booking for slot %s", slot.ID)
		}

		for _, agentID := range remaining {
			overlap, err := s.hasOverlap(tx, agentID, slot)
			if err != nil {
				return err
			}
			if overlap {
				return errs.New(errs.OverlapBooking, "agent %s already has an overlapping booking", agentID)
			}
		}

		var existingBookings int64
		if err := tx.Model(&types.Booking{}).
			Where("time_slot_id = ? AND status = ?", slot.ID, types.BookingActive).
			Count(&existingBookings).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "count existing bookings")
		}
		if int(existingBookings)+len(remaining) > resource.Capacity {
			return errs.New(errs.CapacityExceeded, "slot %s has no room for %d more participants", slot.ID, len(remaining))
		}

		for _, agentID := range remaining {
			var agent types.Agent
			if err := tx.First(&agent, "id = ?", agentID).Error; err != nil {
				return errs.Wrap(errs.NotFound, err, "agent %s not found", agentID)
			}
			var agentBookings int64
			if err := tx.Model(&types.Booking{}).
				Where("agent_id = ? AND status = ?", agentID, types.BookingActive).
				Count(&agentBookings).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "count agent bookings")
			}
			if int(agentBookings) >= agent.MaxBookings {
				return errs.New(errs.QuotaExceeded, "agent %s is at their max_bookings quota", agentID)
			}
		}

		for _, agentID := range remaining {
			b := types.Booking{
				ID:         ids.New(),
				TimeSlotID: slot.ID,
				AgentID:    agentID,
				BidID:      bidID,
				Status:     types.BookingActive,
				CreatedAt:  now,
			}
			// A bid carrying a split partner puts the bidder's own booking
			// straight into split_status=PENDING at creation (spec §4.4);
			// there is no separate booking row for the partner until
			// AcceptSplit moves tokens.
			if !bid.IsGroupBid && agentID == bid.AgentID && bid.SplitWithAgentID != "" {
				b.SplitStatus = types.SplitPending
				b.SplitWithAgentID = bid.SplitWithAgentID
			}
			if err := tx.Create(&b).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "create booking")
			}
			created = append(created, b)
		}

		var totalBookings int64
		if err := tx.Model(&types.Booking{}).
			Where("time_slot_id = ? AND status = ?", slot.ID, types.BookingActive).
			Count(&totalBookings).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "recount bookings")
		}
		if int(totalBookings) == resource.Capacity {
			slot.Status = types.SlotBooked
			if err := tx.Save(&slot).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "book slot")
			}
		}

		return s.auction.Resolve(ctx, tx, auctionID, now)
	}()
	if err != nil {
		return nil, err
	}
	return created, nil
}

func participantsOf(bid types.Bid) []string {
	if !bid.IsGroupBid || len(bid.GroupMembers) == 0 {
		return []string{bid.AgentID}
	}
	out := make([]string, 0, len(bid.GroupMembers))
	for _, m := range bid.GroupMembers {
		out = append(out, m.AgentID)
	}
	return out
}

func (s *Service) hasOverlap(tx *gorm.DB, agentID string, slot types.TimeSlot) (bool, error) {
	var bookings []types.Booking
	if err := tx.Where("agent_id = ? AND status = ?", agentID, types.BookingActive).Find(&bookings).Error; err != nil {
		return false, errs.Wrap(errs.Internal, err, "load agent bookings")
	}
	for _, b := range bookings {
		var other types.TimeSlot
		if err := tx.First(&other, "id = ?", b.TimeSlotID).Error; err != nil {
			continue
		}
		if other.ID == slot.ID {
			continue
		}
		if slot.Start.Before(other.End) && other.Start.Before(slot.End) {
			return true, nil
		}
	}
	return false, nil
}

// SellBack refunds 80% of the booking's paid price to its agent, cancels
// the booking (a terminal transition — sell-back on an already-cancelled
// booking returns its current state without error, per spec §7's
// idempotent-terminal-transition rule), resets the slot to IN_AUCTION, and
// opens a brand new ACTIVE auction for it. Spec §9(b) is explicit that a
// sold-back slot never resurrects its COMPLETED auction.
func (s *Service) SellBack(ctx context.Context, bookingID string, now time.Time) (*types.Auction, error) {
	var newAuction *types.Auction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b types.Booking
		if err := tx.First(&b, "id = ?", bookingID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "booking %s not found", bookingID)
		}
		if b.Status == types.BookingCancelled {
			return nil // idempotent: already sold back, no replacement auction to report
		}

		var bid types.Bid
		if err := tx.First(&bid, "id = ?", b.BidID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "bid %s not found", b.BidID)
		}
		refund := ledger.SellBackRefund(bid.Amount)
		if err := s.ledger.Credit(ctx, tx, b.AgentID, refund, types.TxKindSellBackRefund, b.ID); err != nil {
			return err
		}

		b.Status = types.BookingCancelled
		if err := tx.Save(&b).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "cancel booking")
		}

		var slot types.TimeSlot
		if err := tx.First(&slot, "id = ?", b.TimeSlotID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "time slot %s not found", b.TimeSlotID)
		}
		slot.Status = types.SlotInAuction
		if err := tx.Save(&slot).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "reset slot")
		}

		var oldAuction types.Auction
		if err := tx.First(&oldAuction, "id = ?", bid.AuctionID).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "load original auction")
		}
		newAuction = &types.Auction{
			ID:              ids.New(),
			TimeSlotID:      slot.ID,
			AuctionType:     oldAuction.AuctionType,
			Status:          types.AuctionActive,
			StartPrice:      oldAuction.StartPrice,
			CurrentPrice:    oldAuction.StartPrice,
			MinPrice:        oldAuction.MinPrice,
			PriceStep:       oldAuction.PriceStep,
			TickIntervalSec: oldAuction.TickIntervalSec,
			StartedAt:       &now,
		}
		if err := tx.Create(newAuction).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "create replacement auction")
		}
		ph := types.PriceHistory{ID: ids.New(), AuctionID: newAuction.ID, Price: newAuction.CurrentPrice, RecordedAt: now}
		return tx.Create(&ph).Error
	})
	if err != nil {
		return nil, err
	}
	return newAuction, nil
}

// AcceptSplit transfers 50% of the original bid amount from the partner
// (booking.SplitWithAgentID) to the booker (booking.AgentID) and flips the
// booking's split status to SplitAccepted. The partner side of the split
// has no booking row of its own — the invitation and its resolution both
// live on the booking the bid itself created (spec §4.4).
func (s *Service) AcceptSplit(ctx context.Context, bookingID string) (*types.Booking, error) {
	var out types.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b types.Booking
		if err := tx.First(&b, "id = ?", bookingID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "booking %s not found", bookingID)
		}
		if b.SplitStatus == types.SplitAccepted {
			out = b
			return nil // idempotent
		}
		if b.SplitStatus != types.SplitPending {
			return errs.New(errs.StateInvalid, "booking %s split status is %s, not pending", bookingID, b.SplitStatus)
		}

		var bid types.Bid
		if err := tx.First(&bid, "id = ?", b.BidID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "bid %s not found", b.BidID)
		}
		share := ledger.SplitShare(bid.Amount)
		if err := s.ledger.Debit(ctx, tx, b.SplitWithAgentID, share, types.TxKindSplitPayment, b.ID); err != nil {
			return err
		}
		if err := s.ledger.Credit(ctx, tx, b.AgentID, share, types.TxKindSplitReimbursement, b.ID); err != nil {
			return err
		}

		b.SplitStatus = types.SplitAccepted
		if err := tx.Save(&b).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "accept split")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectSplit is a terminal transition: it marks the booking's split
// REJECTED and never touches the booking itself. Rejecting a split that
// has already been ACCEPTED fails StateInvalid — acceptance already moved
// tokens, and spec §8's round-trip law requires accept-then-reject to fail
// rather than silently flip the terminal state back.
func (s *Service) RejectSplit(ctx context.Context, bookingID string) (*types.Booking, error) {
	var out types.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b types.Booking
		if err := tx.First(&b, "id = ?", bookingID).Error; err != nil {
			return errs.Wrap(errs.NotFound, err, "booking %s not found", bookingID)
		}
		if b.SplitStatus == types.SplitRejected {
			out = b
			return nil // idempotent
		}
		if b.SplitStatus == types.SplitAccepted {
			return errs.New(errs.StateInvalid, "booking %s split was already accepted", bookingID)
		}
		b.SplitStatus = types.SplitRejected
		if err := tx.Save(&b).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "reject split")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
