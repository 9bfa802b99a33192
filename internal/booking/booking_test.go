package booking

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"roomauction/internal/auction"
	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/internal/ledger"
	"roomauction/internal/store"
	"roomauction/pkg/types"
)

func newFixture(t *testing.T) (*store.Store, *auction.Engine, *Service) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ae := auction.New(s.DB(), ledger.New())
	svc := New(s.DB(), ae, ledger.New())
	return s, ae, svc
}

func createSlotAndAuction(t *testing.T, s *store.Store, capacity int, start time.Time) (string, string) {
	t.Helper()
	resourceID := ids.New()
	require.NoError(t, s.DB().Create(&types.Resource{ID: resourceID, Capacity: capacity}).Error)
	slotID := ids.New()
	require.NoError(t, s.DB().Create(&types.TimeSlot{ID: slotID, ResourceID: resourceID, Start: start, End: start.Add(time.Hour), Status: types.SlotInAuction}).Error)
	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID: auctionID, TimeSlotID: slotID, AuctionType: types.AuctionDutch, Status: types.AuctionPending,
		StartPrice: decimal.NewFromInt(50), CurrentPrice: decimal.NewFromInt(50),
		MinPrice: decimal.NewFromInt(5), PriceStep: decimal.NewFromInt(5),
	}).Error)
	return slotID, auctionID
}

func TestSettleSoloBookingMarksSlotBooked(t *testing.T) {
	s, ae, svc := newFixture(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	slotID, auctionID := createSlotAndAuction(t, s, 1, now)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 5}).Error)
	_, err := ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	bid, err := ae.PlaceBid(context.Background(), auctionID, auction.PlaceBidInput{AgentID: agentID, Amount: decimal.NewFromInt(50), Now: now})
	require.NoError(t, err)

	bookings, err := svc.Settle(context.Background(), auctionID, bid.ID, now)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	var slot types.TimeSlot
	require.NoError(t, s.DB().First(&slot, "id = ?", slotID).Error)
	require.Equal(t, types.SlotBooked, slot.Status)

	var a types.Auction
	require.NoError(t, s.DB().First(&a, "id = ?", auctionID).Error)
	require.Equal(t, types.AuctionCompleted, a.Status)
}

func TestSettleDuplicateBookingFails(t *testing.T) {
	s, ae, svc := newFixture(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	slotID, auctionID := createSlotAndAuction(t, s, 1, now)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 5}).Error)
	require.NoError(t, s.DB().Create(&types.Booking{ID: ids.New(), TimeSlotID: slotID, AgentID: agentID, Status: types.BookingActive}).Error)

	_, err := ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)
	bid, err := ae.PlaceBid(context.Background(), auctionID, auction.PlaceBidInput{AgentID: agentID, Amount: decimal.NewFromInt(50), Now: now})
	require.NoError(t, err)

	_, err = svc.Settle(context.Background(), auctionID, bid.ID, now)
	require.Error(t, err)
	require.Equal(t, errs.DuplicateBooking, errs.KindOf(err))
}

func TestSellBackRefundsAndOpensNewAuction(t *testing.T) {
	s, ae, svc := newFixture(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	slotID, auctionID := createSlotAndAuction(t, s, 1, now)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 5}).Error)
	_, err := ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)
	bid, err := ae.PlaceBid(context.Background(), auctionID, auction.PlaceBidInput{AgentID: agentID, Amount: decimal.NewFromInt(50), Now: now})
	require.NoError(t, err)
	bookings, err := svc.Settle(context.Background(), auctionID, bid.ID, now)
	require.NoError(t, err)

	newAuction, err := svc.SellBack(context.Background(), bookings[0].ID, now)
	require.NoError(t, err)
	require.Equal(t, types.AuctionActive, newAuction.Status)
	require.NotEqual(t, auctionID, newAuction.ID)

	var slot types.TimeSlot
	require.NoError(t, s.DB().First(&slot, "id = ?", slotID).Error)
	require.Equal(t, types.SlotInAuction, slot.Status)

	var agent types.Agent
	require.NoError(t, s.DB().First(&agent, "id = ?", agentID).Error)
	// paid 50, refunded 80% = 40, started at 100-50=50, ends at 90
	require.True(t, agent.TokenBalance.Equal(decimal.NewFromInt(90)), "got %s", agent.TokenBalance)

	// idempotent: sell-back on the now-cancelled booking is a no-op
	again, err := svc.SellBack(context.Background(), bookings[0].ID, now)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestSplitAcceptTransfersHalf(t *testing.T) {
	s, ae, svc := newFixture(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	_, auctionID := createSlotAndAuction(t, s, 2, now)

	agentID := ids.New()
	partnerID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 5}).Error)
	require.NoError(t, s.DB().Create(&types.Agent{ID: partnerID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 5}).Error)

	_, err := ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)
	bid, err := ae.PlaceBid(context.Background(), auctionID, auction.PlaceBidInput{
		AgentID: agentID, Amount: decimal.NewFromInt(50), SplitWithAgentID: partnerID, Now: now,
	})
	require.NoError(t, err)
	bookings, err := svc.Settle(context.Background(), auctionID, bid.ID, now)
	require.NoError(t, err)
	require.Equal(t, types.SplitPending, bookings[0].SplitStatus)
	require.Equal(t, partnerID, bookings[0].SplitWithAgentID)

	accepted, err := svc.AcceptSplit(context.Background(), bookings[0].ID)
	require.NoError(t, err)
	require.Equal(t, types.SplitAccepted, accepted.SplitStatus)

	var original, partner types.Agent
	require.NoError(t, s.DB().First(&original, "id = ?", agentID).Error)
	require.NoError(t, s.DB().First(&partner, "id = ?", partnerID).Error)
	// original paid 50 up front, then reimbursed 25 -> net -25 -> balance 75
	require.True(t, original.TokenBalance.Equal(decimal.NewFromInt(75)), "got %s", original.TokenBalance)
	// partner paid 25 -> balance 75
	require.True(t, partner.TokenBalance.Equal(decimal.NewFromInt(75)), "got %s", partner.TokenBalance)
}
