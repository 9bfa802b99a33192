package limitorder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"roomauction/internal/auction"
	"roomauction/internal/ids"
	"roomauction/internal/ledger"
	"roomauction/internal/store"
	"roomauction/pkg/types"
)

func TestMatchAfterTickExecutesWhenThresholdCrossed(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ae := auction.New(s.DB(), ledger.New())
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	matcher := New(ae, func() time.Time { return now })
	ae.SetMatcher(matcher)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100)}).Error)

	slotID := ids.New()
	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID: auctionID, TimeSlotID: slotID, AuctionType: types.AuctionDutch, Status: types.AuctionPending,
		StartPrice: decimal.NewFromInt(80), CurrentPrice: decimal.NewFromInt(80),
		MinPrice: decimal.NewFromInt(5), PriceStep: decimal.NewFromInt(10),
	}).Error)
	_, err = ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	order, err := Create(s.DB(), agentID, slotID, decimal.NewFromInt(75), now)
	require.NoError(t, err)

	_, err = ae.Tick(context.Background(), auctionID, now) // 80 -> 70, crosses max_price 75
	require.NoError(t, err)

	var got types.LimitOrder
	require.NoError(t, s.DB().First(&got, "id = ?", order.ID).Error)
	require.Equal(t, types.LimitOrderExecuted, got.Status)
	require.NotEmpty(t, got.BidID)

	var agent types.Agent
	require.NoError(t, s.DB().First(&agent, "id = ?", agentID).Error)
	require.True(t, agent.TokenBalance.Equal(decimal.NewFromInt(30)), "got %s", agent.TokenBalance)
}

func TestMatchAfterTickExpiresOnInsufficientBalance(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ae := auction.New(s.DB(), ledger.New())
	now := time.Now()
	matcher := New(ae, func() time.Time { return now })
	ae.SetMatcher(matcher)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(1)}).Error)

	slotID := ids.New()
	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID: auctionID, TimeSlotID: slotID, AuctionType: types.AuctionDutch, Status: types.AuctionPending,
		StartPrice: decimal.NewFromInt(80), CurrentPrice: decimal.NewFromInt(80),
		MinPrice: decimal.NewFromInt(5), PriceStep: decimal.NewFromInt(10),
	}).Error)
	_, err = ae.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	order, err := Create(s.DB(), agentID, slotID, decimal.NewFromInt(75), now)
	require.NoError(t, err)

	_, err = ae.Tick(context.Background(), auctionID, now)
	require.NoError(t, err)

	var got types.LimitOrder
	require.NoError(t, s.DB().First(&got, "id = ?", order.ID).Error)
	require.Equal(t, types.LimitOrderExpired, got.Status)
	require.NotEmpty(t, got.Reason)
}

func TestCancelIsIdempotent(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	order, err := Create(s.DB(), ids.New(), ids.New(), decimal.NewFromInt(50), time.Now())
	require.NoError(t, err)

	first, err := Cancel(s.DB(), order.ID)
	require.NoError(t, err)
	require.Equal(t, types.LimitOrderCancelled, first.Status)

	second, err := Cancel(s.DB(), order.ID)
	require.NoError(t, err)
	require.Equal(t, types.LimitOrderCancelled, second.Status)
}
