package auction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"roomauction/internal/ids"
	"roomauction/internal/ledger"
	"roomauction/internal/store"
	"roomauction/pkg/types"
)

func setup(t *testing.T) (*store.Store, *Engine) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	e := New(s.DB(), ledger.New())
	return s, e
}

// TestScenarioFiveTicksThenBid reproduces spec's end-to-end scenario 1:
// start 80 / min 5 / step 3, five ticks, a bid of 65 is accepted, the
// bidder's balance ends at 35 (started at 100), and price_history reads
// [80, 77, 74, 71, 68, 65].
func TestScenarioFiveTicksThenBid(t *testing.T) {
	s, e := setup(t)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100), MaxBookings: 10}).Error)

	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID:              auctionID,
		AuctionType:     types.AuctionDutch,
		Status:          types.AuctionPending,
		StartPrice:      decimal.NewFromInt(80),
		CurrentPrice:    decimal.NewFromInt(80),
		MinPrice:        decimal.NewFromInt(5),
		PriceStep:       decimal.NewFromInt(3),
		TickIntervalSec: 10,
	}).Error)

	_, err := e.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		_, err := e.Tick(context.Background(), auctionID, now)
		require.NoError(t, err)
	}

	var a types.Auction
	require.NoError(t, s.DB().First(&a, "id = ?", auctionID).Error)
	require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(65)), "got %s", a.CurrentPrice)

	var history []types.PriceHistory
	require.NoError(t, s.DB().Where("auction_id = ?", auctionID).Order("recorded_at asc").Find(&history).Error)
	require.Len(t, history, 6)
	want := []int64{80, 77, 74, 71, 68, 65}
	for i, w := range want {
		require.True(t, history[i].Price.Equal(decimal.NewFromInt(w)), "index %d: got %s want %d", i, history[i].Price, w)
	}

	bid, err := e.PlaceBid(context.Background(), auctionID, PlaceBidInput{
		AgentID: agentID,
		Amount:  decimal.NewFromInt(65),
		Now:     now,
	})
	require.NoError(t, err)
	require.Equal(t, types.BidAccepted, bid.Status)
	require.True(t, bid.Amount.Equal(decimal.NewFromInt(65)))

	var agent types.Agent
	require.NoError(t, s.DB().First(&agent, "id = ?", agentID).Error)
	require.True(t, agent.TokenBalance.Equal(decimal.NewFromInt(35)), "got %s", agent.TokenBalance)
}

func TestPlaceBidBelowCurrentPriceRejected(t *testing.T) {
	s, e := setup(t)
	now := time.Now()
	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(100)}).Error)

	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID: auctionID, AuctionType: types.AuctionDutch, Status: types.AuctionPending,
		StartPrice: decimal.NewFromInt(80), CurrentPrice: decimal.NewFromInt(80),
		MinPrice: decimal.NewFromInt(5), PriceStep: decimal.NewFromInt(3),
	}).Error)
	_, err := e.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	bid, err := e.PlaceBid(context.Background(), auctionID, PlaceBidInput{
		AgentID: agentID, Amount: decimal.NewFromInt(10), Now: now,
	})
	require.Error(t, err)
	require.Equal(t, types.BidRejected, bid.Status)

	var agent types.Agent
	require.NoError(t, s.DB().First(&agent, "id = ?", agentID).Error)
	require.True(t, agent.TokenBalance.Equal(decimal.NewFromInt(100)), "balance must be untouched on rejection")
}

func TestReboundAfterFloor(t *testing.T) {
	s, e := setup(t)
	now := time.Now()
	auctionID := ids.New()
	require.NoError(t, s.DB().Create(&types.Auction{
		ID: auctionID, AuctionType: types.AuctionDutch, Status: types.AuctionPending,
		StartPrice: decimal.NewFromInt(20), CurrentPrice: decimal.NewFromInt(20),
		MinPrice: decimal.NewFromInt(10), PriceStep: decimal.NewFromInt(8),
	}).Error)
	_, err := e.Start(context.Background(), auctionID, now)
	require.NoError(t, err)

	// tick 1: 20 -> 12
	_, err = e.Tick(context.Background(), auctionID, now)
	require.NoError(t, err)
	// tick 2: 12 -> floors at 10 (min), rebound begins
	_, err = e.Tick(context.Background(), auctionID, now)
	require.NoError(t, err)
	var a types.Auction
	require.NoError(t, s.DB().First(&a, "id = ?", auctionID).Error)
	require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(10)))
	require.True(t, a.ReboundFloor)

	// tick 3: rebound climbs 10 -> 18
	_, err = e.Tick(context.Background(), auctionID, now)
	require.NoError(t, err)
	require.NoError(t, s.DB().First(&a, "id = ?", auctionID).Error)
	require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(18)))
}
