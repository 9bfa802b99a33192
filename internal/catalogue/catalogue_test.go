package catalogue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"roomauction/internal/store"
	"roomauction/pkg/types"
)

func defaults() types.AdminConfig {
	return types.AdminConfig{
		TokenAllocationAmount: decimal.NewFromInt(100),
		MaxBookingsPerAgent:   5,
		DefaultAuctionType:    types.AuctionDutch,
		DutchStartPrice:       decimal.NewFromInt(80),
		DutchMinPrice:         decimal.NewFromInt(5),
		DutchPriceStep:        decimal.NewFromInt(3),
	}
}

func TestGetConfigSeedsDefaultsOnFirstCall(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	c := New(s.DB())
	cfg, err := c.GetConfig(context.Background(), defaults())
	require.NoError(t, err)
	require.True(t, cfg.TokenAllocationAmount.Equal(decimal.NewFromInt(100)))
	require.Equal(t, 0, cfg.PricingModelVersion)

	again, err := c.GetConfig(context.Background(), types.AdminConfig{TokenAllocationAmount: decimal.NewFromInt(999)})
	require.NoError(t, err)
	require.True(t, again.TokenAllocationAmount.Equal(decimal.NewFromInt(100)), "seed must not be re-applied on a second call")
}

func TestUpdateConfigBumpsVersion(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	c := New(s.DB())
	_, err = c.GetConfig(context.Background(), defaults())
	require.NoError(t, err)

	updated, err := c.UpdateConfig(context.Background(), func(cfg *types.AdminConfig) {
		cfg.GlobalPriceModifier = 1.2
	})
	require.NoError(t, err)
	require.Equal(t, 1, updated.PricingModelVersion)
	require.Equal(t, 1.2, updated.GlobalPriceModifier)

	updated2, err := c.UpdateConfig(context.Background(), func(cfg *types.AdminConfig) {
		cfg.GlobalPriceModifier = 1.5
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated2.PricingModelVersion)
}

const sampleCSV = "Building,Room Name,Capacity,Date,Time,Status\n" +
	"Library,Study A,4,2026-02-02,09:00,Available\n" +
	"Library,Study A,4,2026-02-02,14:00,Booked\n" +
	"Gym,Court 1,10,2026-02-03,09:00,Available\n"

func TestImportResourcesCreatesSlotsAndAuctions(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	c := New(s.DB())
	dd := DutchDefaults{
		StartPrice: decimal.NewFromInt(80), MinPrice: decimal.NewFromInt(5),
		PriceStep: decimal.NewFromInt(3), TickIntervalSec: 10,
	}
	imported, locPop, timePop, err := c.ImportResources(context.Background(), []byte(sampleCSV), dd)
	require.NoError(t, err)
	require.Equal(t, 3, imported)

	var resources []types.Resource
	require.NoError(t, s.DB().Find(&resources).Error)
	require.Len(t, resources, 2, "Library Study A should be upserted once, not duplicated")

	var slots []types.TimeSlot
	require.NoError(t, s.DB().Find(&slots).Error)
	require.Len(t, slots, 3)

	var bookedCount, inAuctionCount int
	for _, sl := range slots {
		switch sl.Status {
		case types.SlotBooked:
			bookedCount++
		case types.SlotInAuction:
			inAuctionCount++
		}
	}
	require.Equal(t, 1, bookedCount)
	require.Equal(t, 2, inAuctionCount)

	var auctions []types.Auction
	require.NoError(t, s.DB().Find(&auctions).Error)
	require.Len(t, auctions, 2, "only non-booked slots get an attached auction")
	for _, a := range auctions {
		require.Equal(t, types.AuctionPending, a.Status)
		require.True(t, a.StartPrice.Equal(decimal.NewFromInt(80)))
	}

	require.Contains(t, locPop, "Library")
	require.Contains(t, timePop, "1-14") // 2026-02-02 is a Monday -> weekday 1
}

func TestImportResourcesRejectsMissingColumn(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	c := New(s.DB())
	_, _, _, err = c.ImportResources(context.Background(), []byte("Building,Room Name\nA,B\n"), DutchDefaults{})
	require.Error(t, err)
}

func TestResetAndReloadDefaultsClearsTables(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	c := New(s.DB())
	_, _, _, err = c.ImportResources(context.Background(), []byte(sampleCSV), DutchDefaults{
		StartPrice: decimal.NewFromInt(80), MinPrice: decimal.NewFromInt(5), PriceStep: decimal.NewFromInt(3),
	})
	require.NoError(t, err)

	require.NoError(t, c.ResetAndReloadDefaults(context.Background(), defaults()))

	var resources []types.Resource
	require.NoError(t, s.DB().Find(&resources).Error)
	require.Empty(t, resources)

	cfg, err := c.GetConfig(context.Background(), types.AdminConfig{})
	require.NoError(t, err)
	require.True(t, cfg.TokenAllocationAmount.Equal(decimal.NewFromInt(100)))
}
