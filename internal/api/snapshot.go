package api

import (
	"context"
	"time"

	"roomauction/internal/service"
)

// BuildSnapshot aggregates market and simulation state from svc into a
// dashboard snapshot.
func BuildSnapshot(ctx context.Context, svc *service.Service) (DashboardSnapshot, error) {
	market, err := svc.Market.MarketState(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	sim, err := svc.Simulation.Results(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	return DashboardSnapshot{
		Timestamp:  time.Now(),
		Market:     market,
		Simulation: sim,
	}, nil
}
