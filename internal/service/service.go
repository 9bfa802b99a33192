// Package service is the external-interfaces façade spec §6 describes:
// Admin, Market, Agents, Booking, Simulation, and Grid-search operations,
// exposed as plain Go methods rather than HTTP handlers (transport is out
// of scope per spec §1). A future HTTP layer calls into these the way the
// teacher's internal/api package calls into internal/engine — this package
// is that seam, grounded in engine.Engine's role as the orchestrator wired
// in cmd/bot/main.go.
package service

import (
	"log/slog"

	"gorm.io/gorm"

	"roomauction/internal/auction"
	"roomauction/internal/booking"
	"roomauction/internal/catalogue"
	"roomauction/internal/clock"
	"roomauction/internal/ledger"
	"roomauction/internal/limitorder"
)

// Service wires every engine into the operation groups spec §6 names.
// Construct once per process (or once per simulated test harness) and reuse
// the sub-services it exposes.
type Service struct {
	Admin      *AdminService
	Market     *MarketService
	Agents     *AgentService
	Booking    *BookingService
	Simulation *SimulationService
	GridSearch *GridSearchService
}

// New wires a Service over db using clk as the market's time source.
// The *slog.Logger is passed down into each operation-group service
// rather than read from a package global; the engines themselves take no
// logger.
func New(db *gorm.DB, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	led := ledger.New()
	ae := auction.New(db, led)
	lom := limitorder.New(ae, clk.Now)
	ae.SetMatcher(lom)
	bsvc := booking.New(db, ae, led)
	ae.SetSettler(bsvc)
	cat := catalogue.New(db)

	return &Service{
		Admin:      &AdminService{db: db, catalogue: cat, logger: logger},
		Market:     &MarketService{db: db, auction: ae, limitorder: lom, clock: clk, logger: logger},
		Agents:     &AgentService{db: db, logger: logger},
		Booking:    &BookingService{db: db, booking: bsvc, clock: clk, logger: logger},
		Simulation: &SimulationService{db: db, clock: clk, auction: ae, catalogue: cat, ledger: led, logger: logger},
		GridSearch: &GridSearchService{catalogue: cat, logger: logger, jobs: newJobRegistry()},
	}
}
