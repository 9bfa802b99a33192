package service

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"roomauction/internal/auction"
	"roomauction/internal/catalogue"
	"roomauction/internal/clock"
	"roomauction/internal/errs"
	"roomauction/internal/ledger"
	"roomauction/pkg/types"
)

// SimulationService implements spec §6's Simulation operation group: the
// live, database-backed simulated-clock harness (distinct from
// internal/simulator's self-contained off-line driver). The "current
// time" it advances is AdminConfig.SimulatedClock, per spec §6's "a
// simulated current time is stored in AdminConfig".
type SimulationService struct {
	db        *gorm.DB
	clock     clock.Clock
	auction   *auction.Engine
	catalogue *catalogue.Catalogue
	ledger    *ledger.Ledger
	logger    *slog.Logger
}

func (s *SimulationService) currentTime(ctx context.Context) (time.Time, error) {
	var cfg types.AdminConfig
	if err := s.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err != nil {
		return time.Time{}, errs.Wrap(errs.NotFound, err, "admin config not initialized")
	}
	return cfg.SimulatedClock, nil
}

func (s *SimulationService) setTime(ctx context.Context, t time.Time) error {
	_, err := s.catalogue.UpdateConfig(ctx, func(cfg *types.AdminConfig) {
		cfg.SimulatedClock = t
	})
	return err
}

// AdvanceHour moves the simulated clock forward one hour and runs a
// round: starting every PENDING auction whose slot start has arrived and
// ticking every ACTIVE auction once.
func (s *SimulationService) AdvanceHour(ctx context.Context) (time.Time, error) {
	return s.advance(ctx, time.Hour)
}

// AdvanceDay moves the simulated clock forward 24 hours and runs a round.
func (s *SimulationService) AdvanceDay(ctx context.Context) (time.Time, error) {
	return s.advance(ctx, 24*time.Hour)
}

func (s *SimulationService) advance(ctx context.Context, d time.Duration) (time.Time, error) {
	now, err := s.currentTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	next := now.Add(d)
	if err := s.setTime(ctx, next); err != nil {
		return time.Time{}, err
	}
	if err := s.RunRound(ctx); err != nil {
		return next, err
	}
	return next, nil
}

// ResetTime pins the simulated clock back to the canonical start.
func (s *SimulationService) ResetTime(ctx context.Context) (time.Time, error) {
	if err := s.setTime(ctx, clock.CanonicalStart); err != nil {
		return time.Time{}, err
	}
	return clock.CanonicalStart, nil
}

// RunRound starts every PENDING auction whose slot has reached its start
// time and ticks every ACTIVE auction once, at the current simulated time.
func (s *SimulationService) RunRound(ctx context.Context) error {
	now, err := s.currentTime(ctx)
	if err != nil {
		return err
	}

	var pending []types.Auction
	if err := s.db.WithContext(ctx).
		Joins("JOIN time_slots ON time_slots.id = auctions.time_slot_id").
		Where("auctions.status = ? AND time_slots.start <= ?", types.AuctionPending, now).
		Find(&pending).Error; err != nil {
		return errs.Wrap(errs.Internal, err, "load auctions ready to start")
	}
	for _, a := range pending {
		if _, err := s.auction.Start(ctx, a.ID, now); err != nil {
			return err
		}
	}

	var active []types.Auction
	if err := s.db.WithContext(ctx).Where("status = ?", types.AuctionActive).Find(&active).Error; err != nil {
		return errs.Wrap(errs.Internal, err, "load active auctions")
	}
	for _, a := range active {
		if _, err := s.auction.Tick(ctx, a.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// AllocateTokens grants AdminConfig.TokenAllocationAmount to every active
// agent.
func (s *SimulationService) AllocateTokens(ctx context.Context) (granted int, err error) {
	var cfg types.AdminConfig
	if err := s.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err != nil {
		return 0, errs.Wrap(errs.NotFound, err, "admin config not initialized")
	}
	var agents []types.Agent
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&agents).Error; err != nil {
		return 0, errs.Wrap(errs.Internal, err, "load active agents")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range agents {
			if err := s.ledger.Credit(ctx, tx, a.ID, cfg.TokenAllocationAmount, types.TxKindTokenGrant, ""); err != nil {
				return err
			}
			granted++
		}
		return nil
	})
	if err != nil {
		return granted, err
	}
	s.logger.Info("tokens allocated", "agents", granted, "amount", cfg.TokenAllocationAmount)
	return granted, nil
}

// Results reports the current state of the simulated market: the current
// simulated time plus aggregate booking/auction counts.
type SimulationResults struct {
	CurrentTime      time.Time
	TotalAgents      int64
	TotalBookings    int64
	ActiveAuctions   int64
	CompletedAuctions int64
}

// Results reports the simulation's current aggregate state.
func (s *SimulationService) Results(ctx context.Context) (*SimulationResults, error) {
	now, err := s.currentTime(ctx)
	if err != nil {
		return nil, err
	}
	out := &SimulationResults{CurrentTime: now}
	if err := s.db.WithContext(ctx).Model(&types.Agent{}).Count(&out.TotalAgents).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "count agents")
	}
	if err := s.db.WithContext(ctx).Model(&types.Booking{}).Where("status = ?", types.BookingActive).Count(&out.TotalBookings).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "count bookings")
	}
	if err := s.db.WithContext(ctx).Model(&types.Auction{}).Where("status = ?", types.AuctionActive).Count(&out.ActiveAuctions).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "count active auctions")
	}
	if err := s.db.WithContext(ctx).Model(&types.Auction{}).Where("status = ?", types.AuctionCompleted).Count(&out.CompletedAuctions).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "count completed auctions")
	}
	return out, nil
}

// ResetSimulation restores AdminConfig to defaults (including the
// canonical simulated clock) and clears the entire resource/booking graph.
func (s *SimulationService) ResetSimulation(ctx context.Context, defaults types.AdminConfig) error {
	defaults.SimulatedClock = clock.CanonicalStart
	if err := s.catalogue.ResetAndReloadDefaults(ctx, defaults); err != nil {
		return err
	}
	s.logger.Info("simulation reset to canonical start")
	return nil
}

// SimulateSemester fast-forwards the simulated clock by weeks*7 days,
// running a round each simulated day and an allocation pass on each day
// at which token_allocation_frequency_hours (24 when unset) have elapsed
// since the last one.
func (s *SimulationService) SimulateSemester(ctx context.Context, weeks int) error {
	if weeks <= 0 {
		return errs.New(errs.Validation, "weeks must be positive")
	}
	var cfg types.AdminConfig
	if err := s.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err != nil {
		return errs.Wrap(errs.NotFound, err, "admin config not initialized")
	}
	hoursPerAllocation := cfg.TokenAllocationFreqHours
	if hoursPerAllocation <= 0 {
		hoursPerAllocation = 24
	}

	var elapsed float64
	for day := 0; day < weeks*7; day++ {
		if _, err := s.AdvanceDay(ctx); err != nil {
			return err
		}
		elapsed += 24
		if elapsed >= hoursPerAllocation {
			if _, err := s.AllocateTokens(ctx); err != nil {
				return err
			}
			elapsed = 0
		}
	}
	s.logger.Info("semester simulated", "weeks", weeks)
	return nil
}
