package service

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"roomauction/internal/catalogue"
	"roomauction/pkg/types"
)

// AdminService implements spec §6's Admin operation group.
type AdminService struct {
	db        *gorm.DB
	catalogue *catalogue.Catalogue
	logger    *slog.Logger
}

// GetConfig returns the current AdminConfig, seeding process defaults on
// first call.
func (s *AdminService) GetConfig(ctx context.Context, defaults types.AdminConfig) (*types.AdminConfig, error) {
	return s.catalogue.GetConfig(ctx, defaults)
}

// UpdateConfig applies patch under the single-writer lock and bumps
// pricing_model_version.
func (s *AdminService) UpdateConfig(ctx context.Context, patch func(cfg *types.AdminConfig)) (*types.AdminConfig, error) {
	cfg, err := s.catalogue.UpdateConfig(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin config updated", "pricing_model_version", cfg.PricingModelVersion)
	return cfg, nil
}

// ImportResources ingests a resource CSV (spec §6's CSV ingest format),
// using dutchDefaults for every auction it creates.
func (s *AdminService) ImportResources(ctx context.Context, csvBytes []byte, dutchDefaults catalogue.DutchDefaults) (imported int, err error) {
	imported, locPop, timePop, err := s.catalogue.ImportResources(ctx, csvBytes, dutchDefaults)
	if err != nil {
		return 0, err
	}
	if _, err := s.catalogue.UpdateConfig(ctx, func(cfg *types.AdminConfig) {
		cfg.LocationPopularity = mergePopularity(cfg.LocationPopularity, locPop)
		cfg.TimePopularity = mergePopularity(cfg.TimePopularity, timePop)
	}); err != nil {
		return imported, err
	}
	s.logger.Info("resources imported", "count", imported)
	return imported, nil
}

// ResetAndReloadDefaults restores AdminConfig to defaults and clears the
// entire resource/booking graph.
func (s *AdminService) ResetAndReloadDefaults(ctx context.Context, defaults types.AdminConfig) error {
	if err := s.catalogue.ResetAndReloadDefaults(ctx, defaults); err != nil {
		return err
	}
	s.logger.Info("admin config and catalogue reset to defaults")
	return nil
}

// Reprice runs spec §4.2's reprice(now, horizon_days) over every pending
// future slot, using the loaded AdminConfig's Dutch defaults and an RNG
// seeded from the clock for the noise term. The simulator does not call
// this: its auctions open at the configured Dutch start price.
func (s *AdminService) Reprice(ctx context.Context, now time.Time, horizonDays float64) (int, error) {
	cfg, err := s.catalogue.GetConfig(ctx, types.AdminConfig{})
	if err != nil {
		return 0, err
	}
	dutchDefaults := catalogue.DutchDefaults{
		StartPrice:      cfg.DutchStartPrice,
		MinPrice:        cfg.DutchMinPrice,
		PriceStep:       cfg.DutchPriceStep,
		TickIntervalSec: cfg.DutchTickIntervalSec,
	}
	rng := rand.New(rand.NewSource(now.UnixNano()))
	n, err := s.catalogue.Reprice(ctx, now, horizonDays, dutchDefaults, rng)
	if err != nil {
		return 0, err
	}
	s.logger.Info("auctions repriced", "count", n, "pricing_model_version", cfg.PricingModelVersion+1)
	return n, nil
}

func mergePopularity(existing, fresh map[string]float64) map[string]float64 {
	if existing == nil {
		existing = map[string]float64{}
	}
	for k, v := range fresh {
		existing[k] = v
	}
	return existing
}
