// Package config defines all configuration for the roomauction market
// process. Config is loaded from a YAML file (default: configs/config.yaml)
// with sensitive fields overridable via ROOMAUCTION_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"roomauction/internal/clock"
	"roomauction/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Market    MarketConfig    `mapstructure:"market"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sim       SimConfig       `mapstructure:"simulation"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// DashboardConfig controls the read-only HTTP/WebSocket dashboard that
// pushes periodic market_state snapshots (spec §6's market_state, out
// of scope for transport but given a reference surface here the way the
// teacher's internal/api serves its own dashboard).
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MarketConfig holds the admin-config defaults loaded at startup: token
// allocation, Dutch auction defaults, and per-agent booking quota. After
// load, these values seed the AdminConfig row in the store, which the
// single writer in internal/catalogue then mutates; the YAML file itself
// is never rewritten.
type MarketConfig struct {
	TokenAllocationAmount    float64       `mapstructure:"token_allocation_amount"`
	TokenAllocationFreqHours float64       `mapstructure:"token_allocation_frequency_hours"`
	MaxBookingsPerAgent      int           `mapstructure:"max_bookings_per_agent"`
	DutchStartPrice          float64       `mapstructure:"dutch_start_price"`
	DutchMinPrice            float64       `mapstructure:"dutch_min_price"`
	DutchPriceStep           float64       `mapstructure:"dutch_price_step"`
	DutchTickInterval        time.Duration `mapstructure:"dutch_tick_interval"`
	RequestTimeout           time.Duration `mapstructure:"request_timeout"`
	ImportTimeout            time.Duration `mapstructure:"import_timeout"`
}

// PricingConfig tunes the dynamic pricing engine's demand weighting.
//
//   - CapacityWeight: sensitivity of the price to the resource's capacity.
//   - LocationWeight: sensitivity to the resource's learned location popularity.
//   - TimeWeight: sensitivity to the slot's learned hour-of-day popularity.
//   - DayOfWeekWeight: sensitivity to the slot's learned day-of-week popularity.
//   - GlobalPriceModifier: scales the whole demand curve up or down.
type PricingConfig struct {
	CapacityWeight      float64 `mapstructure:"capacity_weight"`
	LocationWeight      float64 `mapstructure:"location_weight"`
	TimeWeight          float64 `mapstructure:"time_weight"`
	DayOfWeekWeight     float64 `mapstructure:"day_of_week_weight"`
	LeadTimeWeight      float64 `mapstructure:"lead_time_weight"`
	GlobalPriceModifier float64 `mapstructure:"global_price_modifier"`
	// HorizonDays bounds how far into the future reprice() scans pending
	// slots (spec §4.2: "(now, now+horizon]").
	HorizonDays float64 `mapstructure:"horizon_days"`
}

// StoreConfig sets how the Store component connects to its backing
// database. DSN may be a sqlite file path or a postgres connection string;
// Store picks the driver off the prefix, same as web3guy0-polybot's
// database.New.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SimConfig holds the default simulation/grid-search parameters used by
// cmd/simulate when no overrides are given on the command line.
type SimConfig struct {
	Seed             int64    `mapstructure:"seed"`
	NumAgents        int      `mapstructure:"num_agents"`
	NumRooms         int      `mapstructure:"num_rooms"`
	SlotsPerRoomDay  int      `mapstructure:"slots_per_room_per_day"`
	MaxDays          int      `mapstructure:"max_days"`
	TokenAmounts     []float64 `mapstructure:"token_amounts"`
	TokenFrequencies []int     `mapstructure:"token_frequencies"`
	NumSeeds         int      `mapstructure:"num_seeds"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ROOMAUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dsn := os.Getenv("ROOMAUCTION_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required (set ROOMAUCTION_STORE_DSN)")
	}
	if c.Market.TokenAllocationAmount <= 0 {
		return fmt.Errorf("market.token_allocation_amount must be > 0")
	}
	if c.Market.TokenAllocationFreqHours <= 0 {
		return fmt.Errorf("market.token_allocation_frequency_hours must be > 0")
	}
	if c.Market.MaxBookingsPerAgent <= 0 {
		return fmt.Errorf("market.max_bookings_per_agent must be > 0")
	}
	if c.Market.DutchStartPrice <= c.Market.DutchMinPrice {
		return fmt.Errorf("market.dutch_start_price must be greater than market.dutch_min_price")
	}
	if c.Market.DutchPriceStep <= 0 {
		return fmt.Errorf("market.dutch_price_step must be > 0")
	}
	if c.Market.RequestTimeout <= 0 {
		c.Market.RequestTimeout = 60 * time.Second
	}
	if c.Market.ImportTimeout <= 0 {
		c.Market.ImportTimeout = 30 * time.Second
	}
	return nil
}

// AdminDefaults converts the loaded MarketConfig/PricingConfig into the
// decimal-typed AdminConfig seed row the Store persists on first run.
func (c *Config) AdminDefaults() (tokenAmount, start, min, step decimal.Decimal) {
	return decimal.NewFromFloat(c.Market.TokenAllocationAmount),
		decimal.NewFromFloat(c.Market.DutchStartPrice),
		decimal.NewFromFloat(c.Market.DutchMinPrice),
		decimal.NewFromFloat(c.Market.DutchPriceStep)
}

// Defaults builds the full AdminConfig seed row cmd/marketd passes to
// GetConfig on first run,
// carrying the loaded Dutch/pricing defaults plus an empty popularity
// learned-demand map (populated later by import_resources).
func (c *Config) Defaults() types.AdminConfig {
	tokenAmount, start, min, step := c.AdminDefaults()
	return types.AdminConfig{
		ID:                       1,
		TokenAllocationAmount:    tokenAmount,
		TokenAllocationFreqHours: c.Market.TokenAllocationFreqHours,
		MaxBookingsPerAgent:      c.Market.MaxBookingsPerAgent,
		DefaultAuctionType:       types.AuctionDutch,
		DutchStartPrice:          start,
		DutchMinPrice:            min,
		DutchPriceStep:           step,
		DutchTickIntervalSec:     c.Market.DutchTickInterval.Seconds(),
		LocationPopularity:       map[string]float64{},
		TimePopularity:           map[string]float64{},
		CapacityWeight:           c.Pricing.CapacityWeight,
		LocationWeight:           c.Pricing.LocationWeight,
		TimeWeight:               c.Pricing.TimeWeight,
		DayOfWeekWeight:          c.Pricing.DayOfWeekWeight,
		LeadTimeWeight:           c.Pricing.LeadTimeWeight,
		GlobalPriceModifier:      c.Pricing.GlobalPriceModifier,
		PricingModelVersion:      1,
		SimulatedClock:           clock.CanonicalStart,
	}
}
