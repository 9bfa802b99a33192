// Package store provides gorm-backed transactional persistence for every
// aggregate in the market: resources, slots, auctions, bids, agents,
// bookings, transactions, limit orders, and the AdminConfig singleton.
//
// Open picks sqlite or postgres off the DSN prefix, exactly the way
// web3guy0-polybot's database.New does. WithTx wraps a unit of work in a
// real database transaction so the Booking service's multi-step settlement
// (duplicate/overlap/capacity/quota checks, then inserts, then slot/auction
// transition) commits or rolls back atomically.
package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roomauction/pkg/types"
)

// Store wraps a *gorm.DB and exposes the tables this module reads/writes.
type Store struct {
	db *gorm.DB
}

// Open connects to the database named by dsn. A dsn beginning with
// "postgres://" or "postgresql://" uses the postgres driver; anything else
// is treated as a sqlite file path (including ":memory:").
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.AutoMigrate(
		&types.Resource{},
		&types.TimeSlot{},
		&types.Auction{},
		&types.Bid{},
		&types.GroupBidMember{},
		&types.PriceHistory{},
		&types.Agent{},
		&types.AgentPreference{},
		&types.Booking{},
		&types.Transaction{},
		&types.LimitOrder{},
		&types.AdminConfig{},
	); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying *gorm.DB for packages that need direct query
// access (e.g. cmd/marketd hands it to service.New).
func (s *Store) DB() *gorm.DB { return s.db }

// WithTx runs fn inside a single database transaction bound to ctx. Any
// non-nil error returned by fn rolls the transaction back; engines use this
// as the commit boundary for settlement (spec: "commits are the only
// observation points").
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
