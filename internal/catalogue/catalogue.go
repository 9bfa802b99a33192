// Package catalogue manages the Resource/TimeSlot inventory: CSV ingest,
// slot status transitions, and the AdminConfig singleton (including the
// learned location/time-of-day popularity maps the pricing engine reads).
package catalogue

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/internal/pricing"
	"roomauction/pkg/types"
)

// Catalogue owns resource/slot ingestion and the AdminConfig singleton.
// AdminConfig mutation goes through a single in-process writer lock so
// pricing_model_version bumps are never lost to a concurrent writer (spec
// §9: "singleton AdminConfig ... single-writer bumping version").
type Catalogue struct {
	db       *gorm.DB
	pricer   *pricing.Engine
	writerMu sync.Mutex
}

// New returns a Catalogue bound to db.
func New(db *gorm.DB) *Catalogue {
	return &Catalogue{db: db, pricer: pricing.New()}
}

// GetConfig returns the current AdminConfig row, seeding it with the
// process defaults if it has never been written.
func (c *Catalogue) GetConfig(ctx context.Context, defaults types.AdminConfig) (*types.AdminConfig, error) {
	var cfg types.AdminConfig
	err := c.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		defaults.ID = 1
		if err := c.db.WithContext(ctx).Create(&defaults).Error; err != nil {
			return nil, errs.Wrap(errs.Internal, err, "seed admin config")
		}
		return &defaults, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load admin config")
	}
	return &cfg, nil
}

// UpdateConfig applies mutate under the single writer lock and persists the
// result with PricingModelVersion incremented.
func (c *Catalogue) UpdateConfig(ctx context.Context, mutate func(cfg *types.AdminConfig)) (*types.AdminConfig, error) {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	var cfg types.AdminConfig
	if err := c.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "admin config not initialized")
	}
	mutate(&cfg)
	cfg.PricingModelVersion++
	if err := c.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "save admin config")
	}
	return &cfg, nil
}

// ResetAndReloadDefaults restores AdminConfig to defaults and clears every
// resource/slot/auction/bid/booking row, for returning the market to a
// clean canonical state (used by the simulation harness and by operators
// resetting a demo environment).
func (c *Catalogue) ResetAndReloadDefaults(ctx context.Context, defaults types.AdminConfig) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&types.PriceHistory{}, &types.GroupBidMember{}, &types.Bid{},
			&types.Booking{}, &types.Transaction{}, &types.LimitOrder{},
			&types.Auction{}, &types.TimeSlot{}, &types.Resource{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "clear %T", model)
			}
		}
		defaults.ID = 1
		return tx.Save(&defaults).Error
	})
}

// Reprice implements spec §4.2's reprice(now, horizon_days): every
// TimeSlot whose status != BOOKED and whose start falls in (now,
// now+horizon_days] gets its attached PENDING/ACTIVE auction's
// {start,current,min} prices recomputed from the current AdminConfig
// weights and popularity maps, or a brand-new PENDING auction created if
// the slot has none. PricingModelVersion is bumped once for the whole
// call, under the single writer lock, the same way UpdateConfig bumps it.
func (c *Catalogue) Reprice(ctx context.Context, now time.Time, horizonDays float64, dutchDefaults DutchDefaults, rng *rand.Rand) (repriced int, err error) {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	var cfg types.AdminConfig
	if err := c.db.WithContext(ctx).First(&cfg, "id = ?", 1).Error; err != nil {
		return 0, errs.Wrap(errs.NotFound, err, "admin config not initialized")
	}

	horizonEnd := now.Add(time.Duration(horizonDays * float64(24*time.Hour)))

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slots []types.TimeSlot
		q := tx.Preload("Resource").
			Where("status <> ?", types.SlotBooked).
			Where("start > ? AND start <= ?", now, horizonEnd)
		if err := q.Find(&slots).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "scan slots for reprice")
		}

		for _, slot := range slots {
			locationTag := ""
			capacity := 0
			if slot.Resource != nil {
				locationTag = slot.Resource.LocationTag
				capacity = slot.Resource.Capacity
			}

			start, current, min := c.pricer.Reprice(pricing.RepriceInput{
				Now:                 now,
				HorizonDays:         horizonDays,
				SlotStart:           slot.Start,
				LocationTag:         locationTag,
				Capacity:            capacity,
				LocationPopularity:  cfg.LocationPopularity,
				TimePopularity:      cfg.TimePopularity,
				CapacityWeight:      cfg.CapacityWeight,
				LocationWeight:      cfg.LocationWeight,
				TimeWeight:          cfg.TimeWeight,
				DayOfWeekWeight:     cfg.DayOfWeekWeight,
				LeadTimeWeight:      cfg.LeadTimeWeight,
				GlobalPriceModifier: cfg.GlobalPriceModifier,
				RNG:                 rng,
			})

			var auction types.Auction
			aErr := tx.Where("time_slot_id = ? AND status IN ?", slot.ID,
				[]types.AuctionStatus{types.AuctionPending, types.AuctionActive}).
				First(&auction).Error
			switch {
			case aErr == nil:
				auction.StartPrice = start
				auction.CurrentPrice = current
				auction.MinPrice = min
				if err := tx.Save(&auction).Error; err != nil {
					return errs.Wrap(errs.Internal, err, "update auction %s price", auction.ID)
				}
			case aErr == gorm.ErrRecordNotFound:
				auction = types.Auction{
					ID:              ids.New(),
					TimeSlotID:      slot.ID,
					AuctionType:     types.AuctionDutch,
					Status:          types.AuctionPending,
					StartPrice:      start,
					CurrentPrice:    current,
					MinPrice:        min,
					PriceStep:       dutchDefaults.PriceStep,
					TickIntervalSec: dutchDefaults.TickIntervalSec,
				}
				if err := tx.Create(&auction).Error; err != nil {
					return errs.Wrap(errs.Internal, err, "create auction for slot %s", slot.ID)
				}
			default:
				return errs.Wrap(errs.Internal, aErr, "lookup auction for slot %s", slot.ID)
			}
			repriced++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	cfg.PricingModelVersion++
	if err := c.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return repriced, errs.Wrap(errs.Internal, err, "bump pricing_model_version")
	}
	return repriced, nil
}

// csvRow is the subset of a resource CSV row this module understands.
// Unknown columns are ignored per spec §6.
type csvRow struct {
	building string
	room     string
	capacity int
	date     string
	startStr string
	status   string
}

// ImportResources parses a CSV of resource/slot rows (Building, Room Name,
// Capacity, Date, Time, Status) and creates the TimeSlot rows, plus a
// Resource row for each building/room not yet stored (an existing
// Resource is reused unchanged). Status "Booked" creates a slot already in BOOKED
// state with no auction; "Available" creates a slot attached to a new
// PENDING dutch Auction, so per spec §9(a) the slot starts IN_AUCTION, not
// AVAILABLE, the moment an auction is attached at ingest.
//
// It also accumulates, and returns, the observed location/(weekday,hour)
// demand ratios so the caller can feed them into AdminConfig's popularity
// maps as learned data.
func (c *Catalogue) ImportResources(ctx context.Context, csvBytes []byte, dutchDefaults DutchDefaults) (imported int, locationPopularity, timePopularity map[string]float64, err error) {
	r := csv.NewReader(strings.NewReader(string(csvBytes)))
	header, err := r.Read()
	if err != nil {
		return 0, nil, nil, errs.Wrap(errs.Validation, err, "read csv header")
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	required := []string{"building", "room name", "capacity", "date", "time", "status"}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return 0, nil, nil, errs.New(errs.Validation, "csv missing required column %q", col)
		}
	}

	locationBooked := map[string]int{}
	locationTotal := map[string]int{}
	timeBooked := map[string]int{}
	timeTotal := map[string]int{}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			rec, rErr := r.Read()
			if rErr == io.EOF {
				break
			}
			if rErr != nil {
				return errs.Wrap(errs.Validation, rErr, "read csv row")
			}
			row, pErr := parseCSVRow(rec, idx)
			if pErr != nil {
				return pErr
			}

			resource, rErr := c.upsertResource(tx, row)
			if rErr != nil {
				return rErr
			}

			start, err := parseSlotTime(row.date, row.startStr)
			if err != nil {
				return errs.Wrap(errs.Validation, err, "parse slot time")
			}
			end := start.Add(time.Hour)

			slot := &types.TimeSlot{
				ID:         ids.New(),
				ResourceID: resource.ID,
				Start:      start,
				End:        end,
			}

			booked := strings.EqualFold(row.status, "Booked")
			if booked {
				slot.Status = types.SlotBooked
			} else {
				slot.Status = types.SlotInAuction
			}
			if err := tx.Create(slot).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "create slot")
			}
			imported++

			locTag := resource.LocationTag
			locationTotal[locTag]++
			if booked {
				locationBooked[locTag]++
			}
			tKey := fmt.Sprintf("%d-%d", int(start.Weekday()), start.Hour())
			timeTotal[tKey]++
			if booked {
				timeBooked[tKey]++
			}

			if !booked {
				auction := &types.Auction{
					ID:              ids.New(),
					TimeSlotID:      slot.ID,
					AuctionType:     types.AuctionDutch,
					Status:          types.AuctionPending,
					StartPrice:      dutchDefaults.StartPrice,
					CurrentPrice:    dutchDefaults.StartPrice,
					MinPrice:        dutchDefaults.MinPrice,
					PriceStep:       dutchDefaults.PriceStep,
					TickIntervalSec: dutchDefaults.TickIntervalSec,
				}
				if err := tx.Create(auction).Error; err != nil {
					return errs.Wrap(errs.Internal, err, "create auction")
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, nil, err
	}

	locationPopularity = ratio(locationBooked, locationTotal)
	timePopularity = ratio(timeBooked, timeTotal)
	return imported, locationPopularity, timePopularity, nil
}

func ratio(numer, denom map[string]int) map[string]float64 {
	out := make(map[string]float64, len(denom))
	for k, total := range denom {
		if total == 0 {
			continue
		}
		out[k] = float64(numer[k]) / float64(total)
	}
	return out
}

func (c *Catalogue) upsertResource(tx *gorm.DB, row csvRow) (*types.Resource, error) {
	var existing types.Resource
	err := tx.Where("building = ? AND name = ?", row.building, row.room).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, errs.Wrap(errs.Internal, err, "lookup resource")
	}
	resource := &types.Resource{
		ID:          ids.New(),
		Building:    row.building,
		Name:        row.room,
		Capacity:    row.capacity,
		LocationTag: row.building,
	}
	if err := tx.Create(resource).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create resource")
	}
	return resource, nil
}

func parseCSVRow(rec []string, idx map[string]int) (csvRow, error) {
	capacity, err := strconv.Atoi(strings.TrimSpace(rec[idx["capacity"]]))
	if err != nil {
		return csvRow{}, errs.Wrap(errs.Validation, err, "parse capacity")
	}
	return csvRow{
		building: strings.TrimSpace(rec[idx["building"]]),
		room:     strings.TrimSpace(rec[idx["room name"]]),
		capacity: capacity,
		date:     strings.TrimSpace(rec[idx["date"]]),
		startStr: strings.TrimSpace(rec[idx["time"]]),
		status:   strings.TrimSpace(rec[idx["status"]]),
	}, nil
}

func parseSlotTime(date, clock string) (time.Time, error) {
	layouts := []string{"2006-01-02 15:04", "01/02/2006 15:04"}
	combined := date + " " + clock
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, combined); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// DutchDefaults is the set of Dutch-auction parameters applied to every
// auction created during CSV ingest, sourced from AdminConfig.
type DutchDefaults struct {
	StartPrice      decimal.Decimal
	MinPrice        decimal.Decimal
	PriceStep       decimal.Decimal
	TickIntervalSec float64
}
