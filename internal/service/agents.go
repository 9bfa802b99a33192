package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/pkg/types"
)

// AgentService implements spec §6's Agents operation group: CRUD, bulk
// simulated-agent creation, preferences, and the agent's own read-only
// history (bookings, transactions, limit orders).
type AgentService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// CreateAgent inserts a new Agent row.
func (s *AgentService) CreateAgent(ctx context.Context, a types.Agent) (*types.Agent, error) {
	if a.ID == "" {
		a.ID = ids.New()
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create agent")
	}
	return &a, nil
}

// GetAgent loads one Agent by id.
func (s *AgentService) GetAgent(ctx context.Context, agentID string) (*types.Agent, error) {
	var a types.Agent
	if err := s.db.WithContext(ctx).Preload("Preferences").First(&a, "id = ?", agentID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "agent %s not found", agentID)
	}
	return &a, nil
}

// ListAgents returns every Agent.
func (s *AgentService) ListAgents(ctx context.Context) ([]types.Agent, error) {
	var out []types.Agent
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "list agents")
	}
	return out, nil
}

// UpdateAgent applies patch to the stored Agent and saves it.
func (s *AgentService) UpdateAgent(ctx context.Context, agentID string, patch func(a *types.Agent)) (*types.Agent, error) {
	var a types.Agent
	if err := s.db.WithContext(ctx).First(&a, "id = ?", agentID).Error; err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "agent %s not found", agentID)
	}
	patch(&a)
	if err := s.db.WithContext(ctx).Save(&a).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "save agent %s", agentID)
	}
	return &a, nil
}

// DeleteAgent removes an Agent row. Bookings/transactions already posted
// against it are left untouched, per the append-only ledger invariant.
func (s *AgentService) DeleteAgent(ctx context.Context, agentID string) error {
	if err := s.db.WithContext(ctx).Delete(&types.Agent{}, "id = ?", agentID).Error; err != nil {
		return errs.Wrap(errs.Internal, err, "delete agent %s", agentID)
	}
	return nil
}

// BulkCreate creates count simulated agents named "{prefix}-{i}", each
// seeded with initialBalance and maxBookings. When generatePreferences is
// true, agent i gets one location preference row taken from locationTags
// and one time-of-day row taken from timeKeys, each at index i modulo the
// slice length; an empty slice yields no row of that type.
func (s *AgentService) BulkCreate(ctx context.Context, count int, prefix string, initialBalance decimal.Decimal, maxBookings int, generatePreferences bool, locationTags, timeKeys []string) ([]types.Agent, error) {
	if count <= 0 {
		return nil, errs.New(errs.Validation, "count must be positive")
	}
	out := make([]types.Agent, 0, count)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			a := types.Agent{
				ID:           ids.New(),
				Name:         fmt.Sprintf("%s-%d", prefix, i),
				TokenBalance: initialBalance,
				IsActive:     true,
				MaxBookings:  maxBookings,
				IsSimulated:  true,
			}
			if err := tx.Create(&a).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "bulk create agent")
			}
			if generatePreferences {
				if len(locationTags) > 0 {
					pref := types.AgentPreference{
						ID: ids.New(), AgentID: a.ID,
						PreferenceType: "location", PreferenceValue: locationTags[i%len(locationTags)],
						Weight: 1.0,
					}
					if err := tx.Create(&pref).Error; err != nil {
						return errs.Wrap(errs.Internal, err, "create location preference")
					}
				}
				if len(timeKeys) > 0 {
					pref := types.AgentPreference{
						ID: ids.New(), AgentID: a.ID,
						PreferenceType: "time_of_day", PreferenceValue: timeKeys[i%len(timeKeys)],
						Weight: 1.0,
					}
					if err := tx.Create(&pref).Error; err != nil {
						return errs.Wrap(errs.Internal, err, "create time preference")
					}
				}
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("bulk agents created", "count", count, "prefix", prefix)
	return out, nil
}

// GetPreferences returns agentID's preference rows.
func (s *AgentService) GetPreferences(ctx context.Context, agentID string) ([]types.AgentPreference, error) {
	var out []types.AgentPreference
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load preferences for agent %s", agentID)
	}
	return out, nil
}

// SetPreferences replaces agentID's full preference set with prefs.
func (s *AgentService) SetPreferences(ctx context.Context, agentID string, prefs []types.AgentPreference) ([]types.AgentPreference, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", agentID).Delete(&types.AgentPreference{}).Error; err != nil {
			return errs.Wrap(errs.Internal, err, "clear preferences for agent %s", agentID)
		}
		for i := range prefs {
			prefs[i].AgentID = agentID
			if prefs[i].ID == "" {
				prefs[i].ID = ids.New()
			}
			if err := tx.Create(&prefs[i]).Error; err != nil {
				return errs.Wrap(errs.Internal, err, "create preference for agent %s", agentID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// ListBookings returns agentID's Booking rows, most recent first.
func (s *AgentService) ListBookings(ctx context.Context, agentID string) ([]types.Booking, error) {
	var out []types.Booking
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load bookings for agent %s", agentID)
	}
	return out, nil
}

// ListTransactions returns agentID's append-only ledger rows, most recent
// first.
func (s *AgentService) ListTransactions(ctx context.Context, agentID string) ([]types.Transaction, error) {
	var out []types.Transaction
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load transactions for agent %s", agentID)
	}
	return out, nil
}

// ListLimitOrders returns agentID's standing orders, most recent first.
func (s *AgentService) ListLimitOrders(ctx context.Context, agentID string) ([]types.LimitOrder, error) {
	var out []types.LimitOrder
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load limit orders for agent %s", agentID)
	}
	return out, nil
}
