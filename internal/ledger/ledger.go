// Package ledger is the token-balance bookkeeping shared by every engine
// that moves tokens between agents and the market: bid payment, sell-back
// refunds, split-payment transfers, and periodic token grants. Every
// movement is an append-only Transaction row plus a balance update, both
// written inside the caller's database transaction so the ledger invariant
// "sum of transaction amounts == balance - initial seed" never drifts.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"roomauction/internal/errs"
	"roomauction/internal/ids"
	"roomauction/pkg/types"
)

// Ledger posts balance-affecting transactions against agents.
type Ledger struct{}

// New returns a Ledger. It holds no state; every call takes the *gorm.DB
// transaction handle it should operate within.
func New() *Ledger { return &Ledger{} }

// Credit adds amount (must be >= 0) to agent's balance and records a
// Transaction of the given kind.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, agentID string, amount decimal.Decimal, kind types.TransactionKind, referenceID string) error {
	return l.post(tx, agentID, amount, kind, referenceID)
}

// Debit subtracts amount from agent's balance if sufficient funds exist,
// else returns an InsufficientFunds error and performs no write.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, agentID string, amount decimal.Decimal, kind types.TransactionKind, referenceID string) error {
	var agent types.Agent
	if err := tx.First(&agent, "id = ?", agentID).Error; err != nil {
		return errs.Wrap(errs.NotFound, err, "agent %s not found", agentID)
	}
	if agent.TokenBalance.LessThan(amount) {
		return errs.New(errs.InsufficientFunds, "agent %s balance %s below required %s", agentID, agent.TokenBalance, amount)
	}
	return l.post(tx, agentID, amount.Neg(), kind, referenceID)
}

// post applies a signed delta to the agent's balance and appends a
// Transaction row inside tx.
func (l *Ledger) post(tx *gorm.DB, agentID string, delta decimal.Decimal, kind types.TransactionKind, referenceID string) error {
	res := tx.Model(&types.Agent{}).
		Where("id = ?", agentID).
		UpdateColumn("token_balance", gorm.Expr("token_balance + ?", delta))
	if res.Error != nil {
		return errs.Wrap(errs.Internal, res.Error, "update balance for agent %s", agentID)
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.NotFound, "agent %s not found", agentID)
	}

	txn := &types.Transaction{
		ID:          ids.New(),
		AgentID:     agentID,
		Amount:      delta,
		Kind:        kind,
		ReferenceID: referenceID,
	}
	if err := tx.Create(txn).Error; err != nil {
		return errs.Wrap(errs.Internal, err, "append transaction for agent %s", agentID)
	}
	return nil
}

// Balance returns the agent's current token balance.
func (l *Ledger) Balance(tx *gorm.DB, agentID string) (decimal.Decimal, error) {
	var agent types.Agent
	if err := tx.First(&agent, "id = ?", agentID).Error; err != nil {
		return decimal.Zero, errs.Wrap(errs.NotFound, err, "agent %s not found", agentID)
	}
	return agent.TokenBalance, nil
}

// sellBackRefundRate is the fraction of the original bid amount refunded
// when a booking is sold back (spec §4.4: "refund 80%").
var sellBackRefundRate = decimal.NewFromFloat(0.8)

// SellBackRefund computes the refund amount for a sell-back of a booking
// whose winning bid amount was paidAmount.
func SellBackRefund(paidAmount decimal.Decimal) decimal.Decimal {
	return paidAmount.Mul(sellBackRefundRate)
}

// splitShare is the fraction of the original amount transferred between
// split partners (spec §4.4: "50% transfer").
var splitShare = decimal.NewFromFloat(0.5)

// SplitShare computes one partner's half of a split-payment amount.
func SplitShare(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(splitShare)
}
