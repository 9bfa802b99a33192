package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roomauction/internal/ids"
	"roomauction/internal/store"
	"roomauction/pkg/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDebitInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	l := New()
	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.NewFromInt(10)}).Error)

	err := s.WithTx(context.Background(), func(tx *gorm.DB) error {
		return l.Debit(context.Background(), tx, agentID, decimal.NewFromInt(20), types.TxKindBidPayment, "x")
	})
	require.Error(t, err)
}

func TestCreditDebitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	l := New()
	agentID := ids.New()
	require.NoError(t, s.DB().Create(&types.Agent{ID: agentID, TokenBalance: decimal.Zero}).Error)

	err := s.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := l.Credit(context.Background(), tx, agentID, decimal.NewFromInt(100), types.TxKindTokenGrant, "seed"); err != nil {
			return err
		}
		return l.Debit(context.Background(), tx, agentID, decimal.NewFromInt(35), types.TxKindBidPayment, "bid-1")
	})
	require.NoError(t, err)

	var agent types.Agent
	require.NoError(t, s.DB().First(&agent, "id = ?", agentID).Error)
	require.True(t, agent.TokenBalance.Equal(decimal.NewFromInt(65)))

	var txs []types.Transaction
	require.NoError(t, s.DB().Where("agent_id = ?", agentID).Find(&txs).Error)
	sum := decimal.Zero
	for _, tr := range txs {
		sum = sum.Add(tr.Amount)
	}
	require.True(t, sum.Equal(decimal.NewFromInt(65)))
}

func TestSellBackRefundAndSplitShare(t *testing.T) {
	refund := SellBackRefund(decimal.NewFromInt(100))
	require.True(t, refund.Equal(decimal.NewFromInt(80)))

	share := SplitShare(decimal.NewFromInt(100))
	require.True(t, share.Equal(decimal.NewFromInt(50)))
}
