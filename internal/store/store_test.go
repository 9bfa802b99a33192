package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roomauction/internal/ids"
	"roomauction/pkg/types"
)

func TestOpenMigratesSchema(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	agent := &types.Agent{ID: ids.New(), Name: "a", TokenBalance: decimal.NewFromInt(100)}
	require.NoError(t, s.DB().Create(agent).Error)

	var got types.Agent
	require.NoError(t, s.DB().First(&got, "id = ?", agent.ID).Error)
	require.Equal(t, "a", got.Name)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	agentID := ids.New()
	boom := errors.New("boom")
	err = s.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&types.Agent{ID: agentID, Name: "rollback-me"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	s.DB().Model(&types.Agent{}).Where("id = ?", agentID).Count(&count)
	require.Equal(t, int64(0), count)
}
