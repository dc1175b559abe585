package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-reconciler/internal/db/memory"
	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/drift"
	"serotonyl.ru/arx-reconciler/internal/features/ledger"
)

func bal(mining, task, social, referral int64) balance.Balance {
	b := balance.Balance{Mining: mining, Task: task, Social: social, Referral: referral}
	b.Total = b.Sum()
	return b
}

func TestApplyDecisionRestored(t *testing.T) {
	store := memory.New(1000)
	store.SetBalance("u1", bal(1, 0, 0, 0))
	runID := uuid.New()
	w := ledger.NewWriter(store, runID)

	d := drift.Detect(bal(1, 0, 0, 0), bal(10, 5, 0, 0), drift.DefaultPolicy)
	written, err := w.ApplyDecision(context.Background(), "u1", d)
	require.NoError(t, err)
	assert.True(t, written)

	got, updatedAt, ok := store.Balance("u1")
	require.True(t, ok)
	assert.Equal(t, bal(10, 5, 0, 0), got)
	assert.False(t, updatedAt.IsZero())

	audit := store.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, runID, audit[0].RunID)
	assert.Equal(t, ledger.AuditBalanceRestored, audit[0].Type)
	assert.Equal(t, int64(1), audit[0].StoredTotal)
	assert.Equal(t, int64(15), audit[0].ComputedTotal)
	assert.Equal(t, int64(14), audit[0].PointsRestored)
	assert.Equal(t, "restored", audit[0].ActionTaken)
}

func TestApplyDecisionSkipsWhenAlreadyFixed(t *testing.T) {
	store := memory.New(1000)
	// Другой проход уже записал канонический баланс
	store.SetBalance("u1", bal(10, 0, 0, 0))
	w := ledger.NewWriter(store, uuid.New())

	d := drift.Detect(bal(3, 0, 0, 0), bal(10, 0, 0, 0), drift.DefaultPolicy)
	written, err := w.ApplyDecision(context.Background(), "u1", d)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Zero(t, store.Writes())
	assert.Empty(t, store.Audit())
}

func TestApplyDecisionFlaggedOnlyAudits(t *testing.T) {
	store := memory.New(1000)
	store.SetBalance("u1", bal(500, 0, 0, 0))
	w := ledger.NewWriter(store, uuid.New())

	d := drift.Detect(bal(500, 0, 0, 0), bal(5, 0, 0, 0), drift.Policy{AllowDecrease: false})
	require.Equal(t, drift.ActionFlagged, d.Action)

	written, err := w.ApplyDecision(context.Background(), "u1", d)
	require.NoError(t, err)
	assert.False(t, written)

	got, _, _ := store.Balance("u1")
	assert.Equal(t, bal(500, 0, 0, 0), got)
	audit := store.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.AuditBalanceFlagged, audit[0].Type)
	assert.Zero(t, audit[0].PointsRestored)
	assert.Equal(t, int64(-495), audit[0].Diff.Total)
}

func TestApplyDecisionNoChangeWritesNothing(t *testing.T) {
	store := memory.New(1000)
	w := ledger.NewWriter(store, uuid.New())

	d := drift.Detect(bal(1, 1, 1, 1), bal(1, 1, 1, 1), drift.DefaultPolicy)
	written, err := w.ApplyDecision(context.Background(), "u1", d)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Empty(t, store.Audit())
}

func TestApplyDecisionWriteFailure(t *testing.T) {
	store := memory.New(1000)
	store.FailWrites("u1")
	w := ledger.NewWriter(store, uuid.New())

	d := drift.Detect(balance.Balance{}, bal(1, 0, 0, 0), drift.DefaultPolicy)
	_, err := w.ApplyDecision(context.Background(), "u1", d)
	assert.Error(t, err)
	assert.Zero(t, store.Writes())
}

func TestRecordEarningOnce(t *testing.T) {
	store := memory.New(1000)
	w := ledger.NewWriter(store, uuid.New())
	e := arena.Earning{
		BattleID:        3,
		UserID:          "u1",
		Stake:           decimal.NewFromInt(100),
		TotalEarned:     250,
		PoolShareEarned: decimal.NewFromInt(150),
		IsWinner:        true,
	}
	ctx := context.Background()

	inserted, err := w.RecordEarning(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = w.RecordEarning(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows := store.Earnings(3)
	require.Len(t, rows, 1)
	assert.Equal(t, "250", rows[0].String("total_earned"))

	audit := store.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.AuditEarningInserted, audit[0].Type)
	require.NotNil(t, audit[0].BattleID)
	assert.Equal(t, int64(3), *audit[0].BattleID)
	assert.Equal(t, int64(250), audit[0].PointsRestored)
}
