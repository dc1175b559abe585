package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/db/memory"
	"serotonyl.ru/arx-reconciler/internal/features/source"
)

func newAggregator(store *memory.Store, retries uint64) *source.Aggregator {
	return source.NewAggregator(store, retries, source.WithRetryInterval(time.Millisecond))
}

func TestSumPaginatesPastPageCap(t *testing.T) {
	store := memory.New(1000)
	naive := int64(0)
	for i := 1; i <= 2500; i++ {
		store.Insert(source.TableDailyCheckins, map[string]any{"user_id": "u1", "points_awarded": i})
		naive += int64(i)
	}
	// Чужие строки не должны попасть в сумму
	store.Insert(source.TableDailyCheckins, map[string]any{"user_id": "u2", "points_awarded": 1_000_000})

	agg := newAggregator(store, 0)
	sum, err := agg.Sum(context.Background(), source.TableDailyCheckins, "points_awarded", source.Eq("user_id", "u1"))
	require.NoError(t, err)

	assert.True(t, sum.Equal(decimal.NewFromInt(naive)), "sum=%s naive=%d", sum, naive)
	// 1000 + 1000 + 500
	assert.Equal(t, 3, store.PageCalls())
}

func TestSumExactMultipleOfPage(t *testing.T) {
	store := memory.New(1000)
	for i := 0; i < 2000; i++ {
		store.Insert(source.TableUserTasks, map[string]any{"user_id": "u1", "points_awarded": 2, "status": "completed"})
	}

	sum, err := newAggregator(store, 0).Sum(context.Background(), source.TableUserTasks, "points_awarded",
		source.Eq("user_id", "u1"), source.Eq("status", "completed"))
	require.NoError(t, err)

	assert.Equal(t, int64(4000), sum.IntPart())
	// Последняя пустая страница подтверждает конец
	assert.Equal(t, 3, store.PageCalls())
}

func TestSumEmptyAndFilters(t *testing.T) {
	store := memory.New(1000)
	store.Insert(source.TableMiningSessions, map[string]any{"user_id": "u1", "arx_mined": "10.5", "is_active": false})
	store.Insert(source.TableMiningSessions, map[string]any{"user_id": "u1", "arx_mined": "7", "is_active": true})
	store.Insert(source.TableMiningSessions, map[string]any{"user_id": "u1", "arx_mined": nil, "is_active": false})
	agg := newAggregator(store, 0)
	ctx := context.Background()

	sum, err := agg.Sum(ctx, source.TableMiningSessions, "arx_mined", source.Eq("user_id", "u1"), source.Eq("is_active", false))
	require.NoError(t, err)
	assert.Equal(t, "10.5", sum.String())

	sum, err = agg.Sum(ctx, source.TableMiningSessions, "arx_mined", source.Eq("user_id", "nobody"))
	require.NoError(t, err)
	assert.True(t, sum.IsZero())

	rows, err := agg.FetchAll(ctx, source.TableTransfers, []string{"amount"}, source.Eq("receiver_id", "nobody"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetchAllKeepsOrder(t *testing.T) {
	store := memory.New(3)
	for i := 1; i <= 7; i++ {
		store.Insert(source.TableReferrals, map[string]any{"referrer_id": "u1", "referred_id": i, "points_awarded": 5})
	}

	rows, err := newAggregator(store, 0).FetchAll(context.Background(), source.TableReferrals,
		[]string{"id", "referred_id"}, source.Eq("referrer_id", "u1"))
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		n, err := row.Int64("referred_id")
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	store := memory.New(1000)
	store.Insert(source.TableTransfers, map[string]any{"sender_id": "a", "receiver_id": "u1", "amount": 40})
	store.FailPages(source.TableTransfers, 2)

	sum, err := newAggregator(store, 3).Sum(context.Background(), source.TableTransfers, "amount", source.Eq("receiver_id", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(40), sum.IntPart())
	assert.Equal(t, 3, store.PageCalls())
}

func TestFailureAfterRetriesPropagates(t *testing.T) {
	store := memory.New(1000)
	store.FailPages(source.TableTransfers, 10)

	_, err := newAggregator(store, 2).Sum(context.Background(), source.TableTransfers, "amount", source.Eq("receiver_id", "u1"))
	require.Error(t, err)
	// Первая попытка + 2 повтора
	assert.Equal(t, 3, store.PageCalls())
}

func TestUnknownTableIsNotRetried(t *testing.T) {
	store := memory.New(1000)

	_, err := newAggregator(store, 5).Sum(context.Background(), "users", "password")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnknownTable))
	assert.Zero(t, store.PageCalls())
}

func TestPageClampsLimit(t *testing.T) {
	store := memory.New(10)
	for i := 0; i < 25; i++ {
		store.Insert(source.TableArenaBattles, map[string]any{"winner_side": "a", "prize_pool": 1})
	}
	q := source.Query{Table: source.TableArenaBattles, Fields: []string{"id"}, Filters: []source.Filter{source.NotNull("winner_side")}}

	rows, err := newAggregator(store, 0).Page(context.Background(), q, 20, 500)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}
