package balance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/arx-reconciler/internal/db/memory"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/source"
)

func TestCompileReadsEveryEventTable(t *testing.T) {
	store := memory.New(1000)
	store.Insert(source.TableMiningSessions, map[string]any{"user_id": "u1", "arx_mined": "20.9", "is_active": false})
	store.Insert(source.TableMiningSessions, map[string]any{"user_id": "u1", "arx_mined": "99", "is_active": true})
	store.Insert(source.TableUserTasks, map[string]any{"user_id": "u1", "points_awarded": 15, "status": "completed"})
	store.Insert(source.TableUserTasks, map[string]any{"user_id": "u1", "points_awarded": 50, "status": "pending"})
	store.Insert(source.TableDailyCheckins, map[string]any{"user_id": "u1", "points_awarded": 5})
	store.Insert(source.TableSocialSubmissions, map[string]any{"user_id": "u1", "points_awarded": 8, "status": "approved"})
	store.Insert(source.TableSocialSubmissions, map[string]any{"user_id": "u1", "points_awarded": 8, "status": "rejected"})
	store.Insert(source.TableReferrals, map[string]any{"referrer_id": "u1", "referred_id": "u2", "points_awarded": 25})
	store.Insert(source.TableReferrals, map[string]any{"referrer_id": "u2", "referred_id": "u1", "points_awarded": 25})
	store.Insert(source.TableArenaVotes, map[string]any{"battle_id": 1, "user_id": "u1", "side": "a", "power_spent": 30})
	store.Insert(source.TableArenaEarnings, map[string]any{"battle_id": 1, "user_id": "u1", "total_earned": 12})
	store.Insert(source.TableTransfers, map[string]any{"sender_id": "u2", "receiver_id": "u1", "amount": 4})
	store.Insert(source.TableTransfers, map[string]any{"sender_id": "u1", "receiver_id": "u2", "amount": 100})

	agg := source.NewAggregator(store, 0, source.WithRetryInterval(time.Millisecond))
	got, err := balance.NewCompiler(agg).Compile(context.Background(), "u1")
	require.NoError(t, err)

	// extra = (12 - 30) + 4 = -14: майнинг 20 обнуляется, излишек 6 уходит в task
	assert.Equal(t, balance.Balance{Mining: 0, Task: 26, Social: 8, Referral: 25, Total: 59}, got)
}

func TestCompileFailsOnReadError(t *testing.T) {
	store := memory.New(1000)
	store.FailPages(source.TableReferrals, 5)

	agg := source.NewAggregator(store, 1, source.WithRetryInterval(time.Millisecond))
	_, err := balance.NewCompiler(agg).Compile(context.Background(), "u1")
	assert.Error(t, err)
}
