// Package balance — service.go собирает суммы пользователя из таблиц событий
// и проецирует их в канонический баланс. Хранилище не изменяется.
package balance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"serotonyl.ru/arx-reconciler/internal/features/source"
)

// Compiler пересчитывает канонический баланс пользователя.
type Compiler struct {
	agg *source.Aggregator
}

// NewCompiler создаёт компилятор поверх агрегатора.
func NewCompiler(agg *source.Aggregator) *Compiler {
	return &Compiler{agg: agg}
}

// sumSpec — одна сумма, из которых складывается Sums.
type sumSpec struct {
	table   string
	field   string
	filters func(userID string) []source.Filter
	target  func(*Sums) *decimal.Decimal
}

// sources — все суммы, входящие в баланс.
var sources = []sumSpec{
	{source.TableMiningSessions, "arx_mined",
		func(u string) []source.Filter {
			return []source.Filter{source.Eq("user_id", u), source.Eq("is_active", false)}
		},
		func(s *Sums) *decimal.Decimal { return &s.MiningArx }},
	{source.TableUserTasks, "points_awarded",
		func(u string) []source.Filter {
			return []source.Filter{source.Eq("user_id", u), source.Eq("status", "completed")}
		},
		func(s *Sums) *decimal.Decimal { return &s.TaskPoints }},
	{source.TableDailyCheckins, "points_awarded",
		func(u string) []source.Filter { return []source.Filter{source.Eq("user_id", u)} },
		func(s *Sums) *decimal.Decimal { return &s.CheckinPoints }},
	{source.TableSocialSubmissions, "points_awarded",
		func(u string) []source.Filter {
			return []source.Filter{source.Eq("user_id", u), source.Eq("status", "approved")}
		},
		func(s *Sums) *decimal.Decimal { return &s.SocialPoints }},
	{source.TableReferrals, "points_awarded",
		func(u string) []source.Filter { return []source.Filter{source.Eq("referrer_id", u)} },
		func(s *Sums) *decimal.Decimal { return &s.ReferralPoints }},
	{source.TableArenaEarnings, "total_earned",
		func(u string) []source.Filter { return []source.Filter{source.Eq("user_id", u)} },
		func(s *Sums) *decimal.Decimal { return &s.ArenaEarned }},
	{source.TableArenaVotes, "power_spent",
		func(u string) []source.Filter { return []source.Filter{source.Eq("user_id", u)} },
		func(s *Sums) *decimal.Decimal { return &s.ArenaSpent }},
	{source.TableTransfers, "amount",
		func(u string) []source.Filter { return []source.Filter{source.Eq("receiver_id", u)} },
		func(s *Sums) *decimal.Decimal { return &s.TransfersReceived }},
}

// CollectSums читает все суммы пользователя (с постраничным обходом).
func (c *Compiler) CollectSums(ctx context.Context, userID string) (Sums, error) {
	var s Sums
	for _, spec := range sources {
		v, err := c.agg.Sum(ctx, spec.table, spec.field, spec.filters(userID)...)
		if err != nil {
			return Sums{}, fmt.Errorf("пользователь %s: %w", userID, err)
		}
		*spec.target(&s) = v
	}
	return s, nil
}

// Compile возвращает канонический баланс пользователя.
func (c *Compiler) Compile(ctx context.Context, userID string) (Balance, error) {
	s, err := c.CollectSums(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Project(s), nil
}
