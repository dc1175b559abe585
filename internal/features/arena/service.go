// Package arena — service.go читает битвы, голоса и начисления через агрегатор
// и строит план выплат. Записью занимается ledger.
package arena

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/features/source"
)

var battleFields = []string{"id", "side_a_power", "side_b_power", "side_c_power", "prize_pool", "winner_side", "status"}

// Calculator строит планы выплат по данным хранилища.
type Calculator struct {
	agg *source.Aggregator
}

func NewCalculator(agg *source.Aggregator) *Calculator {
	return &Calculator{agg: agg}
}

// ListResolved возвращает пачку завершённых битв (winner_side не NULL) по id.
func (c *Calculator) ListResolved(ctx context.Context, offset, limit int) ([]Battle, error) {
	q := source.Query{
		Table:   source.TableArenaBattles,
		Fields:  battleFields,
		Filters: []source.Filter{source.NotNull("winner_side")},
	}
	rows, err := c.agg.Page(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения битв: %w", err)
	}
	out := make([]Battle, 0, len(rows))
	for _, row := range rows {
		b, err := battleFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GetBattle читает одну битву. Если нет — ошибка с common.ErrBattleNotFound.
func (c *Calculator) GetBattle(ctx context.Context, id int64) (*Battle, error) {
	rows, err := c.agg.FetchAll(ctx, source.TableArenaBattles, battleFields, source.Eq("id", id))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения битвы %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %d", common.ErrBattleNotFound, id)
	}
	b, err := battleFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Plan читает победившие голоса и существующие начисления битвы и строит план.
// Незавершённая битва или пустой банк не читают голоса вовсе.
func (c *Calculator) Plan(ctx context.Context, b Battle) (Plan, error) {
	if !b.Resolved() || b.Pool() <= 0 {
		return PlanPayouts(b, nil, nil), nil
	}

	voteRows, err := c.agg.FetchAll(ctx, source.TableArenaVotes,
		[]string{"user_id", "side", "power_spent", "early_stake_multiplier"},
		source.Eq("battle_id", b.ID), source.Eq("side", b.WinnerSide),
	)
	if err != nil {
		return Plan{}, fmt.Errorf("битва %d: %w", b.ID, err)
	}
	votes := make([]Vote, 0, len(voteRows))
	for _, row := range voteRows {
		power, err := row.Decimal("power_spent")
		if err != nil {
			return Plan{}, fmt.Errorf("битва %d: %w", b.ID, err)
		}
		mult, err := row.Decimal("early_stake_multiplier")
		if err != nil {
			return Plan{}, fmt.Errorf("битва %d: %w", b.ID, err)
		}
		votes = append(votes, Vote{
			UserID:     row.String("user_id"),
			Side:       row.String("side"),
			PowerSpent: power,
			Multiplier: mult,
		})
	}

	earnRows, err := c.agg.FetchAll(ctx, source.TableArenaEarnings,
		[]string{"user_id"}, source.Eq("battle_id", b.ID),
	)
	if err != nil {
		return Plan{}, fmt.Errorf("битва %d: %w", b.ID, err)
	}
	recorded := make(map[string]bool, len(earnRows))
	for _, row := range earnRows {
		recorded[row.String("user_id")] = true
	}

	return PlanPayouts(b, votes, recorded), nil
}

func battleFromRow(row source.Row) (Battle, error) {
	id, err := row.Int64("id")
	if err != nil {
		return Battle{}, fmt.Errorf("битва: %w", err)
	}
	b := Battle{ID: id, WinnerSide: row.String("winner_side"), Status: row.String("status")}
	for col, dst := range map[string]*decimal.Decimal{
		"side_a_power": &b.SideAPower,
		"side_b_power": &b.SideBPower,
		"side_c_power": &b.SideCPower,
		"prize_pool":   &b.PrizePool,
	} {
		v, err := row.Decimal(col)
		if err != nil {
			return Battle{}, fmt.Errorf("битва %d: %w", id, err)
		}
		*dst = v
	}
	return b, nil
}
