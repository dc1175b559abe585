package source

import (
	"fmt"
	"strings"

	"serotonyl.ru/arx-reconciler/internal/common"
)

// columns — белый список таблиц и колонок, доступных для чтения.
var columns = map[string][]string{
	TableMiningSessions:    {"id", "user_id", "arx_mined", "is_active"},
	TableUserTasks:         {"id", "user_id", "points_awarded", "status"},
	TableDailyCheckins:     {"id", "user_id", "points_awarded"},
	TableSocialSubmissions: {"id", "user_id", "points_awarded", "status"},
	TableReferrals:         {"id", "referrer_id", "referred_id", "points_awarded"},
	TableTransfers:         {"id", "sender_id", "receiver_id", "amount"},
	TableArenaBattles:      {"id", "side_a_power", "side_b_power", "side_c_power", "prize_pool", "winner_side", "status"},
	TableArenaVotes:        {"id", "battle_id", "user_id", "side", "power_spent", "early_stake_multiplier"},
	TableArenaEarnings:     {"id", "battle_id", "user_id", "stake", "total_earned", "pool_share_earned", "is_winner"},
}

// Validate проверяет, что таблица и все колонки запроса есть в белом списке.
func (q Query) Validate() error {
	known, ok := columns[q.Table]
	if !ok {
		return fmt.Errorf("%w: таблица %q", common.ErrUnknownTable, q.Table)
	}
	if len(q.Fields) == 0 {
		return fmt.Errorf("%w: пустой список колонок (%s)", common.ErrUnknownTable, q.Table)
	}
	check := func(col string) error {
		for _, c := range known {
			if c == col {
				return nil
			}
		}
		return fmt.Errorf("%w: %s.%s", common.ErrUnknownTable, q.Table, col)
	}
	for _, f := range q.Fields {
		if err := check(f); err != nil {
			return err
		}
	}
	for _, f := range q.Filters {
		if err := check(f.Column); err != nil {
			return err
		}
		if f.Op != OpEq && f.Op != OpNotNull {
			return fmt.Errorf("%w: оператор %q", common.ErrUnknownTable, f.Op)
		}
	}
	return nil
}

// buildSelect собирает SQL одной страницы. Все колонки приводятся к text.
func buildSelect(q Query, offset, limit int) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, f := range q.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s::text AS %s", f, f)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)

	args := make([]any, 0, len(q.Filters)+2)
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		switch f.Op {
		case OpNotNull:
			fmt.Fprintf(&sb, "%s IS NOT NULL", f.Column)
		default:
			args = append(args, f.Value)
			fmt.Fprintf(&sb, "%s = $%d", f.Column, len(args))
		}
	}

	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return sb.String(), args
}
