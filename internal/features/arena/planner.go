// Package arena — planner.go считает пропорциональные выплаты без обращений к базе.
package arena

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PlanPayouts вычисляет, каких записей arena_earnings не хватает по битве.
//
// Голоса одного пользователя складываются в одну долю: ставка и взвешенная
// сила суммируются, поэтому пара (битва, пользователь) пишется один раз.
// totalWeighted считается по всем победившим голосам, включая пользователей,
// у которых запись уже есть, иначе повторный запуск дал бы другие доли.
//
// Параметры:
//   - b: битва
//   - votes: голоса за победившую сторону
//   - recorded: пользователи, у которых запись по этой битве уже есть
func PlanPayouts(b Battle, votes []Vote, recorded map[string]bool) Plan {
	plan := Plan{BattleID: b.ID, Pool: b.Pool(), TotalWeighted: decimal.Zero, Missing: []Earning{}}

	if !b.Resolved() {
		plan.SkipReason = SkipUnresolved
		return plan
	}
	if plan.Pool <= 0 {
		plan.SkipReason = SkipEmptyPool
		return plan
	}

	type entitlement struct {
		stake    decimal.Decimal
		weighted decimal.Decimal
	}
	byUser := make(map[string]*entitlement)
	order := make([]string, 0)
	for _, v := range votes {
		if v.Side != "" && v.Side != b.WinnerSide {
			continue
		}
		e, ok := byUser[v.UserID]
		if !ok {
			e = &entitlement{stake: decimal.Zero, weighted: decimal.Zero}
			byUser[v.UserID] = e
			order = append(order, v.UserID)
		}
		w := v.Weighted()
		e.stake = e.stake.Add(v.PowerSpent)
		e.weighted = e.weighted.Add(w)
		plan.TotalWeighted = plan.TotalWeighted.Add(w)
	}
	plan.WinningVoters = len(order)

	if len(order) == 0 {
		plan.SkipReason = SkipNoWinners
		return plan
	}

	// Стабильный порядок вставки
	sort.Strings(order)
	pool := decimal.NewFromInt(plan.Pool)
	for _, userID := range order {
		if recorded[userID] {
			plan.AlreadyRecorded++
			continue
		}
		e := byUser[userID]
		payout := payoutOf(e.weighted, plan.TotalWeighted, pool)
		if payout <= 0 {
			plan.ZeroPayout++
			continue
		}
		net := decimal.NewFromInt(payout).Sub(e.stake)
		if net.IsNegative() {
			net = decimal.Zero
		}
		plan.Missing = append(plan.Missing, Earning{
			BattleID:        b.ID,
			UserID:          userID,
			Stake:           e.stake,
			TotalEarned:     payout,
			PoolShareEarned: net,
			IsWinner:        true,
		})
		plan.TotalMissingPoints += payout
	}
	return plan
}

// payoutOf = floor(weighted × pool / total), 0 при total == 0.
// Делим один раз в конце, чтобы доли не теряли точность.
func payoutOf(weighted, total, pool decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	q, _ := weighted.Mul(pool).QuoRem(total, 0)
	return q.IntPart()
}
