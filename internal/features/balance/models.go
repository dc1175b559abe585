// Package balance — канонический баланс пользователя, пересчитанный из событий.
// models.go описывает баланс по категориям и сырые суммы из таблиц событий.
package balance

import "github.com/shopspring/decimal"

// Balance — очки пользователя по четырём категориям плюс итог.
// Инвариант: Total == Mining + Task + Social + Referral.
type Balance struct {
	Mining   int64 `json:"mining"`
	Task     int64 `json:"task"`
	Social   int64 `json:"social"`
	Referral int64 `json:"referral"`
	Total    int64 `json:"total"`
}

// Sum возвращает сумму категорий.
func (b Balance) Sum() int64 {
	return b.Mining + b.Task + b.Social + b.Referral
}

// Consistent проверяет инвариант Total == сумма категорий.
func (b Balance) Consistent() bool {
	return b.Total == b.Sum()
}

// Sub возвращает покатегорийную разницу b - o (со знаком).
func (b Balance) Sub(o Balance) Balance {
	return Balance{
		Mining:   b.Mining - o.Mining,
		Task:     b.Task - o.Task,
		Social:   b.Social - o.Social,
		Referral: b.Referral - o.Referral,
		Total:    b.Total - o.Total,
	}
}

// Sums — сырые суммы по таблицам событий одного пользователя, до округления.
type Sums struct {
	MiningArx         decimal.Decimal // mining_sessions.arx_mined, is_active=false
	TaskPoints        decimal.Decimal // user_tasks.points_awarded, status=completed
	CheckinPoints     decimal.Decimal // daily_checkins.points_awarded
	SocialPoints      decimal.Decimal // social_submissions.points_awarded, status=approved
	ReferralPoints    decimal.Decimal // referrals.points_awarded, referrer=U
	ArenaEarned       decimal.Decimal // arena_earnings.total_earned
	ArenaSpent        decimal.Decimal // arena_votes.power_spent
	TransfersReceived decimal.Decimal // transfers.amount, receiver=U
}
