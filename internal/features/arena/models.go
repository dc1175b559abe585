// Package arena — выплаты победителям завершённых битв арены.
// models.go описывает битву, голос, начисление и план выплат.
package arena

import "github.com/shopspring/decimal"

// Battle — битва арены. WinnerSide пустой, пока битва не завершена.
type Battle struct {
	ID         int64
	SideAPower decimal.Decimal
	SideBPower decimal.Decimal
	SideCPower decimal.Decimal // Ноль для битв с двумя сторонами
	PrizePool  decimal.Decimal // Бонус сверх поставленной силы
	WinnerSide string
	Status     string
}

// Resolved сообщает, что победитель определён.
func (b Battle) Resolved() bool {
	return b.WinnerSide != ""
}

// Pool — весь банк битвы: сила всех сторон плюс призовой фонд, вниз до целого.
func (b Battle) Pool() int64 {
	return b.SideAPower.Add(b.SideBPower).Add(b.SideCPower).Add(b.PrizePool).Floor().IntPart()
}

// Vote — ставка пользователя на сторону.
type Vote struct {
	UserID     string
	Side       string
	PowerSpent decimal.Decimal
	Multiplier decimal.Decimal // early_stake_multiplier; ноль = NULL
}

// Weighted возвращает power_spent × multiplier. Множитель меньше 1 (или NULL) считается 1.
func (v Vote) Weighted() decimal.Decimal {
	m := v.Multiplier
	if m.LessThan(decimal.NewFromInt(1)) {
		m = decimal.NewFromInt(1)
	}
	return v.PowerSpent.Mul(m)
}

// Earning — запись arena_earnings. Одна на пару (битва, пользователь).
type Earning struct {
	BattleID        int64           `json:"battle_id"`
	UserID          string          `json:"user_id"`
	Stake           decimal.Decimal `json:"stake"`
	TotalEarned     int64           `json:"total_earned"`
	PoolShareEarned decimal.Decimal `json:"pool_share_earned"`
	IsWinner        bool            `json:"is_winner"`
}

// Причины пропуска битвы целиком.
const (
	SkipUnresolved = "битва не завершена"
	SkipEmptyPool  = "банк битвы пуст"
	SkipNoWinners  = "нет голосов за победившую сторону"
)

// Plan — план выплат по одной битве.
type Plan struct {
	BattleID           int64
	Pool               int64
	TotalWeighted      decimal.Decimal
	WinningVoters      int       // Уникальные пользователи на стороне победителя
	AlreadyRecorded    int       // Уже имеют запись в arena_earnings
	ZeroPayout         int       // Доля округлилась до нуля, запись не создаётся
	Missing            []Earning // Что нужно вставить
	TotalMissingPoints int64
	SkipReason         string // Не пусто — битва пропущена, Missing пуст
}
