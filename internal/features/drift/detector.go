// Package drift сравнивает сохранённый баланс с каноническим и решает, что делать.
package drift

import (
	"serotonyl.ru/arx-reconciler/internal/features/balance"
)

// Action — итог сверки одного пользователя.
type Action string

const (
	ActionNoChange Action = "no_change" // Расхождения нет
	ActionRestored Action = "restored"  // Сохранённый баланс заменён каноническим
	ActionFlagged  Action = "flagged"   // Расхождение есть, но лечить автоматически нельзя
	ActionError    Action = "error"     // Пользователь не обработан
)

// Policy — когда расхождение не лечится автоматически.
type Policy struct {
	// MaxAutoRestore — порог |diff.Total|, выше которого решение flagged. 0 = без порога.
	MaxAutoRestore int64
	// AllowDecrease — можно ли автоматически уменьшать сохранённый баланс.
	AllowDecrease bool
}

// DefaultPolicy лечит любое расхождение.
var DefaultPolicy = Policy{AllowDecrease: true}

// Decision — результат сравнения.
type Decision struct {
	Stored   balance.Balance
	Computed balance.Balance
	Diff     balance.Balance // Computed - Stored по категориям
	Action   Action
	Reason   string // Почему flagged; пусто в остальных случаях
}

// Detect сравнивает stored и computed. no_change — когда total расходится
// меньше чем на 1; перераспределение между категориями при том же total
// тоже no_change. Иначе restored или flagged по политике.
// Отсутствующая запись баланса передаётся как нули.
func Detect(stored, computed balance.Balance, p Policy) Decision {
	d := Decision{
		Stored:   stored,
		Computed: computed,
		Diff:     computed.Sub(stored),
		Action:   ActionNoChange,
	}
	if abs(d.Diff.Total) < 1 {
		return d
	}

	switch {
	case p.MaxAutoRestore > 0 && abs(d.Diff.Total) > p.MaxAutoRestore:
		d.Action = ActionFlagged
		d.Reason = "расхождение больше порога автоисправления"
	case !p.AllowDecrease && d.Diff.Total < 0:
		d.Action = ActionFlagged
		d.Reason = "уменьшение баланса запрещено политикой"
	default:
		d.Action = ActionRestored
	}
	return d
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
