// Package balance — compiler.go содержит чистую проекцию событий в баланс.
// Ничего не читает и не пишет: только арифметика над Sums.
package balance

import "github.com/shopspring/decimal"

// category — доступ к одной категории баланса.
type category struct {
	name string
	get  func(*Balance) int64
	set  func(*Balance, int64)
}

// deficitOrder — порядок списания дефицита: майнинг наименее «священен», рефералы — наиболее.
// Менять порядок нельзя: от него зависит воспроизводимость итогов.
var deficitOrder = []category{
	{"mining", func(b *Balance) int64 { return b.Mining }, func(b *Balance, v int64) { b.Mining = v }},
	{"task", func(b *Balance) int64 { return b.Task }, func(b *Balance, v int64) { b.Task = v }},
	{"social", func(b *Balance) int64 { return b.Social }, func(b *Balance, v int64) { b.Social = v }},
	{"referral", func(b *Balance) int64 { return b.Referral }, func(b *Balance, v int64) { b.Referral = v }},
}

// Project вычисляет канонический баланс из сумм.
//
// Алгоритм:
//  1. mining, task (+чекины), social, referral — floor от сумм
//  2. arenaNet = floor(выиграно) - floor(поставлено), может быть < 0
//  3. transferNet = floor(получено переводами); отправитель не дебетуется
//  4. extra = arenaNet + transferNet: >= 0 уходит в social, < 0 списывается каскадом
//  5. total = сумма категорий, все категории >= 0
func Project(s Sums) Balance {
	b := Balance{
		Mining:   floor(s.MiningArx),
		Task:     floor(s.TaskPoints.Add(s.CheckinPoints)),
		Social:   floor(s.SocialPoints),
		Referral: floor(s.ReferralPoints),
	}
	arenaNet := floor(s.ArenaEarned) - floor(s.ArenaSpent)
	transferNet := floor(s.TransfersReceived)

	b = ApplyAdjustment(clamp(b), arenaNet+transferNet)
	b = clamp(b)
	b.Total = b.Sum()
	return b
}

// ApplyAdjustment применяет сквозную поправку extra к категориям.
//
// extra >= 0 целиком добавляется к social. При extra < 0 категории
// обнуляются по порядку deficitOrder, пока дефицит не покрыт; категория,
// которая покрывает остаток, тоже обнуляется, а её излишек переносится
// в следующую категорию порядка (у последней остаётся в ней же).
// Дефицит больше суммы всех категорий обнуляет всё, остаток отбрасывается.
//
// Пример: 5/3/2/10 и extra=-7 → 0/0/3/10.
func ApplyAdjustment(b Balance, extra int64) Balance {
	if extra >= 0 {
		b.Social += extra
		b.Total = b.Sum()
		return b
	}

	deficit := -extra
	for i, c := range deficitOrder {
		if deficit == 0 {
			break
		}
		v := c.get(&b)
		if v < deficit {
			c.set(&b, 0)
			deficit -= v
			continue
		}

		surplus := v - deficit
		deficit = 0
		c.set(&b, 0)
		if i+1 < len(deficitOrder) {
			next := deficitOrder[i+1]
			next.set(&b, next.get(&b)+surplus)
		} else {
			c.set(&b, surplus)
		}
	}

	b.Total = b.Sum()
	return b
}

// floor округляет вниз до целого.
func floor(d decimal.Decimal) int64 {
	return d.Floor().IntPart()
}

// clamp не даёт категориям уйти в минус и пересчитывает Total.
func clamp(b Balance) Balance {
	for _, c := range deficitOrder {
		if c.get(&b) < 0 {
			c.set(&b, 0)
		}
	}
	b.Total = b.Sum()
	return b
}
