// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование очков для логов и отчётов оператору.
package common

import "fmt"

// FormatPoints форматирует количество очков с разделителями тысяч.
// Пример: FormatPoints(2350) → "2 350 ARX"
func FormatPoints(n int64) string {
	return FormatNumber(n) + " ARX"
}

// FormatPointsDelta создаёт строку вида "+100 ARX" или "-50 ARX".
// Знак добавляется всегда, ноль печатается как "+0 ARX".
func FormatPointsDelta(n int64) string {
	if n >= 0 {
		return "+" + FormatPoints(n)
	}
	return FormatPoints(n)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Рекурсивно добавляем разделители
	rest := n / 1000
	last := n % 1000
	return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
}
