// Package source — чтение событийных таблиц, которые считаются источником истины
// для баланса. models.go описывает запрос, фильтры и строку результата.
package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Таблицы событий и арены.
const (
	TableMiningSessions    = "mining_sessions"
	TableUserTasks         = "user_tasks"
	TableDailyCheckins     = "daily_checkins"
	TableSocialSubmissions = "social_submissions"
	TableReferrals         = "referrals"
	TableTransfers         = "transfers"
	TableArenaBattles      = "arena_battles"
	TableArenaVotes        = "arena_votes"
	TableArenaEarnings     = "arena_earnings"
)

// DefaultPageSize — сколько строк хранилище отдаёт за один запрос.
const DefaultPageSize = 1000

// Op — оператор фильтра.
type Op string

const (
	OpEq      Op = "eq"       // column = value
	OpNotNull Op = "not_null" // column IS NOT NULL
)

// Filter — одно условие WHERE.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq создаёт фильтр column = value.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// NotNull создаёт фильтр column IS NOT NULL.
func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotNull}
}

// Query описывает выборку из одной таблицы.
// Порядок строк всегда по id, иначе постраничное чтение теряет или дублирует строки.
type Query struct {
	Table   string
	Fields  []string
	Filters []Filter
}

// Row — строка результата: колонка → текстовое значение (nil = NULL).
// Все значения читаются как текст, числа разбираются в decimal без потери точности.
type Row map[string]*string

// String возвращает значение колонки или "" для NULL.
func (r Row) String(column string) string {
	if v := r[column]; v != nil {
		return *v
	}
	return ""
}

// IsNull сообщает, что колонка NULL или отсутствует в строке.
func (r Row) IsNull(column string) bool {
	return r[column] == nil
}

// Decimal разбирает числовую колонку. NULL считается нулём.
func (r Row) Decimal(column string) (decimal.Decimal, error) {
	v := r[column]
	if v == nil || *v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("колонка %s: некорректное число %q: %w", column, *v, err)
	}
	return d, nil
}

// Int64 разбирает целочисленную колонку. NULL считается нулём.
func (r Row) Int64(column string) (int64, error) {
	v := r[column]
	if v == nil || *v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("колонка %s: некорректное целое %q: %w", column, *v, err)
	}
	return n, nil
}

// PageSource — хранилище, которое отдаёт не больше PageSize строк за запрос.
// Любой limit больше PageSize молча урезается, как это делает REST-слой базы.
type PageSource interface {
	FetchPage(ctx context.Context, q Query, offset, limit int) ([]Row, error)
	PageSize() int
}

// Text — удобный конструктор значения для Row.
func Text(s string) *string {
	return &s
}
