// Package source — aggregator.go читает таблицы постранично и складывает результат.
//
// Хранилище урезает любой запрос до PageSize строк, поэтому Sum и FetchAll
// запрашивают страницы с растущим смещением, пока очередная страница не
// окажется короче PageSize. Обрезка на первой странице занижает баланс
// активных пользователей и даёт ложные «восстановления».
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Aggregator считает суммы и собирает списки поверх PageSource.
type Aggregator struct {
	src           PageSource
	retries       uint64        // Повторы чтения одной страницы
	retryInterval time.Duration // Начальная пауза между повторами
}

// Option настраивает Aggregator.
type Option func(*Aggregator)

// WithRetryInterval задаёт начальную паузу экспоненциального backoff.
func WithRetryInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.retryInterval = d }
}

// NewAggregator создаёт агрегатор. retries — сколько раз повторяем страницу
// после первой неудачной попытки.
func NewAggregator(src PageSource, retries uint64, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:           src,
		retries:       retries,
		retryInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sum возвращает сумму колонки field по всем строкам, прошедшим фильтры.
// Пустая выборка даёт ноль.
func (a *Aggregator) Sum(ctx context.Context, table, field string, filters ...Filter) (decimal.Decimal, error) {
	q := Query{Table: table, Fields: []string{field}, Filters: filters}
	total := decimal.Zero
	err := a.each(ctx, q, func(row Row) error {
		v, err := row.Decimal(field)
		if err != nil {
			return err
		}
		total = total.Add(v)
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("сумма %s.%s: %w", table, field, err)
	}
	return total, nil
}

// FetchAll возвращает все строки выборки. Пустая выборка даёт пустой срез, не nil.
func (a *Aggregator) FetchAll(ctx context.Context, table string, fields []string, filters ...Filter) ([]Row, error) {
	q := Query{Table: table, Fields: fields, Filters: filters}
	out := make([]Row, 0)
	err := a.each(ctx, q, func(row Row) error {
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("выборка %s: %w", table, err)
	}
	return out, nil
}

// Page возвращает одну страницу выборки (для курсоров пачек), с теми же повторами.
func (a *Aggregator) Page(ctx context.Context, q Query, offset, limit int) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > a.src.PageSize() {
		limit = a.src.PageSize()
	}
	return a.fetchPage(ctx, q, offset, limit)
}

// each обходит все страницы выборки и вызывает fn для каждой строки.
func (a *Aggregator) each(ctx context.Context, q Query, fn func(Row) error) error {
	if err := q.Validate(); err != nil {
		return err
	}
	pageSize := a.src.PageSize()
	if pageSize <= 0 {
		return fmt.Errorf("некорректный размер страницы: %d", pageSize)
	}

	for offset := 0; ; {
		page, err := a.fetchPage(ctx, q, offset, pageSize)
		if err != nil {
			return err
		}
		for _, row := range page {
			if err := fn(row); err != nil {
				return err
			}
		}
		// Короткая страница — последняя
		if len(page) < pageSize {
			return nil
		}
		offset += len(page)
	}
}

// fetchPage читает одну страницу с повторами при временных ошибках.
func (a *Aggregator) fetchPage(ctx context.Context, q Query, offset, limit int) ([]Row, error) {
	var page []Row
	attempts, err := Retry(ctx, a.retries, a.retryInterval, log.Fields{"table": q.Table, "offset": offset}, func() error {
		rows, err := a.src.FetchPage(ctx, q, offset, limit)
		if err != nil {
			return err
		}
		page = rows
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("страница offset=%d (попыток: %d): %w", offset, attempts, err)
	}
	return page, nil
}
