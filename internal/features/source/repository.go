// Package source — repository.go реализует PageSource поверх PostgreSQL.
package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository читает страницы событийных таблиц из PostgreSQL.
type Repository struct {
	db       *pgxpool.Pool
	pageSize int // Жёсткий потолок строк на запрос
}

// NewRepository создаёт источник с потолком pageSize строк на запрос.
func NewRepository(db *pgxpool.Pool, pageSize int) *Repository {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Repository{db: db, pageSize: pageSize}
}

// PageSize возвращает потолок строк на запрос.
func (r *Repository) PageSize() int {
	return r.pageSize
}

// FetchPage возвращает не больше PageSize строк, начиная с offset.
func (r *Repository) FetchPage(ctx context.Context, q Query, offset, limit int) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > r.pageSize {
		limit = r.pageSize
	}

	sql, args := buildSelect(q, offset, limit)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s: %w", q.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]Row, 0, limit)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки %s: %w", q.Table, err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			if values[i] == nil {
				row[fd.Name] = nil
				continue
			}
			s, ok := values[i].(string)
			if !ok {
				s = fmt.Sprint(values[i])
			}
			row[fd.Name] = Text(s)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк %s: %w", q.Table, err)
	}
	return out, nil
}
