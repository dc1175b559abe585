// Package users — repository.go читает таблицу users.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/arx-reconciler/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// List возвращает пачку пользователей в стабильном порядке (по id).
func (r *Repository) List(ctx context.Context, offset, limit int) ([]User, error) {
	query := `
		SELECT id::text, COALESCE(username, '')
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0, limit)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Find ищет пользователя по id или по username (без учёта регистра, "@" необязателен).
// Если не найден — ошибка с common.ErrUserNotFound.
func (r *Repository) Find(ctx context.Context, key string) (*User, error) {
	key = strings.TrimSpace(key)
	query := `
		SELECT id::text, COALESCE(username, '')
		FROM users
		WHERE id::text = $1 OR LOWER(username) = LOWER($2)
		ORDER BY (id::text = $1) DESC
		LIMIT 1
	`
	var u User
	err := r.db.QueryRow(ctx, query, key, strings.TrimPrefix(key, "@")).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", common.ErrUserNotFound, key)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (%s): %w", key, err)
	}
	return &u, nil
}
