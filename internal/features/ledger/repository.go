// Package ledger — repository.go реализует Store поверх PostgreSQL.
//
// Каждая запись — своя транзакция. Параллельные проходы сериализуются
// транзакционной advisory-блокировкой по ключу сущности, поэтому
// «перечитать — сравнить — записать» не гоняется с другим писателем.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetStoredBalance читает user_balances. Нет строки — (нули, false, nil).
func (r *Repository) GetStoredBalance(ctx context.Context, userID string) (balance.Balance, bool, error) {
	b, found, err := scanBalance(r.db.QueryRow(ctx, selectBalanceSQL, userID))
	if err != nil {
		return balance.Balance{}, false, fmt.Errorf("ошибка чтения баланса %s: %w", userID, err)
	}
	return b, found, nil
}

const selectBalanceSQL = `
	SELECT mining_points::bigint, task_points::bigint, social_points::bigint,
	       referral_points::bigint, total_points::bigint
	FROM user_balances
	WHERE user_id = $1
`

// ApplyCorrection заменяет баланс каноническим, если он всё ещё отличается.
func (r *Repository) ApplyCorrection(ctx context.Context, c Correction) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "balance:"+c.UserID); err != nil {
		return false, fmt.Errorf("ошибка блокировки баланса: %w", err)
	}

	stored, found, err := scanBalance(tx.QueryRow(ctx, selectBalanceSQL+" FOR UPDATE", c.UserID))
	if err != nil {
		return false, fmt.Errorf("ошибка перечитывания баланса: %w", err)
	}
	// Другой проход успел исправить раньше нас
	if found && stored == c.Computed {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_balances (user_id, mining_points, task_points, social_points, referral_points, total_points, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET mining_points = EXCLUDED.mining_points,
		    task_points = EXCLUDED.task_points,
		    social_points = EXCLUDED.social_points,
		    referral_points = EXCLUDED.referral_points,
		    total_points = EXCLUDED.total_points,
		    updated_at = NOW()
	`, c.UserID, c.Computed.Mining, c.Computed.Task, c.Computed.Social, c.Computed.Referral, c.Computed.Total)
	if err != nil {
		return false, fmt.Errorf("ошибка записи баланса: %w", err)
	}

	// Аудит фиксирует то, что реально лежало в базе в момент записи
	rec := c.Audit
	rec.Stored = stored
	rec.StoredTotal = stored.Total
	rec.Diff = c.Computed.Sub(stored)
	rec.PointsRestored = rec.Diff.Total
	if err := insertAudit(ctx, tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка коммита: %w", err)
	}
	return true, nil
}

// InsertEarning вставляет начисление один раз на пару (битва, пользователь).
func (r *Repository) InsertEarning(ctx context.Context, e arena.Earning, audit AuditRecord) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	key := fmt.Sprintf("earning:%d:%s", e.BattleID, e.UserID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return false, fmt.Errorf("ошибка блокировки начисления: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO arena_earnings (battle_id, user_id, stake, total_earned, pool_share_earned, is_winner)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6)
		ON CONFLICT (battle_id, user_id) DO NOTHING
	`, e.BattleID, e.UserID, e.Stake.String(), e.TotalEarned, e.PoolShareEarned.String(), e.IsWinner)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка вставки начисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertAudit(ctx, tx, audit); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка коммита: %w", err)
	}
	return true, nil
}

// AppendAudit добавляет запись аудита отдельной транзакцией.
func (r *Repository) AppendAudit(ctx context.Context, rec AuditRecord) error {
	return insertAudit(ctx, r.db, rec)
}

// execer — общее у пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAudit(ctx context.Context, db execer, rec AuditRecord) error {
	stored, err := json.Marshal(rec.Stored)
	if err != nil {
		return fmt.Errorf("ошибка сериализации stored: %w", err)
	}
	computed, err := json.Marshal(rec.Computed)
	if err != nil {
		return fmt.Errorf("ошибка сериализации computed: %w", err)
	}
	diff, err := json.Marshal(rec.Diff)
	if err != nil {
		return fmt.Errorf("ошибка сериализации diff: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO balance_audit_log
			(run_id, user_id, audit_type, stored_total_points, computed_total_points,
			 points_restored, action_taken, stored, computed, diff, battle_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.RunID, rec.UserID, string(rec.Type), rec.StoredTotal, rec.ComputedTotal,
		rec.PointsRestored, rec.ActionTaken, stored, computed, diff, rec.BattleID)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func scanBalance(row pgx.Row) (balance.Balance, bool, error) {
	var b balance.Balance
	err := row.Scan(&b.Mining, &b.Task, &b.Social, &b.Referral, &b.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return balance.Balance{}, false, nil
	}
	if err != nil {
		return balance.Balance{}, false, err
	}
	return b, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
