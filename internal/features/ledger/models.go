// Package ledger — единственное место, где сверка пишет в базу.
// models.go описывает записи аудита и корректировки.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
)

// AuditType — вид записи balance_audit_log.
type AuditType string

const (
	AuditBalanceRestored AuditType = "balance_restored"
	AuditBalanceFlagged  AuditType = "balance_flagged"
	AuditEarningInserted AuditType = "earning_inserted"
)

// AuditRecord — строка balance_audit_log.
type AuditRecord struct {
	ID             int64           `json:"id"`
	RunID          uuid.UUID       `json:"run_id"`
	UserID         string          `json:"user_id"`
	Type           AuditType       `json:"audit_type"`
	StoredTotal    int64           `json:"stored_total_points"`
	ComputedTotal  int64           `json:"computed_total_points"`
	PointsRestored int64           `json:"points_restored"`
	ActionTaken    string          `json:"action_taken"`
	Stored         balance.Balance `json:"stored"`
	Computed       balance.Balance `json:"computed"`
	Diff           balance.Balance `json:"diff"`
	BattleID       *int64          `json:"battle_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Correction — замена сохранённого баланса каноническим.
type Correction struct {
	UserID   string
	Computed balance.Balance
	Audit    AuditRecord
}

// Store — хранилище, в которое пишет Writer. Каждый метод — отдельная транзакция,
// сериализованная по сущности (пользователь или пара битва+пользователь).
type Store interface {
	// GetStoredBalance возвращает сохранённый баланс; false — записи нет.
	GetStoredBalance(ctx context.Context, userID string) (balance.Balance, bool, error)
	// ApplyCorrection перечитывает баланс под блокировкой и пишет, только если он
	// всё ещё отличается. Возвращает true, если запись была.
	ApplyCorrection(ctx context.Context, c Correction) (bool, error)
	// InsertEarning вставляет начисление, если пары ещё нет. Аудит — только при вставке.
	InsertEarning(ctx context.Context, e arena.Earning, audit AuditRecord) (bool, error)
	// AppendAudit добавляет запись аудита без изменения баланса.
	AppendAudit(ctx context.Context, rec AuditRecord) error
}
