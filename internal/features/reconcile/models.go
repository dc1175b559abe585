// Package reconcile — точка входа движка сверки: один вызов Reconcile
// обрабатывает одну пачку пользователей или битв и возвращает отчёт.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/drift"
)

// Mode — режим прохода.
type Mode string

const (
	// ModeAudit — отчёт о расхождениях балансов, без записи (DryRun не важен).
	ModeAudit Mode = "audit"
	// ModeRestoreEarnings — досоздание недостающих начислений арены.
	ModeRestoreEarnings Mode = "restore_earnings"
	// ModeRebuildBalances — пересчёт и исправление балансов.
	ModeRebuildBalances Mode = "rebuild_balances"
)

// Valid сообщает, что режим известен.
func (m Mode) Valid() bool {
	switch m {
	case ModeAudit, ModeRestoreEarnings, ModeRebuildBalances:
		return true
	}
	return false
}

// Request — параметры одного вызова.
type Request struct {
	Mode         Mode
	DryRun       bool
	BatchSize    int    // 0 = значение по умолчанию
	Offset       int    // Курсор пачки
	UserFilter   string // id или username; только один пользователь
	BattleFilter *int64 // Только одна битва
}

// Result — итог по одному пользователю.
type Result struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username,omitempty"`
	Stored   balance.Balance `json:"stored"`
	Computed balance.Balance `json:"computed"`
	Diff     balance.Balance `json:"diff"`
	Action   drift.Action    `json:"action"`
	Reason   string          `json:"reason,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BattleReport — итог по одной битве.
type BattleReport struct {
	BattleID           int64  `json:"battle_id"`
	Pool               int64  `json:"pool"`
	WinningVoters      int    `json:"winning_voters"`
	AlreadyRecorded    int    `json:"already_recorded"`
	MissingCount       int    `json:"missing_count"`
	InsertedCount      int    `json:"inserted_count"`
	InsertedPoints     int64  `json:"inserted_points"`
	TotalMissingPoints int64  `json:"total_missing_points"`
	SkipReason         string `json:"skip_reason,omitempty"`
	Error              string `json:"error,omitempty"`
}

// ErrorEntry — ошибка по сущности; проход при этом продолжается.
type ErrorEntry struct {
	UserID   string `json:"user_id,omitempty"`
	BattleID *int64 `json:"battle_id,omitempty"`
	Message  string `json:"message"`
}

// Report — отчёт прохода.
//
// Restored считает исправленные балансы (rebuild/audit) или недостающие
// начисления (restore_earnings); в dry-run — то, что было бы записано.
type Report struct {
	RunID               uuid.UUID      `json:"run_id"`
	Mode                Mode           `json:"mode"`
	DryRun              bool           `json:"dry_run"`
	Processed           int            `json:"processed"`
	Restored            int            `json:"restored"`
	Flagged             int            `json:"flagged"`
	NoChange            int            `json:"no_change"`
	Errored             int            `json:"errored"`
	TotalPointsRestored int64          `json:"total_points_restored"`
	Results             []Result       `json:"results"`
	Battles             []BattleReport `json:"battles"`
	Errors              []ErrorEntry   `json:"errors"`
	NextOffset          *int           `json:"next_offset"` // nil — пачки кончились
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          time.Time      `json:"finished_at"`
}

func newReport(req Request) *Report {
	return &Report{
		RunID:     uuid.New(),
		Mode:      req.Mode,
		DryRun:    req.DryRun,
		Results:   []Result{},
		Battles:   []BattleReport{},
		Errors:    []ErrorEntry{},
		StartedAt: time.Now().UTC(),
	}
}

// Merge добавляет к r итоги следующей пачки того же прохода.
// RunID и StartedAt остаются от первой пачки, NextOffset берётся из next.
func (r *Report) Merge(next *Report) {
	r.Processed += next.Processed
	r.Restored += next.Restored
	r.Flagged += next.Flagged
	r.NoChange += next.NoChange
	r.Errored += next.Errored
	r.TotalPointsRestored += next.TotalPointsRestored
	r.Results = append(r.Results, next.Results...)
	r.Battles = append(r.Battles, next.Battles...)
	r.Errors = append(r.Errors, next.Errors...)
	r.NextOffset = next.NextOffset
	r.FinishedAt = next.FinishedAt
}
