// Package ledger — writer.go превращает решения сверки в записи хранилища.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/drift"
)

// Writer применяет решения одного прохода сверки.
type Writer struct {
	store Store
	runID uuid.UUID
}

// NewWriter создаёт писателя для прохода runID.
func NewWriter(store Store, runID uuid.UUID) *Writer {
	return &Writer{store: store, runID: runID}
}

// ApplyDecision пишет решение детектора:
//   - no_change: ничего
//   - restored: баланс + аудит в одной транзакции
//   - flagged: только аудит
//
// Возвращает true, если баланс был изменён.
func (w *Writer) ApplyDecision(ctx context.Context, userID string, d drift.Decision) (bool, error) {
	switch d.Action {
	case drift.ActionRestored:
		rec := w.balanceAudit(userID, d, AuditBalanceRestored)
		written, err := w.store.ApplyCorrection(ctx, Correction{UserID: userID, Computed: d.Computed, Audit: rec})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id":  userID,
				"stored":   d.Stored.Total,
				"computed": d.Computed.Total,
			}).Error("Не удалось записать исправленный баланс")
			return false, fmt.Errorf("ошибка исправления баланса %s: %w", userID, err)
		}
		return written, nil

	case drift.ActionFlagged:
		rec := w.balanceAudit(userID, d, AuditBalanceFlagged)
		if err := w.store.AppendAudit(ctx, rec); err != nil {
			return false, fmt.Errorf("ошибка записи аудита %s: %w", userID, err)
		}
		return false, nil

	default:
		return false, nil
	}
}

// RecordEarning вставляет недостающее начисление. false — пара уже была записана.
func (w *Writer) RecordEarning(ctx context.Context, e arena.Earning) (bool, error) {
	battleID := e.BattleID
	rec := AuditRecord{
		RunID:          w.runID,
		UserID:         e.UserID,
		Type:           AuditEarningInserted,
		PointsRestored: e.TotalEarned,
		ActionTaken:    string(drift.ActionRestored),
		BattleID:       &battleID,
	}
	inserted, err := w.store.InsertEarning(ctx, e, rec)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"battle_id":    e.BattleID,
			"user_id":      e.UserID,
			"total_earned": e.TotalEarned,
		}).Error("Не удалось вставить начисление арены")
		return false, fmt.Errorf("ошибка вставки начисления (битва %d, %s): %w", e.BattleID, e.UserID, err)
	}
	return inserted, nil
}

func (w *Writer) balanceAudit(userID string, d drift.Decision, t AuditType) AuditRecord {
	rec := AuditRecord{
		RunID:         w.runID,
		UserID:        userID,
		Type:          t,
		StoredTotal:   d.Stored.Total,
		ComputedTotal: d.Computed.Total,
		ActionTaken:   string(d.Action),
		Stored:        d.Stored,
		Computed:      d.Computed,
		Diff:          d.Diff,
	}
	if t == AuditBalanceRestored {
		rec.PointsRestored = d.Diff.Total
	}
	return rec
}
