package reconcile

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/ledger"
)

type battleOutcome struct {
	br     BattleReport
	errors []ErrorEntry
}

// restoreBattle строит план по битве и вставляет недостающие начисления.
// Ошибка одной вставки не останавливает остальные. nil — битва не обработана
// из-за отмены ctx до построения плана.
func (s *Service) restoreBattle(ctx context.Context, b arena.Battle, w *ledger.Writer, write bool) *battleOutcome {
	battleID := b.ID
	out := battleOutcome{br: BattleReport{BattleID: b.ID, Pool: b.Pool()}}

	plan, err := s.deps.Calculator.Plan(ctx, b)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).WithField("battle_id", b.ID).Warn("Битва не обработана")
		out.br.Error = err.Error()
		out.errors = append(out.errors, ErrorEntry{BattleID: &battleID, Message: err.Error()})
		return &out
	}

	out.br.WinningVoters = plan.WinningVoters
	out.br.AlreadyRecorded = plan.AlreadyRecorded
	out.br.MissingCount = len(plan.Missing)
	out.br.TotalMissingPoints = plan.TotalMissingPoints
	out.br.SkipReason = plan.SkipReason
	if plan.SkipReason != "" {
		log.WithFields(log.Fields{"battle_id": b.ID, "reason": plan.SkipReason}).Debug("Битва пропущена")
	}

	if !write {
		return &out
	}
	for _, e := range plan.Missing {
		if err := ctx.Err(); err != nil {
			out.errors = append(out.errors, ErrorEntry{BattleID: &battleID, UserID: e.UserID, Message: err.Error()})
			break
		}
		inserted, err := w.RecordEarning(ctx, e)
		if err != nil {
			out.errors = append(out.errors, ErrorEntry{BattleID: &battleID, UserID: e.UserID, Message: err.Error()})
			continue
		}
		if inserted {
			out.br.InsertedCount++
			out.br.InsertedPoints += e.TotalEarned
		}
	}
	if len(out.errors) > 0 {
		out.br.Error = fmt.Sprintf("не вставлено начислений: %d", len(out.errors))
	}
	return &out
}

// fanOut выполняет fn(i) для i в [0, n) на пуле воркеров и ждёт завершения.
// После отмены ctx новые задачи не запускаются; их результаты остаются nil.
func (s *Service) fanOut(ctx context.Context, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	pool := pond.NewPool(s.opts.Workers, pond.WithContext(ctx))
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			fn(i)
		})
	}
	pool.StopAndWait()
}

// nextOffset — курсор следующей пачки или nil, если пачки кончились.
// Прерванная пачка продолжается с первой необработанной сущности.
func nextOffset(req Request, paged bool, fetched, done int) *int {
	if !paged {
		return nil
	}
	if done < fetched {
		next := req.Offset + done
		return &next
	}
	if fetched < req.BatchSize {
		return nil
	}
	next := req.Offset + fetched
	return &next
}
