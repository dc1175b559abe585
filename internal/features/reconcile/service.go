// Package reconcile — service.go выбирает пачку, раздаёт сущности пулу
// воркеров и собирает отчёт в исходном порядке пачки.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/drift"
	"serotonyl.ru/arx-reconciler/internal/features/ledger"
	"serotonyl.ru/arx-reconciler/internal/features/source"
	"serotonyl.ru/arx-reconciler/internal/features/users"
)

// DefaultBatchSize — размер пачки, если в запросе 0.
const DefaultBatchSize = 100

// Directory — список пользователей для обхода.
type Directory interface {
	List(ctx context.Context, offset, limit int) ([]users.User, error)
	Find(ctx context.Context, key string) (*users.User, error)
}

// Pinger проверяет, что хранилище живо.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Observer получает каждый завершённый отчёт (метрики).
type Observer interface {
	ObserveReport(rep *Report, elapsed time.Duration)
}

// Deps — зависимости сервиса.
type Deps struct {
	Directory  Directory
	Compiler   *balance.Compiler
	Calculator *arena.Calculator
	Ledger     ledger.Store
	Pinger     Pinger
	Observer   Observer // может быть nil
}

// Options — настройки сервиса.
type Options struct {
	Policy       drift.Policy
	Workers      int
	BatchSize    int // По умолчанию для запросов с BatchSize=0
	MaxBatchSize int // Потолок; обычно размер страницы хранилища

	// Повторы чтения списка пользователей при временной ошибке.
	ReadRetries   uint64
	RetryInterval time.Duration
}

type Service struct {
	deps Deps
	opts Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 1000
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	return &Service{deps: deps, opts: opts}
}

// Reconcile выполняет один проход.
//
// Ошибки отдельных пользователей и битв попадают в Report.Errors, проход идёт
// дальше. Ошибка возвращается только для некорректного запроса, ненайденного
// фильтра или недоступного хранилища (common.ErrStoreUnavailable): в последнем
// случае отчёт тоже возвращается, с нулём обработанных.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Report, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownMode, req.Mode)
	}
	if req.BatchSize == 0 {
		req.BatchSize = s.opts.BatchSize
	}
	if req.BatchSize < 0 || req.BatchSize > s.opts.MaxBatchSize || req.Offset < 0 {
		return nil, fmt.Errorf("%w: batch=%d offset=%d (максимум %d)",
			common.ErrInvalidBatch, req.BatchSize, req.Offset, s.opts.MaxBatchSize)
	}

	rep := newReport(req)
	started := time.Now()
	logger := log.WithFields(log.Fields{
		"run_id":  rep.RunID,
		"mode":    req.Mode,
		"dry_run": req.DryRun,
		"offset":  req.Offset,
		"batch":   req.BatchSize,
	})

	if err := s.deps.Pinger.Ping(ctx); err != nil {
		logger.WithError(err).Error("Хранилище недоступно, проход прерван")
		return s.finish(rep, started), fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	var err error
	switch req.Mode {
	case ModeRestoreEarnings:
		err = s.runEarnings(ctx, req, rep)
	default:
		if req.Mode == ModeRebuildBalances {
			logger.Warn("Переводы дебетуют только получателя: списания у отправителя в баланс не входят")
		}
		err = s.runBalances(ctx, req, rep)
	}
	if err != nil {
		return s.finish(rep, started), err
	}

	s.finish(rep, started)
	logger.WithFields(log.Fields{
		"processed": rep.Processed,
		"restored":  rep.Restored,
		"flagged":   rep.Flagged,
		"errored":   rep.Errored,
		"points":    rep.TotalPointsRestored,
	}).Info("Проход сверки завершён")
	return rep, nil
}

func (s *Service) finish(rep *Report, started time.Time) *Report {
	rep.FinishedAt = time.Now().UTC()
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveReport(rep, time.Since(started))
	}
	return rep
}

// runBalances — режимы audit и rebuild_balances.
func (s *Service) runBalances(ctx context.Context, req Request, rep *Report) error {
	batch, paged, err := s.selectUsers(ctx, req)
	if err != nil {
		return err
	}

	writer := ledger.NewWriter(s.deps.Ledger, rep.RunID)
	write := req.Mode == ModeRebuildBalances && !req.DryRun

	results := make([]*Result, len(batch))
	s.fanOut(ctx, len(batch), func(i int) {
		results[i] = s.reconcileUser(ctx, batch[i], writer, write)
	})

	done := 0
	for _, r := range results {
		if r == nil {
			break
		}
		done++
		rep.Processed++
		switch r.Action {
		case drift.ActionNoChange:
			rep.NoChange++
		case drift.ActionRestored:
			rep.Restored++
			rep.TotalPointsRestored += r.Diff.Total
		case drift.ActionFlagged:
			rep.Flagged++
		case drift.ActionError:
			rep.Errored++
			rep.Errors = append(rep.Errors, ErrorEntry{UserID: r.UserID, Message: r.Error})
		}
		rep.Results = append(rep.Results, *r)
	}

	rep.NextOffset = nextOffset(req, paged, len(batch), done)
	return nil
}

// selectUsers возвращает пачку пользователей. paged=false для userFilter.
// Временные ошибки чтения повторяются; ErrStoreUnavailable — только когда
// повторы исчерпаны.
func (s *Service) selectUsers(ctx context.Context, req Request) ([]users.User, bool, error) {
	if req.UserFilter != "" {
		var u *users.User
		err := s.retry(ctx, log.Fields{"user_filter": req.UserFilter}, func() (err error) {
			u, err = s.deps.Directory.Find(ctx, req.UserFilter)
			return err
		})
		if err != nil {
			if errors.Is(err, common.ErrUserNotFound) {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
		}
		return []users.User{*u}, false, nil
	}

	var batch []users.User
	err := s.retry(ctx, log.Fields{"table": "users", "offset": req.Offset}, func() (err error) {
		batch, err = s.deps.Directory.List(ctx, req.Offset, req.BatchSize)
		return err
	})
	if err != nil {
		return nil, true, fmt.Errorf("%w: список пользователей: %v", common.ErrStoreUnavailable, err)
	}
	return batch, true, nil
}

func (s *Service) retry(ctx context.Context, fields log.Fields, op func() error) error {
	_, err := source.Retry(ctx, s.opts.ReadRetries, s.opts.RetryInterval, fields, op)
	return err
}

// reconcileUser сверяет одного пользователя. Ошибка не прерывает пачку.
// nil — пользователь не обработан из-за отмены ctx и остаётся за курсором.
func (s *Service) reconcileUser(ctx context.Context, u users.User, w *ledger.Writer, write bool) *Result {
	res := Result{UserID: u.ID, Username: u.Username}
	fail := func(err error) *Result {
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).WithField("user_id", u.ID).Warn("Пользователь не сверен")
		res.Action = drift.ActionError
		res.Error = err.Error()
		return &res
	}

	computed, err := s.deps.Compiler.Compile(ctx, u.ID)
	if err != nil {
		return fail(err)
	}
	stored, _, err := s.deps.Ledger.GetStoredBalance(ctx, u.ID)
	if err != nil {
		return fail(fmt.Errorf("ошибка чтения баланса: %w", err))
	}

	d := drift.Detect(stored, computed, s.opts.Policy)
	res.Stored, res.Computed, res.Diff = d.Stored, d.Computed, d.Diff
	res.Action, res.Reason = d.Action, d.Reason

	if write {
		written, err := w.ApplyDecision(ctx, u.ID, d)
		if err != nil {
			return fail(err)
		}
		// Другой проход успел записать тот же баланс
		if d.Action == drift.ActionRestored && !written {
			res.Action = drift.ActionNoChange
			res.Reason = "баланс уже исправлен другим проходом"
		}
	}
	return &res
}

// runEarnings — режим restore_earnings.
func (s *Service) runEarnings(ctx context.Context, req Request, rep *Report) error {
	battles, paged, err := s.selectBattles(ctx, req)
	if err != nil {
		return err
	}

	writer := ledger.NewWriter(s.deps.Ledger, rep.RunID)
	results := make([]*battleOutcome, len(battles))
	s.fanOut(ctx, len(battles), func(i int) {
		results[i] = s.restoreBattle(ctx, battles[i], writer, !req.DryRun)
	})

	done := 0
	for _, o := range results {
		if o == nil {
			break
		}
		done++
		rep.Processed++
		br := o.br
		switch {
		case br.Error != "":
			rep.Errored++
		case br.SkipReason != "" || br.MissingCount == 0:
			rep.NoChange++
		}
		if req.DryRun {
			rep.Restored += br.MissingCount
			rep.TotalPointsRestored += br.TotalMissingPoints
		} else {
			rep.Restored += br.InsertedCount
			rep.TotalPointsRestored += br.InsertedPoints
		}
		rep.Battles = append(rep.Battles, br)
		rep.Errors = append(rep.Errors, o.errors...)
	}

	rep.NextOffset = nextOffset(req, paged, len(battles), done)
	return nil
}

func (s *Service) selectBattles(ctx context.Context, req Request) ([]arena.Battle, bool, error) {
	if req.BattleFilter != nil {
		b, err := s.deps.Calculator.GetBattle(ctx, *req.BattleFilter)
		if err != nil {
			if errors.Is(err, common.ErrBattleNotFound) {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
		}
		return []arena.Battle{*b}, false, nil
	}

	// Страницы битв повторяет агрегатор
	battles, err := s.deps.Calculator.ListResolved(ctx, req.Offset, req.BatchSize)
	if err != nil {
		return nil, true, fmt.Errorf("%w: список битв: %v", common.ErrStoreUnavailable, err)
	}
	return battles, true, nil
}
