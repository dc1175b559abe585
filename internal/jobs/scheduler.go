// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание проходов сверки: ночной пересчёт
// балансов, досоздание начислений арены и ежечасный аудит.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/config"
	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
	"serotonyl.ru/arx-reconciler/internal/notify"
)

// Reconciler — то, что умеет выполнить одну пачку сверки.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Report, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	svc      Reconciler
	notifier notify.Notifier
	specs    map[reconcile.Mode]string
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
func NewScheduler(svc Reconciler, notifier notify.Notifier, cfg *config.Config) *Scheduler {
	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", cfg.AppTimezone)
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		svc:      svc,
		notifier: notifier,
		specs: map[reconcile.Mode]string{
			reconcile.ModeRebuildBalances: cfg.CronBalancesSpec,
			reconcile.ModeRestoreEarnings: cfg.CronEarningsSpec,
			reconcile.ModeAudit:           cfg.CronAuditSpec,
		},
	}
}

// Start регистрирует задачи и запускает cron. Пустое расписание отключает задачу.
// Проход, который ещё идёт, не запускается повторно.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, mode := range []reconcile.Mode{
		reconcile.ModeRestoreEarnings,
		reconcile.ModeRebuildBalances,
		reconcile.ModeAudit,
	} {
		spec := s.specs[mode]
		if spec == "" {
			log.WithField("mode", mode).Info("[CRON] Задача отключена")
			continue
		}
		job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
			s.runJob(ctx, mode)
		}))
		if _, err := s.cron.AddJob(spec, job); err != nil {
			return err
		}
		log.WithFields(log.Fields{"mode": mode, "spec": spec}).Info("[CRON] Задача зарегистрирована")
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) runJob(ctx context.Context, mode reconcile.Mode) {
	log.WithField("mode", mode).Info("[CRON] Проход сверки")
	rep, err := RunPass(ctx, s.svc, reconcile.Request{Mode: mode})
	if err != nil {
		log.WithError(err).WithField("mode", mode).Error("[CRON] Ошибка прохода")
		if rep == nil {
			return
		}
	}
	if err != nil || notify.NeedsAttention(rep) {
		if nerr := s.notifier.Notify(ctx, notify.FormatReport(rep)); nerr != nil {
			log.WithError(nerr).Warn("[CRON] Сводка не отправлена")
		}
	}
}

// RunPass проходит все пачки начиная с req.Offset, следуя NextOffset, и
// возвращает объединённый отчёт. При ошибке возвращает то, что успело накопиться.
func RunPass(ctx context.Context, svc Reconciler, req reconcile.Request) (*reconcile.Report, error) {
	var total *reconcile.Report
	for {
		rep, err := svc.Reconcile(ctx, req)
		if err != nil {
			if total == nil {
				return rep, err
			}
			return total, err
		}
		if total == nil {
			total = rep
		} else {
			total.Merge(rep)
		}
		if rep.NextOffset == nil || ctx.Err() != nil {
			return total, nil
		}
		req.Offset = *rep.NextOffset
	}
}
