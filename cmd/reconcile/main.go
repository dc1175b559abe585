// Package main — одноразовый запуск сверки из командной строки.
//
//	reconcile --mode rebuild_balances --dry-run --all
//	reconcile --mode restore_earnings --battle 42
//	reconcile --mode audit --user @alice
//
// Отчёт печатается в stdout как JSON, логи идут в stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"serotonyl.ru/arx-reconciler/internal/app"
	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/config"
	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
	"serotonyl.ru/arx-reconciler/internal/jobs"
)

// Коды выхода
const (
	exitOK          = 0
	exitFailed      = 1
	exitBadRequest  = 2
	exitUnavailable = 3
)

type options struct {
	mode      string
	dryRun    bool
	batchSize int
	offset    int
	user      string
	battle    int64
	all       bool
	migrate   bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.StringVarP(&o.mode, "mode", "m", string(reconcile.ModeAudit), "режим: audit | restore_earnings | rebuild_balances")
	fs.BoolVar(&o.dryRun, "dry-run", false, "только посчитать, ничего не писать")
	fs.IntVar(&o.batchSize, "batch-size", 0, "размер пачки (0 = RECONCILE_BATCH_SIZE)")
	fs.IntVar(&o.offset, "offset", 0, "смещение пачки")
	fs.StringVarP(&o.user, "user", "u", "", "только один пользователь (id или @username)")
	fs.Int64Var(&o.battle, "battle", 0, "только одна битва (restore_earnings)")
	fs.BoolVar(&o.all, "all", false, "пройти все пачки, следуя next_offset")
	fs.BoolVar(&o.migrate, "migrate", false, "применить миграции перед запуском")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if !reconcile.Mode(o.mode).Valid() {
		return o, fmt.Errorf("%w: %q", common.ErrUnknownMode, o.mode)
	}
	if o.battle != 0 && reconcile.Mode(o.mode) != reconcile.ModeRestoreEarnings {
		return o, errors.New("--battle имеет смысл только с --mode restore_earnings")
	}
	return o, nil
}

func (o options) request() reconcile.Request {
	req := reconcile.Request{
		Mode:       reconcile.Mode(o.mode),
		DryRun:     o.dryRun,
		BatchSize:  o.batchSize,
		Offset:     o.offset,
		UserFilter: o.user,
	}
	if o.battle != 0 {
		battle := o.battle
		req.BattleFilter = &battle
	}
	return req
}

func main() {
	os.Exit(run())
}

func run() int {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitBadRequest
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("Не удалось загрузить конфигурацию")
		return exitFailed
	}
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, opts.migrate)
	if err != nil {
		log.WithError(err).Error("Не удалось инициализировать приложение")
		if errors.Is(err, common.ErrStoreUnavailable) {
			return exitUnavailable
		}
		return exitFailed
	}
	defer application.Close()

	var rep *reconcile.Report
	if opts.all && opts.user == "" && opts.battle == 0 {
		rep, err = jobs.RunPass(ctx, application.Reconcile, opts.request())
	} else {
		rep, err = application.Reconcile.Reconcile(ctx, opts.request())
	}

	if rep != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			log.WithError(encErr).Error("Не удалось вывести отчёт")
			return exitFailed
		}
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, common.ErrStoreUnavailable):
		log.WithError(err).Error("Хранилище недоступно")
		return exitUnavailable
	case errors.Is(err, common.ErrUnknownMode), errors.Is(err, common.ErrInvalidBatch),
		errors.Is(err, common.ErrUserNotFound), errors.Is(err, common.ErrBattleNotFound):
		log.WithError(err).Error("Некорректный запрос")
		return exitBadRequest
	default:
		log.WithError(err).Error("Сверка завершилась с ошибкой")
		return exitFailed
	}
}
