// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы сверки,
// уведомитель, метрики и планировщик.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/config"
	"serotonyl.ru/arx-reconciler/internal/db/postgres"
	"serotonyl.ru/arx-reconciler/internal/features/arena"
	"serotonyl.ru/arx-reconciler/internal/features/balance"
	"serotonyl.ru/arx-reconciler/internal/features/drift"
	"serotonyl.ru/arx-reconciler/internal/features/ledger"
	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
	"serotonyl.ru/arx-reconciler/internal/features/source"
	"serotonyl.ru/arx-reconciler/internal/features/users"
	"serotonyl.ru/arx-reconciler/internal/jobs"
	"serotonyl.ru/arx-reconciler/internal/metrics"
	"serotonyl.ru/arx-reconciler/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Reconcile *reconcile.Service
	Scheduler *jobs.Scheduler
	Metrics   *metrics.Recorder
	Notifier  notify.Notifier
}

// New создаёт и инициализирует приложение.
// migrate=false пропускает миграции (одноразовый запуск CLI против готовой базы).
func New(ctx context.Context, cfg *config.Config, migrate bool) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if migrate {
		if err := postgres.Migrate(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
	}

	// === 2. Репозитории ===
	sourceRepo := source.NewRepository(pool, cfg.SourcePageSize)
	userRepo := users.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)

	// === 3. Сервисы ===
	agg := source.NewAggregator(sourceRepo, cfg.SourcePageRetries)
	recorder := metrics.NewRecorder()
	svc := reconcile.NewService(reconcile.Deps{
		Directory:  userRepo,
		Compiler:   balance.NewCompiler(agg),
		Calculator: arena.NewCalculator(agg),
		Ledger:     ledgerRepo,
		Pinger:     postgres.NewPinger(pool),
		Observer:   recorder,
	}, reconcile.Options{
		Policy: drift.Policy{
			MaxAutoRestore: cfg.DriftMaxAutoRestore,
			AllowDecrease:  cfg.DriftAllowDecrease,
		},
		Workers:      cfg.ReconcileWorkers,
		BatchSize:    cfg.ReconcileBatchSize,
		MaxBatchSize: cfg.SourcePageSize,
		ReadRetries:  cfg.SourcePageRetries,
	})

	// === 4. Уведомления ===
	var notifier notify.Notifier = notify.Log{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.AdminIDs)
		if err != nil {
			pool.Close()
			return nil, err
		}
		notifier = tg
		log.WithField("admins", len(cfg.AdminIDs)).Info("Сводки будут отправляться в Telegram")
	}

	// === 5. Планировщик задач ===
	scheduler := jobs.NewScheduler(svc, notifier, cfg)

	return &App{
		DB:        pool,
		Reconcile: svc,
		Scheduler: scheduler,
		Metrics:   recorder,
		Notifier:  notifier,
	}, nil
}

// Close освобождает ресурсы.
func (a *App) Close() {
	a.DB.Close()
}

// SQL-миграции встроены в код для упрощения деплоя.
var migrations = []postgres.Migration{
	{Version: 1, Name: "users", SQL: migration001Users},
	{Version: 2, Name: "events", SQL: migration002Events},
	{Version: 3, Name: "arena", SQL: migration003Arena},
	{Version: 4, Name: "audit", SQL: migration004Audit},
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username VARCHAR(255),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(LOWER(username));
CREATE TABLE IF NOT EXISTS user_balances (
    user_id TEXT PRIMARY KEY REFERENCES users(id),
    mining_points BIGINT NOT NULL DEFAULT 0 CHECK (mining_points >= 0),
    task_points BIGINT NOT NULL DEFAULT 0 CHECK (task_points >= 0),
    social_points BIGINT NOT NULL DEFAULT 0 CHECK (social_points >= 0),
    referral_points BIGINT NOT NULL DEFAULT 0 CHECK (referral_points >= 0),
    total_points BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT NOW()
);
`

var migration002Events = `
CREATE TABLE IF NOT EXISTS mining_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    arx_mined NUMERIC(20,6) NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_mining_sessions_user ON mining_sessions(user_id, is_active);
CREATE TABLE IF NOT EXISTS user_tasks (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    points_awarded NUMERIC(20,6) NOT NULL DEFAULT 0,
    status VARCHAR(32) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_user_tasks_user ON user_tasks(user_id, status);
CREATE TABLE IF NOT EXISTS daily_checkins (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    points_awarded NUMERIC(20,6) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_daily_checkins_user ON daily_checkins(user_id);
CREATE TABLE IF NOT EXISTS social_submissions (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    points_awarded NUMERIC(20,6) NOT NULL DEFAULT 0,
    status VARCHAR(32) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_social_submissions_user ON social_submissions(user_id, status);
CREATE TABLE IF NOT EXISTS referrals (
    id BIGSERIAL PRIMARY KEY,
    referrer_id TEXT NOT NULL REFERENCES users(id),
    referred_id TEXT NOT NULL REFERENCES users(id),
    points_awarded NUMERIC(20,6) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id);
CREATE TABLE IF NOT EXISTS transfers (
    id BIGSERIAL PRIMARY KEY,
    sender_id TEXT NOT NULL REFERENCES users(id),
    receiver_id TEXT NOT NULL REFERENCES users(id),
    amount NUMERIC(20,6) NOT NULL CHECK (amount > 0),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transfers_receiver ON transfers(receiver_id);
`

var migration003Arena = `
CREATE TABLE IF NOT EXISTS arena_battles (
    id BIGSERIAL PRIMARY KEY,
    side_a_power NUMERIC(20,6) NOT NULL DEFAULT 0,
    side_b_power NUMERIC(20,6) NOT NULL DEFAULT 0,
    side_c_power NUMERIC(20,6),
    prize_pool NUMERIC(20,6) NOT NULL DEFAULT 0,
    winner_side VARCHAR(8),
    status VARCHAR(32) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_arena_battles_resolved ON arena_battles(id) WHERE winner_side IS NOT NULL;
CREATE TABLE IF NOT EXISTS arena_votes (
    id BIGSERIAL PRIMARY KEY,
    battle_id BIGINT NOT NULL REFERENCES arena_battles(id),
    user_id TEXT NOT NULL REFERENCES users(id),
    side VARCHAR(8) NOT NULL,
    power_spent NUMERIC(20,6) NOT NULL CHECK (power_spent >= 0),
    early_stake_multiplier NUMERIC(6,3),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_arena_votes_battle ON arena_votes(battle_id, side);
CREATE INDEX IF NOT EXISTS idx_arena_votes_user ON arena_votes(user_id);
CREATE TABLE IF NOT EXISTS arena_earnings (
    id BIGSERIAL PRIMARY KEY,
    battle_id BIGINT NOT NULL REFERENCES arena_battles(id),
    user_id TEXT NOT NULL REFERENCES users(id),
    stake NUMERIC(20,6) NOT NULL DEFAULT 0,
    total_earned BIGINT NOT NULL DEFAULT 0,
    pool_share_earned NUMERIC(20,6) NOT NULL DEFAULT 0,
    is_winner BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT NOW(),
    UNIQUE (battle_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_arena_earnings_user ON arena_earnings(user_id);
`

var migration004Audit = `
CREATE TABLE IF NOT EXISTS balance_audit_log (
    id BIGSERIAL PRIMARY KEY,
    run_id UUID NOT NULL,
    user_id TEXT NOT NULL,
    audit_type VARCHAR(32) NOT NULL,
    stored_total_points BIGINT NOT NULL DEFAULT 0,
    computed_total_points BIGINT NOT NULL DEFAULT 0,
    points_restored BIGINT NOT NULL DEFAULT 0,
    action_taken VARCHAR(32) NOT NULL,
    stored JSONB,
    computed JSONB,
    diff JSONB,
    battle_id BIGINT,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_balance_audit_log_run ON balance_audit_log(run_id);
CREATE INDEX IF NOT EXISTS idx_balance_audit_log_user ON balance_audit_log(user_id, created_at DESC);
`
