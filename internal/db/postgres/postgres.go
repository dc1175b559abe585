// Package postgres управляет подключением к базе данных PostgreSQL.
// Используется пул соединений pgxpool: сверка читает события и пишет
// балансы из нескольких воркеров одновременно.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/config"
)

// NewPool создаёт новый пул соединений к PostgreSQL.
//
// Параметры:
//   - ctx: контекст для отмены операции
//   - cfg: конфигурация с параметрами подключения
//
// Пул не меньше RECONCILE_WORKERS+1 соединений: каждый воркер держит
// транзакцию записи, ещё одно нужно на чтение пачки.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConns
	if need := int32(cfg.ReconcileWorkers + 1); poolConfig.MaxConns < need {
		log.WithFields(log.Fields{"max_conns": poolConfig.MaxConns, "workers": cfg.ReconcileWorkers}).
			Warn("DB_MAX_CONNS меньше числа воркеров, увеличиваем")
		poolConfig.MaxConns = need
	}
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	// Проверяем, что база доступна
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Pinger проверяет доступность базы перед проходом сверки.
type Pinger struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPinger(pool *pgxpool.Pool) *Pinger {
	return &Pinger{pool: pool, timeout: 5 * time.Second}
}

// Ping возвращает common.ErrStoreUnavailable, если база не ответила.
func (p *Pinger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}
