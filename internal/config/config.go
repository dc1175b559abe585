// Package config загружает конфигурацию сервиса сверки из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// а .env (если есть) подгружается через godotenv до разбора.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"arx"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"arx"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"2"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- Source Aggregator ---
	// Максимум строк, которые хранилище отдаёт за один запрос.
	SourcePageSize int `envconfig:"SOURCE_PAGE_SIZE" default:"1000"`
	// Сколько раз повторяем чтение одной страницы при временной ошибке.
	SourcePageRetries uint64 `envconfig:"SOURCE_PAGE_RETRIES" default:"3"`

	// --- Reconcile ---
	ReconcileBatchSize int `envconfig:"RECONCILE_BATCH_SIZE" default:"100"`
	ReconcileWorkers   int `envconfig:"RECONCILE_WORKERS" default:"8"`

	// --- Drift policy ---
	// Расхождение по total больше этого значения не лечится автоматически, а помечается flagged.
	// 0 = без ограничения.
	DriftMaxAutoRestore int64 `envconfig:"DRIFT_MAX_AUTO_RESTORE" default:"0"`
	// false = уменьшение сохранённого баланса только через flagged.
	DriftAllowDecrease bool `envconfig:"DRIFT_ALLOW_DECREASE" default:"true"`

	// --- Cron ---
	CronBalancesSpec string `envconfig:"CRON_BALANCES_SPEC" default:"15 3 * * *"`
	CronEarningsSpec string `envconfig:"CRON_EARNINGS_SPEC" default:"*/30 * * * *"`
	CronAuditSpec    string `envconfig:"CRON_AUDIT_SPEC" default:"0 * * * *"`

	// --- Metrics ---
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9102"`

	// --- Operator report (опционально) ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.SourcePageSize <= 0 {
		return fmt.Errorf("SOURCE_PAGE_SIZE должен быть > 0")
	}
	if c.ReconcileBatchSize <= 0 || c.ReconcileBatchSize > c.SourcePageSize {
		return fmt.Errorf("RECONCILE_BATCH_SIZE должен быть в диапазоне 1..%d", c.SourcePageSize)
	}
	if c.ReconcileWorkers <= 0 {
		return fmt.Errorf("RECONCILE_WORKERS должен быть > 0")
	}
	if c.DriftMaxAutoRestore < 0 {
		return fmt.Errorf("DRIFT_MAX_AUTO_RESTORE не может быть отрицательным")
	}
	if c.TelegramBotToken != "" && len(c.AdminIDs) == 0 {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN задан, но ADMIN_IDS пуст")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	// .env не обязателен: в Docker всё приходит из окружения
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
