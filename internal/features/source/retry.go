package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/common"
)

// Retry выполняет op, повторяя её при временных ошибках не больше retries раз
// с экспоненциальной паузой от interval. Отмена ctx, ErrUnknownTable,
// ErrUserNotFound и ErrBattleNotFound не повторяются.
// Возвращает число сделанных попыток.
func Retry(ctx context.Context, retries uint64, interval time.Duration, fields log.Fields, op func() error) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 20 * interval
	b.RandomizationFactor = 0.5

	attempts := 0
	operation := func() error {
		attempts++
		err := op()
		if err != nil && (ctx.Err() != nil || permanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(fields).WithFields(log.Fields{
			"attempt": attempts,
			"next_in": next,
		}).Warn("Ошибка чтения, повторяем")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	return attempts, err
}

func permanent(err error) bool {
	return errors.Is(err, common.ErrUnknownTable) ||
		errors.Is(err, common.ErrUserNotFound) ||
		errors.Is(err, common.ErrBattleNotFound)
}
