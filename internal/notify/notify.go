// Package notify отправляет операторам сводку проходов сверки.
// Если TELEGRAM_BOT_TOKEN не задан, сводка просто пишется в лог.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-reconciler/internal/common"
	"serotonyl.ru/arx-reconciler/internal/features/reconcile"
)

// Notifier доставляет текст операторам.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// messageSender — часть telego.Bot, которая нужна уведомителю.
type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram шлёт сообщение каждому администратору из ADMIN_IDS.
type Telegram struct {
	bot      messageSender
	adminIDs []int64
}

// NewTelegram создаёт уведомитель поверх Bot API.
func NewTelegram(token string, adminIDs []int64) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	return &Telegram{bot: bot, adminIDs: adminIDs}, nil
}

// Notify отправляет text всем администраторам. Ошибка одного адресата
// не мешает остальным; возвращается последняя.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	var lastErr error
	for _, id := range t.adminIDs {
		if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(id), text)); err != nil {
			log.WithError(err).WithField("chat_id", id).Error("Ошибка отправки сводки")
			lastErr = fmt.Errorf("отправка %d: %w", id, err)
		}
	}
	return lastErr
}

// Log — уведомитель без Telegram.
type Log struct{}

func (Log) Notify(_ context.Context, text string) error {
	log.WithField("report", text).Info("Сводка сверки")
	return nil
}

// maxListed — сколько проблемных сущностей перечислять в сводке.
const maxListed = 10

// FormatReport собирает текст сводки прохода.
func FormatReport(rep *reconcile.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Сверка %s", rep.Mode)
	if rep.DryRun {
		sb.WriteString(" (dry-run)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Проход: %s\n", rep.RunID)
	fmt.Fprintf(&sb, "Обработано: %s\n", common.FormatNumber(int64(rep.Processed)))
	fmt.Fprintf(&sb, "Исправлено: %s (%s)\n",
		common.FormatNumber(int64(rep.Restored)), common.FormatPointsDelta(rep.TotalPointsRestored))
	fmt.Fprintf(&sb, "Без изменений: %s\n", common.FormatNumber(int64(rep.NoChange)))
	fmt.Fprintf(&sb, "Помечено: %s\n", common.FormatNumber(int64(rep.Flagged)))
	fmt.Fprintf(&sb, "Ошибок: %s\n", common.FormatNumber(int64(rep.Errored)))

	listed := 0
	for _, r := range rep.Results {
		if r.Reason == "" || listed == maxListed {
			continue
		}
		fmt.Fprintf(&sb, "\n⚠️ %s: %s → %s (%s)",
			r.UserID, common.FormatPoints(r.Stored.Total), common.FormatPoints(r.Computed.Total), r.Reason)
		listed++
	}
	for i, e := range rep.Errors {
		if i == maxListed {
			fmt.Fprintf(&sb, "\n… и ещё %d ошибок", len(rep.Errors)-maxListed)
			break
		}
		fmt.Fprintf(&sb, "\n❌ %s", describeError(e))
	}
	return sb.String()
}

// NeedsAttention — есть ли в отчёте что-то, что требует внимания оператора.
func NeedsAttention(rep *reconcile.Report) bool {
	return rep.Flagged > 0 || rep.Errored > 0 || len(rep.Errors) > 0
}

func describeError(e reconcile.ErrorEntry) string {
	switch {
	case e.BattleID != nil && e.UserID != "":
		return fmt.Sprintf("битва %d, %s: %s", *e.BattleID, e.UserID, e.Message)
	case e.BattleID != nil:
		return fmt.Sprintf("битва %d: %s", *e.BattleID, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.UserID, e.Message)
	}
}
