package notify

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegram режет сообщения длиннее 4096 символов
const maxMessageLen = 4000

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Commander — исполнитель текстовых команд (тот же, что читает stdin).
type Commander interface {
	Exec(ctx context.Context, line string) (string, error)
}

// botAPI — то, что нужно от tgbot.BotAPI; подменяется в тестах.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram — уведомления в один чат + команды из этого же чата.
type Telegram struct {
	bot    botAPI
	chatID int64
	cmd    Commander
	log    *zap.Logger
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(b botAPI, chatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{bot: b, chatID: chatID, log: log.Named("telegram")}
}

// SetCommander подключает обработчик команд. До Start.
func (t *Telegram) SetCommander(cmd Commander) { t.cmd = cmd }

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "\n…"
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start: long-polling. Команды принимаются только из своего чата.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || !m.IsCommand() {
		return
	}
	if m.Chat.ID != t.chatID {
		t.log.Warn("command from foreign chat ignored", zap.Int64("chat_id", m.Chat.ID))
		return
	}
	if t.cmd == nil {
		t.Send("команды не подключены")
		return
	}

	line := strings.TrimSpace(m.Command() + " " + m.CommandArguments())
	out, err := t.cmd.Exec(ctx, line)
	if err != nil {
		t.Sendf("❗️ %s: %v", m.Command(), err)
		return
	}
	t.Send(out)
}

// Stdout — уведомления в лог, когда телеграм не настроен.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stdout{log: log.Named("notify")}
}

func (s *Stdout) Send(msg string)                  { s.log.Info(msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.log.Info(fmt.Sprintf(format, args...)) }
