package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "calalert/pkg/logx"
)

// TelegramDispatcher mirrors alerts to a Telegram chat. It is send-only:
// no poller is attached, the bot object is used purely as an API client.
type TelegramDispatcher struct {
	log    logx.Logger
	bot    *tele.Bot
	chatID int64
}

func NewTelegramDispatcher(token string, chatID int64, log logx.Logger) (*TelegramDispatcher, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	// No Poller: the bot never consumes updates.
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &TelegramDispatcher{
		log:    log.With(logx.String("component", "telegram")),
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *TelegramDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := n.Title
	if n.Message != "" {
		text += "\n" + n.Message
	}

	// telebot calls are synchronous; run in a goroutine so ctx cancellation
	// is honored even when the API hangs.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tele.ChatID(t.chatID), text)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Dispatcher = (*TelegramDispatcher)(nil)
