package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rongwang/salary-bot/internal/utils"
)

// TelegramTransport implements Transport on the Telegram Bot API
type TelegramTransport struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *utils.Logger
}

// NewTelegramTransport authenticates with the Bot API using token
func NewTelegramTransport(token string, pollTimeout int, logger *utils.Logger) (*TelegramTransport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = 60
	}

	logger.Info("authorized on telegram account @%s", api.Self.UserName)
	return &TelegramTransport{api: api, pollTimeout: pollTimeout, logger: logger}, nil
}

func (t *TelegramTransport) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = msg.ParseMode
	if kb := inlineKeyboard(msg.Buttons); kb != nil {
		out.ReplyMarkup = *kb
	}

	sent, err := t.api.Send(out)
	if err != nil {
		return 0, translateError(err)
	}
	return sent.MessageID, nil
}

func (t *TelegramTransport) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	edit.ParseMode = msg.ParseMode
	edit.ReplyMarkup = inlineKeyboard(msg.Buttons)

	_, err := t.api.Request(edit)
	return translateError(err)
}

func (t *TelegramTransport) Answer(ctx context.Context, callbackID, text string) error {
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return translateError(err)
}

// Run long-polls for updates and hands each one to handle on its own
// goroutine until ctx is cancelled. It waits for running handlers before
// returning.
func (t *TelegramTransport) Run(ctx context.Context, handle func(context.Context, Update)) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(cfg)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			upd, ok := fromTelegram(raw)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						t.logger.Error("panic handling update for user %d: %v", upd.UserID, r)
					}
				}()
				handle(ctx, upd)
			}()
		}
	}
}

func fromTelegram(raw tgbotapi.Update) (Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		cq := raw.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return Update{}, false
		}
		return Update{
			UserID:       cq.From.ID,
			ChatID:       cq.Message.Chat.ID,
			MessageID:    cq.Message.MessageID,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}, true
	case raw.Message != nil:
		m := raw.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return Update{}, false
		}
		upd := Update{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Text:      m.Text,
		}
		if m.IsCommand() {
			upd.Command = m.Command()
		}
		return upd, true
	}
	return Update{}, false
}

func inlineKeyboard(rows [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kbRows = append(kbRows, buttons)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &kb
}

// translateError maps Telegram's "message is not modified" reply to ErrNotModified
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "message is not modified") {
		return fmt.Errorf("%w: %v", ErrNotModified, err)
	}
	return err
}
