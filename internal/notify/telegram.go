package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/telebot.v3"

	"eodcloser/internal/util"
)

// Compile-time interface check.
var _ Messenger = (*TelegramMessenger)(nil)

const (
	sendAttempts = 3
	sendBackoff  = 2 * time.Second
)

// sender is the part of *telebot.Bot used for delivery.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelegramMessenger sends HTML-formatted messages to a single chat through
// the Telegram Bot API. Transient failures are retried with backoff.
type TelegramMessenger struct {
	bot     sender
	chat    *telebot.Chat
	backoff time.Duration
	log     *slog.Logger
}

// NewTelegramMessenger creates a TelegramMessenger for chatID. The bot is
// created offline so a bad token surfaces on the first send rather than at
// startup. apiURL may be empty for the public Bot API.
func NewTelegramMessenger(token, apiURL string, chatID int64, log *slog.Logger) (*TelegramMessenger, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newTelegramMessenger(bot, chatID, sendBackoff, log), nil
}

func newTelegramMessenger(bot sender, chatID int64, backoff time.Duration, log *slog.Logger) *TelegramMessenger {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramMessenger{
		bot:     bot,
		chat:    &telebot.Chat{ID: chatID},
		backoff: backoff,
		log:     log.With("messenger", "telegram"),
	}
}

// Send delivers text and classifies the outcome. Only transient failures
// are retried.
func (m *TelegramMessenger) Send(ctx context.Context, text string) Status {
	status := StatusOK
	err := util.Retry(ctx, sendAttempts, m.backoff, func() error {
		_, err := m.bot.Send(m.chat, text, &telebot.SendOptions{
			ParseMode:             telebot.ModeHTML,
			DisableWebPagePreview: true,
		})
		status = Classify(err)
		if status == StatusTransient {
			m.log.Warn("telegram send failed, will retry", "error", err)
			return err
		}
		if err != nil {
			return util.Permanent(err)
		}
		return nil
	})
	if err != nil {
		m.log.Error("telegram notification not delivered", "status", status, "error", err)
	}
	return status
}

// codeSuffix matches the "(400)" telebot appends to API errors it has no
// sentinel for.
var codeSuffix = regexp.MustCompile(`\((\d{3})\)$`)

// Classify maps a Bot API error to a delivery Status: 401 and 404 mean the
// token is bad, 429 and 5xx are transient, and any other 4xx means the
// message cannot be delivered as sent. Errors without a code are transient.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	code := errorCode(err)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusNotFound:
		return StatusAuthFailure
	case code == http.StatusTooManyRequests:
		return StatusTransient
	case code >= 400 && code < 500:
		return StatusBadRecipient
	}
	return StatusTransient
}

// errorCode recovers the HTTP-style code from a telebot error, or 0.
func errorCode(err error) int {
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if m := codeSuffix.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
