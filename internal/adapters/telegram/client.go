package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"liquidator/internal/adapters/ratelimit"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Sender delivers a formatted message to a chat
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot is a send-only Telegram client for operator alerts
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	rateLimiter *ratelimit.Limiter
}

// Config contains Telegram bot configuration
type Config struct {
	Token             string
	Debug             bool
	HTTPTimeout       time.Duration
	RequestsPerMinute int
}

// NewBot authorizes the token against the Bot API
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 20
	}
	if log == nil {
		log = logger.Get()
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		log:         log.Component("telegram_bot"),
		rateLimiter: ratelimit.NewLimiter("telegram", cfg.RequestsPerMinute),
	}, nil
}

// SendMessage sends a Markdown message, waiting for the rate limiter first
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := b.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	b.log.Debugw("Sending message",
		"chat_id", chatID,
		"text_length", len(text),
	)

	start := time.Now()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	_, err := b.api.Send(msg)

	duration := time.Since(start)

	if err != nil {
		b.log.Warnw("Failed to send message",
			"chat_id", chatID,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return errors.Wrap(err, "failed to send message")
	}

	b.log.Debugw("Message sent successfully",
		"chat_id", chatID,
		"duration_ms", duration.Milliseconds(),
	)

	return nil
}
