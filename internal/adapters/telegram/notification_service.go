package telegram

import (
	"context"

	"liquidator/internal/domain/notification"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

const SinkName = "telegram"

// NotificationService renders events and posts them to the operator chat
type NotificationService struct {
	sender    Sender
	templates *Renderer
	chatID    int64
	log       *logger.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(sender Sender, templates *Renderer, chatID int64, log *logger.Logger) *NotificationService {
	if log == nil {
		log = logger.Get()
	}
	return &NotificationService{
		sender:    sender,
		templates: templates,
		chatID:    chatID,
		log:       log.With("component", "telegram_notifications"),
	}
}

func (ns *NotificationService) Name() string { return SinkName }

// Notify implements notification.Sink
func (ns *NotificationService) Notify(ctx context.Context, event notification.Event) error {
	text, err := ns.templates.Render(event)
	if err != nil {
		ns.log.Errorw("Failed to render notification", "kind", event.Kind, "error", err)
		return err
	}

	if err := ns.sender.SendMessage(ctx, ns.chatID, text); err != nil {
		return errors.Wrapf(err, "telegram %s", event.Kind)
	}
	return nil
}
