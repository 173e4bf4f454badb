package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/partner-engine/internal/domain"
)

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
}

// InApp writes notifications to the data source for the partner dashboard.
type InApp struct {
	writer NotificationWriter
	now    func() time.Time
}

func NewInApp(writer NotificationWriter) *InApp {
	return &InApp{writer: writer, now: time.Now}
}

func (c *InApp) Name() string { return "in_app" }

func (c *InApp) Send(ctx context.Context, msg Message) error {
	if msg.UserID == "" {
		return ErrNoRecipient
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    msg.UserID,
		Kind:      msg.Kind,
		Title:     msg.Title,
		Body:      msg.Body,
		Priority:  string(msg.Priority),
		Data:      msg.Data,
		CreatedAt: c.now().UTC(),
	}
	if err := c.writer.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
