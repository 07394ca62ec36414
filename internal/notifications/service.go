package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"go.uber.org/zap"
)

const eventSource = "notifications"

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, row notificationRow) (string, error)
	AddRecipient(ctx context.Context, row recipientRow) error
}

// Service delivers in-app notifications and mirrors them onto the event bus.
type Service struct {
	store     Store
	publisher eventbus.Publisher
	now       func() time.Time
}

// NewService creates a notification service. publisher may be nil.
func NewService(store Store, publisher eventbus.Publisher) *Service {
	return &Service{store: store, publisher: publisher, now: time.Now}
}

// WithClock overrides the clock used for created_at.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Send writes the notification and its recipient row, then publishes the
// message when it names a subject. A publish failure is logged, never returned.
func (s *Service) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.UserID) == "" {
		return "", fmt.Errorf("send notification: recipient is required")
	}
	if msg.Type == "" {
		msg.Type = defaultType
	}
	if msg.Role == "" {
		msg.Role = defaultRole
	}
	createdAt := s.now().UTC().Format(time.RFC3339)

	id, err := s.store.CreateNotification(ctx, notificationRow{
		Title:     msg.Title,
		Message:   msg.Body,
		Type:      msg.Type,
		CreatedAt: createdAt,
	})
	if err != nil {
		deliveriesTotal.WithLabelValues("failure").Inc()
		return "", err
	}

	err = s.store.AddRecipient(ctx, recipientRow{
		NotificationID: id,
		UserID:         msg.UserID,
		Role:           msg.Role,
		DeliveryStatus: deliveryStatusOK,
		CreatedAt:      createdAt,
	})
	deliveriesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return id, err
	}

	logger.InfoContext(ctx, "notification delivered",
		zap.String("notification_id", id),
		zap.String("user_id", msg.UserID),
		zap.String("title", msg.Title))

	s.publish(ctx, msg)
	return id, nil
}

func (s *Service) publish(ctx context.Context, msg Message) {
	if s.publisher == nil || msg.Subject == "" {
		return
	}
	event, err := eventbus.NewEvent(msg.Subject, eventSource, msg.Payload)
	if err != nil {
		logger.WarnContext(ctx, "notification event not built", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, msg.Subject, event); err != nil {
		logger.WarnContext(ctx, "notification event not published", zap.String("subject", msg.Subject), zap.Error(err))
	}
}
