package notifications

import (
	"context"
	"fmt"

	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"go.uber.org/zap"
)

const payoutsConsumer = "notifications-payouts"

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// EventHandler turns payout events from the bus into driver notifications.
type EventHandler struct {
	sender Sender
}

// NewEventHandler creates an event handler backed by sender.
func NewEventHandler(sender Sender) *EventHandler {
	return &EventHandler{sender: sender}
}

// RegisterSubscriptions subscribes to payout events on the bus.
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, bus eventbus.Subscriber) error {
	if err := bus.Subscribe(ctx, eventbus.SubjectPayoutReleased, payoutsConsumer, h.Handle); err != nil {
		return fmt.Errorf("subscribe to payout events: %w", err)
	}
	logger.Info("notifications: subscribed to payout events")
	return nil
}

// Handle processes one event. Unknown types are acked and ignored.
func (h *EventHandler) Handle(ctx context.Context, event *eventbus.Event) error {
	switch event.Type {
	case eventbus.SubjectPayoutReleased:
		return h.onPayoutReleased(ctx, event)
	default:
		logger.Debug("notifications: ignoring unknown event type", zap.String("type", event.Type))
		return nil
	}
}

func (h *EventHandler) onPayoutReleased(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.PayoutEventData
	if err := event.Decode(&data); err != nil {
		return err
	}
	if data.DriverID == "" {
		logger.Warn("payout released event without driver", zap.String("event_id", event.ID))
		return nil
	}

	_, err := h.sender.Send(ctx, Message{
		UserID: data.DriverID,
		Title:  "Payout Released",
		Body: fmt.Sprintf("Your payout of ₱%s via %s has been released.",
			data.TotalAmount.StringFixed(2), data.PayoutMethod),
	})
	return err
}
