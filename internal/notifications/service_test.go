package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateNotification(ctx context.Context, row notificationRow) (string, error) {
	args := m.Called(ctx, row)
	return args.String(0), args.Error(1)
}

func (m *MockStore) AddRecipient(ctx context.Context, row recipientRow) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	args := m.Called(ctx, subject, event)
	return args.Error(0)
}

var sentAt = time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)

func newTestService(store Store, pub eventbus.Publisher) *Service {
	return NewService(store, pub).WithClock(func() time.Time { return sentAt })
}

func TestSendWritesNotificationAndRecipient(t *testing.T) {
	store := new(MockStore)
	store.On("CreateNotification", mock.Anything, notificationRow{
		Title:     "Breakeven Achieved!",
		Message:   "done",
		Type:      "booking",
		CreatedAt: "2025-03-10T01:30:00Z",
	}).Return("n1", nil)
	store.On("AddRecipient", mock.Anything, recipientRow{
		NotificationID: "n1",
		UserID:         "d1",
		Role:           "driver",
		DeliveryStatus: "sent",
		CreatedAt:      "2025-03-10T01:30:00Z",
	}).Return(nil)

	id, err := newTestService(store, nil).Send(context.Background(), Message{UserID: "d1", Title: "Breakeven Achieved!", Body: "done"})
	require.NoError(t, err)
	assert.Equal(t, "n1", id)
	store.AssertExpectations(t)
}

func TestSendRequiresRecipient(t *testing.T) {
	store := new(MockStore)
	_, err := newTestService(store, nil).Send(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	store.AssertNotCalled(t, "CreateNotification", mock.Anything, mock.Anything)
}

func TestSendStopsWhenNotificationInsertFails(t *testing.T) {
	store := new(MockStore)
	store.On("CreateNotification", mock.Anything, mock.Anything).Return("", errors.New("502"))

	_, err := newTestService(store, nil).Send(context.Background(), Message{UserID: "d1"})
	require.Error(t, err)
	store.AssertNotCalled(t, "AddRecipient", mock.Anything, mock.Anything)
}

func TestSendPublishesWhenSubjectSet(t *testing.T) {
	store := new(MockStore)
	store.On("CreateNotification", mock.Anything, mock.Anything).Return("n1", nil)
	store.On("AddRecipient", mock.Anything, mock.Anything).Return(nil)

	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "breakeven.profit_achieved", mock.MatchedBy(func(e *eventbus.Event) bool {
		var data map[string]string
		return e.Type == "breakeven.profit_achieved" && e.Decode(&data) == nil && data["driver_id"] == "d1"
	})).Return(errors.New("nats down"))

	id, err := newTestService(store, pub).Send(context.Background(), Message{
		UserID:  "d1",
		Subject: eventbus.BreakevenSubject("profit_achieved"),
		Payload: map[string]string{"driver_id": "d1"},
	})
	require.NoError(t, err, "publish failures never fail delivery")
	assert.Equal(t, "n1", id)
	pub.AssertExpectations(t)
}

func TestSendSkipsPublishWithoutSubject(t *testing.T) {
	store := new(MockStore)
	store.On("CreateNotification", mock.Anything, mock.Anything).Return("n1", nil)
	store.On("AddRecipient", mock.Anything, mock.Anything).Return(nil)
	pub := new(MockPublisher)

	_, err := newTestService(store, pub).Send(context.Background(), Message{UserID: "d1"})
	require.NoError(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
