package breakeven

import (
	"context"
	"errors"
	"testing"

	"github.com/richxcame/tartanilla-earnings/internal/notifications"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSnapshotReader struct {
	mock.Mock
}

func (m *MockSnapshotReader) LatestSnapshot(ctx context.Context, driverID string, pt periods.PeriodType) (*Snapshot, error) {
	args := m.Called(ctx, driverID, pt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Snapshot), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg notifications.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func metricsWith(expenses, profit string, done int, needed int64) Metrics {
	e, p := d(expenses), d(profit)
	return Metrics{Expenses: e, Revenue: e.Add(p), Profit: p, RidesDone: done, RidesNeeded: needed}
}

func prevWithProfit(profit string) *Snapshot {
	return &Snapshot{Profit: d(profit)}
}

func kinds(alerts []Alert) []Kind {
	out := make([]Kind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		current Metrics
		prev    *Snapshot
		want    []Kind
	}{
		{
			name:    "no expenses never alerts",
			current: metricsWith("0", "900", 4, 0),
			want:    []Kind{},
		},
		{
			name:    "exact breakeven without history",
			current: metricsWith("500", "0", 10, 10),
			want:    []Kind{KindBreakevenAchieved},
		},
		{
			name:    "first profitable day passes the first milestone",
			current: metricsWith("500", "600", 12, 8),
			want:    []Kind{KindBreakevenAchieved, KindProfitAchieved, KindProfitMilestone},
		},
		{
			name:    "crossing from deficit into small profit",
			current: metricsWith("500", "10", 11, 10),
			prev:    prevWithProfit("-50"),
			want:    []Kind{KindBreakevenAchieved, KindProfitAchieved},
		},
		{
			name:    "crossing from zero into profit",
			current: metricsWith("500", "10", 11, 10),
			prev:    prevWithProfit("0"),
			want:    []Kind{KindProfitAchieved},
		},
		{
			name:    "already profitable reaching first milestone",
			current: metricsWith("500", "600", 12, 8),
			prev:    prevWithProfit("100"),
			want:    []Kind{KindProfitMilestone},
		},
		{
			name:    "next milestone",
			current: metricsWith("500", "1200", 20, 8),
			prev:    prevWithProfit("600"),
			want:    []Kind{KindProfitMilestone},
		},
		{
			name:    "same milestone band",
			current: metricsWith("500", "900", 15, 8),
			prev:    prevWithProfit("600"),
			want:    []Kind{},
		},
		{
			name:    "large deficit after some rides",
			current: metricsWith("1000", "-300", 2, 10),
			want:    []Kind{KindDeficitWarning},
		},
		{
			name:    "deficit with no rides yet",
			current: metricsWith("1000", "-1000", 0, 10000),
			want:    []Kind{},
		},
		{
			name:    "small deficit",
			current: metricsWith("1000", "-100", 8, 9),
			want:    []Kind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(Evaluate(tt.current, tt.prev)))
		})
	}
}

func TestEvaluateMessages(t *testing.T) {
	current := Metrics{
		Expenses:    d("1000"),
		Revenue:     d("1600.5"),
		Profit:      d("600.5"),
		RidesDone:   10,
		RidesNeeded: 7,
	}

	alerts := Evaluate(current, nil)
	require.Len(t, alerts, 3)

	assert.Equal(t, "🎯 Breakeven Achieved!", alerts[0].Title)
	assert.Equal(t, "Great job! You've reached your breakeven point with ₱1,600.50 revenue covering ₱1,000.00 expenses. You completed 10 out of 7 needed rides.", alerts[0].Message)

	assert.Equal(t, "💰 You're Now Profitable!", alerts[1].Title)
	assert.Equal(t, "Excellent! You're now earning profit of ₱600.50. Your revenue (₱1,600.50) exceeds your expenses (₱1,000.00). Keep up the great work!", alerts[1].Message)

	assert.Equal(t, "🏆 ₱500 Profit Milestone!", alerts[2].Title)
	assert.Equal(t, int64(500), alerts[2].Milestone)
	assert.Equal(t, "Amazing achievement! You've reached ₱500 in profit (actual: ₱600.50). Your hard work is paying off!", alerts[2].Message)
}

func TestEvaluateDeficitMessageClampsRemainingRides(t *testing.T) {
	current := Metrics{
		Expenses:    d("1000"),
		Revenue:     d("750"),
		Profit:      d("-250"),
		RidesDone:   12,
		RidesNeeded: 10,
	}

	alerts := Evaluate(current, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, "📊 Breakeven Update", alerts[0].Title)
	assert.Equal(t, "You're ₱250.00 away from breakeven. Complete about 0 more rides to cover your ₱1,000.00 expenses. You're making progress!", alerts[0].Message)
}

func TestMilestoneTitleGroupsThousands(t *testing.T) {
	alerts := Evaluate(metricsWith("100", "2750", 30, 2), prevWithProfit("1900"))
	require.Len(t, alerts, 1)
	assert.Equal(t, "🏆 ₱2,500 Profit Milestone!", alerts[0].Title)
}

func TestPeso(t *testing.T) {
	assert.Equal(t, "0.00", peso(decimal.Zero))
	assert.Equal(t, "999.00", peso(d("999")))
	assert.Equal(t, "1,000.00", peso(d("1000")))
	assert.Equal(t, "1,234,567.89", peso(d("1234567.891")))
	assert.Equal(t, "-1,500.00", peso(d("-1500")))
	assert.Equal(t, "100,000.10", peso(d("100000.1")))
}

func TestNotifierCheckSendsEveryAlert(t *testing.T) {
	history := new(MockSnapshotReader)
	sender := new(MockSender)
	notifier := NewNotifier(history, sender)

	history.On("LatestSnapshot", mock.Anything, "driver-1", periods.Daily).Return(nil, nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg notifications.Message) bool {
		return msg.UserID == "driver-1" && msg.Subject == eventbus.BreakevenSubject(string(KindBreakevenAchieved))
	})).Return("n-1", nil).Once()
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg notifications.Message) bool {
		return msg.Subject == eventbus.BreakevenSubject(string(KindProfitAchieved))
	})).Return("n-2", nil).Once()
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg notifications.Message) bool {
		data, ok := msg.Payload.(eventbus.BreakevenAlertData)
		return ok && data.Kind == string(KindProfitMilestone) && data.DriverID == "driver-1" && data.Profit.Equal(d("600"))
	})).Return("n-3", nil).Once()

	sent, err := notifier.Check(context.Background(), "driver-1", metricsWith("500", "600", 12, 8))

	require.NoError(t, err)
	assert.Equal(t, []Kind{KindBreakevenAchieved, KindProfitAchieved, KindProfitMilestone}, sent)
	sender.AssertNumberOfCalls(t, "Send", 3)
	history.AssertExpectations(t)
}

func TestNotifierCheckJoinsDeliveryErrors(t *testing.T) {
	history := new(MockSnapshotReader)
	sender := new(MockSender)
	notifier := NewNotifier(history, sender)

	history.On("LatestSnapshot", mock.Anything, "driver-1", periods.Daily).Return(prevWithProfit("-50"), nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg notifications.Message) bool {
		return msg.Title == "🎯 Breakeven Achieved!"
	})).Return("", errors.New("insert failed"))
	sender.On("Send", mock.Anything, mock.Anything).Return("n-2", nil)

	sent, err := notifier.Check(context.Background(), "driver-1", metricsWith("500", "10", 11, 10))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "breakeven_achieved: insert failed")
	assert.Equal(t, []Kind{KindProfitAchieved}, sent)
}

func TestNotifierCheckFailsWhenHistoryUnavailable(t *testing.T) {
	history := new(MockSnapshotReader)
	sender := new(MockSender)
	notifier := NewNotifier(history, sender)

	history.On("LatestSnapshot", mock.Anything, "driver-1", periods.Daily).Return(nil, errors.New("timeout"))

	sent, err := notifier.Check(context.Background(), "driver-1", metricsWith("500", "600", 12, 8))

	require.Error(t, err)
	assert.Empty(t, sent)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotifierCheckSkipsWithoutExpenses(t *testing.T) {
	history := new(MockSnapshotReader)
	sender := new(MockSender)

	sent, err := NewNotifier(history, sender).Check(context.Background(), "driver-1", metricsWith("0", "600", 12, 0))

	require.NoError(t, err)
	assert.Nil(t, sent)
	history.AssertNotCalled(t, "LatestSnapshot", mock.Anything, mock.Anything, mock.Anything)
}
