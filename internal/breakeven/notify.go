package breakeven

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/notifications"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/eventbus"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Kind names a breakeven alert.
type Kind string

const (
	KindBreakevenAchieved Kind = "breakeven_achieved"
	KindProfitAchieved    Kind = "profit_achieved"
	KindProfitMilestone   Kind = "profit_milestone"
	KindDeficitWarning    Kind = "deficit_warning"
)

var (
	milestoneStep    = decimal.NewFromInt(500)
	deficitThreshold = decimal.NewFromInt(200)
)

// Alert is one notification-worthy change in a driver's position.
type Alert struct {
	Kind      Kind
	Title     string
	Message   string
	Milestone int64
}

// Evaluate compares the current metrics with the previous daily snapshot.
// prev may be nil when the driver has no history. No alerts are raised
// without expenses.
func Evaluate(current Metrics, prev *Snapshot) []Alert {
	if !current.Expenses.IsPositive() {
		return nil
	}

	profit := current.Profit
	var alerts []Alert

	if !profit.IsNegative() && (prev == nil || prev.Profit.IsNegative()) {
		alerts = append(alerts, Alert{
			Kind:  KindBreakevenAchieved,
			Title: "🎯 Breakeven Achieved!",
			Message: fmt.Sprintf("Great job! You've reached your breakeven point with ₱%s revenue covering ₱%s expenses. You completed %d out of %d needed rides.",
				peso(current.Revenue), peso(current.Expenses), current.RidesDone, current.RidesNeeded),
		})
	}

	if profit.IsPositive() && (prev == nil || !prev.Profit.IsPositive()) {
		alerts = append(alerts, Alert{
			Kind:  KindProfitAchieved,
			Title: "💰 You're Now Profitable!",
			Message: fmt.Sprintf("Excellent! You're now earning profit of ₱%s. Your revenue (₱%s) exceeds your expenses (₱%s). Keep up the great work!",
				peso(profit), peso(current.Revenue), peso(current.Expenses)),
		})
	}

	if profit.IsPositive() {
		reached := milestone(profit)
		var before int64
		if prev != nil && prev.Profit.IsPositive() {
			before = milestone(prev.Profit)
		}
		if reached > before && reached >= milestoneStep.IntPart() {
			alerts = append(alerts, Alert{
				Kind:      KindProfitMilestone,
				Title:     fmt.Sprintf("🏆 ₱%s Profit Milestone!", groupThousands(fmt.Sprint(reached))),
				Message: fmt.Sprintf("Amazing achievement! You've reached ₱%s in profit (actual: ₱%s). Your hard work is paying off!",
					groupThousands(fmt.Sprint(reached)), peso(profit)),
				Milestone: reached,
			})
		}
	}

	if profit.IsNegative() {
		deficit := profit.Neg()
		if deficit.GreaterThanOrEqual(deficitThreshold) && current.RidesDone > 0 {
			remaining := current.RidesNeeded - int64(current.RidesDone)
			if remaining < 0 {
				remaining = 0
			}
			alerts = append(alerts, Alert{
				Kind:  KindDeficitWarning,
				Title: "📊 Breakeven Update",
				Message: fmt.Sprintf("You're ₱%s away from breakeven. Complete about %d more rides to cover your ₱%s expenses. You're making progress!",
					peso(deficit), remaining, peso(current.Expenses)),
			})
		}
	}

	return alerts
}

func milestone(profit decimal.Decimal) int64 {
	return profit.Div(milestoneStep).Floor().Mul(milestoneStep).IntPart()
}

// peso renders an amount with two decimals and thousands separators.
func peso(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	return sign + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// SnapshotReader finds the most recent snapshot of a driver.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, driverID string, pt periods.PeriodType) (*Snapshot, error)
}

// Sender delivers a notification.
type Sender interface {
	Send(ctx context.Context, msg notifications.Message) (string, error)
}

// Notifier evaluates a driver's live metrics against history and delivers
// the resulting alerts.
type Notifier struct {
	history SnapshotReader
	sender  Sender
	now     func() time.Time
}

// NewNotifier creates a notifier.
func NewNotifier(history SnapshotReader, sender Sender) *Notifier {
	return &Notifier{history: history, sender: sender, now: time.Now}
}

// Check sends every alert the metrics warrant and returns the kinds sent.
// Failed deliveries are joined into the returned error; the rest still go out.
func (n *Notifier) Check(ctx context.Context, driverID string, current Metrics) ([]Kind, error) {
	if !current.Expenses.IsPositive() {
		return nil, nil
	}

	prev, err := n.history.LatestSnapshot(ctx, driverID, periods.Daily)
	if err != nil {
		return nil, err
	}

	var (
		sent []Kind
		errs []error
	)
	for _, alert := range Evaluate(current, prev) {
		id, err := n.sender.Send(ctx, notifications.Message{
			UserID:  driverID,
			Title:   alert.Title,
			Body:    alert.Message,
			Subject: eventbus.BreakevenSubject(string(alert.Kind)),
			Payload: eventbus.BreakevenAlertData{
				DriverID:    driverID,
				Kind:        string(alert.Kind),
				Title:       alert.Title,
				Message:     alert.Message,
				Profit:      current.Profit,
				Expenses:    current.Expenses,
				RidesDone:   current.RidesDone,
				RidesNeeded: current.RidesNeeded,
				OccurredAt:  n.now().UTC(),
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", alert.Kind, err))
			continue
		}
		logger.InfoContext(ctx, "breakeven alert sent",
			zap.String("driver_id", driverID),
			zap.String("kind", string(alert.Kind)),
			zap.String("notification_id", id))
		sent = append(sent, alert.Kind)
	}
	return sent, errors.Join(errs...)
}
