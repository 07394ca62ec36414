package eventbus

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakevenAlertData is emitted when a driver crosses a breakeven threshold.
type BreakevenAlertData struct {
	DriverID    string          `json:"driver_id"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Profit      decimal.Decimal `json:"profit"`
	Expenses    decimal.Decimal `json:"expenses"`
	RidesDone   int             `json:"rides_done"`
	RidesNeeded int64           `json:"rides_needed"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// PayoutEventData is emitted when a payout is created or released.
type PayoutEventData struct {
	PayoutID     string          `json:"payout_id"`
	DriverID     string          `json:"driver_id"`
	DriverName   string          `json:"driver_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PayoutMethod string          `json:"payout_method"`
	Status       string          `json:"status"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
