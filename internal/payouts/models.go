package payouts

import (
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
)

// Table names on the hosted data API.
const (
	TablePayouts        = "payouts"
	TablePayoutEarnings = "payout_earnings"
)

// Payout statuses. payout_earnings rows share them.
const (
	StatusPending  = "pending"
	StatusReleased = "released"
)

const (
	defaultMethod     = "cash"
	unknownDriverName = "Unknown Driver"
)

// PayoutColumns is the projection every payout read uses.
const PayoutColumns = "id, driver_id, driver_name, total_amount, payout_method, payout_date, remarks, status, created_at"

// Payout is one row of the payouts table.
type Payout struct {
	ID           string              `json:"id"`
	DriverID     string              `json:"driver_id"`
	DriverName   string              `json:"driver_name"`
	TotalAmount  decimal.Decimal     `json:"total_amount"`
	PayoutMethod string              `json:"payout_method"`
	PayoutDate   postgrest.Timestamp `json:"payout_date"`
	Remarks      string              `json:"remarks"`
	Status       string              `json:"status"`
	CreatedAt    postgrest.Timestamp `json:"created_at"`
}

// newPayout is the insert shape; the store assigns id and payout_date stays null until release.
type newPayout struct {
	DriverID     string          `json:"driver_id"`
	DriverName   string          `json:"driver_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PayoutMethod string          `json:"payout_method"`
	Remarks      string          `json:"remarks"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at"`
}

// PayoutEarning links an earning to the payout that pays it out.
type PayoutEarning struct {
	ID          string          `json:"id,omitempty"`
	PayoutID    string          `json:"payout_id"`
	EarningID   string          `json:"earning_id"`
	ShareAmount decimal.Decimal `json:"share_amount"`
	Status      string          `json:"status"`
}

// CreateRequest opens a pending payout for a driver.
type CreateRequest struct {
	DriverID     string `json:"driver_id" validate:"required,uuid"`
	Remarks      string `json:"remarks" validate:"max=500"`
	PayoutMethod string `json:"payout_method" validate:"omitempty,payout_method"`
}

// ReleaseRequest marks a payout as paid.
type ReleaseRequest struct {
	Remarks string `json:"remarks" validate:"max=500"`
}

// Release is the before and after of a released payout.
type Release struct {
	Before *Payout
	After  *Payout
}

func auditData(p *Payout) map[string]interface{} {
	if p == nil {
		return nil
	}
	data := map[string]interface{}{
		"id":            p.ID,
		"driver_id":     p.DriverID,
		"driver_name":   p.DriverName,
		"total_amount":  p.TotalAmount.StringFixed(2),
		"payout_method": p.PayoutMethod,
		"status":        p.Status,
		"remarks":       p.Remarks,
	}
	if !p.PayoutDate.IsZero() {
		data["payout_date"] = p.PayoutDate.UTC().Format(time.RFC3339)
	}
	return data
}
