package earnings

import (
	"strings"

	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
)

// Table names on the hosted data API.
const (
	TableEarnings = "earnings"
	TablePayouts  = "payouts"
)

// Earning statuses.
const (
	StatusPending   = "pending"
	StatusFinalized = "finalized"
	StatusReversed  = "reversed"
)

// Payout statuses.
const (
	PayoutPending  = "pending"
	PayoutReleased = "released"
)

// BookingTypeRideHailing marks ride-hailing earnings on the booking_type column.
const BookingTypeRideHailing = "ride_hailing"

// Source is the kind of booking an earning came from.
type Source string

const (
	SourceStandard    Source = "standard"
	SourceCustom      Source = "custom"
	SourceRideHailing Source = "ride_hailing"
)

// EarningRecord is one row of the earnings table.
type EarningRecord struct {
	ID                     string              `json:"id"`
	DriverID               string              `json:"driver_id"`
	DriverName             string              `json:"driver_name,omitempty"`
	Amount                 decimal.Decimal     `json:"amount"`
	EarningDate            postgrest.Timestamp `json:"earning_date"`
	Status                 string              `json:"status"`
	BookingID              *string             `json:"booking_id"`
	CustomTourID           *string             `json:"custom_tour_id"`
	RideHailingBookingID   *string             `json:"ride_hailing_booking_id"`
	DriverEarnings         *decimal.Decimal    `json:"driver_earnings"`
	AdminEarnings          *decimal.Decimal    `json:"admin_earnings"`
	OrganizationPercentage *decimal.Decimal    `json:"organization_percentage"`
	BookingType            string              `json:"booking_type,omitempty"`
	PackageName            string              `json:"package_name,omitempty"`
}

// EarningColumns is the projection every earnings read uses.
const EarningColumns = "id, driver_id, driver_name, amount, earning_date, status, booking_id, custom_tour_id, " +
	"ride_hailing_booking_id, driver_earnings, admin_earnings, organization_percentage, booking_type, package_name"

func present(id *string) bool {
	return id != nil && strings.TrimSpace(*id) != ""
}

func (r EarningRecord) HasBooking() bool     { return present(r.BookingID) }
func (r EarningRecord) HasCustomTour() bool  { return present(r.CustomTourID) }
func (r EarningRecord) HasRideHailing() bool { return present(r.RideHailingBookingID) }

// BookingKey identifies the booking the record belongs to, or "" when none.
func (r EarningRecord) BookingKey() string {
	switch {
	case r.HasRideHailing():
		return "ride:" + *r.RideHailingBookingID
	case r.HasCustomTour():
		return "custom:" + *r.CustomTourID
	case r.HasBooking():
		return "booking:" + *r.BookingID
	}
	return ""
}

// Source classifies the record. Ride-hailing wins over custom, custom over standard.
func (r EarningRecord) Source() Source {
	switch {
	case IsRideHailing(r):
		return SourceRideHailing
	case r.HasCustomTour():
		return SourceCustom
	default:
		return SourceStandard
	}
}

// Share is the result of splitting one record.
type Share struct {
	Total  decimal.Decimal `json:"total"`
	Admin  decimal.Decimal `json:"admin"`
	Driver decimal.Decimal `json:"driver"`
}

// Summary totals a set of records.
type Summary struct {
	Gross  decimal.Decimal `json:"gross"`
	Admin  decimal.Decimal `json:"admin"`
	Driver decimal.Decimal `json:"driver"`
	Count  int             `json:"count"`
}

func (s *Summary) add(sh Share) {
	s.Gross = s.Gross.Add(sh.Total)
	s.Admin = s.Admin.Add(sh.Admin)
	s.Driver = s.Driver.Add(sh.Driver)
	s.Count++
}

// Group is a keyed summary.
type Group struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
	Summary
}

// Bucket is one time slot of a report.
type Bucket struct {
	Key                 string          `json:"key"`
	Label               string          `json:"label"`
	Sales               decimal.Decimal `json:"sales"`
	Admin               decimal.Decimal `json:"admin"`
	Driver              decimal.Decimal `json:"driver"`
	Bookings            int             `json:"bookings"`
	Average             decimal.Decimal `json:"avg"`
	Cancellations       int             `json:"cancellations"`
	CancellationsAmount decimal.Decimal `json:"cancellations_amount"`
}

// SplitRecord is a record with its computed split.
type SplitRecord struct {
	ID          string              `json:"id"`
	DriverID    string              `json:"driver_id"`
	DriverName  string              `json:"driver_name,omitempty"`
	EarningDate postgrest.Timestamp `json:"earning_date"`
	Status      string              `json:"status"`
	Source      Source              `json:"source"`
	PackageName string              `json:"package_name,omitempty"`
	Total       decimal.Decimal     `json:"total_amount"`
	Admin       decimal.Decimal     `json:"admin_earnings"`
	Driver      decimal.Decimal     `json:"driver_earnings"`
}

// Payout is the slice of a payout row the earnings reports show.
type Payout struct {
	ID          string              `json:"id"`
	DriverID    string              `json:"driver_id"`
	DriverName  string              `json:"driver_name"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Status      string              `json:"status"`
	PayoutDate  postgrest.Timestamp `json:"payout_date"`
}
