package breakeven

import (
	"math"

	"github.com/richxcame/tartanilla-earnings/internal/earnings"
	"github.com/shopspring/decimal"
)

var (
	minFare  = decimal.RequireFromString("0.01")
	one      = decimal.NewFromInt(1)
	maxRides = decimal.NewFromInt(math.MaxInt64)
)

// Shares is the driver's cut of a record's amount, per source, used when the
// record carries no precomputed driver_earnings. Ride-hailing is always 1.00.
type Shares struct {
	Standard decimal.Decimal
	Custom   decimal.Decimal
}

// DefaultShares matches EARNINGS_SHARE_BOOKING_PCT and EARNINGS_SHARE_CUSTOM_PCT defaults.
func DefaultShares() Shares {
	return Shares{Standard: decimal.RequireFromString("0.80"), Custom: one}
}

func (s Shares) forSource(src earnings.Source) decimal.Decimal {
	switch src {
	case earnings.SourceRideHailing:
		return one
	case earnings.SourceCustom:
		return s.Custom
	default:
		return s.Standard
	}
}

// Counts tallies records per source.
type Counts struct {
	Standard    int `json:"standard"`
	Custom      int `json:"custom"`
	RideHailing int `json:"ride_hailing"`
}

// Total is the number of rides across sources.
func (c Counts) Total() int { return c.Standard + c.Custom + c.RideHailing }

// Breakdown is driver revenue per source.
type Breakdown struct {
	StandardShare    decimal.Decimal `json:"standard_share"`
	CustomShare      decimal.Decimal `json:"custom_share"`
	RideHailingShare decimal.Decimal `json:"ride_hailing_share"`
	Counts           Counts          `json:"counts"`
}

// Revenue is the sum of the per-source shares.
func (b Breakdown) Revenue() decimal.Decimal {
	return b.StandardShare.Add(b.CustomShare).Add(b.RideHailingShare)
}

// DriverRevenue attributes each record to exactly one source and sums the
// driver's revenue per source.
func DriverRevenue(records []earnings.EarningRecord, shares Shares) Breakdown {
	var b Breakdown
	for _, r := range records {
		// Only records tied to a booking, tour or ride count as rides.
		if r.BookingKey() == "" {
			continue
		}
		src := r.Source()
		revenue := recordRevenue(r, shares.forSource(src))
		switch src {
		case earnings.SourceRideHailing:
			b.RideHailingShare = b.RideHailingShare.Add(revenue)
			b.Counts.RideHailing++
		case earnings.SourceCustom:
			b.CustomShare = b.CustomShare.Add(revenue)
			b.Counts.Custom++
		default:
			b.StandardShare = b.StandardShare.Add(revenue)
			b.Counts.Standard++
		}
	}
	b.StandardShare = b.StandardShare.Round(2)
	b.CustomShare = b.CustomShare.Round(2)
	b.RideHailingShare = b.RideHailingShare.Round(2)
	return b
}

func recordRevenue(r earnings.EarningRecord, share decimal.Decimal) decimal.Decimal {
	if r.DriverEarnings != nil && r.DriverEarnings.IsPositive() {
		return *r.DriverEarnings
	}
	if !r.Amount.IsPositive() {
		return decimal.Zero
	}
	return r.Amount.Mul(share)
}

// Metrics is a breakeven evaluation of one window.
type Metrics struct {
	Expenses     decimal.Decimal `json:"expenses"`
	Revenue      decimal.Decimal `json:"revenue_driver"`
	FarePerRide  decimal.Decimal `json:"fare_per_ride"`
	RidesNeeded  int64           `json:"rides_needed"`
	RidesDone    int             `json:"rides_done"`
	Profit       decimal.Decimal `json:"profit"`
	Deficit      decimal.Decimal `json:"deficit_amount"`
	BreakevenHit bool            `json:"breakeven_hit"`
	Profitable   bool            `json:"profitable"`
	Breakdown    Breakdown       `json:"breakdown"`
}

// Compute evaluates expenses against the driver revenue of records.
// breakeven_hit is profit >= 0 while profitable is profit > 0.
func Compute(records []earnings.EarningRecord, expenses decimal.Decimal, shares Shares) Metrics {
	b := DriverRevenue(records, shares)
	return FromBreakdown(b, expenses)
}

// FromBreakdown evaluates expenses against an already attributed revenue.
func FromBreakdown(b Breakdown, expenses decimal.Decimal) Metrics {
	revenue := b.Revenue()
	done := b.Counts.Total()
	profit := revenue.Sub(expenses)

	deficit := expenses.Sub(revenue)
	if deficit.IsNegative() {
		deficit = decimal.Zero
	}

	return Metrics{
		Expenses:     expenses.Round(2),
		Revenue:      revenue.Round(2),
		FarePerRide:  farePerRide(revenue, done).Round(2),
		RidesNeeded:  ridesNeeded(expenses, revenue, done),
		RidesDone:    done,
		Profit:       profit.Round(2),
		Deficit:      deficit.Round(2),
		BreakevenHit: !profit.IsNegative(),
		Profitable:   profit.IsPositive(),
		Breakdown:    b,
	}
}

func farePerRide(revenue decimal.Decimal, done int) decimal.Decimal {
	if done <= 0 {
		return minFare
	}
	fare := revenue.Div(decimal.NewFromInt(int64(done)))
	if !fare.IsPositive() {
		return minFare
	}
	return fare
}

// ridesNeeded is ceil(E/fare), computed as ceil(E*n/R) when a real fare exists
// so no rounding of the fare leaks in. It saturates at math.MaxInt64.
func ridesNeeded(expenses, revenue decimal.Decimal, done int) int64 {
	if !expenses.IsPositive() {
		return 0
	}
	numerator, denominator := expenses, minFare
	if done > 0 && revenue.IsPositive() {
		numerator = expenses.Mul(decimal.NewFromInt(int64(done)))
		denominator = revenue
	}
	q, r := numerator.QuoRem(denominator, 0)
	if r.IsPositive() {
		q = q.Add(one)
	}
	if q.GreaterThan(maxRides) {
		return math.MaxInt64
	}
	return q.IntPart()
}
