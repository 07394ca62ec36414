package earnings

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentageSource supplies the global admin percentage as a fraction (0.20).
type PercentageSource interface {
	OrganizationPercentage() decimal.Decimal
}

// FixedPercentage is a constant PercentageSource.
type FixedPercentage decimal.Decimal

func (f FixedPercentage) OrganizationPercentage() decimal.Decimal { return decimal.Decimal(f) }

// Splitter divides earning totals between the platform and the driver.
type Splitter struct {
	percentages PercentageSource
}

func NewSplitter(percentages PercentageSource) *Splitter {
	return &Splitter{percentages: percentages}
}

// IsRideHailing reports whether the record is a ride-hailing trip: tagged by
// booking type, linked to a ride-hailing booking, or a package whose name
// mentions "ride" or "hailing".
func IsRideHailing(r EarningRecord) bool {
	if strings.EqualFold(strings.TrimSpace(r.BookingType), BookingTypeRideHailing) || r.HasRideHailing() {
		return true
	}
	name := strings.ToLower(r.PackageName)
	return strings.Contains(name, "ride") || strings.Contains(name, "hailing")
}

// AdminFraction returns the fraction the platform keeps for r.
func (s *Splitter) AdminFraction(r EarningRecord) decimal.Decimal {
	if r.OrganizationPercentage != nil && r.OrganizationPercentage.IsPositive() {
		return r.OrganizationPercentage.Div(hundred)
	}
	return s.percentages.OrganizationPercentage()
}

// Split divides r using its own percentage or the current global one.
func (s *Splitter) Split(r EarningRecord) Share {
	return s.split(r, s.AdminFraction(r))
}

// SplitWith divides r with an explicit admin fraction, still honouring the
// record's own percentage and the ride-hailing rule.
func (s *Splitter) SplitWith(r EarningRecord, fraction decimal.Decimal) Share {
	if r.OrganizationPercentage != nil && r.OrganizationPercentage.IsPositive() {
		fraction = r.OrganizationPercentage.Div(hundred)
	}
	return s.split(r, fraction)
}

func (s *Splitter) split(r EarningRecord, fraction decimal.Decimal) Share {
	total := r.Amount
	if !total.IsPositive() {
		return Share{Total: total.Round(2), Admin: orZero(r.AdminEarnings).Round(2), Driver: orZero(r.DriverEarnings).Round(2)}
	}
	if IsRideHailing(r) {
		return Share{Total: total.Round(2), Admin: decimal.Zero, Driver: total.Round(2)}
	}
	return Share{
		Total:  total.Round(2),
		Admin:  total.Mul(fraction).Round(2),
		Driver: total.Mul(decimal.NewFromInt(1).Sub(fraction)).Round(2),
	}
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
