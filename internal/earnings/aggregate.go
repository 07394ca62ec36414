package earnings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/shopspring/decimal"
)

// UnknownPackage labels records without a package name.
const UnknownPackage = "Unknown"

// Summarize splits and totals records.
func Summarize(s *Splitter, records []EarningRecord) Summary {
	var sum Summary
	for _, r := range records {
		sum.add(s.Split(r))
	}
	return sum
}

// SplitAll splits each record, keeping input order.
func SplitAll(s *Splitter, records []EarningRecord) []SplitRecord {
	out := make([]SplitRecord, 0, len(records))
	for _, r := range records {
		sh := s.Split(r)
		out = append(out, SplitRecord{
			ID:          r.ID,
			DriverID:    r.DriverID,
			DriverName:  r.DriverName,
			EarningDate: r.EarningDate,
			Status:      r.Status,
			Source:      r.Source(),
			PackageName: r.PackageName,
			Total:       sh.Total,
			Admin:       sh.Admin,
			Driver:      sh.Driver,
		})
	}
	return out
}

// GroupBy totals records per key, emitting groups in first-seen order.
func GroupBy(s *Splitter, records []EarningRecord, key func(EarningRecord) (string, string)) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range records {
		k, name := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k, Name: name})
		}
		if groups[i].Name == "" {
			groups[i].Name = name
		}
		groups[i].add(s.Split(r))
	}
	return groups
}

// ByPackage groups by package name, highest gross first.
func ByPackage(s *Splitter, records []EarningRecord) []Group {
	groups := GroupBy(s, records, func(r EarningRecord) (string, string) {
		name := strings.TrimSpace(r.PackageName)
		if name == "" {
			name = UnknownPackage
		}
		return name, name
	})
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Gross.GreaterThan(groups[j].Gross)
	})
	return groups
}

// ByDriver groups by driver, highest driver share first.
func ByDriver(s *Splitter, records []EarningRecord) []Group {
	groups := GroupBy(s, records, func(r EarningRecord) (string, string) {
		return r.DriverID, r.DriverName
	})
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Driver.GreaterThan(groups[j].Driver)
	})
	return groups
}

// LatestPerBooking keeps the most recent record of each booking. Records with
// no booking reference are kept as they are. Output follows first-seen order.
func LatestPerBooking(records []EarningRecord) []EarningRecord {
	index := make(map[string]int)
	out := make([]EarningRecord, 0, len(records))
	for _, r := range records {
		key := r.BookingKey()
		if key == "" {
			out = append(out, r)
			continue
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if !r.EarningDate.Before(out[i].EarningDate.Time) {
			out[i] = r
		}
	}
	return out
}

// ========================================
// TIME BUCKETS
// ========================================

// Granularity is the bucket width of a time report.
type Granularity string

const (
	GroupHourly  Granularity = "hourly"
	GroupDaily   Granularity = "daily"
	GroupWeekly  Granularity = "weekly"
	GroupMonthly Granularity = "monthly"
	GroupYearly  Granularity = "yearly"
)

// ParseGranularity defaults to monthly.
func ParseGranularity(s string) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupHourly, GroupDaily, GroupWeekly, GroupMonthly, GroupYearly:
		return g
	}
	return GroupMonthly
}

// BucketPlan lays out ordered buckets over the local dates from..to.
type BucketPlan struct {
	granularity Granularity
	loc         *time.Location
	from        periods.Date
	to          periods.Date
}

func NewBucketPlan(g Granularity, loc *time.Location, from, to periods.Date) *BucketPlan {
	if to.Before(from) {
		from, to = to, from
	}
	return &BucketPlan{granularity: g, loc: loc, from: from, to: to}
}

// Seed returns the empty buckets in order.
func (p *BucketPlan) Seed() []Bucket {
	var out []Bucket
	switch p.granularity {
	case GroupHourly:
		for h := 0; h < 24; h++ {
			out = append(out, newBucket(fmt.Sprintf("%02d", h), fmt.Sprintf("%02d:00", h)))
		}
	case GroupDaily:
		for d := p.from; !p.to.Before(d); d = d.AddDays(1) {
			out = append(out, newBucket(p.key(d)))
		}
	case GroupWeekly:
		for d := p.from.Monday(); !p.to.Before(d); d = d.AddDays(7) {
			out = append(out, newBucket(p.key(d)))
		}
	case GroupYearly:
		for y := p.from.Year; y <= p.to.Year; y++ {
			out = append(out, newBucket(p.key(periods.Date{Year: y, Month: time.January, Day: 1})))
		}
	default:
		for d := p.from.FirstOfMonth(); !p.to.Before(d); d = d.FirstOfNextMonth() {
			out = append(out, newBucket(p.key(d)))
		}
	}
	return out
}

// KeyFor returns the bucket key and label holding t.
func (p *BucketPlan) KeyFor(t time.Time) (string, string) {
	if p.granularity == GroupHourly {
		h := t.In(p.loc).Hour()
		return fmt.Sprintf("%02d", h), fmt.Sprintf("%02d:00", h)
	}
	return p.key(periods.DateOf(t, p.loc))
}

func (p *BucketPlan) key(d periods.Date) (string, string) {
	switch p.granularity {
	case GroupDaily:
		return d.String(), d.At(time.UTC, 0).Format("Jan 02")
	case GroupWeekly:
		monday := d.Monday()
		sunday := monday.AddDays(6)
		n := p.from.Monday().DaysUntil(monday)/7 + 1
		start := monday.At(time.UTC, 0)
		end := sunday.At(time.UTC, 0)
		endLabel := end.Format("02")
		if sunday.Month != monday.Month {
			endLabel = end.Format("Jan 02")
		}
		return monday.String(), fmt.Sprintf("Week %d (%s-%s)", n, start.Format("Jan 02"), endLabel)
	case GroupYearly:
		y := fmt.Sprintf("%d", d.Year)
		return y, y
	default:
		m := fmt.Sprintf("%04d-%02d", d.Year, d.Month)
		return m, m
	}
}

func newBucket(key, label string) Bucket {
	return Bucket{Key: key, Label: label}
}

// FillBuckets assigns each record to exactly one bucket. Cancelled records add
// to the cancellation tallies instead of sales. Records outside the seeded
// range get new buckets appended in arrival order.
func FillBuckets(s *Splitter, plan *BucketPlan, records []EarningRecord, cancelled func(EarningRecord) bool) []Bucket {
	buckets := plan.Seed()
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b.Key] = i
	}

	for _, r := range records {
		key, label := plan.KeyFor(r.EarningDate.Time)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, newBucket(key, label))
		}
		b := &buckets[i]
		if cancelled != nil && cancelled(r) {
			b.Cancellations++
			b.CancellationsAmount = b.CancellationsAmount.Add(r.Amount.Round(2))
			continue
		}
		sh := s.Split(r)
		b.Sales = b.Sales.Add(sh.Total)
		b.Admin = b.Admin.Add(sh.Admin)
		b.Driver = b.Driver.Add(sh.Driver)
		b.Bookings++
	}

	for i := range buckets {
		if buckets[i].Bookings > 0 {
			buckets[i].Average = buckets[i].Sales.Div(decimal.NewFromInt(int64(buckets[i].Bookings))).Round(2)
		}
	}
	return buckets
}

// BucketTotals sums a bucket series.
type BucketTotals struct {
	Sales               decimal.Decimal `json:"total_sales"`
	Bookings            int             `json:"total_bookings"`
	Cancellations       int             `json:"total_cancellations"`
	CancellationsAmount decimal.Decimal `json:"total_cancellations_amount"`
}

func SumBuckets(buckets []Bucket) BucketTotals {
	var t BucketTotals
	for _, b := range buckets {
		t.Sales = t.Sales.Add(b.Sales)
		t.Bookings += b.Bookings
		t.Cancellations += b.Cancellations
		t.CancellationsAmount = t.CancellationsAmount.Add(b.CancellationsAmount)
	}
	return t
}
