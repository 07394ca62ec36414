package periods

import (
	"strings"
	"time"
)

// WeekMode selects how the "week" period is anchored.
type WeekMode string

const (
	// WeekCalendar is Monday through Sunday of the current week.
	WeekCalendar WeekMode = "CALENDAR"
	// WeekRolling7 is the six days before today plus today.
	WeekRolling7 WeekMode = "ROLLING7"
)

// ParseWeekMode defaults to WeekCalendar.
func ParseWeekMode(s string) WeekMode {
	if WeekMode(strings.ToUpper(strings.TrimSpace(s))) == WeekRolling7 {
		return WeekRolling7
	}
	return WeekCalendar
}

// Period is a window relative to now.
type Period string

const (
	Today Period = "today"
	Week  Period = "week"
	Month Period = "month"
)

// ParsePeriod defaults to Today.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case Week:
		return Week
	case Month:
		return Month
	default:
		return Today
	}
}

// PeriodType is a snapshot granularity.
type PeriodType string

const (
	Daily   PeriodType = "daily"
	Weekly  PeriodType = "weekly"
	Monthly PeriodType = "monthly"
)

// ParsePeriodType reports false for anything but daily, weekly or monthly.
func ParsePeriodType(s string) (PeriodType, bool) {
	switch pt := PeriodType(strings.ToLower(strings.TrimSpace(s))); pt {
	case Daily, Weekly, Monthly:
		return pt, true
	}
	return "", false
}

// PeriodTypeFor maps a relative period onto its snapshot granularity.
func PeriodTypeFor(p Period) PeriodType {
	switch p {
	case Week:
		return Weekly
	case Month:
		return Monthly
	default:
		return Daily
	}
}

// Resolver computes windows aligned to a zone's calendar, with each business
// day starting at the cutoff hour.
type Resolver struct {
	loc      *time.Location
	cutoff   int
	weekMode WeekMode
	now      func() time.Time
}

// NewResolver clamps cutoffHour into 0..23. A nil loc means Manila.
func NewResolver(loc *time.Location, cutoffHour int, mode WeekMode) *Resolver {
	if loc == nil {
		loc = Manila
	}
	if cutoffHour < 0 {
		cutoffHour = 0
	}
	if cutoffHour > 23 {
		cutoffHour = 23
	}
	if mode != WeekRolling7 {
		mode = WeekCalendar
	}
	return &Resolver{loc: loc, cutoff: cutoffHour, weekMode: mode, now: time.Now}
}

// WithClock returns a copy reading the current time from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	cp := *r
	cp.now = now
	return &cp
}

// WithLocation returns a copy bucketing in loc.
func (r *Resolver) WithLocation(loc *time.Location) *Resolver {
	cp := *r
	if loc != nil {
		cp.loc = loc
	}
	return &cp
}

func (r *Resolver) Location() *time.Location { return r.loc }
func (r *Resolver) CutoffHour() int          { return r.cutoff }
func (r *Resolver) WeekMode() WeekMode       { return r.weekMode }
func (r *Resolver) Now() time.Time           { return r.now() }

// Today is the current business date. Before the cutoff hour the business
// day that started yesterday is still running.
func (r *Resolver) Today() Date {
	return DateOf(r.now().In(r.loc).Add(-time.Duration(r.cutoff)*time.Hour), r.loc)
}

// Current resolves a period relative to now.
func (r *Resolver) Current(p Period) Window {
	today := r.Today()
	switch p {
	case Week:
		if r.weekMode == WeekRolling7 {
			return r.span(today.AddDays(-6), today.AddDays(1))
		}
		monday := today.Monday()
		return r.span(monday, monday.AddDays(7))
	case Month:
		return r.span(today.FirstOfMonth(), today.FirstOfNextMonth())
	default:
		return r.span(today, today.AddDays(1))
	}
}

// ForPeriodType resolves the snapshot window containing ref. Weekly
// snapshots always use the Monday-start calendar week.
func (r *Resolver) ForPeriodType(pt PeriodType, ref Date) Window {
	switch pt {
	case Weekly:
		monday := ref.Monday()
		return r.span(monday, monday.AddDays(7))
	case Monthly:
		return r.span(ref.FirstOfMonth(), ref.FirstOfNextMonth())
	default:
		return r.span(ref, ref.AddDays(1))
	}
}

// Range covers the inclusive local dates from..to. Reversed bounds are swapped.
func (r *Resolver) Range(from, to Date) Window {
	if to.Before(from) {
		from, to = to, from
	}
	return r.span(from, to.AddDays(1))
}

// DueSnapshots lists the period types whose window closes on day: daily
// always, weekly on Sundays, monthly on the last day of the month.
func DueSnapshots(day Date) []PeriodType {
	due := []PeriodType{Daily}
	if day.IsLastDayOfWeek() {
		due = append(due, Weekly)
	}
	if day.IsLastDayOfMonth() {
		due = append(due, Monthly)
	}
	return due
}

func (r *Resolver) span(from, to Date) Window {
	return Window{
		Start:      from.At(r.loc, r.cutoff),
		End:        to.At(r.loc, r.cutoff),
		Location:   r.loc,
		CutoffHour: r.cutoff,
	}
}
