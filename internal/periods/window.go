package periods

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// Manila is the platform's home zone and the fallback for unknown zone names.
var Manila = mustLoad("Asia/Manila")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ResolveLocation maps the short names used by the mobile client ("ph",
// "utc") and any IANA zone name to a location. Unknown names resolve to Manila.
func ResolveLocation(name string) *time.Location {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ph", "asia/manila", "manila":
		return Manila
	case "utc", "z", "+00:00":
		return time.UTC
	}
	if loc, err := time.LoadLocation(strings.TrimSpace(name)); err == nil {
		return loc
	}
	return Manila
}

// ZoneLabel is the short label persisted with snapshots.
func ZoneLabel(loc *time.Location) string {
	switch loc {
	case time.UTC:
		return "utc"
	case Manila:
		return "ph"
	}
	return loc.String()
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start      time.Time
	End        time.Time
	Location   *time.Location
	CutoffHour int
}

// Contains reports Start <= t < End.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DisplayEnd is the last whole second inside the window.
func (w Window) DisplayEnd() time.Time {
	return w.End.Add(-time.Second)
}

// StartDate is the local calendar date the window opens on.
func (w Window) StartDate() Date {
	return DateOf(w.Start, w.Location)
}

// In re-expresses both bounds in loc for display.
func (w Window) In(loc *time.Location) (time.Time, time.Time) {
	return w.Start.In(loc), w.DisplayEnd().In(loc)
}
