package earnings

import (
	"strings"

	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
)

// StatusPolicy decides which earning statuses count toward revenue. With an
// allow-list only listed statuses count; without one everything but the
// deny-list counts.
type StatusPolicy struct {
	Include []string
	Exclude []string
}

// NewStatusPolicy normalises both lists.
func NewStatusPolicy(include, exclude []string) StatusPolicy {
	return StatusPolicy{Include: normalize(include), Exclude: normalize(exclude)}
}

func normalize(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Allows reports whether a record with status counts.
func (p StatusPolicy) Allows(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	if len(p.Include) > 0 {
		return contains(p.Include, status)
	}
	return !contains(p.Exclude, status)
}

// Override applies request-level lists. A non-empty include replaces the
// allow-list; an exclude on its own switches to deny-list mode.
func (p StatusPolicy) Override(include, exclude []string) StatusPolicy {
	include, exclude = normalize(include), normalize(exclude)
	switch {
	case len(include) > 0:
		return StatusPolicy{Include: include, Exclude: p.Exclude}
	case len(exclude) > 0:
		return StatusPolicy{Exclude: exclude}
	}
	return p
}

// Apply adds the equivalent status filter to q.
func (p StatusPolicy) Apply(q *postgrest.Query) *postgrest.Query {
	if len(p.Include) > 0 {
		return q.In("status", p.Include)
	}
	if len(p.Exclude) > 0 {
		return q.NotIn("status", p.Exclude)
	}
	return q
}

// Filter keeps the records the policy allows.
func (p StatusPolicy) Filter(records []EarningRecord) []EarningRecord {
	out := records[:0:0]
	for _, r := range records {
		if p.Allows(r.Status) {
			out = append(out, r)
		}
	}
	return out
}
