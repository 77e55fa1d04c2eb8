package billing

import (
	"sort"
	"strings"
	"time"
)

// Named fee periods.
const (
	PeriodMonthly      = "Monthly"
	PeriodQuarterly    = "Quarterly"
	PeriodSemiannually = "Semiannually"
	PeriodAnnually     = "Annually"
	PeriodTest         = "Test"
)

const day = 24 * time.Hour

// Period describes one billing cadence (value type).
//
// Length is the gap between a cycle's start and due date. Step is the
// smallest unit of the period: the next cycle starts one Step after the
// previous due date. Tolerance is the window used to decide whether an
// invoice for a cycle start already exists.
type Period struct {
	Name      string
	Length    time.Duration
	Step      time.Duration
	Tolerance time.Duration
}

// LengthDays returns Length in (possibly fractional) days.
func (p Period) LengthDays() float64 {
	return p.Length.Hours() / 24
}

// Calendar maps period names to periods. The zero value is not usable;
// build one with DefaultCalendar or NewCalendar.
type Calendar struct {
	periods  map[string]Period
	fallback Period
}

// DefaultPeriods returns the built-in period table.
func DefaultPeriods() []Period {
	return []Period{
		{Name: PeriodMonthly, Length: 30 * day, Step: day, Tolerance: day},
		{Name: PeriodQuarterly, Length: 90 * day, Step: day, Tolerance: day},
		{Name: PeriodSemiannually, Length: 180 * day, Step: day, Tolerance: day},
		{Name: PeriodAnnually, Length: 365 * day, Step: day, Tolerance: day},
		{Name: PeriodTest, Length: 5 * time.Minute, Step: time.Minute, Tolerance: time.Minute},
	}
}

// DefaultCalendar returns a calendar with the built-in periods.
func DefaultCalendar() *Calendar {
	return NewCalendar(nil)
}

// NewCalendar builds a calendar from the given periods layered over the
// defaults. Entries with a non-positive Length are ignored; a missing Step
// defaults to one day and a missing Tolerance to the Step.
func NewCalendar(periods []Period) *Calendar {
	c := &Calendar{periods: make(map[string]Period)}
	for _, p := range DefaultPeriods() {
		c.periods[normalizeName(p.Name)] = p
	}
	for _, p := range periods {
		if p.Name == "" || p.Length <= 0 {
			continue
		}
		if p.Step <= 0 {
			p.Step = day
		}
		if p.Tolerance <= 0 {
			p.Tolerance = p.Step
		}
		c.periods[normalizeName(p.Name)] = p
	}
	// "Minutely" is an alias some clients send for the short test period.
	if _, ok := c.periods["minutely"]; !ok {
		c.periods["minutely"] = c.periods[normalizeName(PeriodTest)]
	}
	c.fallback = c.periods[normalizeName(PeriodMonthly)]
	return c
}

// Lookup returns the period for name. Unknown names resolve to Monthly.
func (c *Calendar) Lookup(name string) Period {
	if p, ok := c.periods[normalizeName(name)]; ok {
		return p
	}
	return c.fallback
}

// Known reports whether name is a configured period.
func (c *Calendar) Known(name string) bool {
	_, ok := c.periods[normalizeName(name)]
	return ok
}

// Names returns the configured period names, sorted.
func (c *Calendar) Names() []string {
	seen := make(map[string]bool, len(c.periods))
	names := make([]string, 0, len(c.periods))
	for _, p := range c.periods {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// LengthDays returns the length of the named period in days.
func (c *Calendar) LengthDays(name string) float64 {
	return c.Lookup(name).LengthDays()
}

// NextCycle computes the start and due date of the cycle following one
// that was due at prevDue. This is a PURE function.
func (c *Calendar) NextCycle(prevDue time.Time, name string) (start, due time.Time) {
	p := c.Lookup(name)
	start = prevDue.UTC().Add(p.Step)
	due = start.Add(p.Length)
	return start, due
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
