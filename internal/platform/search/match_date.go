package search

import (
	"strings"
	"time"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// interval is a half-open time range [start, end). A date with day
// precision covers the whole calendar day, a year the whole year.
type interval struct {
	start time.Time
	end   time.Time
}

var (
	openStart = time.Date(-9999, 1, 1, 0, 0, 0, 0, time.UTC)
	openEnd   = time.Date(99999, 1, 1, 0, 0, 0, 0, time.UTC)
)

var dateTimeLayouts = []struct {
	layout string
	step   time.Duration
}{
	{"2006-01-02T15:04:05.999999999Z07:00", time.Second},
	{"2006-01-02T15:04:05.999999999", time.Second},
	{"2006-01-02T15:04Z07:00", time.Minute},
	{"2006-01-02T15:04", time.Minute},
}

// parseInterval parses a FHIR date, dateTime or instant into the range it
// denotes. Values without a zone are read as UTC.
func parseInterval(s string) (interval, bool) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return interval{}, false
		}
		return interval{t, t.AddDate(1, 0, 0)}, true
	case len(s) == 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return interval{}, false
		}
		return interval{t, t.AddDate(0, 1, 0)}, true
	case len(s) == 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return interval{}, false
		}
		return interval{t, t.AddDate(0, 0, 1)}, true
	}
	if !strings.Contains(s, "T") {
		return interval{}, false
	}
	// A "+" in a query string offset arrives as a space.
	s = strings.Replace(s, " ", "+", 1)
	for _, l := range dateTimeLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		step := l.step
		if strings.Contains(s, ".") {
			step = time.Millisecond
		}
		return interval{t, t.Add(step)}, true
	}
	return interval{}, false
}

// fieldInterval reads a date-like element: a primitive or a Period.
func fieldInterval(item fhir.Value) (interval, bool) {
	switch item.Kind() {
	case fhir.KindScalar:
		s, _ := item.Text()
		return parseInterval(s)
	case fhir.KindComplex:
		start, end := item.FieldText("start"), item.FieldText("end")
		if start == "" && end == "" {
			return interval{}, false
		}
		iv := interval{start: openStart, end: openEnd}
		if start != "" {
			s, ok := parseInterval(start)
			if !ok {
				return interval{}, false
			}
			iv.start = s.start
		}
		if end != "" {
			e, ok := parseInterval(end)
			if !ok {
				return interval{}, false
			}
			iv.end = e.end
		}
		return iv, true
	}
	return interval{}, false
}

// calendarDays widens f to the whole calendar days it touches, read in the
// offset each bound was written with. Date-only queries compare against it.
func (f interval) calendarDays() interval {
	if !f.start.Equal(openStart) {
		s := f.start
		f.start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	}
	if !f.end.Equal(openEnd) {
		e := f.end.Add(-time.Nanosecond)
		f.end = time.Date(e.Year(), e.Month(), e.Day()+1, 0, 0, 0, 0, time.UTC)
	}
	return f
}

func (f interval) overlaps(q interval) bool {
	return f.start.Before(q.end) && q.start.Before(f.end)
}

// compare applies a prefix to the element range f and query range q.
func (f interval) compare(prefix Prefix, q interval) bool {
	switch prefix {
	case PrefixNe:
		return !f.overlaps(q)
	case PrefixGt:
		return f.end.After(q.end)
	case PrefixLt:
		return f.start.Before(q.start)
	case PrefixGe:
		return f.end.After(q.start)
	case PrefixLe:
		return f.start.Before(q.end)
	case PrefixSa:
		return !f.start.Before(q.end)
	case PrefixEb:
		return !f.end.After(q.start)
	case PrefixAp:
		wide := interval{q.start.AddDate(0, 0, -1), q.end.AddDate(0, 0, 1)}
		return f.overlaps(wide)
	default:
		return f.overlaps(q)
	}
}

func (ev *evaluation) matchDate(v fhir.Value, pr predicate) bool {
	if pr.Modifier != "" {
		ev.diag.unsupportedModifier(pr.Parameter, "date")
	}
	items := v.Items()
	for _, alt := range splitAlternatives(pr.Value) {
		prefix, raw := pr.ordered(alt)
		q, ok := parseInterval(raw)
		if !ok {
			ev.diag.malformed(pr.Parameter, "%q is not a valid date", raw)
			continue
		}
		dateOnly := !strings.Contains(raw, "T")
		for _, item := range items {
			f, ok := fieldInterval(item)
			if ok && dateOnly {
				f = f.calendarDays()
			}
			if ok && f.compare(prefix, q) {
				return true
			}
		}
	}
	return false
}
