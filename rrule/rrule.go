// Package rrule expands RFC 5545 §3.3.10 recurrence rules into concrete
// instance times, following the same real-frequency derivation and
// BY-filter semantics as ical_parse_rrule/ical_rrule_iterate in
// original_source/lib/email/ical.cpp. The control flow here is the
// standard period-generate-then-filter recurrence algorithm (generate
// candidate instants for each nominal-FREQ period, cross BYxxx filters,
// sort, apply BYSETPOS) rather than a transliteration of that file's
// hand-rolled bitmap state machine — the semantics it must reproduce
// (real frequency, BY-mask filtering, BYSETPOS, the DTSTART-always-first
// "exceptional start" instance) are what's grounded on it.
package rrule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/postalcore/postal/ical"
)

// Frequency is the recurrence granularity, ordered finest (Secondly) to
// coarsest (Yearly) so "real frequency" derivation can compare by rank.
type Frequency int

const (
	Secondly Frequency = iota
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Secondly:
		return "SECONDLY"
	case Minutely:
		return "MINUTELY"
	case Hourly:
		return "HOURLY"
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "?"
	}
}

// ByDay is one BYDAY element: a weekday, with an optional ordinal (e.g.
// "2TU" -> Ordinal=2, "-1FR" -> Ordinal=-1; Ordinal=0 means every
// occurrence of that weekday in the period; a non-zero Ordinal is only
// valid at MONTHLY/YEARLY).
type ByDay struct {
	Weekday time.Weekday
	Ordinal int
}

// RRule is a parsed RFC 5545 recurrence rule.
type RRule struct {
	Freq     Frequency
	RealFreq Frequency // the finest granularity implied by any BY-filter
	Interval int
	Count    int       // 0 means unbounded (subject to Until or a caller limit)
	Until    time.Time // zero Time means unbounded

	ByMonth    []int // 1..12
	ByWeekNo   []int // ISO week, 1..53 or -53..-1
	ByYearDay  []int // 1..366 or -366..-1
	ByMonthDay []int // 1..31 or -31..-1
	ByDay      []ByDay
	ByHour     []int
	ByMinute   []int
	BySecond   []int
	BySetPos   []int // 1-based positions into the sorted period candidate list, or negative from the end

	WeekStart time.Weekday
	DTStart   time.Time
}

// Parse builds an RRule from an RRULE content line, grounded on
// ical_parse_rrule's field-by-field validation. dtstart becomes DTStart:
// the always-first occurrence, and the source of the default month, day
// and time of day. Interval defaults to 1 and WeekStart to Monday.
func Parse(line *ical.Line, dtstart time.Time) (*RRule, error) {
	r := &RRule{Interval: 1, DTStart: dtstart, WeekStart: time.Monday}

	vals := map[string]*ical.Value{}
	for _, v := range line.Values {
		vals[strings.ToUpper(v.Name)] = v
	}

	freqVal, ok := vals["FREQ"]
	if !ok {
		return nil, fmt.Errorf("rrule: missing FREQ")
	}
	freq, err := parseFreq(freqVal.FirstSubValue())
	if err != nil {
		return nil, err
	}
	r.Freq = freq
	r.RealFreq = freq

	if v, ok := vals["INTERVAL"]; ok {
		n, err := strconv.Atoi(v.FirstSubValue())
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("rrule: bad INTERVAL")
		}
		r.Interval = n
	}
	if v, ok := vals["COUNT"]; ok {
		n, err := strconv.Atoi(v.FirstSubValue())
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("rrule: bad COUNT")
		}
		r.Count = n
	}
	if v, ok := vals["UNTIL"]; ok {
		if r.Count != 0 {
			return nil, fmt.Errorf("rrule: COUNT and UNTIL are mutually exclusive")
		}
		until, err := parseUntil(v.FirstSubValue())
		if err != nil {
			return nil, err
		}
		if !until.After(dtstart) {
			return nil, fmt.Errorf("rrule: UNTIL must be after DTSTART")
		}
		r.Until = until
	}

	if v, ok := vals["BYSECOND"]; ok {
		r.BySecond, err = intList(v, 0, 59, false)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYSECOND: %w", err)
		}
		r.lower(Secondly)
	}
	if v, ok := vals["BYMINUTE"]; ok {
		r.ByMinute, err = intList(v, 0, 59, false)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYMINUTE: %w", err)
		}
		r.lower(Minutely)
	}
	if v, ok := vals["BYHOUR"]; ok {
		r.ByHour, err = intList(v, 0, 23, false)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYHOUR: %w", err)
		}
		r.lower(Hourly)
	}
	if v, ok := vals["BYMONTHDAY"]; ok {
		r.ByMonthDay, err = intList(v, 1, 31, true)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYMONTHDAY: %w", err)
		}
		r.lower(Daily)
	}
	if v, ok := vals["BYYEARDAY"]; ok {
		r.ByYearDay, err = intList(v, 1, 366, true)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYYEARDAY: %w", err)
		}
		r.lower(Daily)
	}
	if v, ok := vals["BYDAY"]; ok {
		for _, sv := range v.SubValues {
			bd, err := parseByDay(sv.Text)
			if err != nil {
				return nil, err
			}
			if bd.Ordinal != 0 && r.Freq != Monthly && r.Freq != Yearly {
				return nil, fmt.Errorf("rrule: BYDAY ordinal only valid with MONTHLY/YEARLY")
			}
			if r.Freq == Monthly && (bd.Ordinal > 5 || bd.Ordinal < -5) {
				return nil, fmt.Errorf("rrule: BYDAY ordinal out of range for MONTHLY")
			}
			r.ByDay = append(r.ByDay, bd)
		}
		r.lower(Daily)
	}
	if v, ok := vals["BYWEEKNO"]; ok {
		if r.Freq != Yearly {
			return nil, fmt.Errorf("rrule: BYWEEKNO only valid with YEARLY")
		}
		r.ByWeekNo, err = intList(v, 1, 53, true)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYWEEKNO: %w", err)
		}
		r.lower(Weekly)
	}
	if v, ok := vals["BYMONTH"]; ok {
		r.ByMonth, err = intList(v, 1, 12, false)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYMONTH: %w", err)
		}
		r.lower(Monthly)
	}
	if v, ok := vals["BYSETPOS"]; ok {
		r.BySetPos, err = intList(v, 1, 366, true)
		if err != nil {
			return nil, fmt.Errorf("rrule: BYSETPOS: %w", err)
		}
	}
	if v, ok := vals["WKST"]; ok {
		wd, ok := weekdayByAbbr[strings.ToUpper(v.FirstSubValue())]
		if !ok {
			return nil, fmt.Errorf("rrule: bad WKST")
		}
		r.WeekStart = wd
	} else if len(r.ByWeekNo) > 0 {
		r.WeekStart = time.Monday
	}

	return r, nil
}

// lower pulls RealFreq down to f if f is finer (lower rank) than the
// current RealFreq, the same one-directional narrowing
// ical_parse_rrule performs as each BY-filter is seen.
func (r *RRule) lower(f Frequency) {
	if f < r.RealFreq {
		r.RealFreq = f
	}
}

func parseFreq(s string) (Frequency, error) {
	switch strings.ToUpper(s) {
	case "SECONDLY":
		return Secondly, nil
	case "MINUTELY":
		return Minutely, nil
	case "HOURLY":
		return Hourly, nil
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	default:
		return 0, fmt.Errorf("rrule: bad FREQ %q", s)
	}
}

var weekdayByAbbr = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

func parseByDay(s string) (ByDay, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return ByDay{}, fmt.Errorf("rrule: bad BYDAY %q", s)
	}
	dayStr := s[len(s)-2:]
	ordStr := s[:len(s)-2]
	wd, ok := weekdayByAbbr[strings.ToUpper(dayStr)]
	if !ok {
		return ByDay{}, fmt.Errorf("rrule: bad BYDAY weekday %q", s)
	}
	ord := 0
	if ordStr != "" {
		n, err := strconv.Atoi(ordStr)
		if err != nil {
			return ByDay{}, fmt.Errorf("rrule: bad BYDAY ordinal %q", s)
		}
		ord = n
	}
	return ByDay{Weekday: wd, Ordinal: ord}, nil
}

// intList parses a comma-separated BYxxx value list, validating each
// element's magnitude against [lo,hi] (or [-hi,-lo] when negative is
// allowed and the element is negative, per ical_parse_rrule's bitmap
// bounds checks).
func intList(v *ical.Value, lo, hi int, allowNegative bool) ([]int, error) {
	var out []int
	for _, sv := range v.SubValues {
		n, err := strconv.Atoi(strings.TrimSpace(sv.Text))
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", sv.Text)
		}
		if n == 0 {
			return nil, fmt.Errorf("0 is not a valid element")
		}
		if n < 0 {
			if !allowNegative {
				return nil, fmt.Errorf("negative value %d not allowed here", n)
			}
			if -n < lo || -n > hi {
				return nil, fmt.Errorf("value %d out of range", n)
			}
		} else if n < lo || n > hi {
			return nil, fmt.Errorf("value %d out of range", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseUntil parses an RRULE UNTIL value, either a DATE or a UTC
// DATE-TIME (RFC 5545 requires UNTIL be expressed in UTC when the
// DTSTART it qualifies carries a time component).
func parseUntil(s string) (time.Time, error) {
	if strings.HasSuffix(s, "Z") {
		return time.ParseInLocation("20060102T150405Z", s, time.UTC)
	}
	if strings.Contains(s, "T") {
		return time.ParseInLocation("20060102T150405", s, time.UTC)
	}
	return time.ParseInLocation("20060102", s, time.UTC)
}

// sortedUnique sorts times in place and returns them with duplicates removed.
func sortedUnique(times []time.Time) []time.Time {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	out := times[:0:0]
	for i, t := range times {
		if i == 0 || !t.Equal(times[i-1]) {
			out = append(out, t)
		}
	}
	return out
}
