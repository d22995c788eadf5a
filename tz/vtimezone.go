package tz

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/postalcore/postal/ical"
)

// rule is one STANDARD or DAYLIGHT child: its fixed UTC offset, the
// abbreviation to report, the DTSTART this rule first applies from, and
// (if present) a yearly RRULE describing when it recurs.
type rule struct {
	isDaylight bool
	offset     time.Duration
	abbrev     string
	dtstart    time.Time // naive, the year/month/day/time this rule begins from

	hasRRule bool
	month    int // BYMONTH, or dtstart's month if absent
	// exactly one of byDay/byMonthDay is set when hasRRule
	byDayWeekday         time.Weekday
	byDayOrdinal         int // -5..-1, 1..5; 0 means "use byMonthDay instead"
	byMonthDay           int // 1..31 or negative (from month end); 0 means "use byDay instead"
	hour, minute, second int
}

// vtimezoneLocation walks a VTIMEZONE's STANDARD/DAYLIGHT children to
// resolve an offset, the ical_get_datetime_offset equivalent.
type vtimezoneLocation struct {
	rules []rule
}

func newVTimezoneLocation(vtz *ical.Component) (*vtimezoneLocation, error) {
	var rules []rule
	for _, name := range []string{"STANDARD", "DAYLIGHT"} {
		for _, comp := range vtz.ChildrenNamed(name) {
			r, err := parseRule(comp, strings.EqualFold(name, "DAYLIGHT"))
			if err != nil {
				return nil, fmt.Errorf("tz: parsing %s: %w", name, err)
			}
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("tz: VTIMEZONE has no STANDARD/DAYLIGHT child")
	}
	return &vtimezoneLocation{rules: rules}, nil
}

func parseRule(comp *ical.Component, isDaylight bool) (rule, error) {
	r := rule{isDaylight: isDaylight}

	dtstartLine := comp.Line("DTSTART")
	if dtstartLine == nil {
		return r, fmt.Errorf("missing DTSTART")
	}
	dtstart, err := parseLocalDateTime(dtstartLine.FirstValue())
	if err != nil {
		return r, fmt.Errorf("DTSTART: %w", err)
	}
	r.dtstart = dtstart
	r.hour, r.minute, r.second = dtstart.Hour(), dtstart.Minute(), dtstart.Second()
	r.month = int(dtstart.Month())

	toLine := comp.Line("TZOFFSETTO")
	if toLine == nil {
		return r, fmt.Errorf("missing TZOFFSETTO")
	}
	off, err := parseUTCOffset(toLine.FirstValue())
	if err != nil {
		return r, err
	}
	r.offset = off

	if nameLine := comp.Line("TZNAME"); nameLine != nil {
		r.abbrev = nameLine.FirstValue()
	}

	rr := comp.Line("RRULE")
	if rr == nil {
		return r, nil
	}

	freq := ""
	var byDay, byMonthDay, byMonth, byHour, byMinute, bySecond string
	for _, v := range rr.Values {
		switch strings.ToUpper(v.Name) {
		case "FREQ":
			freq = strings.ToUpper(v.FirstSubValue())
		case "BYDAY":
			byDay = v.FirstSubValue()
		case "BYMONTHDAY":
			byMonthDay = v.FirstSubValue()
		case "BYMONTH":
			byMonth = v.FirstSubValue()
		case "BYHOUR":
			byHour = v.FirstSubValue()
		case "BYMINUTE":
			byMinute = v.FirstSubValue()
		case "BYSECOND":
			bySecond = v.FirstSubValue()
		}
	}
	if freq != "YEARLY" {
		return r, fmt.Errorf("VTIMEZONE RRULE must be FREQ=YEARLY, got %q", freq)
	}
	if (byDay == "" && byMonthDay == "") || (byDay != "" && byMonthDay != "") {
		return r, fmt.Errorf("VTIMEZONE RRULE needs exactly one of BYDAY/BYMONTHDAY")
	}
	r.hasRRule = true

	if byMonth != "" {
		m, err := strconv.Atoi(byMonth)
		if err != nil || m < 1 || m > 12 {
			return r, fmt.Errorf("bad BYMONTH %q", byMonth)
		}
		r.month = m
	}
	if byDay != "" {
		wd, ord, err := parseByDay(byDay)
		if err != nil {
			return r, err
		}
		r.byDayWeekday, r.byDayOrdinal = wd, ord
	} else {
		d, err := strconv.Atoi(byMonthDay)
		if err != nil || d == 0 || d < -31 || d > 31 {
			return r, fmt.Errorf("bad BYMONTHDAY %q", byMonthDay)
		}
		r.byMonthDay = d
	}
	if byHour != "" {
		r.hour, _ = strconv.Atoi(byHour)
	}
	if byMinute != "" {
		r.minute, _ = strconv.Atoi(byMinute)
	}
	if bySecond != "" {
		r.second, _ = strconv.Atoi(bySecond)
	}
	return r, nil
}

// parseByDay parses an RFC 5545 BYDAY element like "1SU" or "-1FR" into a
// weekday and an ordinal (1..5 or -5..-1).
func parseByDay(s string) (time.Weekday, int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("bad BYDAY %q", s)
	}
	dayStr := s[len(s)-2:]
	ordStr := s[:len(s)-2]
	wd, ok := weekdayByAbbr[strings.ToUpper(dayStr)]
	if !ok {
		return 0, 0, fmt.Errorf("bad BYDAY weekday %q", s)
	}
	ord := 1
	if ordStr != "" {
		var err error
		ord, err = strconv.Atoi(ordStr)
		if err != nil {
			return 0, 0, fmt.Errorf("bad BYDAY ordinal %q", s)
		}
	}
	return wd, ord, nil
}

var weekdayByAbbr = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

// transitionFor computes the naive local instant, in year, that rule r
// transitions at (its yearly-recurring date if hasRRule, otherwise its
// fixed DTSTART).
func (r rule) transitionFor(year int) time.Time {
	if !r.hasRRule {
		return r.dtstart
	}
	var day int
	if r.byMonthDay != 0 {
		day = r.byMonthDay
		if day < 0 {
			day = daysInMonth(year, r.month) + day + 1
		}
	} else {
		day = nthWeekdayOfMonth(year, r.month, r.byDayWeekday, r.byDayOrdinal)
	}
	return time.Date(year, time.Month(r.month), day, r.hour, r.minute, r.second, 0, time.UTC)
}

func daysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nthWeekdayOfMonth returns the day-of-month of the ordinal-th occurrence
// of weekday in the given month/year; a negative ordinal counts from the
// end of the month (-1 = last).
func nthWeekdayOfMonth(year, month int, weekday time.Weekday, ordinal int) int {
	if ordinal > 0 {
		first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		delta := (int(weekday) - int(first.Weekday()) + 7) % 7
		return 1 + delta + (ordinal-1)*7
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	delta := (int(last.Weekday()) - int(weekday) + 7) % 7
	day := last.Day() - delta + (ordinal+1)*7
	return day
}

// Offset implements Location by finding the rule whose most recent
// transition (in local's year or the one before it) precedes local, and
// which is the latest such transition among all rules — the same
// "latest-applicable transition wins" logic ical_get_datetime_offset
// implements via its itime comparisons.
func (l *vtimezoneLocation) Offset(local time.Time) (time.Duration, string) {
	var best rule
	var bestAt time.Time
	found := false

	for _, year := range []int{local.Year() - 1, local.Year()} {
		for _, r := range l.rules {
			at := r.transitionFor(year)
			if at.After(local) {
				continue
			}
			if !found || at.After(bestAt) {
				best, bestAt, found = r, at, true
			}
		}
	}
	if !found {
		// local precedes every rule's first transition; fall back to
		// whichever rule has the earliest DTSTART.
		best = l.rules[0]
		for _, r := range l.rules[1:] {
			if r.dtstart.Before(best.dtstart) {
				best = r
			}
		}
	}
	return best.offset, best.abbrev
}

// parseLocalDateTime parses an iCalendar DATE-TIME value with no TZID
// param and no trailing 'Z' as a naive local time.
func parseLocalDateTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	return time.Parse("20060102T150405", s)
}

// parseUTCOffset parses an RFC 5545 utc-offset value, e.g. "+0100" or
// "-0530" or "+010000".
func parseUTCOffset(s string) (time.Duration, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("bad utc-offset %q", s)
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("bad utc-offset sign %q", s)
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, fmt.Errorf("bad utc-offset hours %q", s)
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return 0, fmt.Errorf("bad utc-offset minutes %q", s)
	}
	ss := 0
	if len(s) >= 7 {
		ss, _ = strconv.Atoi(s[5:7])
	}
	total := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second
	return time.Duration(sign) * total, nil
}
