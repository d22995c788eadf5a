package rrule

import "time"

// Iterator produces recurrence instances in ascending order. The first
// instance is always DTStart itself — the "exceptional start" behavior
// ical_parse_rrule implements via b_start_exceptional when DTSTART
// doesn't itself satisfy the BY-filters — after which instances follow
// the rule's own period-by-period candidate generation.
type Iterator struct {
	rule         *RRule
	timeset      []timeOfDay
	period       time.Time // anchor of the current nominal-FREQ period
	pending      []time.Time
	emitted      int
	startEmitted bool
	done         bool

	// emptyStreak counts consecutive periods that produced no candidates,
	// capped at maxEmptyStreak to guard against rules like
	// BYMONTHDAY=30;BYMONTH=2 that can never match (without a cap the
	// search would never terminate). Reset whenever a period does yield
	// candidates, so long-running ordinary rules are never truncated.
	emptyStreak int
}

const maxEmptyStreak = 1000

// Iterate returns a fresh Iterator over r.
func (r *RRule) Iterate() *Iterator {
	it := &Iterator{
		rule:    r,
		timeset: r.timeset(),
		period:  periodAnchor(r, r.DTStart),
	}
	it.pending = it.generatePending()
	return it
}

// Next returns the next instance, or ok=false once the rule is exhausted
// (COUNT reached or UNTIL passed).
func (it *Iterator) Next() (time.Time, bool) {
	if it.done {
		return time.Time{}, false
	}

	if !it.startEmitted {
		it.startEmitted = true
		it.emitted++
		if it.rule.Count != 0 && it.emitted > it.rule.Count {
			it.done = true
			return time.Time{}, false
		}
		return it.rule.DTStart, true
	}

	for {
		for len(it.pending) > 0 {
			next := it.pending[0]
			it.pending = it.pending[1:]
			if !next.After(it.rule.DTStart) {
				continue // already emitted as the exceptional-start instance
			}
			if !it.rule.Until.IsZero() && next.After(it.rule.Until) {
				it.done = true
				return time.Time{}, false
			}
			it.emitted++
			if it.rule.Count != 0 && it.emitted > it.rule.Count {
				it.done = true
				return time.Time{}, false
			}
			return next, true
		}

		it.period = advancePeriod(it.rule, it.period)
		it.pending = it.generatePending()
		if len(it.pending) == 0 {
			it.emptyStreak++
			if it.emptyStreak >= maxEmptyStreak {
				it.done = true
				return time.Time{}, false
			}
		} else {
			it.emptyStreak = 0
		}
	}
}

// Take collects up to n instances (fewer if the rule terminates first).
func (it *Iterator) Take(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for len(out) < n {
		t, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// generatePending builds the sorted, BYSETPOS-filtered instance list for
// the iterator's current period.
func (it *Iterator) generatePending() []time.Time {
	r := it.rule

	var days []time.Time
	switch r.Freq {
	case Hourly, Minutely, Secondly:
		return it.generateSubDailyPending()
	default:
		days = r.candidateDays(it.period)
	}

	var all []time.Time
	for _, d := range days {
		for _, tod := range it.timeset {
			all = append(all, time.Date(d.Year(), d.Month(), d.Day(), tod.hour, tod.minute, tod.second, 0, time.UTC))
		}
	}
	all = sortedUnique(all)

	if len(r.BySetPos) > 0 {
		all = applySetPos(all, r.BySetPos)
	}
	return all
}

// generateSubDailyPending handles HOURLY/MINUTELY/SECONDLY frequencies:
// each period anchor is already a specific instant, filtered against any
// BYHOUR/BYMINUTE/BYSECOND restriction.
func (it *Iterator) generateSubDailyPending() []time.Time {
	r := it.rule
	if len(r.ByHour) > 0 && !containsInt(r.ByHour, it.period.Hour()) {
		return nil
	}
	if len(r.ByMinute) > 0 && !containsInt(r.ByMinute, it.period.Minute()) {
		return nil
	}
	if len(r.BySecond) > 0 && !containsInt(r.BySecond, it.period.Second()) {
		return nil
	}
	return []time.Time{it.period}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// applySetPos selects elements of sorted (already ascending) by their
// 1-based position, or position from the end for negative entries, per
// BYSETPOS — the two-pass evaluation: the full period candidate set is
// generated first, then this positional filter narrows it.
func applySetPos(sorted []time.Time, setpos []int) []time.Time {
	n := len(sorted)
	seen := map[int]bool{}
	var out []time.Time
	for _, p := range setpos {
		var idx int
		if p > 0 {
			idx = p - 1
		} else {
			idx = n + p
		}
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, sorted[idx])
	}
	return sortedUnique(out)
}

// periodAnchor returns the nominal-FREQ period containing t.
func periodAnchor(r *RRule, t time.Time) time.Time {
	switch r.Freq {
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Weekly:
		delta := (int(t.Weekday()) - int(r.WeekStart) + 7) % 7
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return d.AddDate(0, 0, -delta)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Hourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Minutely:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	default: // Secondly
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
}

// advancePeriod steps p forward by the rule's Interval in its nominal
// FREQ unit.
func advancePeriod(r *RRule, p time.Time) time.Time {
	switch r.Freq {
	case Yearly:
		return p.AddDate(r.Interval, 0, 0)
	case Monthly:
		return p.AddDate(0, r.Interval, 0)
	case Weekly:
		return p.AddDate(0, 0, 7*r.Interval)
	case Daily:
		return p.AddDate(0, 0, r.Interval)
	case Hourly:
		return p.Add(time.Duration(r.Interval) * time.Hour)
	case Minutely:
		return p.Add(time.Duration(r.Interval) * time.Minute)
	default: // Secondly
		return p.Add(time.Duration(r.Interval) * time.Second)
	}
}
