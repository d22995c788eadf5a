package rrule

import "time"

// daysInMonth returns the number of days in the given year/month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysInYear returns 366 for leap years, else 365.
func daysInYear(year int) int {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).YearDay() +
		daysFromJan1ToDec31(year)
}

func daysFromJan1ToDec31(year int) int {
	dec31 := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	return dec31.YearDay() - 1
}

// resolveMonthDay turns a BYMONTHDAY element (1..31 or -31..-1) into an
// absolute day-of-month for the given year/month, or 0 if out of range.
func resolveMonthDay(year int, month time.Month, n int) int {
	dim := daysInMonth(year, month)
	if n > 0 {
		if n > dim {
			return 0
		}
		return n
	}
	day := dim + n + 1
	if day < 1 {
		return 0
	}
	return day
}

// resolveYearDay turns a BYYEARDAY element (1..366 or -366..-1) into an
// absolute day-of-year, or 0 if out of range.
func resolveYearDay(year, n int) int {
	total := daysInYear(year)
	if n > 0 {
		if n > total {
			return 0
		}
		return n
	}
	day := total + n + 1
	if day < 1 {
		return 0
	}
	return day
}

// nthWeekdayOfMonth returns the day-of-month of the ordinal-th occurrence
// of weekday in the month (ordinal>0 counts from the 1st, ordinal<0
// counts from the end), or 0 if that occurrence doesn't exist.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, ordinal int) int {
	if ordinal > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		delta := (int(weekday) - int(first.Weekday()) + 7) % 7
		day := 1 + delta + (ordinal-1)*7
		if day > daysInMonth(year, month) {
			return 0
		}
		return day
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	delta := (int(last.Weekday()) - int(weekday) + 7) % 7
	day := last.Day() - delta + (ordinal+1)*7
	if day < 1 {
		return 0
	}
	return day
}

// allWeekdaysOfMonth returns every day-of-month on which weekday falls.
func allWeekdaysOfMonth(year int, month time.Month, weekday time.Weekday) []int {
	var out []int
	dim := daysInMonth(year, month)
	for d := 1; d <= dim; d++ {
		if time.Date(year, month, d, 0, 0, 0, 0, time.UTC).Weekday() == weekday {
			out = append(out, d)
		}
	}
	return out
}

// weekdaySet expands a ByDay list (plain weekdays, Ordinal==0) into the
// set of weekdays to match, used for WEEKLY/DAILY-scope filtering.
func weekdaySet(days []ByDay) map[time.Weekday]bool {
	set := map[time.Weekday]bool{}
	for _, d := range days {
		set[d.Weekday] = true
	}
	return set
}

type timeOfDay struct{ hour, minute, second int }

// timeset returns the (hour,minute,second) combinations to cross with
// each candidate day, from BYHOUR/BYMINUTE/BYSECOND or, absent those,
// DTStart's own time-of-day.
func (r *RRule) timeset() []timeOfDay {
	hours := r.ByHour
	if len(hours) == 0 {
		hours = []int{r.DTStart.Hour()}
	}
	minutes := r.ByMinute
	if len(minutes) == 0 {
		minutes = []int{r.DTStart.Minute()}
	}
	seconds := r.BySecond
	if len(seconds) == 0 {
		seconds = []int{r.DTStart.Second()}
	}

	var out []timeOfDay
	for _, h := range hours {
		for _, m := range minutes {
			for _, s := range seconds {
				out = append(out, timeOfDay{h, m, s})
			}
		}
	}
	return out
}

// candidateDays returns the sorted, de-duplicated set of calendar days
// (UTC midnight) this rule recurs on within the nominal period anchored
// at period (a year, month, or week start depending on r.Freq).
func (r *RRule) candidateDays(period time.Time) []time.Time {
	switch r.Freq {
	case Yearly:
		return r.candidateDaysYearly(period.Year())
	case Monthly:
		return r.candidateDaysMonthly(period.Year(), period.Month())
	case Weekly:
		return r.candidateDaysWeekly(period)
	default: // Daily, and Hourly/Minutely/Secondly (handled by caller)
		if r.Freq == Daily && len(r.ByDay) > 0 && !weekdaySet(r.ByDay)[period.Weekday()] {
			return nil
		}
		return []time.Time{period}
	}
}

func (r *RRule) candidateDaysMonthly(year int, month time.Month) []time.Time {
	var days []int

	switch {
	case len(r.ByMonthDay) > 0 && len(r.ByDay) > 0:
		mdSet := map[int]bool{}
		for _, n := range r.ByMonthDay {
			if d := resolveMonthDay(year, month, n); d != 0 {
				mdSet[d] = true
			}
		}
		for _, bd := range r.ByDay {
			for _, d := range r.resolveByDayInMonth(year, month, bd) {
				if mdSet[d] {
					days = append(days, d)
				}
			}
		}
	case len(r.ByMonthDay) > 0:
		for _, n := range r.ByMonthDay {
			if d := resolveMonthDay(year, month, n); d != 0 {
				days = append(days, d)
			}
		}
	case len(r.ByDay) > 0:
		for _, bd := range r.ByDay {
			days = append(days, r.resolveByDayInMonth(year, month, bd)...)
		}
	default:
		days = append(days, r.DTStart.Day())
	}

	return daysToTimes(year, month, days)
}

func (r *RRule) resolveByDayInMonth(year int, month time.Month, bd ByDay) []int {
	if bd.Ordinal == 0 {
		return allWeekdaysOfMonth(year, month, bd.Weekday)
	}
	if d := nthWeekdayOfMonth(year, month, bd.Weekday, bd.Ordinal); d != 0 {
		return []int{d}
	}
	return nil
}

func (r *RRule) candidateDaysYearly(year int) []time.Time {
	if len(r.ByYearDay) > 0 {
		var out []time.Time
		for _, n := range r.ByYearDay {
			if yd := resolveYearDay(year, n); yd != 0 {
				out = append(out, time.Date(year, time.January, yd, 0, 0, 0, 0, time.UTC))
			}
		}
		return sortedUnique(out)
	}

	months := r.ByMonth
	if len(months) == 0 {
		months = []int{int(r.DTStart.Month())}
	}

	var out []time.Time
	for _, m := range months {
		out = append(out, r.candidateDaysMonthly(year, time.Month(m))...)
	}
	return sortedUnique(out)
}

func (r *RRule) candidateDaysWeekly(weekStart time.Time) []time.Time {
	var out []time.Time
	if len(r.ByDay) == 0 {
		for i := 0; i < 7; i++ {
			out = append(out, weekStart.AddDate(0, 0, i))
		}
	} else {
		wdSet := weekdaySet(r.ByDay)
		for i := 0; i < 7; i++ {
			d := weekStart.AddDate(0, 0, i)
			if wdSet[d.Weekday()] {
				out = append(out, d)
			}
		}
	}
	if len(r.ByMonth) > 0 {
		mSet := map[int]bool{}
		for _, m := range r.ByMonth {
			mSet[m] = true
		}
		var filtered []time.Time
		for _, d := range out {
			if mSet[int(d.Month())] {
				filtered = append(filtered, d)
			}
		}
		out = filtered
	}
	return out
}

func daysToTimes(year int, month time.Month, days []int) []time.Time {
	sortInts(days)
	out := make([]time.Time, 0, len(days))
	seen := map[int]bool{}
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
	}
	return out
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
