package rrule

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/postalcore/postal/ical"
)

func mustLine(t *testing.T, raw string) *ical.Line {
	t.Helper()
	root, err := ical.Parse(strings.NewReader("BEGIN:VCALENDAR\n" + raw + "\nEND:VCALENDAR\n"))
	if err != nil {
		t.Fatalf("ical.Parse: %v", err)
	}
	return root.Lines[0]
}

func dt(y int, m time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, m, d, h, mi, s, 0, time.UTC)
}

// Weekly with WKST=MO vs WKST=SU changes which days fall in "this week"
// relative to a mid-week DTSTART, per RFC 5545 §3.3.10 example 6/7.
func TestWeeklyWeekStartMondayVsSunday(t *testing.T) {
	dtstart := dt(2026, 1, 7, 9, 0, 0) // a Wednesday

	lineMO := mustLine(t, "RRULE:FREQ=WEEKLY;COUNT=4;WKST=MO;BYDAY=TU,SU")
	rMO, err := Parse(lineMO, dtstart)
	if err != nil {
		t.Fatalf("Parse (MO): %v", err)
	}
	gotMO := rMO.Iterate().Take(4)

	lineSU := mustLine(t, "RRULE:FREQ=WEEKLY;COUNT=4;WKST=SU;BYDAY=TU,SU")
	rSU, err := Parse(lineSU, dtstart)
	if err != nil {
		t.Fatalf("Parse (SU): %v", err)
	}
	gotSU := rSU.Iterate().Take(4)

	wantMO := []time.Time{
		dt(2026, 1, 7, 9, 0, 0),  // DTSTART, exceptional start
		dt(2026, 1, 11, 9, 0, 0), // Sun (same MO-week as DTSTART)
		dt(2026, 1, 13, 9, 0, 0), // Tue (next week)
		dt(2026, 1, 18, 9, 0, 0), // Sun
	}
	if diff := cmp.Diff(wantMO, gotMO); diff != "" {
		t.Errorf("WKST=MO mismatch (-want +got):\n%s", diff)
	}

	wantSU := []time.Time{
		dt(2026, 1, 7, 9, 0, 0),  // DTSTART, exceptional start
		dt(2026, 1, 11, 9, 0, 0), // Sun (starts the next SU-week; DTSTART's own SU-week, Jan 4-10, has its Sun and Tue before DTSTART)
		dt(2026, 1, 13, 9, 0, 0), // Tue (same SU-week as the Sun before it)
		dt(2026, 1, 18, 9, 0, 0), // Sun (next week)
	}
	if diff := cmp.Diff(wantSU, gotSU); diff != "" {
		t.Errorf("WKST=SU mismatch (-want +got):\n%s", diff)
	}
}

// Monthly BYDAY: the second Tuesday of every month.
func TestMonthlyByDay(t *testing.T) {
	dtstart := dt(2026, 1, 13, 14, 30, 0) // 2nd Tuesday of Jan 2026
	line := mustLine(t, "RRULE:FREQ=MONTHLY;COUNT=3;BYDAY=2TU")
	r, err := Parse(line, dtstart)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Iterate().Take(3)
	want := []time.Time{
		dt(2026, 1, 13, 14, 30, 0),
		dt(2026, 2, 10, 14, 30, 0),
		dt(2026, 3, 10, 14, 30, 0),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// Yearly BYMONTH+BYMONTHDAY: every March 15th.
func TestYearlyByMonthAndMonthDay(t *testing.T) {
	dtstart := dt(2026, 3, 15, 8, 0, 0)
	line := mustLine(t, "RRULE:FREQ=YEARLY;COUNT=3;BYMONTH=3;BYMONTHDAY=15")
	r, err := Parse(line, dtstart)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Iterate().Take(3)
	want := []time.Time{
		dt(2026, 3, 15, 8, 0, 0),
		dt(2027, 3, 15, 8, 0, 0),
		dt(2028, 3, 15, 8, 0, 0),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRealFrequencyDerivation(t *testing.T) {
	line := mustLine(t, "RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=SU")
	r, err := Parse(line, dt(2026, 1, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.RealFreq != Daily {
		t.Errorf("RealFreq = %v, want DAILY (lowered by BYDAY)", r.RealFreq)
	}
}

func TestUntilStopsIteration(t *testing.T) {
	dtstart := dt(2026, 1, 1, 9, 0, 0)
	line := mustLine(t, "RRULE:FREQ=DAILY;UNTIL=20260104T090000")
	r, err := Parse(line, dtstart)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Iterate().Take(100)
	want := []time.Time{
		dt(2026, 1, 1, 9, 0, 0),
		dt(2026, 1, 2, 9, 0, 0),
		dt(2026, 1, 3, 9, 0, 0),
		dt(2026, 1, 4, 9, 0, 0),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBySetPosLastWeekdayOfMonth(t *testing.T) {
	dtstart := dt(2026, 1, 30, 10, 0, 0) // last Friday of Jan 2026
	line := mustLine(t, "RRULE:FREQ=MONTHLY;COUNT=3;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1")
	r, err := Parse(line, dtstart)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Iterate().Take(3)
	want := []time.Time{
		dt(2026, 1, 30, 10, 0, 0), // DTSTART, exceptional start
		dt(2026, 2, 27, 10, 0, 0), // last weekday of Feb 2026
		dt(2026, 3, 31, 10, 0, 0), // last weekday of Mar 2026
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCountZeroMeansUnbounded(t *testing.T) {
	line := mustLine(t, "RRULE:FREQ=DAILY")
	r, err := Parse(line, dt(2026, 1, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Iterate().Take(5)
	if len(got) != 5 {
		t.Fatalf("got %d instances, want 5", len(got))
	}
}

func TestParseRejectsCountAndUntilTogether(t *testing.T) {
	line := mustLine(t, "RRULE:FREQ=DAILY;COUNT=3;UNTIL=20260101T000000")
	if _, err := Parse(line, dt(2025, 1, 1, 0, 0, 0)); err == nil {
		t.Fatal("expected an error for COUNT+UNTIL")
	}
}
