package tz

import (
	"strings"
	"testing"
	"time"

	"github.com/postalcore/postal/ical"
)

func TestResolveIANA(t *testing.T) {
	loc, err := Resolve("America/New_York", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	winter := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	off, abbr := loc.Offset(winter)
	if off != -5*time.Hour {
		t.Errorf("winter offset = %v, want -5h", off)
	}
	if abbr != "EST" {
		t.Errorf("winter abbrev = %q, want EST", abbr)
	}

	summer := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	off, abbr = loc.Offset(summer)
	if off != -4*time.Hour {
		t.Errorf("summer offset = %v, want -4h", off)
	}
	if abbr != "EDT" {
		t.Errorf("summer abbrev = %q, want EDT", abbr)
	}
}

const vtzNewYorkLike = `BEGIN:VCALENDAR
BEGIN:VTIMEZONE
TZID:Custom/NewYorkLike
BEGIN:STANDARD
DTSTART:19671029T020000
TZOFFSETFROM:-0400
TZOFFSETTO:-0500
TZNAME:EST
RRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU
END:STANDARD
BEGIN:DAYLIGHT
DTSTART:19870405T020000
TZOFFSETFROM:-0500
TZOFFSETTO:-0400
TZNAME:EDT
RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU
END:DAYLIGHT
END:VTIMEZONE
END:VCALENDAR
`

func mustParseVTZ(t *testing.T) *ical.Component {
	t.Helper()
	root, err := ical.Parse(strings.NewReader(vtzNewYorkLike))
	if err != nil {
		t.Fatalf("ical.Parse: %v", err)
	}
	return root.Child("VTIMEZONE")
}

func TestVTimezoneWalkWinter(t *testing.T) {
	vtz := mustParseVTZ(t)
	loc, err := Resolve("Custom/NewYorkLike", vtz)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	off, abbr := loc.Offset(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	if off != -5*time.Hour || abbr != "EST" {
		t.Errorf("winter: off=%v abbr=%q, want -5h EST", off, abbr)
	}
}

func TestVTimezoneWalkSummer(t *testing.T) {
	vtz := mustParseVTZ(t)
	loc, err := Resolve("Custom/NewYorkLike", vtz)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	off, abbr := loc.Offset(time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC))
	if off != -4*time.Hour || abbr != "EDT" {
		t.Errorf("summer: off=%v abbr=%q, want -4h EDT", off, abbr)
	}
}

func TestVTimezoneTransitionBoundary(t *testing.T) {
	vtz := mustParseVTZ(t)
	loc, err := Resolve("Custom/NewYorkLike", vtz)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Second Sunday of March 2026 is the 8th; before 2am local it's still EST.
	before := time.Date(2026, 3, 8, 1, 59, 0, 0, time.UTC)
	off, abbr := loc.Offset(before)
	if off != -5*time.Hour || abbr != "EST" {
		t.Errorf("just before spring-forward: off=%v abbr=%q", off, abbr)
	}
	after := time.Date(2026, 3, 8, 2, 0, 1, 0, time.UTC)
	off, abbr = loc.Offset(after)
	if off != -4*time.Hour || abbr != "EDT" {
		t.Errorf("just after spring-forward: off=%v abbr=%q", off, abbr)
	}
}

func TestParsePOSIXFixedOffset(t *testing.T) {
	loc, err := ParsePOSIX("UTC0")
	if err != nil {
		t.Fatalf("ParsePOSIX: %v", err)
	}
	off, _ := loc.Offset(time.Now())
	if off != 0 {
		t.Errorf("UTC0 offset = %v, want 0", off)
	}
}

func TestParsePOSIXWithDST(t *testing.T) {
	loc, err := ParsePOSIX("EST5EDT,M3.2.0,M11.1.0")
	if err != nil {
		t.Fatalf("ParsePOSIX: %v", err)
	}
	off, abbr := loc.Offset(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	if off != -4*time.Hour || abbr != "EDT" {
		t.Errorf("summer: off=%v abbr=%q", off, abbr)
	}
	off, abbr = loc.Offset(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if off != -5*time.Hour || abbr != "EST" {
		t.Errorf("winter: off=%v abbr=%q", off, abbr)
	}
}

func TestLocalToUTCAndBackRoundTrip(t *testing.T) {
	vtz := mustParseVTZ(t)
	loc, err := Resolve("Custom/NewYorkLike", vtz)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	local := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	utc := LocalToUTC(local, loc)
	if utc.Hour() != 13 { // EDT is UTC-4
		t.Errorf("LocalToUTC hour = %d, want 13", utc.Hour())
	}
	back := UTCToLocal(utc, loc)
	if !back.Equal(local) {
		t.Errorf("round trip = %v, want %v", back, local)
	}
}
