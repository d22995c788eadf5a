package ical

import (
	"bytes"
	"strings"
	"testing"
)

const sampleEvent = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:abc-123
DTSTART;TZID=America/New_York:20260101T090000
SUMMARY:Weekly sync\, team
RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR
EXDATE:20260108T090000,20260115T090000
END:VEVENT
END:VCALENDAR
`

func TestParseBasicStructure(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleEvent))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Name != "VCALENDAR" {
		t.Fatalf("root name = %q, want VCALENDAR", root.Name)
	}
	if root.Line("VERSION").FirstValue() != "2.0" {
		t.Errorf("VERSION = %q", root.Line("VERSION").FirstValue())
	}

	ev := root.Child("VEVENT")
	if ev == nil {
		t.Fatal("no VEVENT child")
	}
	if got := ev.Line("UID").FirstValue(); got != "abc-123" {
		t.Errorf("UID = %q", got)
	}

	dtstart := ev.Line("DTSTART")
	if tzid := dtstart.Param("TZID"); tzid == nil || tzid.FirstValue() != "America/New_York" {
		t.Errorf("DTSTART TZID param missing or wrong: %+v", tzid)
	}
	if got := dtstart.FirstValue(); got != "20260101T090000" {
		t.Errorf("DTSTART value = %q", got)
	}

	if got := ev.Line("SUMMARY").FirstValue(); got != "Weekly sync, team" {
		t.Errorf("SUMMARY unescape = %q", got)
	}

	rrule := ev.Line("RRULE")
	if len(rrule.Values) != 2 {
		t.Fatalf("RRULE values = %d, want 2", len(rrule.Values))
	}
	if rrule.Values[0].Name != "FREQ" || rrule.Values[0].FirstSubValue() != "WEEKLY" {
		t.Errorf("RRULE FREQ = %+v", rrule.Values[0])
	}
	byday := rrule.Values[1]
	if byday.Name != "BYDAY" || len(byday.SubValues) != 3 {
		t.Fatalf("RRULE BYDAY = %+v", byday)
	}
	if byday.SubValues[0].Text != "MO" || byday.SubValues[2].Text != "FR" {
		t.Errorf("BYDAY sub-values = %+v", byday.SubValues)
	}

	exdate := ev.Line("EXDATE")
	if len(exdate.Values) != 1 || len(exdate.Values[0].SubValues) != 2 {
		t.Fatalf("EXDATE = %+v", exdate.Values)
	}
}

func TestParseNilSubValue(t *testing.T) {
	root, err := Parse(strings.NewReader("BEGIN:VCALENDAR\nX-FOO:a,,b\nEND:VCALENDAR\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	subs := root.Line("X-FOO").Values[0].SubValues
	if len(subs) != 3 {
		t.Fatalf("got %d sub-values, want 3", len(subs))
	}
	if subs[0].IsNil || subs[0].Text != "a" {
		t.Errorf("subs[0] = %+v", subs[0])
	}
	if !subs[1].IsNil {
		t.Errorf("subs[1] should be NIL, got %+v", subs[1])
	}
	if subs[2].IsNil || subs[2].Text != "b" {
		t.Errorf("subs[2] = %+v", subs[2])
	}
}

func TestParseLineUnfolding(t *testing.T) {
	// The single space after the fold is the fold marker itself, per RFC
	// 5545 §3.1 — unfolding removes CRLF plus exactly that one character.
	raw := "BEGIN:VCALENDAR\r\nSUMMARY:this is a long\r\n folded value\r\nEND:VCALENDAR\r\n"
	root, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := root.Line("SUMMARY").FirstValue(); got != "this is a longfolded value" {
		t.Errorf("unfolded SUMMARY = %q", got)
	}
}

func TestParseUnterminatedComponent(t *testing.T) {
	_, err := Parse(strings.NewReader("BEGIN:VCALENDAR\nBEGIN:VEVENT\nEND:VEVENT\n"))
	if err == nil {
		t.Fatal("expected an error for unterminated VCALENDAR")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleEvent))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var buf bytes.Buffer
	if err := Serialize(root, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	reparsed, err := Parse(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("re-parsing serialized output: %v\n%s", err, buf.String())
	}
	ev := reparsed.Child("VEVENT")
	if ev == nil {
		t.Fatal("no VEVENT after round-trip")
	}
	if got := ev.Line("SUMMARY").FirstValue(); got != "Weekly sync, team" {
		t.Errorf("round-tripped SUMMARY = %q", got)
	}
}

func TestSerializeFoldsLongLines(t *testing.T) {
	root := &Component{Name: "VCALENDAR"}
	root.Lines = append(root.Lines, &Line{
		Name:   "X-LONG",
		Values: []*Value{{SubValues: []SubValue{{Text: strings.Repeat("a", 200)}}}},
	})

	var buf bytes.Buffer
	if err := Serialize(root, &buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n") {
		if len(line) > maxLine+1 { // +1 allows the leading continuation space
			t.Errorf("line too long (%d): %q", len(line), line)
		}
	}
}
