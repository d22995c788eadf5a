// Package tz resolves iCalendar timezone references to UTC offsets.
// Named zones (TZID values that match the system zoneinfo database) are
// resolved via time.LoadLocation, consistent with RFC 8536. TZID values
// that don't match any IANA zone fall back to walking an embedded
// VTIMEZONE component's STANDARD/DAYLIGHT children, grounded on
// ical_get_datetime_offset in original_source/lib/email/ical.cpp.
package tz

import (
	"fmt"
	"time"

	"github.com/postalcore/postal/ical"
)

// Location resolves a point in time to a UTC offset, the common interface
// both IANA and embedded-VTIMEZONE resolution implement.
type Location interface {
	// Offset returns the UTC offset in effect at the given naive local
	// time (interpreted in this Location), and the abbreviation in
	// effect, mirroring ical_get_datetime_offset's (offset, standard
	// abbrev / daylight) semantics.
	Offset(local time.Time) (offset time.Duration, abbrev string)
}

// ianaLocation resolves through the system zoneinfo database.
type ianaLocation struct {
	loc *time.Location
}

func (l ianaLocation) Offset(local time.Time) (time.Duration, string) {
	t := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, l.loc)
	name, off := t.Zone()
	return time.Duration(off) * time.Second, name
}

// Resolve returns a Location for tzid. If tzid names a recognized IANA
// zone, that takes priority (RFC 8536's authoritative source). Otherwise,
// if vtz is non-nil, its STANDARD/DAYLIGHT children are walked instead.
// A nil Location with a nil error means "treat as UTC" (e.g. a bare
// "Z"-suffixed or floating time with no VTIMEZONE available).
func Resolve(tzid string, vtz *ical.Component) (Location, error) {
	if tzid == "" {
		return nil, nil
	}
	if loc, err := time.LoadLocation(tzid); err == nil {
		return ianaLocation{loc: loc}, nil
	}
	if vtz == nil {
		return nil, fmt.Errorf("tz: unknown TZID %q and no VTIMEZONE supplied", tzid)
	}
	return newVTimezoneLocation(vtz)
}

// UTCToLocal converts a UTC instant to the naive local wall-clock time in
// loc, the ical_utc_to_datetime equivalent. A nil loc is treated as UTC.
func UTCToLocal(utc time.Time, loc Location) time.Time {
	if loc == nil {
		return utc.UTC()
	}
	// Offset lookup needs a local guess; one iteration suffices for all
	// real-world zones since DST shifts are at most a few hours and we
	// start from the UTC instant itself.
	guess := utc
	off, _ := loc.Offset(guess.Add(0))
	local := utc.Add(off)
	off2, _ := loc.Offset(local)
	if off2 != off {
		local = utc.Add(off2)
	}
	return local
}

// LocalToUTC converts a naive local wall-clock time in loc to UTC, the
// ical_itime_to_utc equivalent. A nil loc is treated as UTC.
func LocalToUTC(local time.Time, loc Location) time.Time {
	if loc == nil {
		return time.Date(local.Year(), local.Month(), local.Day(),
			local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
	}
	off, _ := loc.Offset(local)
	return time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, time.UTC).Add(-off)
}
