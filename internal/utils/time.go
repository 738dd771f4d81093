package utils

import (
	"time"
	_ "time/tzdata"
)

// InZone converts t to the named IANA zone, falling back to UTC for unknown names.
func InZone(t time.Time, zone string) time.Time {
	loc, err := time.LoadLocation(zone)
	if err != nil || zone == "" {
		return t.UTC()
	}
	return t.In(loc)
}

// FormatEventTime renders an event start the way it is shown to customers.
func FormatEventTime(t time.Time, zone string) string {
	return InZone(t, zone).Format("Mon, 02 Jan 2006 15:04 MST")
}
