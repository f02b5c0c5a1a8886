package service

import (
	"errors"
	"time"
)

// Upload failures are classified by the stage that broke. None of them
// mutates a recording.
var (
	ErrStaging   = errors.New("staging failed")
	ErrPackaging = errors.New("packaging failed")
	ErrTransport = errors.New("transport failed")
)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NonStandardCutoff is yesterday 00:00:00 relative to now. Recordings that
// old with no case have had a full day for the registry to catch up.
func NonStandardCutoff(now time.Time) time.Time {
	return startOfDay(now).AddDate(0, 0, -1)
}
