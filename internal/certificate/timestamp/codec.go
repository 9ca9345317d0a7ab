// Package timestamp converts between operator calendar input and the ledger's
// integer epoch-seconds encoding.
package timestamp

import (
	"fmt"
	"strings"
	"time"

	dErrors "certledger/pkg/domain-errors"
)

// DateLayout is the HTML date input format and the listing format.
const DateLayout = "2006-01-02"

var layouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Codec parses and renders dates in a fixed location. The zero value is not
// usable; construct with New.
type Codec struct {
	loc *time.Location
}

// New returns a codec bound to loc. A nil loc means time.Local, matching the
// platform's own date parser.
func New(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.Local
	}
	return &Codec{loc: loc}
}

// Location returns the location dates are interpreted in.
func (c *Codec) Location() *time.Location {
	return c.loc
}

// ToLedger converts a calendar date to whole seconds since epoch. The wall-clock
// date and time are read in the codec's location, whatever offset the input carries.
func (c *Codec) ToLedger(date string) (int64, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0, dErrors.New(dErrors.CodeInvalidDate, "issue date is required")
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, date, c.loc)
		if err != nil {
			continue
		}
		// An explicit offset must not move the operator's calendar day.
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.loc)
		secs := t.Unix()
		// The ledger stores an unsigned integer.
		if secs < 0 {
			return 0, dErrors.New(dErrors.CodeInvalidDate, fmt.Sprintf("issue date %q is before 1970-01-01", date))
		}
		return secs, nil
	}
	return 0, dErrors.New(dErrors.CodeInvalidDate, fmt.Sprintf("invalid issue date format %q", date))
}

// FromLedger converts ledger seconds back to a time in the codec's location.
func (c *Codec) FromLedger(secs int64) time.Time {
	return time.Unix(secs, 0).In(c.loc)
}

// FormatDate renders ledger seconds as a calendar date.
func (c *Codec) FormatDate(secs int64) string {
	return c.FromLedger(secs).Format(DateLayout)
}

// SameDay reports whether a and b fall on the same calendar day in the codec's location.
func (c *Codec) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(c.loc).Date()
	by, bm, bd := b.In(c.loc).Date()
	return ay == by && am == bm && ad == bd
}
