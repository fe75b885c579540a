package extract

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts covers the formats seen across the bank, point-of-sale and
// legacy extracts. Order matters: unambiguous ISO first, then the common
// North American forms.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"20060102",
}

// ParseDate accepts the textual date formats the extracts use and returns
// the calendar date at midnight UTC. Time-of-day components are dropped:
// reconciliation compares dates, not clocks.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
