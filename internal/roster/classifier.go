package roster

import (
	"strings"
	"time"
)

// Export columns that carry membership standing. The three rules exist
// because three export schema generations encoded standing three
// different ways; all are still seen in the wild.
const (
	ColumnMembStatus = "Memb_status"
	ColumnExpiry     = "Xdate"
	ColumnDuesStatus = "monthly_status"
)

// DefaultGraceDays is how long past the expiry date a member is still
// treated as in good standing, absorbing ordinary billing delays.
const DefaultGraceDays = 60

var expiredStatuses = map[string]struct{}{
	"expired": {},
	"lapsed":  {},
}

// duesMemberCode is the dues-status letter meaning the member is paid up.
const duesMemberCode = "M"

var expiryLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"1/2/06",
}

// Classifier derives membership standing from a raw export row.
type Classifier struct {
	GraceDays int
}

func NewClassifier(graceDays int) *Classifier {
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}
	return &Classifier{GraceDays: graceDays}
}

// IsMember evaluates standing rules in order, first match wins:
//
//  1. an explicit expired/lapsed status code means not a member, even
//     when the expiry date is in the future
//  2. an expiry date more than GraceDays in the past means not a member
//  3. a dues-status letter other than the member code means not a member
//  4. otherwise the person is a member
func (c *Classifier) IsMember(rec RawRecord, now time.Time) bool {
	if status := rec.Get(ColumnMembStatus, ""); status != "" {
		if _, ok := expiredStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
			return false
		}
	}

	if raw := rec.Get(ColumnExpiry, ""); raw != "" {
		if expiry, ok := parseExpiry(raw); ok {
			grace := time.Duration(c.GraceDays) * 24 * time.Hour
			if now.Sub(expiry) > grace {
				return false
			}
		}
	}

	if dues := rec.Get(ColumnDuesStatus, ""); dues != "" {
		if !strings.EqualFold(strings.TrimSpace(dues), duesMemberCode) {
			return false
		}
	}

	return true
}

func parseExpiry(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
