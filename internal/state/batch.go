package state

import (
	"fmt"
	"time"
)

// WeekBatch formats a date as the year-week batch key used as the
// table's partition key, matching strftime's %Y%U convention: the
// week number counts Sundays, with days before the year's first
// Sunday falling in week 00.
func WeekBatch(t time.Time) string {
	yday := t.YearDay() - 1
	wday := int(t.Weekday())
	week := (yday + 7 - wday) / 7
	return fmt.Sprintf("%d%02d", t.Year(), week)
}

// PreviousWeekBatch returns the batch key for the week before t.
func PreviousWeekBatch(t time.Time) string {
	return WeekBatch(t.AddDate(0, 0, -7))
}
