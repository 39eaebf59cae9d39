// Package payperiod maps timestamps onto Saturday–Friday pay periods.
//
// A period is keyed by the ISO year and ISO week of its closing Friday,
// encoded as year*100 + week. The key is stable across year boundaries
// because Friday always shares its ISO week with the preceding Monday to
// Thursday.
package payperiod

import (
	"errors"
	"fmt"
	"time"
)

const labelLayout = "01/02/2006"

var ErrInvalidKey = errors.New("invalid_pay_period_key")

// Period is one Saturday–Friday pay window. Start and End are midnight
// dates in the location of the bucketed timestamp.
type Period struct {
	Key   int       `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Bucket returns the pay period containing t, using t's location for the
// calendar date.
func Bucket(t time.Time) Period {
	day := dateOf(t)
	daysToAdd := (int(time.Friday) - int(day.Weekday()) + 7) % 7
	end := day.AddDate(0, 0, daysToAdd)
	return fromEnd(end)
}

// Unbucket rebuilds the period for a key produced by Bucket.
func Unbucket(key int) (Period, error) {
	year, week := key/100, key%100
	if year < 1 || week < 1 || week > 53 {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}

	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Thursday) - isoWeekday(jan4))
	thursdayWeek1 := jan4.AddDate(0, 0, offset)
	end := thursdayWeek1.AddDate(0, 0, (week-1)*7+1)

	period := fromEnd(end)
	if period.Key != key {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}
	return period, nil
}

// Contains reports whether t falls on a calendar day inside the period,
// evaluated in the period's location.
func (p Period) Contains(t time.Time) bool {
	day := dateOf(t.In(p.Start.Location()))
	return !day.Before(p.Start) && !day.After(p.End)
}

// DayRange returns the half-open [start, end) bounds of the calendar day
// containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := dateOf(t)
	return start, start.AddDate(0, 0, 1)
}

func fromEnd(end time.Time) Period {
	start := end.AddDate(0, 0, -6)
	year, week := end.ISOWeek()
	return Period{
		Key:   year*100 + week,
		Start: start,
		End:   end,
		Label: start.Format(labelLayout) + " - " + end.Format(labelLayout),
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// isoWeekday numbers Monday as 1 and Sunday as 7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
