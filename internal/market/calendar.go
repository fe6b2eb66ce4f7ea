package market

import (
	"fmt"
	"time"
)

// Schedule is the cash-market session in exchange local time
type Schedule struct {
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// DefaultSchedule returns the NSE regular session, 09:15 to 15:30 IST
func DefaultSchedule() Schedule {
	return Schedule{
		OpenHour:  9,
		OpenMin:   15,
		CloseHour: 15,
		CloseMin:  30,
	}
}

// Status describes the market at an instant
type Status struct {
	IsOpen    bool
	Now       time.Time
	OpenTime  time.Time
	CloseTime time.Time
	Reason    string // "open", "weekend", "pre-market", "after-hours"
}

// Location returns Asia/Kolkata, or a fixed +05:30 zone when tzdata is missing
func Location() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// IsWeekday reports whether t falls Monday to Friday
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Midnight truncates t to the start of its calendar day in exchange time
func Midnight(t time.Time) time.Time {
	t = t.In(Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StatusAt computes the market status at now
func StatusAt(schedule Schedule, now time.Time) Status {
	now = now.In(Location())
	today := Midnight(now)

	st := Status{
		Now:       now,
		OpenTime:  today.Add(time.Duration(schedule.OpenHour)*time.Hour + time.Duration(schedule.OpenMin)*time.Minute),
		CloseTime: today.Add(time.Duration(schedule.CloseHour)*time.Hour + time.Duration(schedule.CloseMin)*time.Minute),
	}

	switch {
	case !IsWeekday(now):
		st.Reason = "weekend"
	case now.Before(st.OpenTime):
		st.Reason = "pre-market"
	case !now.Before(st.CloseTime):
		st.Reason = "after-hours"
	default:
		st.IsOpen = true
		st.Reason = "open"
	}
	return st
}

// Walker yields weekdays going backward from the day before a reference instant.
// It stops once limit calendar days have been examined.
type Walker struct {
	cursor  time.Time
	visited int
	limit   int
}

// NewWalker starts a walk at the day before now
func NewWalker(now time.Time, limit int) *Walker {
	return &Walker{cursor: Midnight(now), limit: limit}
}

// Next returns the next earlier weekday, or false when the walk-back limit is exhausted
func (w *Walker) Next() (time.Time, bool) {
	for w.visited < w.limit {
		w.cursor = w.cursor.AddDate(0, 0, -1)
		w.visited++
		if IsWeekday(w.cursor) {
			return w.cursor, true
		}
	}
	return time.Time{}, false
}

// Take returns up to n further weekdays
func (w *Walker) Take(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for len(out) < n {
		d, ok := w.Next()
		if !ok {
			break
		}
		out = append(out, d)
	}
	return out
}

// FormatDuration renders d as "3h 5m" or "12m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
