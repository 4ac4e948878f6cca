package utils

import (
	"fmt"
	"time"

	"github.com/yukikurage/apollo-api/internal/constants"
)

// Day strings are civil dates (YYYY-MM-DD) already expressed in the caller's time zone,
// so all arithmetic below happens on UTC midnights and is immune to DST shifts.

// ParseDay parses a YYYY-MM-DD day string.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(constants.DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// Today returns the current civil date in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(constants.DayLayout)
}

// LoadLocation resolves a time zone name, falling back to def when name is empty.
func LoadLocation(name, def string) (*time.Location, error) {
	if name == "" {
		name = def
	}
	return time.LoadLocation(name)
}

// DaysBetween returns the number of calendar days from one day to another.
func DaysBetween(from, to string) (int, error) {
	f, err := ParseDay(from)
	if err != nil {
		return 0, err
	}
	t, err := ParseDay(to)
	if err != nil {
		return 0, err
	}
	return daysBetween(f, t), nil
}

// WeeksBetween returns the number of Sunday-started calendar weeks from one day to another.
func WeeksBetween(from, to string) (int, error) {
	f, err := ParseDay(from)
	if err != nil {
		return 0, err
	}
	t, err := ParseDay(to)
	if err != nil {
		return 0, err
	}
	return daysBetween(startOfWeek(f), startOfWeek(t)) / 7, nil
}

// DaysInYear counts the logged days that fall in year.
func DaysInYear(days []string, year int) int {
	count := 0
	for _, d := range days {
		t, err := ParseDay(d)
		if err != nil {
			continue
		}
		if t.Year() == year {
			count++
		}
	}
	return count
}

// CurrentWeekDays returns the two-digit day-of-month labels of the week containing today, Sunday first.
func CurrentWeekDays(today string) ([]string, error) {
	t, err := ParseDay(today)
	if err != nil {
		return nil, err
	}
	start := startOfWeek(t)
	labels := make([]string, 7)
	for i := range labels {
		labels[i] = start.AddDate(0, 0, i).Format("02")
	}
	return labels, nil
}

// LoggedDaysThisWeek returns the day-of-month labels of logged days in the week containing today.
func LoggedDaysThisWeek(days []string, today string) ([]string, error) {
	t, err := ParseDay(today)
	if err != nil {
		return nil, err
	}
	start := startOfWeek(t)
	labels := []string{}
	for _, d := range days {
		day, err := ParseDay(d)
		if err != nil {
			continue
		}
		if startOfWeek(day).Equal(start) {
			labels = append(labels, day.Format("02"))
		}
	}
	return labels, nil
}

// Streak is the login-streak state of a user.
type Streak struct {
	Daily        int
	Weekly       int
	DaysThisYear int
	LoggedDays   []string
}

// CheckIn applies a check-in on today to s.
// A check-in on the day after the last logged day extends the daily streak; a later one
// restarts it at 1. Checking in again on the same day changes nothing. The weekly streak
// follows the same rule over calendar weeks.
func CheckIn(s Streak, today string) (Streak, error) {
	todayTime, err := ParseDay(today)
	if err != nil {
		return s, err
	}

	next := s
	next.LoggedDays = append([]string(nil), s.LoggedDays...)

	dayDelta, weekDelta := 2, 2
	if n := len(s.LoggedDays); n > 0 {
		last := s.LoggedDays[n-1]
		if dayDelta, err = DaysBetween(last, today); err != nil {
			return s, err
		}
		if weekDelta, err = WeeksBetween(last, today); err != nil {
			return s, err
		}
	}

	switch {
	case dayDelta == 1:
		next.Daily++
		next.LoggedDays = append(next.LoggedDays, today)
	case dayDelta > 1:
		next.Daily = 1
		next.LoggedDays = append(next.LoggedDays, today)
	}

	switch {
	case weekDelta == 1:
		next.Weekly++
	case weekDelta > 1:
		next.Weekly = 1
	}

	next.DaysThisYear = DaysInYear(next.LoggedDays, todayTime.Year())
	return next, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func startOfWeek(t time.Time) time.Time {
	return t.AddDate(0, 0, -int(t.Weekday()))
}
