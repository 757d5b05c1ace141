package payroll

import "time"

// HolidaySet holds calendar dates, keyed YYYY-MM-DD.
type HolidaySet map[string]struct{}

func (h HolidaySet) Contains(day time.Time) bool {
	_, ok := h[day.Format(dateLayout)]
	return ok
}

func (h HolidaySet) add(day time.Time) {
	h[day.Format(dateLayout)] = struct{}{}
}

// FederalHolidays returns the US federal holidays for year. Fixed-date
// holidays are listed on both the calendar date and the observed weekday.
func FederalHolidays(year int) HolidaySet {
	set := HolidaySet{}
	fixed := []time.Time{
		date(year, time.January, 1),
		date(year, time.June, 19),
		date(year, time.July, 4),
		date(year, time.November, 11),
		date(year, time.December, 25),
	}
	for _, day := range fixed {
		set.add(day)
		set.add(observed(day))
	}
	// New Year's Day of the following year can be observed on Dec 31.
	if next := observed(date(year+1, time.January, 1)); next.Year() == year {
		set.add(next)
	}

	set.add(nthWeekday(year, time.January, time.Monday, 3))   // Martin Luther King Jr. Day
	set.add(nthWeekday(year, time.February, time.Monday, 3))  // Washington's Birthday
	set.add(lastWeekday(year, time.May, time.Monday))         // Memorial Day
	set.add(nthWeekday(year, time.September, time.Monday, 1)) // Labor Day
	set.add(nthWeekday(year, time.October, time.Monday, 2))   // Columbus Day
	set.add(nthWeekday(year, time.November, time.Thursday, 4))
	return set
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func observed(day time.Time) time.Time {
	switch day.Weekday() {
	case time.Saturday:
		return day.AddDate(0, 0, -1)
	case time.Sunday:
		return day.AddDate(0, 0, 1)
	default:
		return day
	}
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := date(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
