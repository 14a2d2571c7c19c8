package transformations

import "time"

// DateKey formats a date as its YYYYMMDD integer key. This format is an
// external contract: fact rows reference dim_date by exactly this value.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// truncateDay strips the time-of-day component, keeping the calendar date
// in UTC.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// calendarRange builds one DateRow per day from min(dates) to max(dates)
// inclusive. The range is dense: days without any observed activity still
// get a row, so facts on any day in the window resolve a date key.
func calendarRange(dates []time.Time) []DateRow {
	rows := []DateRow{}
	if len(dates) == 0 {
		return rows
	}

	min, max := truncateDay(dates[0]), truncateDay(dates[0])
	for _, d := range dates[1:] {
		day := truncateDay(d)
		if day.Before(min) {
			min = day
		}
		if day.After(max) {
			max = day
		}
	}

	for day := min; !day.After(max); day = day.AddDate(0, 0, 1) {
		rows = append(rows, DateRow{
			DateKey:  DateKey(day),
			FullDate: day,
			Year:     day.Year(),
			Month:    int(day.Month()),
			Day:      day.Day(),
		})
	}
	return rows
}
