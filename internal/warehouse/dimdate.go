package warehouse

import (
	"context"
	"fmt"
	"time"
)

// BuildDimDate rebuilds the calendar dimension covering [start, end]
// inclusive: one row per day, contiguous, no gaps. The week number
// follows strftime's %W convention (weeks start Monday, week 00 holds
// the days before the first Monday of the year).
func (w *Warehouse) BuildDimDate(ctx context.Context, start, end time.Time) (int, error) {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)
	if end.Before(start) {
		return 0, fmt.Errorf("dim_date: end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	cols := []string{"date", "year", "month", "week", "day", "dow", "is_weekend"}
	var rows [][]any
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dow := mondayBasedWeekday(d)
		rows = append(rows, []any{
			d.Format("2006-01-02"),
			d.Year(),
			int(d.Month()),
			weekOfYear(d),
			d.Day(),
			dow,
			boolToInt(dow >= 5),
		})
	}
	return w.ReplaceAll(ctx, "dim_date", cols, rows)
}

// mondayBasedWeekday maps time.Weekday to 0=Monday .. 6=Sunday.
func mondayBasedWeekday(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// weekOfYear implements strftime('%W'): the number of complete weeks
// since the first Monday of the year, with earlier days in week 0.
func weekOfYear(d time.Time) int {
	yearDay := d.YearDay() // 1-based
	return (yearDay + 6 - mondayBasedWeekday(d)) / 7
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
