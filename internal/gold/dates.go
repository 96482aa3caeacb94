package gold

import (
	"time"

	"medallion/internal/warehouse"
)

// DateKey encodes a calendar day as yyyymmdd, the surrogate key of the date
// dimension.
func DateKey(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

var dimDateColumns = []warehouse.Column{
	{Name: "date_key", Type: warehouse.TypeBigInt},
	{Name: "date", Type: warehouse.TypeDate},
	{Name: "year", Type: warehouse.TypeInt},
	{Name: "quarter", Type: warehouse.TypeInt},
	{Name: "month", Type: warehouse.TypeInt},
	{Name: "year_month", Type: warehouse.TypeText},
	{Name: "week_of_year", Type: warehouse.TypeInt},
	{Name: "day_name", Type: warehouse.TypeText},
	{Name: "day_of_week", Type: warehouse.TypeInt},
}

// dateRow builds one date-dimension row for a calendar day.
// day_of_week is 1-based starting at Sunday; week_of_year is the ISO week.
func dateRow(day time.Time) []any {
	_, week := day.ISOWeek()
	return []any{
		DateKey(day),
		day,
		int64(day.Year()),
		int64(day.Month()-1)/3 + 1,
		int64(day.Month()),
		day.Format("2006-01"),
		int64(week),
		day.Weekday().String(),
		int64(day.Weekday()) + 1,
	}
}

// calendar returns every day from min through max inclusive, at midnight UTC.
func calendar(min, max time.Time) []time.Time {
	min = warehouse.Midnight(min)
	max = warehouse.Midnight(max)

	var days []time.Time
	for d := min; !d.After(max); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
