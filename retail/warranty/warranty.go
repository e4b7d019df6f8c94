package warranty

import (
	"math"
	"time"
)

// DefaultMonths applies when neither the product nor the order carries a warranty term.
const DefaultMonths = 12

type Status struct {
	IsUnderWarranty bool   `json:"is_under_warranty"`
	WarrantyEndDate string `json:"warranty_end_date,omitempty"`
	DaysRemaining   int    `json:"days_remaining"`
}

// EndDate adds months to purchase in UTC. When the purchase day does not exist in the
// target month the end date clamps to that month's last day, keeping the time of day.
func EndDate(purchase time.Time, months int) time.Time {
	p := purchase.UTC()
	target := time.Date(p.Year(), p.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := min(p.Day(), daysIn(target.Year(), target.Month()))
	return time.Date(target.Year(), target.Month(), day, p.Hour(), p.Minute(), p.Second(), p.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Evaluate reports coverage at now. Partial days round up.
func Evaluate(purchase time.Time, months int, now time.Time) Status {
	if months <= 0 {
		months = DefaultMonths
	}
	end := EndDate(purchase, months)
	st := Status{WarrantyEndDate: end.Format(time.DateOnly)}

	left := end.Sub(now.UTC())
	if left <= 0 {
		return st
	}
	st.IsUnderWarranty = true
	st.DaysRemaining = int(math.Ceil(left.Seconds() / 86400))
	return st
}
