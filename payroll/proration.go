package payroll

import "github.com/shopspring/decimal"

// Ratio converts the inclusive interval [start, end] into a fractional count of
// calendar months. Each month touched contributes the share of its days that
// fall inside the interval, so January 15 through March 15 of 2023 is
// 17/31 + 28/28 + 15/31.
//
// The result is NOT clamped to one period: a multi-month interval returns a
// ratio above 1, and callers use it as a multiplier against a monthly rate.
func Ratio(start, end Date) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Zero, &RangeError{Start: start, End: end}
	}

	total := decimal.Zero
	for month := StartOfMonth(start.Year(), start.Month()); !month.After(end); month = month.AddMonths(1) {
		length := DaysInMonth(month.Year(), month.Month())

		firstDay := 1
		if month.sameMonth(start) {
			firstDay = start.Day()
		}
		lastDay := length
		if month.sameMonth(end) {
			lastDay = end.Day()
		}

		worked := decimal.NewFromInt(int64(lastDay - firstDay + 1))
		total = total.Add(worked.Div(decimal.NewFromInt(int64(length))))
	}
	return total, nil
}
