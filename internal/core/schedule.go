package core

import "time"

// DueDate returns the date of the n-th occurrence (0-based) of a rule that starts
// on start and repeats with freq.
//
// The date is always computed from start, never from the previous occurrence. When
// the start day does not exist in the target month the result is clamped to that
// month's last day, so a rule starting on Jan 31 falls on Feb 28 (or 29) and then
// back on Mar 31. An unknown frequency yields start.
func DueDate(start Date, freq Frequency, n int) Date {
	if n <= 0 {
		return start
	}
	switch freq {
	case Monthly:
		return addMonths(start, n)
	case Quarterly:
		return addMonths(start, 3*n)
	case Yearly:
		return addYears(start, n)
	default:
		return start
	}
}

func addMonths(d Date, months int) Date {
	total := d.Year()*12 + (d.Month() - 1) + months
	year, month := total/12, total%12+1
	return NewDate(year, month, min(d.Day(), daysIn(year, month)))
}

func addYears(d Date, years int) Date {
	year := d.Year() + years
	return NewDate(year, d.Month(), min(d.Day(), daysIn(year, d.Month())))
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
