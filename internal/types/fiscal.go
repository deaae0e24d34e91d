package types

import (
	"fmt"
	"time"

	ierr "github.com/condobill/condobill/internal/errors"
)

// Dates are ISO-8601 strings anchored to America/Cancun for day-boundary
// reasoning; timestamps are UTC instants. Cancun has no DST so day
// arithmetic is stable year round.

const ISODateFormat = "2006-01-02"

var cancun *time.Location

func init() {
	loc, err := time.LoadLocation("America/Cancun")
	if err != nil {
		// Quintana Roo is fixed at UTC-5
		loc = time.FixedZone("America/Cancun", -5*60*60)
	}
	cancun = loc
}

// ClientLocation returns the timezone used for day-boundary reasoning.
func ClientLocation() *time.Location {
	return cancun
}

// ParseISODate parses an ISO date string as midnight in the client timezone.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ISODateFormat, s, cancun)
	if err != nil {
		return time.Time{}, ierr.WithError(err).
			WithHintf("Date %q is not a valid ISO date (YYYY-MM-DD)", s).
			Mark(ierr.ErrValidation)
	}
	return t, nil
}

// FormatISODate renders the instant's calendar date in the client timezone.
func FormatISODate(t time.Time) string {
	return t.In(cancun).Format(ISODateFormat)
}

// NoonAnchored pins an instant to 12:00 in the client timezone on the same
// calendar date. Transaction dates are stored this way so that day-boundary
// comparisons are stable regardless of the viewer's offset.
func NoonAnchored(t time.Time) time.Time {
	local := t.In(cancun)
	return time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, cancun)
}

// FiscalBounds returns the first and last day (inclusive) of a fiscal year.
// For a July start, FY 2026 runs 2025-07-01 through 2026-06-30.
func FiscalBounds(fiscalYear int, fiscalStartMonth time.Month) (time.Time, time.Time) {
	var start time.Time
	if fiscalStartMonth == time.January {
		start = time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, cancun)
	} else {
		start = time.Date(fiscalYear-1, fiscalStartMonth, 1, 0, 0, 0, 0, cancun)
	}
	end := start.AddDate(1, 0, -1)
	return start, end
}

// FiscalMonthIndex maps a date onto its 0..11 position within the fiscal year.
func FiscalMonthIndex(date time.Time, fiscalStartMonth time.Month) int {
	m := int(date.In(cancun).Month())
	idx := m - int(fiscalStartMonth)
	if idx < 0 {
		idx += 12
	}
	return idx
}

// FiscalYearOf returns the fiscal year a date belongs to.
func FiscalYearOf(date time.Time, fiscalStartMonth time.Month) int {
	local := date.In(cancun)
	if fiscalStartMonth == time.January {
		return local.Year()
	}
	if local.Month() >= fiscalStartMonth {
		return local.Year() + 1
	}
	return local.Year()
}

// CalendarMonthOf inverts FiscalMonthIndex: the (year, month) a fiscal
// period falls in.
func CalendarMonthOf(fiscalYear, monthIndex int, fiscalStartMonth time.Month) (int, time.Month) {
	m := int(fiscalStartMonth) + monthIndex
	y := fiscalYear
	if fiscalStartMonth != time.January {
		y = fiscalYear - 1
	}
	if m > 12 {
		m -= 12
		y++
	}
	return y, time.Month(m)
}

// FormatMonthPeriod encodes a water billing period id, e.g. 2026-00 for the
// first month of fiscal year 2026. The zero-padded index keeps period ids
// string-sortable in chronological order.
func FormatMonthPeriod(fiscalYear, monthIndex int) string {
	return fmt.Sprintf("%04d-%02d", fiscalYear, monthIndex)
}

// FormatQuarterPeriod encodes an HOA dues period id, e.g. 2026-Q1.
func FormatQuarterPeriod(fiscalYear, quarter int) string {
	return fmt.Sprintf("%04d-Q%d", fiscalYear, quarter)
}

// ParseMonthPeriod decodes a water period id into fiscal year and month index.
func ParseMonthPeriod(periodID string) (int, int, error) {
	var year, idx int
	if _, err := fmt.Sscanf(periodID, "%4d-%2d", &year, &idx); err != nil || idx < 0 || idx > 11 {
		return 0, 0, ierr.NewErrorf("invalid period id %q", periodID).
			WithHint("Period ids look like 2026-00 through 2026-11").
			Mark(ierr.ErrValidation)
	}
	return year, idx, nil
}

// ParseQuarterPeriod decodes an HOA dues period id into fiscal year and quarter.
func ParseQuarterPeriod(periodID string) (int, int, error) {
	var year, q int
	if _, err := fmt.Sscanf(periodID, "%4d-Q%1d", &year, &q); err != nil || q < 1 || q > 4 {
		return 0, 0, ierr.NewErrorf("invalid quarter period id %q", periodID).
			WithHint("Quarter period ids look like 2026-Q1 through 2026-Q4").
			Mark(ierr.ErrValidation)
	}
	return year, q, nil
}

// DaysBetween counts whole calendar days from a to b in the client timezone.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	al := a.In(cancun)
	bl := b.In(cancun)
	ad := time.Date(al.Year(), al.Month(), al.Day(), 0, 0, 0, 0, cancun)
	bd := time.Date(bl.Year(), bl.Month(), bl.Day(), 0, 0, 0, 0, cancun)
	return int(bd.Sub(ad).Hours() / 24)
}

// FullMonthsBetween counts full 30-day months elapsed from due to asOf.
// Never negative.
func FullMonthsBetween(due, asOf time.Time) int {
	days := DaysBetween(due, asOf)
	if days <= 0 {
		return 0
	}
	return days / 30
}
