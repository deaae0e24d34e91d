package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiscalBoundsJulyStart(t *testing.T) {
	start, end := FiscalBounds(2026, time.July)
	assert.Equal(t, "2025-07-01", FormatISODate(start))
	assert.Equal(t, "2026-06-30", FormatISODate(end))
}

func TestFiscalBoundsJanuaryStart(t *testing.T) {
	start, end := FiscalBounds(2026, time.January)
	assert.Equal(t, "2026-01-01", FormatISODate(start))
	assert.Equal(t, "2026-12-31", FormatISODate(end))
}

func TestFiscalMonthIndex(t *testing.T) {
	july, err := ParseISODate("2025-07-15")
	require.NoError(t, err)
	assert.Equal(t, 0, FiscalMonthIndex(july, time.July))

	december, err := ParseISODate("2025-12-01")
	require.NoError(t, err)
	assert.Equal(t, 5, FiscalMonthIndex(december, time.July))

	june, err := ParseISODate("2026-06-30")
	require.NoError(t, err)
	assert.Equal(t, 11, FiscalMonthIndex(june, time.July))
}

func TestFiscalYearOf(t *testing.T) {
	july, _ := ParseISODate("2025-07-01")
	assert.Equal(t, 2026, FiscalYearOf(july, time.July))

	june, _ := ParseISODate("2025-06-30")
	assert.Equal(t, 2025, FiscalYearOf(june, time.July))

	any, _ := ParseISODate("2025-03-01")
	assert.Equal(t, 2025, FiscalYearOf(any, time.January))
}

func TestCalendarMonthOf(t *testing.T) {
	y, m := CalendarMonthOf(2026, 0, time.July)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.July, m)

	y, m = CalendarMonthOf(2026, 11, time.July)
	assert.Equal(t, 2026, y)
	assert.Equal(t, time.June, m)
}

func TestMonthPeriodCodec(t *testing.T) {
	id := FormatMonthPeriod(2026, 0)
	assert.Equal(t, "2026-00", id)

	year, idx, err := ParseMonthPeriod(id)
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 0, idx)

	_, _, err = ParseMonthPeriod("2026-12")
	require.Error(t, err)
	_, _, err = ParseMonthPeriod("garbage")
	require.Error(t, err)
}

func TestMonthPeriodOrderingIsLexicographic(t *testing.T) {
	assert.Less(t, FormatMonthPeriod(2026, 1), FormatMonthPeriod(2026, 10))
	assert.Less(t, FormatMonthPeriod(2025, 11), FormatMonthPeriod(2026, 0))
}

func TestQuarterPeriodCodec(t *testing.T) {
	id := FormatQuarterPeriod(2026, 3)
	assert.Equal(t, "2026-Q3", id)

	year, q, err := ParseQuarterPeriod(id)
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 3, q)

	_, _, err = ParseQuarterPeriod("2026-Q5")
	require.Error(t, err)
}

func TestNoonAnchored(t *testing.T) {
	// 2025-08-06 03:30 UTC is still 2025-08-05 late evening in Cancun.
	instant := time.Date(2025, time.August, 6, 3, 30, 0, 0, time.UTC)
	anchored := NoonAnchored(instant)
	assert.Equal(t, "2025-08-05", FormatISODate(anchored))
	assert.Equal(t, 12, anchored.In(ClientLocation()).Hour())
}

func TestDaysBetween(t *testing.T) {
	a, _ := ParseISODate("2025-08-10")
	b, _ := ParseISODate("2025-08-13")
	assert.Equal(t, 3, DaysBetween(a, b))
	assert.Equal(t, -3, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestFullMonthsBetween(t *testing.T) {
	due, _ := ParseISODate("2025-08-10")

	sameDay, _ := ParseISODate("2025-08-10")
	assert.Equal(t, 0, FullMonthsBetween(due, sameDay))

	after29, _ := ParseISODate("2025-09-08")
	assert.Equal(t, 0, FullMonthsBetween(due, after29))

	after30, _ := ParseISODate("2025-09-09")
	assert.Equal(t, 1, FullMonthsBetween(due, after30))

	threeMonths, _ := ParseISODate("2025-11-10")
	assert.Equal(t, 3, FullMonthsBetween(due, threeMonths))

	before, _ := ParseISODate("2025-07-01")
	assert.Equal(t, 0, FullMonthsBetween(due, before))
}
