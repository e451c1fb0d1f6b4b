package stock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Taipei is the exchange's local time zone. Taiwan has no daylight saving,
// so a fixed offset is exact.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// rocOffset converts between Republic of China (Minguo) years and Gregorian years.
const rocOffset = 1911

// Day truncates t to midnight of its calendar day in Taipei.
func Day(t time.Time) time.Time {
	y, m, d := t.In(Taipei).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Taipei)
}

// Date returns midnight of the given Taipei calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Taipei)
}

// MonthStart returns the first day of t's month in Taipei.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.In(Taipei).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, Taipei)
}

// SameMonth reports whether a and b fall in the same Taipei calendar month.
func SameMonth(a, b time.Time) bool {
	return MonthStart(a).Equal(MonthStart(b))
}

// ROCYear returns the Minguo year of t.
func ROCYear(t time.Time) int {
	return t.In(Taipei).Year() - rocOffset
}

// FormatROCMonth formats t as "110/01".
func FormatROCMonth(t time.Time) string {
	t = t.In(Taipei)
	return fmt.Sprintf("%d/%02d", t.Year()-rocOffset, int(t.Month()))
}

// ParseROCMonth parses "110/01" into the first day of that month.
func ParseROCMonth(v string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(v), "/")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("roc month %q: want YYY/MM", v)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("roc month %q: %w", v, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, fmt.Errorf("roc month %q: invalid month", v)
	}
	return Date(y+rocOffset, time.Month(m), 1), nil
}

// ParseROCDate parses an exchange date such as "110/01/04" (Minguo year 110,
// i.e. 2021-01-04). Gregorian "2021/01/04" is accepted as well since some pages
// switch conventions; a four-digit year is never a Minguo year.
func ParseROCDate(v string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(v), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q: want YYY/MM/DD", v)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", v, err)
		}
		nums[i] = n
	}
	year := nums[0]
	if len(strings.TrimSpace(parts[0])) < 4 {
		year += rocOffset
	}
	t := Date(year, time.Month(nums[1]), nums[2])
	// time.Date normalizes out-of-range values; reject them instead.
	if t.Year() != year || int(t.Month()) != nums[1] || t.Day() != nums[2] {
		return time.Time{}, fmt.Errorf("date %q: no such day", v)
	}
	return t, nil
}

// ParseCompactDate parses "20210104".
func ParseCompactDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", strings.TrimSpace(v), Taipei)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", v, err)
	}
	return t, nil
}
