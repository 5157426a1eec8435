// Package convert holds the per-value conversions applied by the pipeline
// stages. Every converter maps a value it cannot interpret to nil rather than
// failing, so a single bad cell never aborts a stage.
package convert

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SASEpoch is day zero of SAS date values.
var SASEpoch = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)

// Offsets of 0001-01-01 and 9999-12-31 from SASEpoch.
const (
	minSASDay = -715509
	maxSASDay = 2936549
)

// SASDate converts a SAS date, a number of days since 1960-01-01, into a
// date. Fractional days round down, so -0.5 is 1959-12-31. Offsets outside
// the years 1 to 9999 are nil.
func SASDate(v any) any {
	var days float64
	switch x := v.(type) {
	case float64:
		days = x
	case int64:
		days = float64(x)
	default:
		return nil
	}
	if math.IsNaN(days) {
		return nil
	}
	days = math.Floor(days)
	if days < minSASDay || days > maxSASDay {
		return nil
	}
	return SASEpoch.AddDate(0, 0, int(days))
}

// Accepted layouts for textual dates, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-1-2",
}

// ParseDate parses a textual date into a UTC date with the time of day dropped.
func ParseDate(v any) any {
	s, ok := v.(string)
	if !ok {
		if d, ok := v.(time.Time); ok {
			return truncateDay(d)
		}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t)
		}
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Year returns the year of a date as int64.
func Year(v any) any {
	d, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return int64(d.Year())
}

// Month returns the month (1-12) of a date as int64.
func Month(v any) any {
	d, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return int64(d.Month())
}

// ToFloat converts a number or numeric text to float64.
func ToFloat(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return nil
		}
		return f
	default:
		return nil
	}
}

// ToInt converts a number or numeric text to int64. Text such as "1200.0"
// is accepted when it holds a whole number.
func ToInt(v any) any {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		if i, ok := Integral(x); ok {
			return i
		}
		return nil
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if i, ok := Integral(f); ok {
				return i
			}
		}
		return nil
	default:
		return nil
	}
}

// Integral reports whether f holds a whole number representable as int64.
func Integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Upper upper-cases text.
func Upper(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return strings.ToUpper(s)
}

// Equals returns a predicate matching text equal to want.
func Equals(want string) func(v any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && s == want
	}
}
