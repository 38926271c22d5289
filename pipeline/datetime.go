package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// unknownMonth is the month number given to names that are not in the
// calendar. It sorts after December.
const unknownMonth = 13

// parseISODate parses an ISO-8601 date or timestamp literal as UTC.
func parseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 date: %q", s)
}

// dateValue extracts a date from a derived source value. Strings are read
// as ISO-8601.
func dateValue(field string, v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		t, err := parseISODate(val)
		if err != nil {
			return time.Time{}, parseFailure(field, v, "ISO-8601", err)
		}
		return t, nil
	default:
		return time.Time{}, computeFailure(field, "date", fmt.Sprintf("%T is not a date", v))
	}
}

// monthValue extracts a month number from a date or a number.
func monthValue(op string, v any) (int64, error) {
	if t, ok := v.(time.Time); ok {
		return int64(t.Month()), nil
	}
	n, err := valueToNumber(v)
	if err != nil {
		return 0, computeFailure("", op, err.Error())
	}
	if n != float64(int64(n)) {
		return 0, computeFailure("", op, fmt.Sprintf("month %v is not a whole number", n))
	}
	m := int64(n)
	if m < 1 || m > 12 {
		return 0, computeFailure("", op, fmt.Sprintf("month %d out of range 1..12", m))
	}
	return m, nil
}

// ParseDate parses a string with a strftime-style format such as %d-%m-%Y
// or %d-%b-%Y. The result is a UTC date.
type ParseDate struct {
	Format string
}

func (ParseDate) Name() string { return "parseDate" }

func (t ParseDate) compile(*compiler) (evalFunc, error) {
	if t.Format == "" {
		return nil, configError("format", "format is required")
	}
	if _, err := strftime.Layout(t.Format); err != nil {
		return nil, configError("format", "unsupported date format %q: %v", t.Format, err)
	}
	format := t.Format
	return func(_ *Record, v any) (any, error) {
		switch val := v.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return val, nil
		case string:
			parsed, err := strftime.Parse(format, strings.TrimSpace(val))
			if err != nil {
				return nil, parseFailure("", v, format, err)
			}
			return parsed.UTC(), nil
		default:
			return nil, parseFailure("", v, format, fmt.Errorf("%T is not a string", v))
		}
	}, nil
}

// DatePart extracts year, month, day, hour or weekday (0 = Sunday) from a
// date as an integer.
type DatePart struct {
	Part string
}

func (DatePart) Name() string { return "datePart" }

func (t DatePart) compile(*compiler) (evalFunc, error) {
	var part func(time.Time) int64
	switch strings.ToLower(t.Part) {
	case "year":
		part = func(d time.Time) int64 { return int64(d.Year()) }
	case "month":
		part = func(d time.Time) int64 { return int64(d.Month()) }
	case "day":
		part = func(d time.Time) int64 { return int64(d.Day()) }
	case "hour":
		part = func(d time.Time) int64 { return int64(d.Hour()) }
	case "weekday":
		part = func(d time.Time) int64 { return int64(d.Weekday()) }
	default:
		return nil, configError("part", "unknown date part %q", t.Part)
	}
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		d, err := dateValue("", v)
		if err != nil {
			return nil, err
		}
		return part(d), nil
	}, nil
}

// MonthName maps a month number (or date) to its English name.
type MonthName struct {
	Abbreviate bool
}

func (MonthName) Name() string { return "monthName" }

func (t MonthName) compile(*compiler) (evalFunc, error) {
	abbreviate := t.Abbreviate
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		m, err := monthValue("monthName", v)
		if err != nil {
			return nil, err
		}
		name := monthNames[m-1]
		if abbreviate {
			name = name[:3]
		}
		return name, nil
	}, nil
}

// MonthNumber maps a month name (full or three-letter, any case) to 1..12.
// Unknown names map to 13 so they sort after December.
type MonthNumber struct{}

func (MonthNumber) Name() string { return "monthNumber" }

func (MonthNumber) compile(*compiler) (evalFunc, error) {
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return int64(unknownMonth), nil
		}
		return monthNumber(valueToString(v)), nil
	}, nil
}

func monthNumber(name string) int64 {
	name = strings.TrimSpace(name)
	for i, full := range monthNames {
		if strings.EqualFold(name, full) || strings.EqualFold(name, full[:3]) {
			return int64(i + 1)
		}
	}
	return unknownMonth
}

// Quarter maps a month number (or date) to its quarter, ceil(month/3).
type Quarter struct{}

func (Quarter) Name() string { return "quarter" }

func (Quarter) compile(*compiler) (evalFunc, error) {
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		m, err := monthValue("quarter", v)
		if err != nil {
			return nil, err
		}
		return (m + 2) / 3, nil
	}, nil
}

// Bucket classifies a value against two boundaries: below Lower is Before,
// at or above Upper is After, anything else is Between. Boundaries are
// numbers or ISO-8601 dates.
type Bucket struct {
	Lower   any
	Upper   any
	Before  string
	Between string
	After   string
}

func (Bucket) Name() string { return "bucket" }

func (t Bucket) compile(*compiler) (evalFunc, error) {
	lower, err := bucketBound("lower", t.Lower)
	if err != nil {
		return nil, err
	}
	upper, err := bucketBound("upper", t.Upper)
	if err != nil {
		return nil, err
	}
	if typeRank(lower) != typeRank(upper) {
		return nil, configError("upper", "boundaries must both be dates or both be numbers")
	}
	if compareValues(lower, upper) > 0 {
		return nil, configError("upper", "upper boundary %v is before lower boundary %v", upper, lower)
	}

	before := defaultString(t.Before, "Before")
	between := defaultString(t.Between, "Between")
	after := defaultString(t.After, "After")

	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		val, lo, ok := coerceComparable(v, lower)
		if !ok {
			if s, isString := v.(string); isString {
				return nil, parseFailure("", s, "ISO-8601", errors.New("cannot compare with boundary"))
			}
			return nil, computeFailure("", "bucket", fmt.Sprintf("%T cannot be compared with boundary %v", v, lower))
		}
		switch {
		case compareValues(val, lo) < 0:
			return before, nil
		case compareValues(val, upper) >= 0:
			return after, nil
		default:
			return between, nil
		}
	}, nil
}

func bucketBound(field string, v any) (any, error) {
	v = normalize(v)
	switch val := v.(type) {
	case time.Time, int64, float64:
		return val, nil
	case string:
		t, err := parseISODate(val)
		if err != nil {
			return nil, configError(field, "%v", err)
		}
		return t, nil
	case nil:
		return nil, configError(field, "boundary is required")
	default:
		return nil, configError(field, "boundary must be a date or a number, got %T", v)
	}
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
