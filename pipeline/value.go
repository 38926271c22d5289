package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// normalize maps the scalar types produced by readers onto the small set the
// pipeline works with: nil, string, int64, float64, bool and time.Time.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool, time.Time:
		return v
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return uint64ToValue(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return uint64ToValue(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	default:
		return v
	}
}

func uint64ToValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// toFloat64 converts a numeric value to float64. Strings are not parsed.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	default:
		return 0, false
	}
}

// valueToNumber converts a value to a number for arithmetic and numeric
// aggregation. Booleans count as 0/1 and numeric strings are parsed.
func valueToNumber(v any) (float64, error) {
	if n, ok := toFloat64(v); ok {
		return n, nil
	}
	switch val := v.(type) {
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// valueToString renders a scalar for text operations.
func valueToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// typeRank orders values of different types so that sorting is total:
// null < number < string < bool < date.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64, int, int32, float32:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

// compareValues compares two values and returns:
// -1 if a < b
//
//	0 if a == b
//
// +1 if a > b
//
// Values of different types are ordered by typeRank.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0:
		return 0
	case 1:
		return compareNumbers(a, b)
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1 // false < true
		}
		return 1
	case 4:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
	}
}

// coerceComparable reports whether two non-null values can be ordered
// against each other and returns them in comparable form. A date can be
// compared with an ISO-8601 string literal.
func coerceComparable(a, b any) (any, any, bool) {
	if a == nil || b == nil {
		return a, b, false
	}
	if at, ok := a.(time.Time); ok {
		if bs, ok := b.(string); ok {
			bt, err := parseISODate(bs)
			if err != nil {
				return a, b, false
			}
			return at, bt, true
		}
	}
	if bt, ok := b.(time.Time); ok {
		if as, ok := a.(string); ok {
			at, err := parseISODate(as)
			if err != nil {
				return a, b, false
			}
			return at, bt, true
		}
	}
	return a, b, typeRank(a) == typeRank(b)
}

// valuesEqual compares two values for equality. Integers compare exactly;
// two floats compare with a small relative epsilon so that 0.1+0.2 equals
// 0.3.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b, ok := coerceComparable(a, b)
	if !ok {
		return false
	}
	af, aIsFloat := a.(float64)
	bf, bIsFloat := b.(float64)
	if aIsFloat && bIsFloat {
		const epsilon = 1e-9
		diff := math.Abs(af - bf)
		threshold := epsilon * max(1.0, math.Abs(af), math.Abs(bf))
		return diff < threshold
	}
	return compareValues(a, b) == 0
}

// asInt64 reports the value of an integer-typed number.
func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	}
	return 0, false
}

// compareNumbers orders two numbers. Two integers compare exactly, so
// values above 2^53 keep their order; an integer against a float compares
// by the float's integral part first and then its fraction.
func compareNumbers(a, b any) int {
	ai, aInt := asInt64(a)
	bi, bInt := asInt64(b)
	switch {
	case aInt && bInt:
		return cmpInt64(ai, bi)
	case aInt:
		bf, _ := toFloat64(b)
		return compareIntFloat(ai, bf)
	case bInt:
		af, _ := toFloat64(a)
		return -compareIntFloat(bi, af)
	}
	af, _ := toFloat64(a)
	bf, _ := toFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

// twoTo63 is 2^63, the first float64 above the int64 range.
const twoTo63 = float64(1 << 63)

func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= twoTo63:
		return -1
	case f < -twoTo63:
		return 1
	}
	whole := math.Trunc(f)
	if c := cmpInt64(i, int64(whole)); c != 0 {
		return c
	}
	switch frac := f - whole; {
	case frac > 0:
		return -1
	case frac < 0:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// addInt64, subInt64 and mulInt64 report false when the result overflows.
func addInt64(a, b int64) (int64, bool) {
	s := a + b
	return s, (a^s)&(b^s) >= 0
}

func subInt64(a, b int64) (int64, bool) {
	d := a - b
	return d, (a^b)&(a^d) >= 0
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || p/b != a {
		return p, false
	}
	return p, true
}

// keyPart renders a value for use inside a group key. Integers are
// rendered exactly and integral floats in the int64 range render like the
// integer, so int64(1) and 1.0 land in the same partition; each part is
// prefixed with its type rank so "1" and 1 stay distinct.
func keyPart(v any) string {
	switch val := v.(type) {
	case nil:
		return "0:"
	case int64:
		return "1:" + strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && val >= -twoTo63 && val < twoTo63 {
			return "1:" + strconv.FormatInt(int64(val), 10)
		}
		return "1:" + strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return "2:" + val
	case bool:
		return "3:" + strconv.FormatBool(val)
	case time.Time:
		return "4:" + val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("5:%#v", val)
	}
}

// groupKey builds the partition key of a record for the given fields.
// Missing fields contribute the null key.
func groupKey(r *Record, fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("\x00||\x00") // Use unlikely separator to avoid collisions
		}
		b.WriteString(keyPart(r.Get(f)))
	}
	return b.String()
}
