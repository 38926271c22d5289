package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deriveOne runs a single derivation over one record and returns the target.
func deriveOne(t *testing.T, rec *Record, source string, tr Transform) any {
	t.Helper()
	out, err := Run(context.Background(), Table{rec}, []Stage{
		Derive{Derivations: []Derivation{{Target: "out", Source: source, Transform: tr}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0].Get("out")
}

func TestDeriveSequentialTargets(t *testing.T) {
	in := Table{RecordOf("StockDate", "07/14/2023", "High", 12.0, "Low", 8.0)}

	out, err := Run(context.Background(), in, []Stage{
		Derive{Derivations: []Derivation{
			{Target: "date", Source: "StockDate", Transform: ParseDate{Format: "%m/%d/%Y"}},
			{Target: "year", Source: "date", Transform: DatePart{Part: "year"}},
			{Target: "month", Source: "date", Transform: DatePart{Part: "month"}},
			{Target: "quarter", Source: "month", Transform: Quarter{}},
			{Target: "monthName", Source: "month", Transform: MonthName{}},
			{Target: "sum", Transform: Arith{Op: OpAdd, Operands: []Operand{FieldRef("High"), FieldRef("Low")}}},
			{Target: "mid", Transform: Arith{Op: OpDiv, Operands: []Operand{FieldRef("sum"), Lit(2)}}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, time.Date(2023, 7, 14, 0, 0, 0, 0, time.UTC), r.Get("date"))
	assert.Equal(t, int64(2023), r.Get("year"))
	assert.Equal(t, int64(7), r.Get("month"))
	assert.Equal(t, int64(3), r.Get("quarter"))
	assert.Equal(t, "July", r.Get("monthName"))
	assert.Equal(t, 20.0, r.Get("sum"))
	assert.Equal(t, 10.0, r.Get("mid"))
	assert.Equal(t, []string{"StockDate", "High", "Low", "date", "year", "month", "quarter", "monthName", "sum", "mid"}, r.Fields())
}

func TestParseDateFormats(t *testing.T) {
	tests := []struct {
		format string
		value  string
		want   time.Time
	}{
		{"%d-%m-%Y", "06-12-2019", time.Date(2019, 12, 6, 0, 0, 0, 0, time.UTC)},
		{"%m/%d/%Y", "03/31/2022", time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC)},
		{"%d-%b-%Y", "01-Dec-2019", time.Date(2019, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"%d/%m/%Y", "11/02/2021", time.Date(2021, 2, 11, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got := deriveOne(t, RecordOf("d", tt.value), "d", ParseDate{Format: tt.format})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDateNullStaysNull(t *testing.T) {
	assert.Nil(t, deriveOne(t, NewRecord(), "d", ParseDate{Format: "%d-%m-%Y"}))
}

func TestQuarterDerivation(t *testing.T) {
	for month, want := range map[int64]int64{7: 3, 12: 4, 1: 1, 3: 1, 4: 2} {
		assert.Equal(t, want, deriveOne(t, RecordOf("m", month), "m", Quarter{}), "month %d", month)
	}
}

func TestMonthOutOfRangeIsComputationError(t *testing.T) {
	for _, tr := range []Transform{Quarter{}, MonthName{}} {
		_, err := Run(context.Background(), Table{RecordOf("m", 13)}, []Stage{
			Derive{Derivations: []Derivation{{Target: "out", Source: "m", Transform: tr}}},
		})
		require.Error(t, err, tr.Name())
		assert.ErrorIs(t, err, ErrComputation, tr.Name())
	}
}

func TestMonthNumber(t *testing.T) {
	tests := map[string]int64{
		"January":   1,
		"december":  12,
		"Sep":       9,
		"Smarch":    13,
		"":          13,
		" August  ": 8,
	}
	for name, want := range tests {
		assert.Equal(t, want, deriveOne(t, RecordOf("n", name), "n", MonthNumber{}), name)
	}
	assert.Equal(t, int64(13), deriveOne(t, NewRecord(), "n", MonthNumber{}))
}

func TestMonthNameAbbreviated(t *testing.T) {
	d := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "June", deriveOne(t, RecordOf("d", d), "d", MonthName{}))
	assert.Equal(t, "Jun", deriveOne(t, RecordOf("d", d), "d", MonthName{Abbreviate: true}))
}

func TestSubstring(t *testing.T) {
	tests := []struct {
		name  string
		value any
		tr    Substring
		want  any
	}{
		{"month prefix", "Dec-19", Substring{Start: 0, Length: 3}, "Dec"},
		{"year suffix", "Dec-19", Substring{Start: 4, Length: 2}, "19"},
		{"clamped length", "Dec-19", Substring{Start: 4, Length: 10}, "19"},
		{"start past end", "Dec", Substring{Start: 10, Length: 2}, ""},
		{"to end", "Dec-19", Substring{Start: 1, Length: -1}, "ec-19"},
		{"runes", "Zürich", Substring{Start: 1, Length: 2}, "ür"},
		{"null", nil, Substring{Start: 0, Length: 3}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveOne(t, RecordOf("s", tt.value), "s", tt.tr))
		})
	}
}

func TestCaseMapping(t *testing.T) {
	assert.Equal(t, "the food was cold", deriveOne(t, RecordOf("s", "The FOOD was Cold"), "s", ToLower{}))
	assert.Equal(t, "REFUND", deriveOne(t, RecordOf("s", "refund"), "s", ToUpper{}))
	assert.Equal(t, "", deriveOne(t, NewRecord(), "s", ToLower{}))
}

func TestConcat(t *testing.T) {
	rec := RecordOf("Origin", "SIN", "Dest", "LHR", "Mon", "Dec", "YY", "19")

	assert.Equal(t, "SIN - LHR", deriveOne(t, rec, "", Concat{Fields: []string{"Origin", "Dest"}, Separator: " - "}))
	assert.Equal(t, "01-Dec-2019", deriveOne(t, rec, "", Concat{
		Parts: []Operand{Lit("01-"), FieldRef("Mon"), Lit("-20"), FieldRef("YY")},
	}))
	assert.Nil(t, deriveOne(t, rec, "", Concat{Fields: []string{"Origin", "Gate"}, Separator: "/"}))
}

func TestArith(t *testing.T) {
	rec := RecordOf("a", int64(6), "b", int64(4), "c", 1.5, "s", "2", "z", int64(0))

	assert.Equal(t, int64(10), deriveOne(t, rec, "", Arith{Op: OpAdd, Operands: []Operand{FieldRef("a"), FieldRef("b")}}))
	assert.Equal(t, int64(24), deriveOne(t, rec, "", Arith{Op: OpMul, Operands: []Operand{FieldRef("a"), FieldRef("b")}}))
	assert.Equal(t, 1.5, deriveOne(t, rec, "", Arith{Op: OpDiv, Operands: []Operand{FieldRef("a"), FieldRef("b")}}))
	assert.Equal(t, 4.5, deriveOne(t, rec, "", Arith{Op: OpSub, Operands: []Operand{FieldRef("a"), FieldRef("c")}}))
	assert.Equal(t, 8.0, deriveOne(t, rec, "", Arith{Op: OpAdd, Operands: []Operand{FieldRef("a"), FieldRef("s")}}))
	assert.Nil(t, deriveOne(t, rec, "", Arith{Op: OpAdd, Operands: []Operand{FieldRef("a"), FieldRef("missing")}}))

	_, err := Run(context.Background(), Table{rec}, []Stage{
		Derive{Derivations: []Derivation{{Target: "out", Transform: Arith{Op: OpDiv, Operands: []Operand{FieldRef("a"), FieldRef("z")}}}}},
	})
	require.Error(t, err)
	var ce *ComputationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "z", ce.Field)
	assert.Equal(t, "div", ce.Op)
}

func TestArithIntegerOverflow(t *testing.T) {
	rec := RecordOf("big", int64(1)<<62, "max", int64(math.MaxInt64), "min", int64(math.MinInt64))

	tests := []struct {
		name string
		op   string
		ops  []Operand
	}{
		{"mul", OpMul, []Operand{FieldRef("big"), Lit(4)}},
		{"add", OpAdd, []Operand{FieldRef("max"), Lit(1)}},
		{"sub", OpSub, []Operand{FieldRef("min"), Lit(1)}},
		{"mul min by minus one", OpMul, []Operand{FieldRef("min"), Lit(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := []Stage{Derive{Derivations: []Derivation{{Target: "out", Transform: Arith{Op: tt.op, Operands: tt.ops}}}}}

			_, err := Run(context.Background(), Table{rec}, stages)
			var ce *ComputationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.op, ce.Op)
			assert.Equal(t, "integer overflow", ce.Reason)

			out, err := Run(context.Background(), Table{rec}, stages, WithComputationPolicy(ComputationNull))
			require.NoError(t, err)
			assert.Nil(t, out[0].Get("out"))
		})
	}

	assert.Equal(t, int64(math.MaxInt64-1), deriveOne(t, rec, "", Arith{Op: OpAdd, Operands: []Operand{FieldRef("max"), Lit(-1)}}))
	assert.Equal(t, -(int64(1) << 62), deriveOne(t, rec, "", Arith{Op: OpMul, Operands: []Operand{FieldRef("big"), Lit(-1)}}))
}

func TestPercentChangeExact(t *testing.T) {
	rec := RecordOf("old", 100.0, "new", 110.0)
	got := deriveOne(t, rec, "", PercentChange{Old: FieldRef("old"), New: FieldRef("new")})
	assert.Equal(t, 10.0, got)
}

func TestRound(t *testing.T) {
	tests := []struct {
		value  any
		places int32
		want   any
	}{
		{2.675, 2, 2.68},
		{-2.5, 0, -3.0},
		{2.5, 0, 3.0},
		{1.005, 2, 1.01},
		{3.14159, 4, 3.1416},
		{int64(7), 2, int64(7)},
		{int64(1250), -2, int64(1300)},
		{nil, 2, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveOne(t, RecordOf("v", tt.value), "v", Round{Places: tt.places}), "%v", tt.value)
	}
}

func TestMapValue(t *testing.T) {
	tr := MapValue{
		Cases: []MapCase{
			{When: "First Class", Then: 1},
			{When: "Business Class", Then: 2},
			{When: "Premium Economy", Then: 3},
			{When: "Economy Class", Then: 4},
		},
		Default: 5,
	}
	assert.Equal(t, int64(2), deriveOne(t, RecordOf("Class", "Business Class"), "Class", tr))
	assert.Equal(t, int64(5), deriveOne(t, RecordOf("Class", "Cargo"), "Class", tr))
	assert.Equal(t, int64(5), deriveOne(t, NewRecord(), "Class", tr))
}

func TestCond(t *testing.T) {
	tr := Cond{
		Where: []Predicate{{Field: "Recommended", Op: OpEq, Value: "no"}},
		Then:  FieldRef("OverallRating"),
		Else:  Lit(nil),
	}
	assert.Equal(t, int64(2), deriveOne(t, RecordOf("Recommended", "no", "OverallRating", 2), "", tr))
	assert.Nil(t, deriveOne(t, RecordOf("Recommended", "yes", "OverallRating", 9), "", tr))
}

func TestBucket(t *testing.T) {
	tr := Bucket{Lower: "2020-01-23", Upper: "2021-02-11", Before: "Pre-COVID", Between: "During-COVID", After: "Post-COVID"}

	tests := map[string]string{
		"2020-01-22": "Pre-COVID",
		"2020-01-23": "During-COVID",
		"2020-06-01": "During-COVID",
		"2021-02-10": "During-COVID",
		"2021-02-11": "Post-COVID",
	}
	for day, want := range tests {
		d, err := time.Parse("2006-01-02", day)
		require.NoError(t, err)
		assert.Equal(t, want, deriveOne(t, RecordOf("d", d), "d", tr), day)
	}

	assert.Equal(t, "Before", deriveOne(t, RecordOf("n", 1), "n", Bucket{Lower: 5, Upper: 10}))
	assert.Equal(t, "Between", deriveOne(t, RecordOf("n", 5), "n", Bucket{Lower: 5, Upper: 10}))
	assert.Equal(t, "After", deriveOne(t, RecordOf("n", 10.0), "n", Bucket{Lower: 5, Upper: 10}))
	assert.Nil(t, deriveOne(t, NewRecord(), "d", tr))
}

func TestBucketConfiguration(t *testing.T) {
	tests := []struct {
		name string
		tr   Bucket
	}{
		{"missing lower", Bucket{Upper: "2021-02-11"}},
		{"bad date", Bucket{Lower: "Jan 2020", Upper: "2021-02-11"}},
		{"mixed kinds", Bucket{Lower: 1, Upper: "2021-02-11"}},
		{"reversed", Bucket{Lower: "2022-01-01", Upper: "2021-02-11"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Stage{Derive{Derivations: []Derivation{{Target: "p", Source: "d", Transform: tt.tr}}}})
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDeriveConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		derive Derive
	}{
		{"empty", Derive{}},
		{"no target", Derive{Derivations: []Derivation{{Transform: ToLower{}}}}},
		{"no transform", Derive{Derivations: []Derivation{{Target: "x"}}}},
		{"bad date part", Derive{Derivations: []Derivation{{Target: "x", Transform: DatePart{Part: "fortnight"}}}}},
		{"bad arith op", Derive{Derivations: []Derivation{{Target: "x", Transform: Arith{Op: "pow", Operands: []Operand{Lit(1), Lit(2)}}}}}},
		{"one operand", Derive{Derivations: []Derivation{{Target: "x", Transform: Arith{Op: OpAdd, Operands: []Operand{Lit(1)}}}}}},
		{"empty concat", Derive{Derivations: []Derivation{{Target: "x", Transform: Concat{}}}}},
		{"round places", Derive{Derivations: []Derivation{{Target: "x", Transform: Round{Places: 40}}}}},
		{"negative substring", Derive{Derivations: []Derivation{{Target: "x", Transform: Substring{Start: -1}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Stage{tt.derive})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}
