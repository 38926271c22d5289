package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whereTable(t *testing.T, in Table, expr string) Table {
	t.Helper()
	out, err := Run(context.Background(), in, []Stage{Where{Expr: expr}})
	require.NoError(t, err)
	return out
}

func TestWhereExpressions(t *testing.T) {
	in := Table{
		RecordOf("id", 1, "Airline", "SQ", "Cancelled", int64(0), "ArrDelay", int64(12), "Route Name", "SIN-KUL"),
		RecordOf("id", 2, "Airline", "MH", "Cancelled", int64(1), "ArrDelay", nil, "Route Name", "KUL-SIN"),
		RecordOf("id", 3, "Airline", "SQ", "Cancelled", int64(1), "ArrDelay", int64(0), "Route Name", "SIN-HKG"),
		RecordOf("id", 4, "Airline", "TR", "Cancelled", int64(0), "ArrDelay", int64(-3)),
		RecordOf("id", 5, "Airline", "sq", "Cancelled", int64(0), "ArrDelay", 40.5, "Route Name", "SIN-BKK"),
	}

	tests := []struct {
		name string
		expr string
		want []any
	}{
		{"equals string", "Airline = 'SQ'", []any{int64(1), int64(3)}},
		{"double quoted string", `Airline = "MH"`, []any{int64(2)}},
		{"not equals", "Airline <> 'SQ'", []any{int64(2), int64(4), int64(5)}},
		{"bang equals", "Airline != 'SQ'", []any{int64(2), int64(4), int64(5)}},
		{"numeric comparison", "ArrDelay > 10", []any{int64(1), int64(5)}},
		{"negative literal", "ArrDelay <= -3", []any{int64(4)}},
		{"float literal", "ArrDelay >= 40.5", []any{int64(5)}},
		{"and", "Airline = 'SQ' AND Cancelled = 1", []any{int64(3)}},
		{"or", "Airline = 'MH' OR ArrDelay < 0", []any{int64(2), int64(4)}},
		{"and binds tighter than or", "Airline = 'TR' OR Airline = 'SQ' AND Cancelled = 0", []any{int64(1), int64(4)}},
		{"parentheses", "(Airline = 'TR' OR Airline = 'SQ') AND Cancelled = 0", []any{int64(1), int64(4)}},
		{"not", "NOT Airline = 'SQ'", []any{int64(2), int64(4), int64(5)}},
		{"double not", "NOT NOT Cancelled = 1", []any{int64(2), int64(3)}},
		{"lowercase keywords", "airline = 'x' or Cancelled = 1 and not ArrDelay is null", []any{int64(3)}},
		{"in", "Airline IN ('MH', 'TR')", []any{int64(2), int64(4)}},
		{"not in", "Airline NOT IN ('MH', 'TR')", []any{int64(1), int64(3), int64(5)}},
		{"is null", "ArrDelay IS NULL", []any{int64(2)}},
		{"is not null", "ArrDelay IS NOT NULL", []any{int64(1), int64(3), int64(4), int64(5)}},
		{"missing field is null", "`Route Name` IS NULL", []any{int64(4)}},
		{"backquoted field", "`Route Name` = 'SIN-HKG'", []any{int64(3)}},
		{"regex", "`Route Name` ~ '^SIN-'", []any{int64(1), int64(3), int64(5)}},
		{"ordering skips null", "ArrDelay < 100", []any{int64(1), int64(3), int64(4), int64(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := whereTable(t, in, tt.expr)
			assert.Equal(t, tt.want, column(out, "id"))
		})
	}
}

func TestWhereStringEscapes(t *testing.T) {
	in := Table{
		RecordOf("id", 1, "Review", "it's fine"),
		RecordOf("id", 2, "Review", `say "hi"`),
	}
	assert.Equal(t, []any{int64(1)}, column(whereTable(t, in, "Review = 'it''s fine'"), "id"))
	assert.Equal(t, []any{int64(1)}, column(whereTable(t, in, `Review = 'it\'s fine'`), "id"))
	assert.Equal(t, []any{int64(2)}, column(whereTable(t, in, `Review = "say ""hi"""`), "id"))
}

func TestWhereComparesDatesWithStrings(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse(time.DateOnly, s)
		require.NoError(t, err)
		return d
	}
	in := Table{
		RecordOf("id", 1, "Date", day("2020-01-15")),
		RecordOf("id", 2, "Date", day("2020-04-01")),
		RecordOf("id", 3, "Date", day("2021-03-31")),
	}
	out := whereTable(t, in, "Date >= '2020-04-01' AND Date < '2021-04-01'")
	assert.Equal(t, []any{int64(2), int64(3)}, column(out, "id"))
}

func TestWhereBooleans(t *testing.T) {
	in := Table{
		RecordOf("id", 1, "Recommended", true),
		RecordOf("id", 2, "Recommended", false),
	}
	assert.Equal(t, []any{int64(1)}, column(whereTable(t, in, "Recommended = TRUE"), "id"))
	assert.Equal(t, []any{int64(2)}, column(whereTable(t, in, "Recommended = false"), "id"))
}

func TestWhereKeepsInputRecords(t *testing.T) {
	in := flights()
	out := whereTable(t, in, "Cancelled = 1")
	require.Len(t, out, 2)
	assert.Same(t, in[1], out[0])
	assert.Same(t, in[2], out[1])
}

func TestWhereConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		field string
		msg   string
	}{
		{"empty", "   ", "expr", "where requires an expression"},
		{"dangling and", "a = 1 AND", "expr", "expected field name at position 9"},
		{"missing operator", "a 1", "expr", "expected operator after \"a\" at position 2"},
		{"missing value", "a =", "expr", "expected value at position 3"},
		{"unclosed paren", "(a = 1", "expr", "expected ')' at position 6"},
		{"trailing token", "a = 1 b", "expr", "unexpected \"b\" at position 6"},
		{"bad character", "a = 1 & b = 2", "expr", "unexpected character '&' at position 6"},
		{"unterminated string", "a = 'x", "expr", "unterminated ' at position 4"},
		{"is without null", "a IS 1", "expr", "expected NULL"},
		{"in without list", "a IN 'x'", "expr", "expected '('"},
		{"ordering against null", "a > NULL", "a", "requires a value"},
		{"bad regex", "a ~ '('", "a", "error parsing regexp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Stage{Limit{Count: 1}, Where{Expr: tt.expr}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, 1, cerr.Stage)
			assert.Equal(t, "where", cerr.Kind)
			assert.Equal(t, tt.field, cerr.Field)
			assert.Contains(t, cerr.Reason, tt.msg)
		})
	}
}

func TestWhereLimits(t *testing.T) {
	t.Run("nesting", func(t *testing.T) {
		expr := strings.Repeat("(", MaxExprDepth+1) + "a = 1" + strings.Repeat(")", MaxExprDepth+1)
		_, err := New([]Stage{Where{Expr: expr}})
		assert.ErrorContains(t, err, "nesting too deep")
	})
	t.Run("tokens", func(t *testing.T) {
		expr := "a IN (" + strings.Repeat("1, ", MaxExprTokens) + "1)"
		_, err := New([]Stage{Where{Expr: expr}})
		assert.ErrorContains(t, err, "too many tokens")
	})
	t.Run("length", func(t *testing.T) {
		expr := "a = '" + strings.Repeat("x", MaxExprLength) + "'"
		_, err := New([]Stage{Where{Expr: expr}})
		assert.ErrorContains(t, err, "expression too long")
	})
}
