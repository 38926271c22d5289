package pipeline

import (
	"fmt"
	"reflect"
	"regexp"
)

// Filter operators.
const (
	OpEq     = "eq"
	OpNeq    = "neq"
	OpIn     = "in"
	OpNotIn  = "notIn"
	OpGt     = "gt"
	OpGte    = "gte"
	OpLt     = "lt"
	OpLte    = "lte"
	OpRegex  = "regex"
	OpExists = "exists"
)

// Predicate tests one field of a record.
//
// Null compares equal only to null, and ordering operators against null are
// false. Values of incomparable types never match, except that dates
// compare against ISO-8601 string literals. For in and notIn Value is a
// list; for regex it is the pattern; for exists it is an optional bool
// (default true).
type Predicate struct {
	Field           string
	Op              string
	Value           any
	CaseInsensitive bool
}

// Filter keeps the records for which every predicate holds.
type Filter struct {
	Predicates []Predicate
}

// Kind implements Stage.
func (Filter) Kind() string { return "filter" }

func (f Filter) compile(*compiler) (stepFunc, error) {
	if len(f.Predicates) == 0 {
		return nil, configError("", "filter requires at least one predicate")
	}
	preds, err := compilePredicates(f.Predicates)
	if err != nil {
		return nil, err
	}
	return func(_ *ExecutionContext, in Table) (Table, error) {
		out := make(Table, 0, len(in))
		for _, r := range in {
			if matchAll(preds, r) {
				out = append(out, r)
			}
		}
		return out, nil
	}, nil
}

type matcher func(r *Record) bool

func matchAll(preds []matcher, r *Record) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}

func compilePredicates(ps []Predicate) ([]matcher, error) {
	out := make([]matcher, 0, len(ps))
	for _, p := range ps {
		m, err := compilePredicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func compilePredicate(p Predicate) (matcher, error) {
	if p.Field == "" {
		return nil, configError("", "predicate has no field")
	}
	field := p.Field
	value := normalize(p.Value)

	switch p.Op {
	case OpEq:
		return func(r *Record) bool { return valuesEqual(r.Get(field), value) }, nil

	case OpNeq:
		return func(r *Record) bool { return !valuesEqual(r.Get(field), value) }, nil

	case OpIn, OpNotIn:
		set, err := toValueList(p.Value)
		if err != nil {
			return nil, configError(field, "%s: %v", p.Op, err)
		}
		want := p.Op == OpIn
		return func(r *Record) bool { return inList(set, r.Get(field)) == want }, nil

	case OpGt, OpGte, OpLt, OpLte:
		if value == nil {
			return nil, configError(field, "%s requires a value", p.Op)
		}
		accept := orderingAccept(p.Op)
		return func(r *Record) bool {
			a, b, ok := coerceComparable(r.Get(field), value)
			if !ok {
				return false
			}
			return accept(compareValues(a, b))
		}, nil

	case OpRegex:
		pattern, ok := value.(string)
		if !ok {
			return nil, configError(field, "regex requires a string pattern, got %T", p.Value)
		}
		re, err := compilePattern(pattern, p.CaseInsensitive)
		if err != nil {
			return nil, configError(field, "%v", err)
		}
		return regexMatcher(field, re), nil

	case OpExists:
		want := true
		if value != nil {
			b, ok := value.(bool)
			if !ok {
				return nil, configError(field, "exists takes a boolean, got %T", p.Value)
			}
			want = b
		}
		return func(r *Record) bool { return r.Has(field) == want }, nil

	default:
		return nil, configError(field, "unknown operator %q", p.Op)
	}
}

func orderingAccept(op string) func(int) bool {
	switch op {
	case OpGt:
		return func(c int) bool { return c > 0 }
	case OpGte:
		return func(c int) bool { return c >= 0 }
	case OpLt:
		return func(c int) bool { return c < 0 }
	default:
		return func(c int) bool { return c <= 0 }
	}
}

func regexMatcher(field string, re *regexp.Regexp) matcher {
	return func(r *Record) bool {
		v := r.Get(field)
		if v == nil {
			return false
		}
		return re.MatchString(valueToString(v))
	}
}

func inList(set []any, v any) bool {
	for _, s := range set {
		if valuesEqual(v, s) {
			return true
		}
	}
	return false
}

// toValueList converts any slice into a list of normalized values.
func toValueList(v any) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("a list of values is required")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("a list of values is required, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = normalize(rv.Index(i).Interface())
	}
	return out, nil
}
