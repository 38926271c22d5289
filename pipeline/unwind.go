package pipeline

import (
	"reflect"
	"strings"
)

// Unwind emits one record per element of Field. A list value yields one
// record per element; a string is split on Separator (on runs of white
// space when Separator is empty) and empty tokens are dropped. The element
// is written to As, or back to Field when As is empty. Records whose value
// is null, missing or empty produce no output.
type Unwind struct {
	Field     string
	Separator string
	As        string
}

// Kind implements Stage.
func (Unwind) Kind() string { return "unwind" }

func (u Unwind) compile(*compiler) (stepFunc, error) {
	if u.Field == "" {
		return nil, configError("field", "unwind requires a field")
	}
	field, sep := u.Field, u.Separator
	target := u.As
	if target == "" {
		target = field
	}

	return func(_ *ExecutionContext, in Table) (Table, error) {
		out := make(Table, 0, len(in))
		for _, r := range in {
			for _, elem := range unwindElements(r.Get(field), sep) {
				rec := r.Clone()
				rec.Set(target, elem)
				out = append(out, rec)
			}
		}
		return out, nil
	}, nil
}

func unwindElements(v any, sep string) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		var tokens []string
		if sep == "" {
			tokens = strings.Fields(val)
		} else {
			tokens = strings.Split(val, sep)
		}
		out := make([]any, 0, len(tokens))
		for _, t := range tokens {
			if t != "" {
				out = append(out, t)
			}
		}
		return out
	case []any:
		return val
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}
