package pipeline

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Substring extracts Length runes starting at rune Start. Out-of-range
// positions are clamped; a negative Length reads to the end. Null yields "".
type Substring struct {
	Start  int
	Length int
}

func (Substring) Name() string { return "substring" }

func (t Substring) compile(*compiler) (evalFunc, error) {
	if t.Start < 0 {
		return nil, configError("start", "start must not be negative")
	}
	start, length := t.Start, t.Length
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return "", nil
		}
		runes := []rune(valueToString(v))
		if start >= len(runes) {
			return "", nil
		}
		end := len(runes)
		if length >= 0 && start+length < end {
			end = start + length
		}
		return string(runes[start:end]), nil
	}, nil
}

// ToLower lower-cases text. Null yields "".
type ToLower struct{}

func (ToLower) Name() string { return "toLower" }

func (ToLower) compile(*compiler) (evalFunc, error) {
	return caseMapper(func() cases.Caser { return cases.Lower(language.Und) }), nil
}

// ToUpper upper-cases text. Null yields "".
type ToUpper struct{}

func (ToUpper) Name() string { return "toUpper" }

func (ToUpper) compile(*compiler) (evalFunc, error) {
	return caseMapper(func() cases.Caser { return cases.Upper(language.Und) }), nil
}

// caseMapper builds a Caser per call since a Caser must not be shared
// between goroutines.
func caseMapper(newCaser func() cases.Caser) evalFunc {
	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return "", nil
		}
		return newCaser().String(valueToString(v)), nil
	}
}

// Concat joins field values and literals with Separator. Fields is a
// shorthand for a list of field operands and is read before Parts. If any
// part is null the result is null.
type Concat struct {
	Fields    []string
	Parts     []Operand
	Separator string
}

func (Concat) Name() string { return "concat" }

func (t Concat) compile(*compiler) (evalFunc, error) {
	parts := make([]Operand, 0, len(t.Fields)+len(t.Parts))
	for _, f := range t.Fields {
		parts = append(parts, FieldRef(f))
	}
	for _, p := range t.Parts {
		parts = append(parts, p.normalized())
	}
	if len(parts) == 0 {
		return nil, configError("fields", "concat requires at least one field or part")
	}
	sep := t.Separator
	return func(r *Record, _ any) (any, error) {
		var b strings.Builder
		for i, p := range parts {
			v := p.resolve(r)
			if v == nil {
				return nil, nil
			}
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(valueToString(v))
		}
		return b.String(), nil
	}, nil
}

// Literal sets a constant value.
type Literal struct {
	Value any
}

func (Literal) Name() string { return "literal" }

func (t Literal) compile(*compiler) (evalFunc, error) {
	v := normalize(t.Value)
	return func(*Record, any) (any, error) { return v, nil }, nil
}

// Copy copies the source value unchanged.
type Copy struct{}

func (Copy) Name() string { return "copy" }

func (Copy) compile(*compiler) (evalFunc, error) {
	return func(_ *Record, v any) (any, error) { return v, nil }, nil
}

// Arithmetic operators supported by Arith.
const (
	OpAdd = "add"
	OpSub = "sub"
	OpMul = "mul"
	OpDiv = "div"
)

// Arith folds Operands left to right with Op. Any null operand yields null.
// Integer inputs stay integers except for division.
type Arith struct {
	Op       string
	Operands []Operand
}

func (Arith) Name() string { return "arith" }

func (t Arith) compile(*compiler) (evalFunc, error) {
	switch t.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
	default:
		return nil, configError("op", "unknown arithmetic operator %q", t.Op)
	}
	if len(t.Operands) < 2 {
		return nil, configError("operands", "%s requires at least two operands", t.Op)
	}
	operands := make([]Operand, len(t.Operands))
	for i, o := range t.Operands {
		operands[i] = o.normalized()
	}
	op := t.Op

	return func(r *Record, _ any) (any, error) {
		values := make([]any, len(operands))
		allInts := op != OpDiv
		for i, o := range operands {
			v := o.resolve(r)
			if v == nil {
				return nil, nil
			}
			if _, ok := v.(int64); !ok {
				allInts = false
			}
			values[i] = v
		}

		if allInts {
			acc := values[0].(int64)
			for i, v := range values[1:] {
				n := v.(int64)
				ok := true
				switch op {
				case OpAdd:
					acc, ok = addInt64(acc, n)
				case OpSub:
					acc, ok = subInt64(acc, n)
				case OpMul:
					acc, ok = mulInt64(acc, n)
				}
				if !ok {
					return nil, computeFailure(operands[i+1].String(), op, "integer overflow")
				}
			}
			return acc, nil
		}

		acc, err := valueToNumber(values[0])
		if err != nil {
			return nil, computeFailure(operands[0].String(), op, err.Error())
		}
		for i, v := range values[1:] {
			n, err := valueToNumber(v)
			if err != nil {
				return nil, computeFailure(operands[i+1].String(), op, err.Error())
			}
			switch op {
			case OpAdd:
				acc += n
			case OpSub:
				acc -= n
			case OpMul:
				acc *= n
			case OpDiv:
				if n == 0 {
					return nil, computeFailure(operands[i+1].String(), op, "division by zero")
				}
				acc /= n
			}
		}
		if math.IsNaN(acc) || math.IsInf(acc, 0) {
			return nil, computeFailure(operands[0].String(), op, "result is not a finite number")
		}
		return acc, nil
	}, nil
}

// PercentChange computes (New - Old) / Old * 100. A zero Old value is a
// computation error; a null operand yields null.
type PercentChange struct {
	Old Operand
	New Operand
}

func (PercentChange) Name() string { return "percentChange" }

func (t PercentChange) compile(*compiler) (evalFunc, error) {
	if t.Old.Field == "" && t.Old.Value == nil {
		return nil, configError("old", "old operand is required")
	}
	if t.New.Field == "" && t.New.Value == nil {
		return nil, configError("new", "new operand is required")
	}
	oldOp, newOp := t.Old.normalized(), t.New.normalized()
	return func(r *Record, _ any) (any, error) {
		return percentChange(oldOp.String(), oldOp.resolve(r), newOp.resolve(r))
	}, nil
}

func percentChange(field string, oldV, newV any) (any, error) {
	if oldV == nil || newV == nil {
		return nil, nil
	}
	o, err := valueToNumber(oldV)
	if err != nil {
		return nil, computeFailure(field, "percentChange", err.Error())
	}
	n, err := valueToNumber(newV)
	if err != nil {
		return nil, computeFailure(field, "percentChange", err.Error())
	}
	if o == 0 {
		return nil, computeFailure(field, "percentChange", "division by zero")
	}
	if !isFinite(o) || !isFinite(n) {
		return nil, computeFailure(field, "percentChange", "operand is not a finite number")
	}
	od, nd := decimal.NewFromFloat(o), decimal.NewFromFloat(n)
	return nd.Sub(od).Div(od).Mul(decimal.NewFromInt(100)).InexactFloat64(), nil
}

// Round rounds a number half away from zero to Places decimals.
type Round struct {
	Places int32
}

func (Round) Name() string { return "round" }

func (t Round) compile(*compiler) (evalFunc, error) {
	if err := checkPlaces(t.Places); err != nil {
		return nil, err
	}
	places := t.Places
	return func(_ *Record, v any) (any, error) {
		return roundValue("", v, places)
	}, nil
}

func checkPlaces(places int32) error {
	if places < -15 || places > 15 {
		return configError("places", "decimal places %d out of range -15..15", places)
	}
	return nil
}

// roundValue rounds v half away from zero. Integers are returned unchanged
// when places is not negative.
func roundValue(field string, v any, places int32) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		if places >= 0 {
			return val, nil
		}
		return decimal.NewFromInt(val).Round(places).IntPart(), nil
	}
	n, err := valueToNumber(v)
	if err != nil {
		return nil, computeFailure(field, "round", err.Error())
	}
	if !isFinite(n) {
		return nil, computeFailure(field, "round", "value is not a finite number")
	}
	return roundHalfAwayFromZero(n, places), nil
}

// roundHalfAwayFromZero rounds the shortest decimal representation of x, so
// 2.675 rounds to 2.68 even though its binary value is slightly below.
func roundHalfAwayFromZero(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// MapCase is one entry of a MapValue lookup.
type MapCase struct {
	When any
	Then any
}

// MapValue replaces the source value with the Then of the first case whose
// When equals it, or Default when none does.
type MapValue struct {
	Cases   []MapCase
	Default any
}

func (MapValue) Name() string { return "mapValue" }

func (t MapValue) compile(*compiler) (evalFunc, error) {
	if len(t.Cases) == 0 {
		return nil, configError("cases", "mapValue requires at least one case")
	}
	cs := make([]MapCase, len(t.Cases))
	for i, c := range t.Cases {
		cs[i] = MapCase{When: normalize(c.When), Then: normalize(c.Then)}
	}
	def := normalize(t.Default)
	return func(_ *Record, v any) (any, error) {
		for _, c := range cs {
			if valuesEqual(v, c.When) {
				return c.Then, nil
			}
		}
		return def, nil
	}, nil
}

// Cond yields Then when every predicate in Where holds, Else otherwise.
type Cond struct {
	Where []Predicate
	Then  Operand
	Else  Operand
}

func (Cond) Name() string { return "cond" }

func (t Cond) compile(*compiler) (evalFunc, error) {
	if len(t.Where) == 0 {
		return nil, configError("where", "cond requires at least one predicate")
	}
	preds, err := compilePredicates(t.Where)
	if err != nil {
		return nil, err
	}
	then, els := t.Then.normalized(), t.Else.normalized()
	return func(r *Record, _ any) (any, error) {
		if matchAll(preds, r) {
			return then.resolve(r), nil
		}
		return els.resolve(r), nil
	}, nil
}
