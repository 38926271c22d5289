package pipeline

import (
	"errors"
	"fmt"
)

// Derive adds computed fields to every record. Derivations run in declared
// order, so a later derivation can read the target of an earlier one.
type Derive struct {
	Derivations []Derivation
}

// Derivation computes Target from the value of Source (which may be empty
// for transforms that read other fields or none at all).
type Derivation struct {
	Target    string
	Source    string
	Transform Transform
}

// Transform computes one derived value. The transform types in this package
// are the only implementations.
type Transform interface {
	// Name returns the transform name as written in query definitions.
	Name() string

	compile(c *compiler) (evalFunc, error)
}

// evalFunc computes a value from the record being derived and the value of
// the derivation's source field. Failures are returned as *fieldError.
type evalFunc func(r *Record, v any) (any, error)

// Kind implements Stage.
func (Derive) Kind() string { return "derive" }

type compiledDerivation struct {
	target string
	source string
	eval   evalFunc
}

func (d Derive) compile(c *compiler) (stepFunc, error) {
	if len(d.Derivations) == 0 {
		return nil, configError("", "derive requires at least one derivation")
	}

	derivations := make([]compiledDerivation, 0, len(d.Derivations))
	for i, dv := range d.Derivations {
		if dv.Target == "" {
			return nil, configError("", "derivation %d has no target", i)
		}
		if dv.Transform == nil {
			return nil, configError(dv.Target, "derivation has no transform")
		}
		eval, err := dv.Transform.compile(c)
		if err != nil {
			var ce *ConfigurationError
			if errors.As(err, &ce) {
				return nil, configError(dv.Target, "%s: %s", dv.Transform.Name(), ce.Reason)
			}
			return nil, configError(dv.Target, "%s: %v", dv.Transform.Name(), err)
		}
		derivations = append(derivations, compiledDerivation{
			target: dv.Target,
			source: dv.Source,
			eval:   eval,
		})
	}

	return func(ec *ExecutionContext, in Table) (Table, error) {
		out := make(Table, 0, len(in))
	records:
		for i, r := range in {
			rec := r.Clone()
			for _, dv := range derivations {
				v, err := dv.eval(rec, rec.Get(dv.source))
				if err != nil {
					var fe *fieldError
					if errors.As(err, &fe) && fe.field == "" {
						fe.field = dv.source
						if fe.field == "" {
							fe.field = dv.target
						}
					}
					action, perr := ec.applyPolicy(i, err)
					if perr != nil {
						return nil, perr
					}
					if action == recoverSkip {
						continue records
					}
					v = nil
				}
				rec.Set(dv.target, v)
			}
			out = append(out, rec)
		}
		return out, nil
	}, nil
}

// Operand is either a field reference or a literal value. When Field is set
// the literal is ignored.
type Operand struct {
	Field string
	Value any
}

// FieldRef returns an operand reading the named field.
func FieldRef(name string) Operand { return Operand{Field: name} }

// Lit returns a literal operand.
func Lit(v any) Operand { return Operand{Value: v} }

func (o Operand) resolve(r *Record) any {
	if o.Field != "" {
		return r.Get(o.Field)
	}
	return o.Value
}

func (o Operand) normalized() Operand {
	return Operand{Field: o.Field, Value: normalize(o.Value)}
}

func (o Operand) String() string {
	if o.Field != "" {
		return o.Field
	}
	return fmt.Sprintf("%v", o.Value)
}
