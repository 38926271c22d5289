package pipeline

import (
	"fmt"
	"strings"
)

// Aggregate functions.
const (
	FnCount = "count"
	FnSum   = "sum"
	FnAvg   = "avg"
	FnMin   = "min"
	FnMax   = "max"
	FnFirst = "first"
	FnLast  = "last"
)

// Aggregate reduces the records of a partition to one value stored in As.
//
// count without a Field counts records; with a Field it counts non-null
// values. sum, avg, min and max ignore nulls. sum of no values is 0; avg,
// min and max of no values are null. first and last take the value from
// the first or last record of the partition, null included.
type Aggregate struct {
	As    string
	Fn    string
	Field string
}

// GroupAggregate partitions records by the Keys tuple and emits one record
// per partition, in order of first appearance: the key fields in key order,
// then the aggregates in declared order. Missing key fields form the null
// key.
type GroupAggregate struct {
	Keys       []string
	Aggregates []Aggregate
}

// Kind implements Stage.
func (GroupAggregate) Kind() string { return "group" }

// group holds the records of one partition.
type group struct {
	values []any
	rows   []*Record
	first  int // position of the first record in the stage input
}

func (g GroupAggregate) compile(*compiler) (stepFunc, error) {
	seen := make(map[string]bool, len(g.Keys)+len(g.Aggregates))
	for _, k := range g.Keys {
		if k == "" {
			return nil, configError("keys", "empty key field")
		}
		if seen[k] {
			return nil, configError(k, "duplicate key field")
		}
		seen[k] = true
	}
	if len(g.Keys) == 0 && len(g.Aggregates) == 0 {
		return nil, configError("", "group requires keys or aggregates")
	}

	aggs := make([]Aggregate, len(g.Aggregates))
	for i, a := range g.Aggregates {
		if a.As == "" {
			return nil, configError("", "aggregate %d has no output name", i)
		}
		if seen[a.As] {
			return nil, configError(a.As, "output field defined twice")
		}
		seen[a.As] = true

		fn := strings.ToLower(a.Fn)
		switch fn {
		case FnCount:
		case FnSum, FnAvg, FnMin, FnMax, FnFirst, FnLast:
			if a.Field == "" {
				return nil, configError(a.As, "%s requires a field", fn)
			}
		default:
			return nil, configError(a.As, "unknown aggregate function %q", a.Fn)
		}
		aggs[i] = Aggregate{As: a.As, Fn: fn, Field: a.Field}
	}
	keys := append([]string(nil), g.Keys...)

	return func(ec *ExecutionContext, in Table) (Table, error) {
		groups := make(map[string]*group)
		order := make([]*group, 0)
		for i, r := range in {
			key := groupKey(r, keys)
			grp, exists := groups[key]
			if !exists {
				values := make([]any, len(keys))
				for j, k := range keys {
					values[j] = r.Get(k)
				}
				grp = &group{values: values, first: i}
				groups[key] = grp
				order = append(order, grp)
			}
			grp.rows = append(grp.rows, r)
		}

		out := make(Table, 0, len(order))
		for _, grp := range order {
			rec := NewRecord()
			for j, k := range keys {
				rec.Set(k, grp.values[j])
			}
			for _, a := range aggs {
				v, err := evaluateAggregate(a, grp.rows)
				if err != nil {
					if _, perr := ec.applyPolicy(grp.first, err); perr != nil {
						return nil, perr
					}
					v = nil
				}
				rec.Set(a.As, v)
			}
			out = append(out, rec)
		}
		return out, nil
	}, nil
}

// evaluateAggregate evaluates an aggregate function over the rows of one
// partition.
func evaluateAggregate(a Aggregate, rows []*Record) (any, error) {
	switch a.Fn {
	case FnCount:
		return evaluateCount(a, rows), nil
	case FnSum:
		return evaluateSum(a, rows)
	case FnAvg:
		return evaluateAvg(a, rows)
	case FnMin:
		return evaluateExtreme(a, rows, -1), nil
	case FnMax:
		return evaluateExtreme(a, rows, 1), nil
	case FnFirst:
		return rows[0].Get(a.Field), nil
	case FnLast:
		return rows[len(rows)-1].Get(a.Field), nil
	default:
		return nil, fmt.Errorf("unknown aggregate function: %s", a.Fn)
	}
}

func evaluateCount(a Aggregate, rows []*Record) int64 {
	if a.Field == "" {
		return int64(len(rows))
	}
	count := int64(0)
	for _, r := range rows {
		if r.Get(a.Field) != nil {
			count++
		}
	}
	return count
}

// evaluateSum returns an int64 when every value is an integer and a
// float64 otherwise. An integer sum that overflows is a computation error.
func evaluateSum(a Aggregate, rows []*Record) (any, error) {
	var (
		intSum   int64
		floatSum float64
		isFloat  bool
	)
	for _, r := range rows {
		v := r.Get(a.Field)
		if v == nil {
			continue
		}
		if n, ok := v.(int64); ok && !isFloat {
			if intSum, ok = addInt64(intSum, n); !ok {
				return nil, computeFailure(a.Field, FnSum, "integer overflow")
			}
			continue
		}
		n, err := valueToNumber(v)
		if err != nil {
			return nil, computeFailure(a.Field, FnSum, err.Error())
		}
		if !isFloat {
			floatSum = float64(intSum)
			isFloat = true
		}
		floatSum += n
	}
	if isFloat {
		return floatSum, nil
	}
	return intSum, nil
}

func evaluateAvg(a Aggregate, rows []*Record) (any, error) {
	sum := 0.0
	count := 0
	for _, r := range rows {
		v := r.Get(a.Field)
		if v == nil {
			continue
		}
		n, err := valueToNumber(v)
		if err != nil {
			return nil, computeFailure(a.Field, FnAvg, err.Error())
		}
		sum += n
		count++
	}
	if count == 0 {
		return nil, nil
	}
	return sum / float64(count), nil
}

// evaluateExtreme returns the minimum (dir -1) or maximum (dir 1) non-null
// value. Numbers, strings and dates are ordered with compareValues.
func evaluateExtreme(a Aggregate, rows []*Record, dir int) any {
	var best any
	for _, r := range rows {
		v := r.Get(a.Field)
		if v == nil {
			continue
		}
		if best == nil || compareValues(v, best)*dir > 0 {
			best = v
		}
	}
	return best
}
