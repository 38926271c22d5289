package pipeline

import "strings"

// Union appends the output of an independent stage chain to the current
// table. The chain reads Source from the catalog, or the run's input table
// when Source is empty.
type Union struct {
	Source string
	Stages []Stage
}

// Kind implements Stage.
func (Union) Kind() string { return "union" }

func (u Union) compile(c *compiler) (stepFunc, error) {
	steps, err := c.compileSubChain(u.Source, u.Stages)
	if err != nil {
		return nil, err
	}
	source := u.Source
	return func(ec *ExecutionContext, in Table) (Table, error) {
		other, err := ec.runChain(source, steps)
		if err != nil {
			return nil, err
		}
		out := make(Table, 0, len(in)+len(other))
		out = append(out, in...)
		out = append(out, other...)
		return out, nil
	}, nil
}

// Join types.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
)

// Join pairs each record with the records of another stage chain that have
// the same values for every On field. Fields from the other side, except
// the On fields, are added with Prefix prepended; a name already present on
// the current record keeps its current value. An inner join drops records
// without a match; a left join keeps them unchanged. A record with several
// matches yields one output record per match, in match order.
type Join struct {
	Source string
	Stages []Stage
	On     []string
	Prefix string
	Type   string
}

// Kind implements Stage.
func (Join) Kind() string { return "join" }

func (j Join) compile(c *compiler) (stepFunc, error) {
	if len(j.On) == 0 {
		return nil, configError("on", "join requires at least one key field")
	}
	kind := strings.ToLower(j.Type)
	switch kind {
	case "":
		kind = JoinInner
	case JoinInner, JoinLeft:
	default:
		return nil, configError("type", "unknown join type %q", j.Type)
	}
	steps, err := c.compileSubChain(j.Source, j.Stages)
	if err != nil {
		return nil, err
	}
	on := append([]string(nil), j.On...)
	isKey := make(map[string]bool, len(on))
	for _, k := range on {
		isKey[k] = true
	}
	source, prefix := j.Source, j.Prefix

	return func(ec *ExecutionContext, in Table) (Table, error) {
		right, err := ec.runChain(source, steps)
		if err != nil {
			return nil, err
		}
		index := indexBy(right, on)

		out := make(Table, 0, len(in))
		for _, l := range in {
			matches := index[groupKey(l, on)]
			if len(matches) == 0 {
				if kind == JoinLeft {
					out = append(out, l)
				}
				continue
			}
			for _, r := range matches {
				rec := l.Clone()
				for _, f := range r.fields {
					if isKey[f] {
						continue
					}
					name := prefix + f
					if rec.Has(name) {
						continue
					}
					rec.Set(name, r.values[f])
				}
				out = append(out, rec)
			}
		}
		return out, nil
	}, nil
}

func indexBy(rows Table, keys []string) map[string]Table {
	index := make(map[string]Table, len(rows))
	for _, r := range rows {
		k := groupKey(r, keys)
		index[k] = append(index[k], r)
	}
	return index
}

// Metric names a numeric field compared by Compare. As defaults to the
// field name with a "_change" suffix.
type Metric struct {
	Field string
	As    string
}

// Compare computes the percentage change of each metric between the
// current table (the new period) and a baseline chain (the old period),
// pairing records on the On fields. Records without a baseline match are
// dropped; when several baseline records match, the first is used.
//
// Each output record holds the Carry fields of the current record, then the
// On fields, then one field per metric holding (new - old) / old * 100
// rounded to Places decimals (2 when nil).
type Compare struct {
	Source  string
	Stages  []Stage
	On      []string
	Carry   []string
	Metrics []Metric
	Places  *int32
}

// Kind implements Stage.
func (Compare) Kind() string { return "compare" }

func (cmp Compare) compile(c *compiler) (stepFunc, error) {
	if len(cmp.On) == 0 {
		return nil, configError("on", "compare requires at least one key field")
	}
	if len(cmp.Metrics) == 0 {
		return nil, configError("metrics", "compare requires at least one metric")
	}
	places := int32(2)
	if cmp.Places != nil {
		places = *cmp.Places
	}
	if err := checkPlaces(places); err != nil {
		return nil, err
	}

	var fields []string
	seen := make(map[string]bool)
	for _, f := range append(append([]string(nil), cmp.Carry...), cmp.On...) {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	metrics := make([]Metric, len(cmp.Metrics))
	for i, m := range cmp.Metrics {
		if m.Field == "" {
			return nil, configError("metrics", "metric %d has no field", i)
		}
		if m.As == "" {
			m.As = m.Field + "_change"
		}
		if seen[m.As] {
			return nil, configError(m.As, "output field defined twice")
		}
		seen[m.As] = true
		metrics[i] = m
	}

	steps, err := c.compileSubChain(cmp.Source, cmp.Stages)
	if err != nil {
		return nil, err
	}
	source := cmp.Source
	on := append([]string(nil), cmp.On...)

	return func(ec *ExecutionContext, in Table) (Table, error) {
		baseline, err := ec.runChain(source, steps)
		if err != nil {
			return nil, err
		}
		index := indexBy(baseline, on)

		out := make(Table, 0, len(in))
		for i, cur := range in {
			matches := index[groupKey(cur, on)]
			if len(matches) == 0 {
				continue
			}
			old := matches[0]

			rec := NewRecord()
			for _, f := range fields {
				rec.Set(f, cur.Get(f))
			}
			for _, m := range metrics {
				v, err := percentChange(m.Field, old.Get(m.Field), cur.Get(m.Field))
				if err == nil {
					v, err = roundValue(m.Field, v, places)
				}
				if err != nil {
					if _, perr := ec.applyPolicy(i, err); perr != nil {
						return nil, perr
					}
					v = nil
				}
				rec.Set(m.As, v)
			}
			out = append(out, rec)
		}
		return out, nil
	}, nil
}
