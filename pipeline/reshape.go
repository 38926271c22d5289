package pipeline

import "sort"

// FieldMapping renames From to To.
type FieldMapping struct {
	From string
	To   string
}

// Reshape produces the final projection of each record. The steps run in
// this order:
//
//  1. Fields renames in declared order; a renamed field keeps its position
//     and replaces any other field already named To. Renaming a missing
//     field does nothing.
//  2. Keep, when set, projects the record onto exactly these fields in this
//     order; missing fields become null.
//  3. Drop removes fields.
//  4. Round rounds numeric fields half away from zero.
type Reshape struct {
	Fields []FieldMapping
	Keep   []string
	Drop   []string
	Round  map[string]int32
}

// Kind implements Stage.
func (Reshape) Kind() string { return "reshape" }

type roundSpec struct {
	field  string
	places int32
}

func (s Reshape) compile(*compiler) (stepFunc, error) {
	if len(s.Fields) == 0 && len(s.Keep) == 0 && len(s.Drop) == 0 && len(s.Round) == 0 {
		return nil, configError("", "reshape does nothing")
	}
	for _, m := range s.Fields {
		if m.From == "" || m.To == "" {
			return nil, configError(m.From, "field mapping needs both from and to")
		}
	}
	kept := make(map[string]bool, len(s.Keep))
	for _, k := range s.Keep {
		if k == "" {
			return nil, configError("keep", "empty field name")
		}
		if kept[k] {
			return nil, configError(k, "field kept twice")
		}
		kept[k] = true
	}

	// Sort so that computation errors are reported in a stable order.
	rounds := make([]roundSpec, 0, len(s.Round))
	for f, p := range s.Round {
		if err := checkPlaces(p); err != nil {
			return nil, err
		}
		rounds = append(rounds, roundSpec{field: f, places: p})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].field < rounds[j].field })

	mappings := append([]FieldMapping(nil), s.Fields...)
	keep := append([]string(nil), s.Keep...)
	drop := append([]string(nil), s.Drop...)

	return func(ec *ExecutionContext, in Table) (Table, error) {
		out := make(Table, 0, len(in))
		for i, r := range in {
			rec := r
			for _, m := range mappings {
				rec = renameField(rec, m.From, m.To)
			}
			if len(keep) > 0 {
				proj := NewRecord()
				for _, k := range keep {
					proj.Set(k, rec.Get(k))
				}
				rec = proj
			} else if rec == r {
				rec = r.Clone()
			}
			for _, d := range drop {
				rec.Delete(d)
			}
			for _, rs := range rounds {
				v, present := rec.Lookup(rs.field)
				if !present {
					continue
				}
				rounded, err := roundValue(rs.field, v, rs.places)
				if err != nil {
					if _, perr := ec.applyPolicy(i, err); perr != nil {
						return nil, perr
					}
					rounded = nil
				}
				rec.Set(rs.field, rounded)
			}
			out = append(out, rec)
		}
		return out, nil
	}, nil
}

// renameField returns a copy of r with from renamed to to, or r itself when
// from is absent.
func renameField(r *Record, from, to string) *Record {
	v, ok := r.Lookup(from)
	if !ok || from == to {
		return r
	}
	out := &Record{
		fields: make([]string, 0, len(r.fields)),
		values: make(map[string]any, len(r.values)),
	}
	for _, f := range r.fields {
		switch f {
		case from:
			out.fields = append(out.fields, to)
			out.values[to] = v
		case to:
			// replaced by the renamed field
		default:
			out.fields = append(out.fields, f)
			out.values[f] = r.values[f]
		}
	}
	return out
}
