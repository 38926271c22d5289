package pipeline

import "sort"

// SortKey is one ordering key. Null and missing values sort first in
// ascending order and last in descending order.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc returns an ascending sort key.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc returns a descending sort key.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// Sort orders records by Keys. The sort is stable: records that compare
// equal on every key keep their input order.
type Sort struct {
	Keys []SortKey
}

// Kind implements Stage.
func (Sort) Kind() string { return "sort" }

func (s Sort) compile(*compiler) (stepFunc, error) {
	keys, err := checkSortKeys(s.Keys)
	if err != nil {
		return nil, err
	}
	return func(_ *ExecutionContext, in Table) (Table, error) {
		return sortRecords(in, keys), nil
	}, nil
}

func checkSortKeys(keys []SortKey) ([]SortKey, error) {
	if len(keys) == 0 {
		return nil, configError("keys", "at least one sort key is required")
	}
	for _, k := range keys {
		if k.Field == "" {
			return nil, configError("keys", "sort key has no field")
		}
	}
	return append([]SortKey(nil), keys...), nil
}

// sortRecords returns a stably sorted copy of rows.
func sortRecords(rows Table, keys []SortKey) Table {
	sorted := make(Table, len(rows))
	copy(sorted, rows)
	if len(sorted) < 2 {
		return sorted
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		for _, k := range keys {
			cmp := compareValues(sorted[i].Get(k.Field), sorted[j].Get(k.Field))
			if cmp != 0 {
				if k.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return false
	})
	return sorted
}

// TopN keeps the first N records of each partition after stably sorting the
// partition by OrderBy. Partitions are emitted in order of first appearance;
// ties keep the record encountered first.
type TopN struct {
	PartitionBy []string
	OrderBy     []SortKey
	N           int
}

// Kind implements Stage.
func (TopN) Kind() string { return "topN" }

func (t TopN) compile(*compiler) (stepFunc, error) {
	if t.N < 1 {
		return nil, configError("n", "n must be at least 1, got %d", t.N)
	}
	keys, err := checkSortKeys(t.OrderBy)
	if err != nil {
		return nil, err
	}
	partitionBy := append([]string(nil), t.PartitionBy...)
	n := t.N

	return func(_ *ExecutionContext, in Table) (Table, error) {
		partitions := make(map[string]Table)
		var order []string
		for _, r := range in {
			key := groupKey(r, partitionBy)
			if _, exists := partitions[key]; !exists {
				order = append(order, key)
			}
			partitions[key] = append(partitions[key], r)
		}

		out := make(Table, 0, min(len(in), len(order)*n))
		for _, key := range order {
			sorted := sortRecords(partitions[key], keys)
			if len(sorted) > n {
				sorted = sorted[:n]
			}
			out = append(out, sorted...)
		}
		return out, nil
	}, nil
}

// Limit skips Offset records and keeps at most Count of the rest. A zero
// Count keeps everything after the offset.
type Limit struct {
	Offset int
	Count  int
}

// Kind implements Stage.
func (Limit) Kind() string { return "limit" }

func (l Limit) compile(*compiler) (stepFunc, error) {
	if l.Offset < 0 {
		return nil, configError("offset", "offset must not be negative")
	}
	if l.Count < 0 {
		return nil, configError("count", "count must not be negative")
	}
	offset, count := l.Offset, l.Count
	return func(_ *ExecutionContext, in Table) (Table, error) {
		if offset >= len(in) {
			return Table{}, nil
		}
		end := len(in)
		if count > 0 && offset+count < end {
			end = offset + count
		}
		out := make(Table, end-offset)
		copy(out, in[offset:end])
		return out, nil
	}, nil
}
