package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomTable(seed uint64, n int) Table {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	airlines := []any{"SQ", "MH", "TR", nil, int64(1), 1.0, int64(1) << 53, int64(1)<<53 + 1, float64(1 << 53)}
	statuses := []any{"Delayed", "Cancelled", "On Time"}

	out := make(Table, n)
	for i := range out {
		rec := RecordOf("seq", i, "n", rng.IntN(100))
		if a := airlines[rng.IntN(len(airlines))]; a != nil || rng.IntN(2) == 0 {
			rec.Set("Airline", a)
		}
		rec.Set("Status", statuses[rng.IntN(len(statuses))])
		out[i] = rec
	}
	return out
}

// canonicalKey maps integral floats onto int64 so that 1 and 1.0 count as
// one key value.
func canonicalKey(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func TestGroupCardinalityMatchesDistinctKeys(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		in := randomTable(seed, 1+int(seed)*7)

		distinct := map[[2]any]struct{}{}
		for _, r := range in {
			distinct[[2]any{canonicalKey(r.Get("Airline")), canonicalKey(r.Get("Status"))}] = struct{}{}
		}

		out, err := Run(context.Background(), in, []Stage{
			GroupAggregate{Keys: []string{"Airline", "Status"}, Aggregates: []Aggregate{{As: "count", Fn: FnCount}}},
		})
		require.NoError(t, err)
		assert.Len(t, out, len(distinct), "seed %d", seed)

		var total int64
		for _, r := range out {
			total += r.Get("count").(int64)
		}
		assert.Equal(t, int64(len(in)), total, "seed %d", seed)
	}
}

func TestSortIsStable(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		in := randomTable(seed, 50)
		out, err := Run(context.Background(), in, []Stage{Sort{Keys: []SortKey{Asc("Status")}}})
		require.NoError(t, err)
		require.Len(t, out, len(in))

		for i := 1; i < len(out); i++ {
			if out[i-1].Get("Status") != out[i].Get("Status") {
				continue
			}
			assert.Less(t, out[i-1].Get("seq").(int64), out[i].Get("seq").(int64), "seed %d", seed)
		}
	}
}

func TestRenameRoundTrip(t *testing.T) {
	in := Table{RecordOf("A", 1.5, "other", "x")}
	out, err := Run(context.Background(), in, []Stage{
		Reshape{Fields: []FieldMapping{{From: "A", To: "B"}, {From: "B", To: "A"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, in[0].Map(), out[0].Map())
	assert.Equal(t, in[0].Fields(), out[0].Fields())
}

func TestFilterIsIdempotent(t *testing.T) {
	f := Filter{Predicates: []Predicate{
		{Field: "n", Op: OpGte, Value: 40},
		{Field: "Status", Op: OpNeq, Value: "On Time"},
	}}
	in := randomTable(7, 80)

	once, err := Run(context.Background(), in, []Stage{f})
	require.NoError(t, err)
	twice, err := Run(context.Background(), in, []Stage{f, f})
	require.NoError(t, err)

	assert.Equal(t, once.Maps(), twice.Maps())
}

func TestClassificationFirstMatchWins(t *testing.T) {
	tr := SwitchMap{Rules: []Rule{{Label: "Food", Pattern: "food"}, {Label: "Seat", Pattern: "seat"}}}
	assert.Equal(t, "Food", deriveOne(t, RecordOf("text", "the food and seat were bad"), "text", tr))

	reversed := SwitchMap{Rules: []Rule{{Label: "Seat", Pattern: "seat"}, {Label: "Food", Pattern: "food"}}}
	assert.Equal(t, "Seat", deriveOne(t, RecordOf("text", "the food and seat were bad"), "text", reversed))
}

func TestCategoryCleaning(t *testing.T) {
	allowed := []any{"SHIPPING", "REFUND", "PAYMENT", "ORDER", "INVOICE", "FEEDBACK", "CONTACT", "CANCEL"}

	var in Table
	for i, c := range allowed {
		for j := 0; j <= i%3; j++ {
			in = append(in, RecordOf("category", c))
		}
	}
	for i := range 28 {
		in = append(in, RecordOf("category", fmt.Sprintf("Noise %02d", i)))
	}

	out, err := Run(context.Background(), in, []Stage{
		Filter{Predicates: []Predicate{{Field: "category", Op: OpIn, Value: allowed}}},
		GroupAggregate{Keys: []string{"category"}, Aggregates: []Aggregate{{As: "NumberOfEntries", Fn: FnCount}}},
		Reshape{Fields: []FieldMapping{{From: "category", To: "Category"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, allowed, column(out, "Category"))
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(1), int64(2), int64(3), int64(1), int64(2)}, column(out, "NumberOfEntries"))
}
