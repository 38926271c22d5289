// Package pipeline implements an in-memory grouping, aggregation and text
// classification engine over tables of loosely typed records.
//
// A pipeline is an ordered list of stages applied one after another to a
// materialized table:
//   - Derive adds computed fields (date parsing, substrings, classification)
//   - Filter keeps records matching every predicate
//   - Where keeps records matching a boolean expression
//   - GroupAggregate reduces partitions to one record each
//   - Reshape renames, projects, drops and rounds fields
//   - Sort orders records stably
//   - TopN keeps the first N records per partition
//   - Union, Join and Compare combine the table with another stage chain
//   - Unwind expands lists and split strings into one record per element
//   - Limit slices the table
//
// # Basic Usage
//
//	p, err := pipeline.New([]pipeline.Stage{
//	    pipeline.Filter{Predicates: []pipeline.Predicate{
//	        {Field: "Cancelled", Op: pipeline.OpEq, Value: 1},
//	    }},
//	    pipeline.GroupAggregate{
//	        Keys:       []string{"Airline"},
//	        Aggregates: []pipeline.Aggregate{{As: "numOfFlights", Fn: pipeline.FnCount}},
//	    },
//	    pipeline.Sort{Keys: []pipeline.SortKey{pipeline.Asc("Airline")}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := p.Run(ctx, flights)
//
// # Errors
//
// New validates all stages up front and returns a *ConfigurationError for
// unknown operators, transforms or aggregate functions. During a run, values
// that cannot be parsed produce a *ParseError and undefined arithmetic (such
// as division by zero) produces a *ComputationError. WithParsePolicy and
// WithComputationPolicy choose whether such failures abort the run or skip
// the record / substitute null. The package never logs.
//
// # Values
//
// Record values are nil, string, int64, float64, bool or time.Time. Other
// integer and float widths are normalized when set. Numbers compare by value
// across int64 and float64, and mixed types sort as
// null < number < string < bool < date.
package pipeline
