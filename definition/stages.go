package definition

import (
	"fmt"
	"sort"

	"github.com/vegasq/aggcat/pipeline"
)

type derivationSpec struct {
	Target    string         `mapstructure:"target"`
	Source    string         `mapstructure:"source"`
	Transform string         `mapstructure:"transform"`
	Options   map[string]any `mapstructure:",remain"`
}

type predicateSpec struct {
	Field           string `mapstructure:"field"`
	Op              string `mapstructure:"op"`
	Value           any    `mapstructure:"value"`
	CaseInsensitive bool   `mapstructure:"case_insensitive"`
}

type aggregateSpec struct {
	As    string `mapstructure:"as"`
	Fn    string `mapstructure:"fn"`
	Field string `mapstructure:"field"`
}

type groupSpec struct {
	Keys       []string        `mapstructure:"keys"`
	Aggregates []aggregateSpec `mapstructure:"aggregates"`
}

type renameSpec struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type reshapeSpec struct {
	Rename []renameSpec     `mapstructure:"rename"`
	Keep   []string         `mapstructure:"keep"`
	Drop   []string         `mapstructure:"drop"`
	Round  map[string]int32 `mapstructure:"round"`
}

type chainSpec struct {
	Source string           `mapstructure:"source"`
	Stages []map[string]any `mapstructure:"stages"`
}

type joinSpec struct {
	chainSpec `mapstructure:",squash"`

	On     []string `mapstructure:"on"`
	Prefix string   `mapstructure:"prefix"`
	Type   string   `mapstructure:"type"`
}

type metricSpec struct {
	Field string `mapstructure:"field"`
	As    string `mapstructure:"as"`
}

type compareSpec struct {
	chainSpec `mapstructure:",squash"`

	On      []string     `mapstructure:"on"`
	Carry   []string     `mapstructure:"carry"`
	Metrics []metricSpec `mapstructure:"metrics"`
	Places  *int32       `mapstructure:"places"`
}

type topNSpec struct {
	PartitionBy []string           `mapstructure:"partition_by"`
	OrderBy     []pipeline.SortKey `mapstructure:"order_by"`
	N           int                `mapstructure:"n"`
}

type unwindSpec struct {
	Field     string `mapstructure:"field"`
	Separator string `mapstructure:"separator"`
	As        string `mapstructure:"as"`
}

type limitSpec struct {
	Offset int `mapstructure:"offset"`
	Count  int `mapstructure:"count"`
}

// decodeStages turns the raw stage list into typed stages. Each entry is a
// single-key map from stage kind to its options.
func decodeStages(raw []map[string]any) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(raw))
	for i, entry := range raw {
		if len(entry) != 1 {
			keys := make([]string, 0, len(entry))
			for k := range entry {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, &pipeline.ConfigurationError{
				Stage:  i,
				Kind:   "unknown",
				Reason: fmt.Sprintf("stage must have exactly one kind, got %v", keys),
			}
		}
		for kind, options := range entry {
			s, err := decodeStage(kind, options)
			if err != nil {
				return nil, &pipeline.ConfigurationError{Stage: i, Kind: kind, Reason: err.Error()}
			}
			stages = append(stages, s)
		}
	}
	return stages, nil
}

func decodeStage(kind string, options any) (pipeline.Stage, error) {
	switch kind {
	case "derive":
		var specs []derivationSpec
		if err := decode(options, &specs); err != nil {
			return nil, err
		}
		return buildDerive(specs)

	case "filter":
		var specs []predicateSpec
		if err := decode(options, &specs); err != nil {
			return nil, err
		}
		return pipeline.Filter{Predicates: predicates(specs)}, nil

	case "where":
		expr, ok := options.(string)
		if !ok {
			return nil, fmt.Errorf("where takes an expression string, got %T", options)
		}
		return pipeline.Where{Expr: expr}, nil

	case "group":
		var spec groupSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		aggs := make([]pipeline.Aggregate, len(spec.Aggregates))
		for i, a := range spec.Aggregates {
			aggs[i] = pipeline.Aggregate{As: a.As, Fn: a.Fn, Field: a.Field}
		}
		return pipeline.GroupAggregate{Keys: spec.Keys, Aggregates: aggs}, nil

	case "reshape":
		var spec reshapeSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		fields := make([]pipeline.FieldMapping, len(spec.Rename))
		for i, r := range spec.Rename {
			fields[i] = pipeline.FieldMapping{From: r.From, To: r.To}
		}
		return pipeline.Reshape{Fields: fields, Keep: spec.Keep, Drop: spec.Drop, Round: spec.Round}, nil

	case "sort":
		var keys []pipeline.SortKey
		if err := decode(options, &keys); err != nil {
			return nil, err
		}
		return pipeline.Sort{Keys: keys}, nil

	case "union":
		var spec chainSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		stages, err := spec.stages()
		if err != nil {
			return nil, err
		}
		return pipeline.Union{Source: spec.Source, Stages: stages}, nil

	case "join":
		var spec joinSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		stages, err := spec.stages()
		if err != nil {
			return nil, err
		}
		return pipeline.Join{Source: spec.Source, Stages: stages, On: spec.On, Prefix: spec.Prefix, Type: spec.Type}, nil

	case "compare":
		var spec compareSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		stages, err := spec.stages()
		if err != nil {
			return nil, err
		}
		metrics := make([]pipeline.Metric, len(spec.Metrics))
		for i, m := range spec.Metrics {
			metrics[i] = pipeline.Metric{Field: m.Field, As: m.As}
		}
		return pipeline.Compare{
			Source:  spec.Source,
			Stages:  stages,
			On:      spec.On,
			Carry:   spec.Carry,
			Metrics: metrics,
			Places:  spec.Places,
		}, nil

	case "topN":
		var spec topNSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		return pipeline.TopN{PartitionBy: spec.PartitionBy, OrderBy: spec.OrderBy, N: spec.N}, nil

	case "unwind":
		var spec unwindSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		return pipeline.Unwind{Field: spec.Field, Separator: spec.Separator, As: spec.As}, nil

	case "limit":
		var spec limitSpec
		if err := decode(options, &spec); err != nil {
			return nil, err
		}
		return pipeline.Limit{Offset: spec.Offset, Count: spec.Count}, nil
	}
	return nil, fmt.Errorf("unknown stage kind %q", kind)
}

func (c chainSpec) stages() ([]pipeline.Stage, error) {
	stages, err := decodeStages(c.Stages)
	if err != nil {
		return nil, fmt.Errorf("sub-chain %w", err)
	}
	return stages, nil
}

func predicates(specs []predicateSpec) []pipeline.Predicate {
	preds := make([]pipeline.Predicate, len(specs))
	for i, p := range specs {
		preds[i] = pipeline.Predicate{Field: p.Field, Op: p.Op, Value: p.Value, CaseInsensitive: p.CaseInsensitive}
	}
	return preds
}

func buildDerive(specs []derivationSpec) (pipeline.Stage, error) {
	derivations := make([]pipeline.Derivation, len(specs))
	for i, s := range specs {
		tr, err := decodeTransform(s.Transform, s.Options)
		if err != nil {
			return nil, fmt.Errorf("derivation %d (%s): %w", i, s.Target, err)
		}
		derivations[i] = pipeline.Derivation{Target: s.Target, Source: s.Source, Transform: tr}
	}
	return pipeline.Derive{Derivations: derivations}, nil
}
