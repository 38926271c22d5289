package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Catalog resolves table names to materialized tables. It is used by stages
// that pull rows from another source (Union, Join, Compare).
type Catalog interface {
	FetchAll(ctx context.Context, table string) (Table, error)
}

// ParsePolicy decides what happens to a record whose value cannot be parsed.
type ParsePolicy string

const (
	// ParseFail aborts the run with a *ParseError.
	ParseFail ParsePolicy = "fail"
	// ParseSkip drops the offending record from the stage output.
	ParseSkip ParsePolicy = "skip"
)

// ComputationPolicy decides what happens on undefined arithmetic.
type ComputationPolicy string

const (
	// ComputationAbort aborts the run with a *ComputationError.
	ComputationAbort ComputationPolicy = "abort"
	// ComputationNull substitutes null for the result and continues.
	ComputationNull ComputationPolicy = "null"
)

// ParseParsePolicy converts a configuration string into a ParsePolicy.
// An empty string selects the default, ParseFail.
func ParseParsePolicy(s string) (ParsePolicy, error) {
	switch ParsePolicy(s) {
	case "", ParseFail:
		return ParseFail, nil
	case ParseSkip:
		return ParseSkip, nil
	}
	return "", fmt.Errorf("unknown parse error policy %q (want fail or skip)", s)
}

// ParseComputationPolicy converts a configuration string into a
// ComputationPolicy. An empty string selects the default, ComputationAbort.
func ParseComputationPolicy(s string) (ComputationPolicy, error) {
	switch ComputationPolicy(s) {
	case "", ComputationAbort:
		return ComputationAbort, nil
	case ComputationNull:
		return ComputationNull, nil
	}
	return "", fmt.Errorf("unknown computation error policy %q (want abort or null)", s)
}

type options struct {
	parse   ParsePolicy
	compute ComputationPolicy
	catalog Catalog
}

// Option configures a Pipeline.
type Option func(*options)

// WithParsePolicy sets the parse error policy. The default is ParseFail.
func WithParsePolicy(p ParsePolicy) Option {
	return func(o *options) { o.parse = p }
}

// WithComputationPolicy sets the computation error policy. The default is
// ComputationAbort.
func WithComputationPolicy(p ComputationPolicy) Option {
	return func(o *options) { o.compute = p }
}

// WithCatalog sets the catalog used to resolve stage sources.
func WithCatalog(c Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// Stage is one transformation step. The concrete stage types in this
// package are the only implementations.
type Stage interface {
	// Kind returns the stage name used in errors and statistics.
	Kind() string

	compile(c *compiler) (stepFunc, error)
}

type stepFunc func(ec *ExecutionContext, in Table) (Table, error)

type compiledStage struct {
	kind  string
	apply stepFunc
}

// Pipeline is a validated, immutable list of stages. It is safe for
// concurrent use.
type Pipeline struct {
	stages []Stage
	steps  []compiledStage
	opts   options
}

// New validates every stage and returns a pipeline ready to run. All
// configuration problems are reported here as *ConfigurationError, before
// any records are read.
func New(stages []Stage, opts ...Option) (*Pipeline, error) {
	o := options{parse: ParseFail, compute: ComputationAbort}
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := ParseParsePolicy(string(o.parse)); err != nil {
		return nil, &ConfigurationError{Stage: -1, Kind: "pipeline", Reason: err.Error()}
	}
	if _, err := ParseComputationPolicy(string(o.compute)); err != nil {
		return nil, &ConfigurationError{Stage: -1, Kind: "pipeline", Reason: err.Error()}
	}

	c := &compiler{opts: &o}
	steps, err := c.compileChain(stages)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		stages: append([]Stage(nil), stages...),
		steps:  steps,
		opts:   o,
	}, nil
}

// Stages returns the stages the pipeline was built from.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Run applies the stages in order to records and returns the final table.
//
// The input table is never modified. Records that pass through a stage
// unchanged (Filter, Sort, Limit) are shared between input and output, so
// callers must treat result records as read-only or Clone them.
func (p *Pipeline) Run(ctx context.Context, records Table) (Table, error) {
	res, err := p.Execute(ctx, records)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

// Execute is like Run but also reports per-stage statistics.
func (p *Pipeline) Execute(ctx context.Context, records Table) (*Result, error) {
	root := newExecutionContext(ctx, records, &p.opts)
	out, stats, err := root.runSteps(records, p.steps)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Table{}
	}
	return &Result{Table: out, Stages: stats}, nil
}

// Run builds a pipeline from stages and applies it to records.
func Run(ctx context.Context, records Table, stages []Stage, opts ...Option) (Table, error) {
	p, err := New(stages, opts...)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, records)
}

// Result is the output of Execute.
type Result struct {
	Table  Table
	Stages []StageStats
}

// StageStats describes one executed stage.
type StageStats struct {
	Index    int
	Kind     string
	RowsIn   int
	RowsOut  int
	Skipped  int // records dropped by the skip parse policy
	Nulls    int // results replaced by null under the null computation policy
	Duration time.Duration
}

// ExecutionContext carries the state of one pipeline run. Stages never see
// the caller's context directly; sub-chains get a child context.
type ExecutionContext struct {
	ctx   context.Context
	input Table
	opts  *options

	stage int
	kind  string
	stats *StageStats
}

func newExecutionContext(ctx context.Context, input Table, opts *options) *ExecutionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ExecutionContext{ctx: ctx, input: input, opts: opts}
}

// NewChildContext creates a context for a sub-chain reading input.
func (ec *ExecutionContext) NewChildContext(input Table) *ExecutionContext {
	return &ExecutionContext{ctx: ec.ctx, input: input, opts: ec.opts}
}

// Context returns the run's context.
func (ec *ExecutionContext) Context() context.Context {
	return ec.ctx
}

func (ec *ExecutionContext) runSteps(current Table, steps []compiledStage) (Table, []StageStats, error) {
	stats := make([]StageStats, 0, len(steps))
	for i, s := range steps {
		if err := ec.ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("stage %d (%s): %w", i, s.kind, err)
		}

		st := StageStats{Index: i, Kind: s.kind, RowsIn: len(current)}
		sec := &ExecutionContext{
			ctx:   ec.ctx,
			input: ec.input,
			opts:  ec.opts,
			stage: i,
			kind:  s.kind,
			stats: &st,
		}

		start := time.Now()
		out, err := s.apply(sec, current)
		st.Duration = time.Since(start)
		if err != nil {
			return nil, stats, err
		}

		st.RowsOut = len(out)
		stats = append(stats, st)
		current = out
	}
	return current, stats, nil
}

// runChain resolves a sub-chain's source and runs its steps. Skip and null
// counters of the sub-chain are added to the calling stage.
func (ec *ExecutionContext) runChain(source string, steps []compiledStage) (Table, error) {
	input := ec.input
	if source != "" {
		t, err := ec.opts.catalog.FetchAll(ec.ctx, source)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): fetch %q: %w", ec.stage, ec.kind, source, err)
		}
		input = t
	}

	child := ec.NewChildContext(input)
	out, stats, err := child.runSteps(input, steps)
	if err != nil {
		return nil, ec.restamp(err)
	}
	for _, st := range stats {
		ec.stats.Skipped += st.Skipped
		ec.stats.Nulls += st.Nulls
	}
	return out, nil
}

// restamp moves a record failure raised inside a sub-chain onto the calling
// stage so callers see the stage they configured. Record keeps the position
// within the sub-chain stage's input.
func (ec *ExecutionContext) restamp(err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Stage, pe.Kind = ec.stage, ec.kind
		return err
	}
	var ce *ComputationError
	if errors.As(err, &ce) {
		ce.Stage, ce.Kind = ec.stage, ec.kind
	}
	return err
}

type recovery int

const (
	recoverSkip recovery = iota + 1
	recoverNull
)

// applyPolicy applies the active policy to a per-record failure. It returns the
// recovery to perform, or the typed error that aborts the run.
func (ec *ExecutionContext) applyPolicy(record int, err error) (recovery, error) {
	var fe *fieldError
	if !errors.As(err, &fe) {
		return 0, err
	}

	if fe.parse {
		if ec.opts.parse == ParseSkip {
			ec.stats.Skipped++
			return recoverSkip, nil
		}
		return 0, &ParseError{
			Stage:  ec.stage,
			Kind:   ec.kind,
			Record: record,
			Field:  fe.field,
			Value:  fe.value,
			Format: fe.format,
			Err:    fe.err,
		}
	}

	if ec.opts.compute == ComputationNull {
		ec.stats.Nulls++
		return recoverNull, nil
	}
	return 0, &ComputationError{
		Stage:  ec.stage,
		Kind:   ec.kind,
		Record: record,
		Field:  fe.field,
		Op:     fe.op,
		Reason: fe.reason,
	}
}

// compiler validates stages and turns them into executable steps.
type compiler struct {
	opts *options
}

func (c *compiler) compileChain(stages []Stage) ([]compiledStage, error) {
	steps := make([]compiledStage, 0, len(stages))
	for i, s := range stages {
		if s == nil {
			return nil, &ConfigurationError{Stage: i, Kind: "unknown", Reason: "nil stage"}
		}
		step, err := s.compile(c)
		if err != nil {
			var ce *ConfigurationError
			if errors.As(err, &ce) {
				ce.Stage = i
				ce.Kind = s.Kind()
				return nil, ce
			}
			return nil, &ConfigurationError{Stage: i, Kind: s.Kind(), Reason: err.Error()}
		}
		steps = append(steps, compiledStage{kind: s.Kind(), apply: step})
	}
	return steps, nil
}

// compileSubChain compiles the stages of a Union, Join or Compare.
func (c *compiler) compileSubChain(source string, stages []Stage) ([]compiledStage, error) {
	if source != "" && c.opts.catalog == nil {
		return nil, configError("source", "source %q requires a catalog", source)
	}
	steps, err := c.compileChain(stages)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			return nil, configError(ce.Field, "sub-chain stage %d (%s): %s", ce.Stage, ce.Kind, ce.Reason)
		}
		return nil, err
	}
	return steps, nil
}
