package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vegasq/aggcat/pipeline"
	"gopkg.in/yaml.v3"
)

// Definition is one declarative query: a source table, a stage list and
// the error policies to run it with.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Source      string           `yaml:"source"`
	Policies    Policies         `yaml:"policies"`
	Stages      []map[string]any `yaml:"stages"`

	// Path is the file the definition was loaded from, if any.
	Path string `yaml:"-"`
}

// Policies selects how parse and computation failures are handled. Empty
// values leave the caller's defaults in place.
type Policies struct {
	ParseErrors       string `yaml:"parse_errors"`
	ComputationErrors string `yaml:"computation_errors"`
}

// Options converts the policies to pipeline options.
func (p Policies) Options() ([]pipeline.Option, error) {
	var opts []pipeline.Option
	if p.ParseErrors != "" {
		pp, err := pipeline.ParseParsePolicy(p.ParseErrors)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithParsePolicy(pp))
	}
	if p.ComputationErrors != "" {
		cp, err := pipeline.ParseComputationPolicy(p.ComputationErrors)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithComputationPolicy(cp))
	}
	return opts, nil
}

// Parse decodes a YAML definition. Unknown top-level keys are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty definition")
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("definition has no stages")
	}
	return &def, nil
}

// Load reads and parses the definition at path. A missing name defaults to
// the file name without its extension.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Path = path
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// LoadFiles loads every definition named by paths. Entries containing glob
// characters are expanded and must match at least one file.
func LoadFiles(paths ...string) ([]*Definition, error) {
	var defs []*Definition
	for _, p := range paths {
		files := []string{p}
		if strings.ContainsAny(p, "*?[") {
			matches, err := filepath.Glob(p)
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern: %w", err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match pattern: %s", p)
			}
			files = matches
		}
		for _, f := range files {
			def, err := Load(f)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// Pipeline decodes the stage list and builds a pipeline. The definition's
// own policies are applied after opts and take precedence.
func (d *Definition) Pipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	stages, err := d.StageList()
	if err != nil {
		return nil, err
	}
	policyOpts, err := d.Policies.Options()
	if err != nil {
		return nil, &pipeline.ConfigurationError{Stage: -1, Kind: "pipeline", Field: "policies", Reason: err.Error()}
	}
	return pipeline.New(stages, append(append([]pipeline.Option(nil), opts...), policyOpts...)...)
}

// StageList decodes the stage list into typed stages.
func (d *Definition) StageList() ([]pipeline.Stage, error) {
	return decodeStages(d.Stages)
}
