package definition

import (
	"fmt"

	"github.com/vegasq/aggcat/pipeline"
)

type ruleSpec struct {
	Label   string `mapstructure:"label"`
	Pattern string `mapstructure:"pattern"`
}

type caseSpec struct {
	When any `mapstructure:"when"`
	Then any `mapstructure:"then"`
}

// decodeTransform builds the named transform from its remaining options.
func decodeTransform(name string, options map[string]any) (pipeline.Transform, error) {
	if options == nil {
		options = map[string]any{}
	}

	switch name {
	case "parseDate":
		var s struct {
			Format string `mapstructure:"format"`
		}
		err := decode(options, &s)
		return pipeline.ParseDate{Format: s.Format}, err

	case "datePart":
		var s struct {
			Part string `mapstructure:"part"`
		}
		err := decode(options, &s)
		return pipeline.DatePart{Part: s.Part}, err

	case "monthName":
		var s struct {
			Abbreviate bool `mapstructure:"abbreviate"`
		}
		err := decode(options, &s)
		return pipeline.MonthName{Abbreviate: s.Abbreviate}, err

	case "monthNumber":
		return pipeline.MonthNumber{}, noOptions(options)
	case "quarter":
		return pipeline.Quarter{}, noOptions(options)
	case "toLower":
		return pipeline.ToLower{}, noOptions(options)
	case "toUpper":
		return pipeline.ToUpper{}, noOptions(options)
	case "copy":
		return pipeline.Copy{}, noOptions(options)

	case "bucket":
		var s struct {
			Lower   any    `mapstructure:"lower"`
			Upper   any    `mapstructure:"upper"`
			Before  string `mapstructure:"before"`
			Between string `mapstructure:"between"`
			After   string `mapstructure:"after"`
		}
		err := decode(options, &s)
		return pipeline.Bucket{Lower: s.Lower, Upper: s.Upper, Before: s.Before, Between: s.Between, After: s.After}, err

	case "substring":
		s := struct {
			Start  int `mapstructure:"start"`
			Length int `mapstructure:"length"`
		}{Length: -1}
		err := decode(options, &s)
		return pipeline.Substring{Start: s.Start, Length: s.Length}, err

	case "concat":
		var s struct {
			Fields    []string           `mapstructure:"fields"`
			Parts     []pipeline.Operand `mapstructure:"parts"`
			Separator string             `mapstructure:"separator"`
		}
		err := decode(options, &s)
		return pipeline.Concat{Fields: s.Fields, Parts: s.Parts, Separator: s.Separator}, err

	case "literal":
		var s struct {
			Value any `mapstructure:"value"`
		}
		err := decode(options, &s)
		return pipeline.Literal{Value: s.Value}, err

	case "arith":
		var s struct {
			Op       string             `mapstructure:"op"`
			Operands []pipeline.Operand `mapstructure:"operands"`
		}
		err := decode(options, &s)
		return pipeline.Arith{Op: s.Op, Operands: s.Operands}, err

	case "percentChange":
		var s struct {
			Old pipeline.Operand `mapstructure:"old"`
			New pipeline.Operand `mapstructure:"new"`
		}
		err := decode(options, &s)
		return pipeline.PercentChange{Old: s.Old, New: s.New}, err

	case "round":
		var s struct {
			Places int32 `mapstructure:"places"`
		}
		err := decode(options, &s)
		return pipeline.Round{Places: s.Places}, err

	case "mapValue":
		var s struct {
			Cases   []caseSpec `mapstructure:"cases"`
			Default any        `mapstructure:"default"`
		}
		if err := decode(options, &s); err != nil {
			return nil, err
		}
		cases := make([]pipeline.MapCase, len(s.Cases))
		for i, c := range s.Cases {
			cases[i] = pipeline.MapCase{When: c.When, Then: c.Then}
		}
		return pipeline.MapValue{Cases: cases, Default: s.Default}, nil

	case "cond":
		var s struct {
			Where []predicateSpec  `mapstructure:"where"`
			Then  pipeline.Operand `mapstructure:"then"`
			Else  pipeline.Operand `mapstructure:"else"`
		}
		err := decode(options, &s)
		return pipeline.Cond{Where: predicates(s.Where), Then: s.Then, Else: s.Else}, err

	case "switchMap", "classify":
		var s struct {
			Rules         []ruleSpec `mapstructure:"rules"`
			Default       string     `mapstructure:"default"`
			CaseSensitive bool       `mapstructure:"case_sensitive"`
		}
		if err := decode(options, &s); err != nil {
			return nil, err
		}
		rules := make([]pipeline.Rule, len(s.Rules))
		for i, r := range s.Rules {
			rules[i] = pipeline.Rule{Label: r.Label, Pattern: r.Pattern}
		}
		return pipeline.SwitchMap{Rules: rules, Default: s.Default, CaseSensitive: s.CaseSensitive}, nil

	case "matches":
		var s struct {
			Patterns        []string `mapstructure:"patterns"`
			Mode            string   `mapstructure:"mode"`
			CaseInsensitive bool     `mapstructure:"case_insensitive"`
		}
		err := decode(options, &s)
		return pipeline.Matches{Patterns: s.Patterns, Mode: s.Mode, CaseInsensitive: s.CaseInsensitive}, err

	case "":
		return nil, fmt.Errorf("missing transform")
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}

func noOptions(options map[string]any) error {
	for k := range options {
		return fmt.Errorf("unexpected option %q", k)
	}
	return nil
}
