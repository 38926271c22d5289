package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one classification rule: records whose text matches Pattern get
// Label.
type Rule struct {
	Label   string
	Pattern string
}

// SwitchMap classifies free text by an ordered rule list. The first rule
// whose pattern matches wins; Default is used when no rule matches or the
// text is null. Matching is case-insensitive unless CaseSensitive is set.
type SwitchMap struct {
	Rules         []Rule
	Default       string
	CaseSensitive bool
}

func (SwitchMap) Name() string { return "switchMap" }

type compiledRule struct {
	label string
	re    *regexp.Regexp
}

func (t SwitchMap) compile(*compiler) (evalFunc, error) {
	if len(t.Rules) == 0 {
		return nil, configError("rules", "switchMap requires at least one rule")
	}
	rules := make([]compiledRule, 0, len(t.Rules))
	for i, rule := range t.Rules {
		if rule.Label == "" {
			return nil, configError("rules", "rule %d has no label", i)
		}
		re, err := compilePattern(rule.Pattern, !t.CaseSensitive)
		if err != nil {
			return nil, configError("rules", "rule %d (%s): %v", i, rule.Label, err)
		}
		rules = append(rules, compiledRule{label: rule.Label, re: re})
	}
	def := t.Default
	return func(_ *Record, v any) (any, error) {
		return classify(rules, def, v), nil
	}, nil
}

func classify(rules []compiledRule, def string, v any) string {
	if v == nil {
		return def
	}
	text := valueToString(v)
	for _, rule := range rules {
		if rule.re.MatchString(text) {
			return rule.label
		}
	}
	return def
}

// Match modes for Matches.
const (
	MatchAny = "any"
	MatchAll = "all"
)

// Matches reports whether the text matches any (or all) of Patterns. Null
// text never matches.
type Matches struct {
	Patterns        []string
	Mode            string
	CaseInsensitive bool
}

func (Matches) Name() string { return "matches" }

func (t Matches) compile(*compiler) (evalFunc, error) {
	if len(t.Patterns) == 0 {
		return nil, configError("patterns", "matches requires at least one pattern")
	}
	mode := strings.ToLower(t.Mode)
	switch mode {
	case "":
		mode = MatchAny
	case MatchAny, MatchAll:
	default:
		return nil, configError("mode", "unknown match mode %q", t.Mode)
	}

	res := make([]*regexp.Regexp, len(t.Patterns))
	for i, p := range t.Patterns {
		re, err := compilePattern(p, t.CaseInsensitive)
		if err != nil {
			return nil, configError("patterns", "pattern %d: %v", i, err)
		}
		res[i] = re
	}

	return func(_ *Record, v any) (any, error) {
		if v == nil {
			return false, nil
		}
		text := valueToString(v)
		for _, re := range res {
			matched := re.MatchString(text)
			if mode == MatchAny && matched {
				return true, nil
			}
			if mode == MatchAll && !matched {
				return false, nil
			}
		}
		return mode == MatchAll, nil
	}, nil
}

func compilePattern(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}
