package definition

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/vegasq/aggcat/pipeline"
)

var (
	operandType = reflect.TypeOf(pipeline.Operand{})
	sortKeyType = reflect.TypeOf(pipeline.SortKey{})
)

// decode maps a generic YAML value onto out. Keys out does not declare are
// rejected.
func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		DecodeHook:  mapstructure.ComposeDecodeHookFunc(operandHook, sortKeyHook),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// operandHook accepts {field: name}, {value: literal} or a bare scalar,
// which is a literal.
func operandHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != operandType {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return pipeline.Lit(data), nil
	}
	if len(m) != 1 {
		return nil, fmt.Errorf("operand must have exactly one of field or value")
	}
	if f, ok := m["field"]; ok {
		name, ok := f.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("operand field must be a non-empty string")
		}
		return pipeline.FieldRef(name), nil
	}
	if v, ok := m["value"]; ok {
		return pipeline.Lit(v), nil
	}
	return nil, fmt.Errorf("operand must have exactly one of field or value")
}

// sortKeyHook accepts "field", "field desc" or
// {field: name, direction: asc|desc}.
func sortKeyHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != sortKeyType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		parts := strings.Fields(v)
		switch len(parts) {
		case 1:
			return pipeline.Asc(parts[0]), nil
		case 2:
			return sortKey(parts[0], parts[1])
		}
		return nil, fmt.Errorf("invalid sort key %q", v)
	case map[string]any:
		var spec struct {
			Field     string `mapstructure:"field"`
			Direction string `mapstructure:"direction"`
		}
		if err := mapstructure.Decode(v, &spec); err != nil {
			return nil, err
		}
		for k := range v {
			if k != "field" && k != "direction" {
				return nil, fmt.Errorf("unknown sort key option %q", k)
			}
		}
		return sortKey(spec.Field, spec.Direction)
	}
	return data, nil
}

func sortKey(field, direction string) (pipeline.SortKey, error) {
	switch strings.ToLower(direction) {
	case "", "asc", "ascending":
		return pipeline.Asc(field), nil
	case "desc", "descending":
		return pipeline.Desc(field), nil
	}
	return pipeline.SortKey{}, fmt.Errorf("unknown sort direction %q", direction)
}
