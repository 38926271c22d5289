package reader

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/vegasq/aggcat/pipeline"
)

// Column describes one field of a table.
type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PhysicalType string `json:"physical_type,omitempty"`
	LogicalType  string `json:"logical_type,omitempty"`
	Nullable     bool   `json:"nullable"`
	Repeated     bool   `json:"repeated"`
}

// ParquetColumns reads the schema of a parquet file. Nested leaf columns
// are named with dot notation, e.g. "address.street".
func ParquetColumns(path string) ([]Column, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var cols []Column
	for _, field := range r.Schema().Fields() {
		cols = append(cols, leafColumns(field, "", false)...)
	}
	return cols, nil
}

// leafColumns flattens field into its leaf columns. A repeated group marks
// every leaf below it repeated.
func leafColumns(field parquet.Field, prefix string, parentRepeated bool) []Column {
	name := field.Name()
	if prefix != "" {
		name = prefix + "." + name
	}
	repeated := parentRepeated || field.Repeated()

	if children := field.Fields(); len(children) > 0 {
		var cols []Column
		for _, child := range children {
			cols = append(cols, leafColumns(child, name, repeated)...)
		}
		return cols
	}

	col := Column{
		Name:         name,
		Type:         friendlyType(field),
		PhysicalType: physicalType(field),
		Nullable:     field.Optional(),
		Repeated:     repeated,
	}
	if typ := field.Type(); typ != nil {
		if lt := typ.LogicalType(); lt != nil {
			col.LogicalType = lt.String()
		}
	}
	return []Column{col}
}

func physicalType(field parquet.Field) string {
	if field.Type() == nil {
		return "GROUP"
	}
	switch field.Type().Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray:
		return "BYTE_ARRAY"
	case parquet.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return "UNKNOWN"
	}
}

// friendlyType maps the parquet type onto the record value type the
// column decodes to.
func friendlyType(field parquet.Field) string {
	if field.Type() == nil {
		return "GROUP"
	}
	if lt := field.Type().LogicalType(); lt != nil {
		switch lt.String() {
		case "STRING", "UTF8", "ENUM", "JSON":
			return TypeString
		case "DATE", "TIMESTAMP":
			return TypeTimestamp
		case "DECIMAL":
			return TypeFloat
		}
	}
	switch field.Type().Kind() {
	case parquet.Boolean:
		return TypeBool
	case parquet.Int32, parquet.Int64, parquet.Int96:
		return TypeInt
	case parquet.Float, parquet.Double:
		return TypeFloat
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// Record value types reported by InferColumns.
const (
	TypeNull      = "NULL"
	TypeString    = "STRING"
	TypeInt       = "INT64"
	TypeFloat     = "FLOAT64"
	TypeBool      = "BOOLEAN"
	TypeTimestamp = "TIMESTAMP"
	TypeList      = "LIST"
	TypeMixed     = "MIXED"
)

// InferColumns describes a loaded table by scanning its values. Columns
// appear in first-seen order. A column holding integers and floats is
// FLOAT64; any other combination of types is MIXED.
func InferColumns(t pipeline.Table) []Column {
	var cols []Column
	index := make(map[string]int)
	for _, rec := range t {
		for _, f := range rec.Fields() {
			v := rec.Get(f)
			i, ok := index[f]
			if !ok {
				i = len(cols)
				index[f] = i
				cols = append(cols, Column{Name: f, Type: TypeNull})
			}
			c := &cols[i]
			vt := valueType(v)
			if vt == TypeNull {
				c.Nullable = true
				continue
			}
			if vt == TypeList {
				c.Repeated = true
			}
			c.Type = mergeType(c.Type, vt)
		}
	}
	return cols
}

func valueType(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt
	case float32, float64:
		return TypeFloat
	case bool:
		return TypeBool
	case time.Time:
		return TypeTimestamp
	case []any, []string:
		return TypeList
	default:
		return fmt.Sprintf("%T", v)
	}
}

func mergeType(have, next string) string {
	switch {
	case have == TypeNull || have == next:
		return next
	case (have == TypeInt && next == TypeFloat) || (have == TypeFloat && next == TypeInt):
		return TypeFloat
	default:
		return TypeMixed
	}
}
