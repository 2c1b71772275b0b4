package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

const timeLayout = time.RFC3339Nano

// QuoteIdent quotes a table or column name for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnType is the SQLite storage class of an indexed field's column.
// Timestamps are stored as Unix nanoseconds so they order numerically;
// booleans as 0/1.
func ColumnType(k ir.Kind) (string, error) {
	switch k {
	case ir.KindString:
		return "TEXT", nil
	case ir.KindInt, ir.KindBool, ir.KindTime:
		return "INTEGER", nil
	case ir.KindFloat:
		return "REAL", nil
	default:
		return "", fmt.Errorf("kind %s has no column", k)
	}
}

// Columns lists the column-backed fields of s: every indexed field, _id
// first.
func Columns(s *schema.Schema) []schema.Field {
	var out []schema.Field
	for _, name := range s.IndexedFields() {
		f, _ := s.Field(name)
		out = append(out, f)
	}
	return out
}

// DDL returns the statements creating the collection table and one index
// per indexed field. All statements are idempotent.
func DDL(s *schema.Schema) ([]string, error) {
	table := QuoteIdent(s.Name())

	defs := []string{QuoteIdent(ir.IDField) + " TEXT PRIMARY KEY"}
	var stmts []string
	for _, f := range Columns(s) {
		if f.Name == ir.IDField {
			continue
		}
		typ, err := ColumnType(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		defs = append(defs, QuoteIdent(f.Name)+" "+typ)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			QuoteIdent("idx_"+s.Name()+"_"+f.Name), table, QuoteIdent(f.Name)))
	}
	defs = append(defs, QuoteIdent(DocColumn)+" TEXT NOT NULL")

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", table, strings.Join(defs, ",\n    "))
	return append([]string{create}, stmts...), nil
}

// Column timestamps are Unix nanoseconds, which cover only this range.
var (
	MinTime = time.Unix(0, -1<<63).UTC()
	MaxTime = time.Unix(0, 1<<63-1).UTC()
)

// TimeInRange reports whether t fits a timestamp column.
func TimeInRange(t time.Time) bool {
	return !t.Before(MinTime) && !t.After(MaxTime)
}

// ToParam converts a scalar value to the Go value bound to a placeholder.
func ToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Float:
		return float64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Time:
		return val.UnixNano(), nil
	case ir.List:
		return nil, fmt.Errorf("list cannot be used as SQL parameter directly")
	case ir.Object:
		return nil, fmt.Errorf("object cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// Row returns the column names and bound values storing rec: one per
// column-backed field, then DocColumn.
func Row(s *schema.Schema, rec ir.Object) ([]string, []any, error) {
	var cols []string
	var args []any
	for _, f := range Columns(s) {
		param, err := ToParam(rec.Get(f.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols = append(cols, QuoteIdent(f.Name))
		args = append(args, param)
	}
	doc, err := ir.MarshalDocument(rec)
	if err != nil {
		return nil, nil, err
	}
	cols = append(cols, QuoteIdent(DocColumn))
	args = append(args, string(doc))
	return cols, args, nil
}

// Placeholders returns n comma separated placeholders.
func Placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
