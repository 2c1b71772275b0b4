package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// DocColumn holds the full record as JSON. User fields cannot start with an
// underscore, so it never collides with a field column.
const DocColumn = "_doc"

// SQLCompiler compiles predicates and selects over one collection to
// parameterized SQL for SQLite.
//
// Every indexed field of the schema has its own column (see DDL); list and
// object fields live only in DocColumn and are reached through json_each.
//
// The translation reproduces query.Matches exactly, null included:
//   - == and != use IS / IS NOT, so null compares as a value
//   - ranges use plain comparisons, which are never true for NULL
//   - in / not in add explicit IS NULL terms
//
// CRITICAL: ALL selects include ORDER BY ending in _id for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	schema *schema.Schema
}

// NewSQLCompiler creates a compiler for the collection described by s.
func NewSQLCompiler(s *schema.Schema) *SQLCompiler {
	return &SQLCompiler{schema: s}
}

// Table returns the quoted table name.
func (c *SQLCompiler) Table() string {
	return QuoteIdent(c.schema.Name())
}

// Compile converts a select to SQL returning the DocColumn of each matching
// row, sorted and paginated. Projection is left to the caller.
func (c *SQLCompiler) Compile(sel query.Select) (string, []any, error) {
	if err := sel.Validate(c.schema); err != nil {
		return "", nil, err
	}

	where, params, err := c.compilePredicate(sel.Where)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", QuoteIdent(DocColumn), c.Table())
	if sel.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	// MANDATORY: Always add ORDER BY
	b.WriteString(" ORDER BY ")
	b.WriteString(c.orderBy(sel.OrderBy))

	limit := sel.EffectiveLimit()
	switch {
	case limit > 0:
		b.WriteString(" LIMIT ?")
		params = append(params, int64(limit))
	case sel.Offset > 0:
		// SQLite only accepts OFFSET after LIMIT
		b.WriteString(" LIMIT -1")
	}
	if sel.Offset > 0 {
		b.WriteString(" OFFSET ?")
		params = append(params, int64(sel.Offset))
	}

	return b.String(), params, nil
}

// CompileCount converts a predicate to a COUNT(*) statement.
func (c *SQLCompiler) CompileCount(p query.Predicate) (string, []any, error) {
	if err := query.Validate(p, c.schema); err != nil {
		return "", nil, err
	}
	sql := "SELECT COUNT(*) FROM " + c.Table()
	if p == nil {
		return sql, nil, nil
	}
	where, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return sql + " WHERE " + where, params, nil
}

// CompileWhere compiles a validated predicate to a WHERE fragment.
func (c *SQLCompiler) CompileWhere(p query.Predicate) (string, []any, error) {
	if err := query.Validate(p, c.schema); err != nil {
		return "", nil, err
	}
	return c.compilePredicate(p)
}

// orderBy renders the sort keys followed by the _id tiebreaker.
// SQLite sorts NULL first ascending and last descending, as ir.Order does.
// Uses COLLATE BINARY for deterministic text ordering.
func (c *SQLCompiler) orderBy(order []query.Order) string {
	parts := make([]string, 0, len(order)+1)
	for _, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", QuoteIdent(o.Field), dir))
	}
	parts = append(parts, QuoteIdent(ir.IDField)+" ASC COLLATE BINARY")
	return strings.Join(parts, ", ")
}

// compilePredicate compiles a predicate to a SQL WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}
	if comb, ok := query.AsCombinator(p); ok {
		return c.compileCombinator(comb)
	}
	cmp, ok := query.AsComparison(p)
	if !ok {
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
	return c.compileComparison(cmp)
}

func (c *SQLCompiler) compileCombinator(comb query.Combinator) (string, []any, error) {
	left, lp, err := c.compilePredicate(comb.Left)
	if err != nil {
		return "", nil, err
	}
	right, rp, err := c.compilePredicate(comb.Right)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("(%s %s %s)", left, comb.Kind, right)
	return sql, append(lp, rp...), nil
}

func (c *SQLCompiler) compileComparison(cmp query.Comparison) (string, []any, error) {
	if cmp.Op == query.OpContains {
		return c.compileContains(cmp)
	}

	col := QuoteIdent(cmp.Field)
	if t, ok := cmp.Value.(ir.Time); ok && c.isTimeColumn(cmp.Field) && !TimeInRange(t.Time) {
		return outOfRange(col, cmp.Op, t.After(MaxTime)), nil, nil
	}
	switch cmp.Op {
	case query.OpEq, query.OpNeq:
		param, err := ToParam(cmp.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		op := "IS"
		if cmp.Op == query.OpNeq {
			op = "IS NOT"
		}
		return fmt.Sprintf("%s %s ?", col, op), []any{param}, nil

	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		param, err := ToParam(cmp.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return fmt.Sprintf("%s %s ?", col, cmp.Op), []any{param}, nil

	case query.OpIn, query.OpNotIn:
		return c.compileIn(cmp)
	}
	return "", nil, fmt.Errorf("unsupported operator %q", cmp.Op)
}

func (c *SQLCompiler) isTimeColumn(field string) bool {
	f, ok := c.schema.Field(field)
	return ok && f.Kind == ir.KindTime
}

// outOfRange compiles a comparison of a timestamp column against an operand
// past the column range. Stored timestamps always lie inside it, so every
// non-null value sits on one side of the operand.
func outOfRange(col string, op query.Op, above bool) string {
	switch op {
	case query.OpNeq:
		return "1 = 1"
	case query.OpLt, query.OpLte:
		if above {
			return col + " IS NOT NULL"
		}
	case query.OpGt, query.OpGte:
		if !above {
			return col + " IS NOT NULL"
		}
	}
	return "1 = 0"
}

// compileIn splits the operand list into its non-null members, matched with
// IN, and a null member, matched with IS NULL.
func (c *SQLCompiler) compileIn(cmp query.Comparison) (string, []any, error) {
	list, ok := cmp.Value.(ir.List)
	if !ok {
		return "", nil, fmt.Errorf("operator %s requires a list operand", cmp.Op)
	}

	col := QuoteIdent(cmp.Field)
	timeCol := c.isTimeColumn(cmp.Field)
	var params []any
	hasNull := false
	for _, v := range list {
		if ir.IsNull(v) {
			hasNull = true
			continue
		}
		// No stored timestamp equals an unstorable one.
		if t, ok := v.(ir.Time); ok && timeCol && !TimeInRange(t.Time) {
			continue
		}
		param, err := ToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		params = append(params, param)
	}
	placeholders := Placeholders(len(params))

	if cmp.Op == query.OpIn {
		switch {
		case len(params) == 0 && hasNull:
			return col + " IS NULL", nil, nil
		case len(params) == 0:
			return "1 = 0", nil, nil
		case hasNull:
			return fmt.Sprintf("(%s IN (%s) OR %s IS NULL)", col, placeholders, col), params, nil
		default:
			return fmt.Sprintf("%s IN (%s)", col, placeholders), params, nil
		}
	}

	switch {
	case len(params) == 0 && hasNull:
		return col + " IS NOT NULL", nil, nil
	case len(params) == 0:
		return "1 = 1", nil, nil
	case hasNull:
		return fmt.Sprintf("(%s IS NOT NULL AND %s NOT IN (%s))", col, col, placeholders), params, nil
	default:
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, placeholders), params, nil
	}
}

// compileContains scans the JSON value of a list or object field held in
// DocColumn. List elements match on JSON type and value; objects match on
// key presence.
func (c *SQLCompiler) compileContains(cmp query.Comparison) (string, []any, error) {
	f, ok := c.schema.Field(cmp.Field)
	if !ok {
		return "", nil, ir.InvalidPredicate(cmp.Field, "unknown field")
	}
	path := "$." + cmp.Field
	doc := QuoteIdent(DocColumn)

	if f.Kind == ir.KindObject {
		key, ok := cmp.Value.(ir.String)
		if !ok {
			return "", nil, ir.InvalidPredicate(cmp.Field, "contains on an object field requires a string key")
		}
		sql := fmt.Sprintf("(json_type(%s, '%s') = 'object' AND EXISTS (SELECT 1 FROM json_each(%s, '%s') WHERE key = ?))",
			doc, path, doc, path)
		return sql, []any{string(key)}, nil
	}

	match, params, err := elementMatch(cmp.Value)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("(json_type(%s, '%s') = 'array' AND EXISTS (SELECT 1 FROM json_each(%s, '%s') WHERE %s))",
		doc, path, doc, path, match)
	return sql, params, nil
}

// elementMatch is the json_each condition selecting an element equal to v.
func elementMatch(v ir.Value) (string, []any, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return "type = 'null'", nil, nil
	case ir.Bool:
		if val {
			return "type = 'true'", nil, nil
		}
		return "type = 'false'", nil, nil
	case ir.Int:
		return "type = 'integer' AND value = ?", []any{int64(val)}, nil
	case ir.Float:
		return "type = 'real' AND value = ?", []any{float64(val)}, nil
	case ir.String:
		return "type = 'text' AND value = ?", []any{string(val)}, nil
	case ir.Time:
		return "type = 'text' AND value = ?", []any{val.UTC().Format(timeLayout)}, nil
	case ir.List, ir.Object:
		data, err := ir.MarshalDocument(val)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		kind := "array"
		if _, ok := val.(ir.Object); ok {
			kind = "object"
		}
		return fmt.Sprintf("type = '%s' AND value = json(?)", kind), []any{string(data)}, nil
	}
	return "", nil, fmt.Errorf("unsupported value type for contains: %T", v)
}
