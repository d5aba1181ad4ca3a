// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package lower

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/nestql/internal/ir"
	"github.com/canonical/nestql/types"
)

// binding describes the rows a lowered query exposes: the alias consumers
// address them by, the element type, and whether the rows are JSON
// elements under the value column rather than proper columns.
type binding struct {
	alias string
	elem  types.Type
	json  bool
}

// compilation is the per-ToSQL state: a monotonic alias counter and the
// correlation map from node identity to current binding. Each ToSQL call
// owns its own compilation, so independent compilations may run
// concurrently.
type compilation struct {
	dialect Dialect
	aliases int
	corr    map[int64]binding
}

// ToSQL lowers a well-typed IR node to SQL text for the given dialect.
// Collection-valued nodes become a parenthesized, aliased subquery usable
// as a FROM source; scalar-valued nodes become a bare expression.
func ToSQL(e ir.Expr, d Dialect) (sql string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile query: %w", err)
		}
	}()

	t, err := ir.TypeOf(e)
	if err != nil {
		return "", err
	}
	c := &compilation{dialect: d, corr: map[int64]binding{}}
	if _, ok := t.(types.ArrayType); ok {
		q, ok := e.(ir.Query)
		if !ok {
			panic(fmt.Sprintf("internal error: array-typed expression %T is not a query", e))
		}
		text, b, err := c.emitQuery(q)
		if err != nil {
			return "", err
		}
		return text + " AS " + b.alias, nil
	}
	return c.emitExpr(e)
}

func (c *compilation) fresh() string {
	a := fmt.Sprintf("_t%d", c.aliases)
	c.aliases++
	return a
}

// emitQuery lowers a collection-valued node to a parenthesized subquery
// WITHOUT a trailing alias; callers append " AS <alias>" in FROM position.
// The returned binding is registered under the node's identity so row
// references below this query resolve to it.
func (c *compilation) emitQuery(q ir.Query) (string, binding, error) {
	switch q := q.(type) {
	case *ir.Table:
		var b sqlBuilder
		b.write("(SELECT ")
		for i, f := range q.Schema.Fields {
			if i > 0 {
				b.write(", ")
			}
			b.write(quoteIdent(f.Name))
		}
		b.write(" FROM ", quoteIdent(q.Name), ")")
		bind := binding{alias: c.fresh(), elem: q.Schema}
		c.corr[q.ID()] = bind
		return b.String(), bind, nil

	case *ir.Filter:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		pred, err := c.emitExpr(q.Pred)
		if err != nil {
			return "", binding{}, err
		}
		// Filtered rows keep the source row identity, so the source
		// alias is reused rather than refreshed.
		text := "(SELECT * FROM " + srcText + " AS " + src.alias + " WHERE " + pred + ")"
		c.corr[q.ID()] = src
		return text, src, nil

	case *ir.Map:
		return c.emitMap(q)

	case *ir.Sort:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		key, err := c.emitExpr(q.Key)
		if err != nil {
			return "", binding{}, err
		}
		dir := ""
		if q.Desc {
			dir = " DESC"
		}
		text := "(SELECT * FROM " + srcText + " AS " + src.alias + " ORDER BY " + key + dir + ")"
		c.corr[q.ID()] = src
		return text, src, nil

	case *ir.Limit:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		text := "(SELECT * FROM " + srcText + " AS " + src.alias + " LIMIT " + strconv.Itoa(q.N) + ")"
		c.corr[q.ID()] = src
		return text, src, nil

	case *ir.Offset:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		text := "(SELECT * FROM " + srcText + " AS " + src.alias + " OFFSET " + strconv.Itoa(q.N) + ")"
		c.corr[q.ID()] = src
		return text, src, nil

	case *ir.SetOp:
		lText, lb, err := c.emitQuery(q.Left)
		if err != nil {
			return "", binding{}, err
		}
		rText, rb, err := c.emitQuery(q.Right)
		if err != nil {
			return "", binding{}, err
		}
		// Set operations align columns by position, so both sides are
		// normalized to typed columns in the left element's field order.
		lText, lb = c.normalizeSetSide(lText, lb, lb.elem)
		rText, _ = c.normalizeSetSide(rText, rb, lb.elem)
		text := "(" + lText + " " + setOpKeyword(q.Op) + " " + rText + ")"
		c.corr[q.ID()] = lb
		return text, lb, nil

	case *ir.GroupBy:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		alias := c.fresh()
		key, err := c.emitExpr(q.Key)
		if err != nil {
			return "", binding{}, err
		}
		keyType, err := ir.TypeOf(q.Key)
		if err != nil {
			return "", binding{}, err
		}
		agg := c.dialect.AggregateRows(src.alias, src.json)
		text := "(SELECT " + key + " AS key, " + agg + " AS vals FROM " + srcText + " AS " + src.alias + " GROUP BY " + key + ")"
		bind := binding{alias: alias, elem: types.RecordType{Fields: []types.Field{
			{Name: "key", Type: keyType},
			{Name: "vals", Type: types.ArrayType{Elem: src.elem}},
		}}}
		c.corr[q.ID()] = bind
		return text, bind, nil

	case *ir.FlatMap:
		srcText, src, err := c.emitQuery(q.Source)
		if err != nil {
			return "", binding{}, err
		}
		bodyText, body, err := c.emitQuery(q.Body)
		if err != nil {
			return "", binding{}, err
		}
		text := "(SELECT " + body.alias + ".* FROM " + srcText + " AS " + src.alias +
			" CROSS JOIN LATERAL " + bodyText + " AS " + body.alias + ")"
		c.corr[q.ID()] = body
		return text, body, nil

	case *ir.ArrayLit:
		return c.emitArrayLit(q)

	case *ir.Field, *ir.Row, *ir.First:
		return c.emitExpand(q)

	default:
		panic(fmt.Sprintf("internal error: unknown query type %T", q))
	}
}

// emitMap distinguishes the three projection shapes: the identity Row (a
// no-op), a record literal (one aliased column per field under a fresh
// alias), and a bare scalar under the value column.
func (c *compilation) emitMap(q *ir.Map) (string, binding, error) {
	srcText, src, err := c.emitQuery(q.Source)
	if err != nil {
		return "", binding{}, err
	}

	if r, ok := q.Proj.(*ir.Row); ok && r.Source.ID() == q.Source.ID() {
		c.corr[q.ID()] = src
		return srcText, src, nil
	}

	if rec, ok := q.Proj.(*ir.RecordLit); ok {
		elem, err := ir.TypeOf(rec)
		if err != nil {
			return "", binding{}, err
		}
		bind := binding{alias: c.fresh(), elem: elem}
		var b sqlBuilder
		b.write("(SELECT ")
		for i, f := range rec.Fields {
			if i > 0 {
				b.write(", ")
			}
			v, err := c.emitExpr(f.Value)
			if err != nil {
				return "", binding{}, err
			}
			b.write(v, " AS ", quoteIdent(f.Name))
		}
		b.write(" FROM ", srcText, " AS ", src.alias, ")")
		c.corr[q.ID()] = bind
		return b.String(), bind, nil
	}

	pt, err := ir.TypeOf(q.Proj)
	if err != nil {
		return "", binding{}, err
	}
	if _, ok := pt.(types.RecordType); ok {
		return "", binding{}, fmt.Errorf("map projection of record type must be a record literal")
	}
	bind := binding{alias: c.fresh(), elem: pt}
	v, err := c.emitExpr(q.Proj)
	if err != nil {
		return "", binding{}, err
	}
	text := "(SELECT " + v + " AS value FROM " + srcText + " AS " + src.alias + ")"
	c.corr[q.ID()] = bind
	return text, bind, nil
}

// emitArrayLit lowers an inline collection to a VALUES list: scalar
// elements under the value column, record elements under their quoted
// field names in element type order. An empty literal is a zero-row
// select.
func (c *compilation) emitArrayLit(q *ir.ArrayLit) (string, binding, error) {
	t, err := ir.TypeOf(q)
	if err != nil {
		return "", binding{}, err
	}
	elem := t.(types.ArrayType).Elem
	bind := binding{alias: c.fresh(), elem: elem}

	if len(q.Elems) == 0 {
		c.corr[q.ID()] = bind
		return "(SELECT NULL AS value WHERE FALSE)", bind, nil
	}

	if rec, ok := elem.(types.RecordType); ok {
		rows := make([]string, 0, len(q.Elems))
		for _, e := range q.Elems {
			lit, ok := e.(*ir.RecordLit)
			if !ok {
				panic(fmt.Sprintf("internal error: array literal element %T is not a record literal", e))
			}
			vals := make([]string, 0, len(rec.Fields))
			for _, f := range rec.Fields {
				fv := recordFieldValue(lit, f.Name)
				v, err := c.emitExpr(fv)
				if err != nil {
					return "", binding{}, err
				}
				vals = append(vals, v)
			}
			rows = append(rows, "("+strings.Join(vals, ", ")+")")
		}
		cols := make([]string, len(rec.Fields))
		for i, f := range rec.Fields {
			cols[i] = quoteIdent(f.Name)
		}
		text := "(SELECT * FROM (VALUES " + strings.Join(rows, ", ") + ") AS " + bind.alias +
			" (" + strings.Join(cols, ", ") + "))"
		c.corr[q.ID()] = bind
		return text, bind, nil
	}

	rows := make([]string, 0, len(q.Elems))
	for _, e := range q.Elems {
		v, err := c.emitExpr(e)
		if err != nil {
			return "", binding{}, err
		}
		rows = append(rows, "("+v+")")
	}
	text := "(SELECT * FROM (VALUES " + strings.Join(rows, ", ") + ") AS " + bind.alias + " (value))"
	c.corr[q.ID()] = bind
	return text, bind, nil
}

// normalizeSetSide rewrites one side of a set operation into typed columns
// matching the wanted element shape. Sides already in that shape pass
// through untouched; JSON-backed rows get their fields extracted, and
// record columns are reordered to the wanted field order.
func (c *compilation) normalizeSetSide(text string, b binding, want types.Type) (string, binding) {
	if rec, ok := want.(types.RecordType); ok {
		brec, ok := b.elem.(types.RecordType)
		if !ok {
			panic(fmt.Sprintf("internal error: set operand element %s is not a record", b.elem))
		}
		if !b.json && sameFieldOrder(brec, rec) {
			return text, b
		}
		var sb sqlBuilder
		sb.write("(SELECT ")
		for i, f := range rec.Fields {
			if i > 0 {
				sb.write(", ")
			}
			if b.json {
				sb.write(c.dialect.ElementField(b.alias+".value", brec, f.Name))
			} else {
				sb.write(b.alias, ".", quoteIdent(f.Name))
			}
			sb.write(" AS ", quoteIdent(f.Name))
		}
		sb.write(" FROM ", text, " AS ", b.alias, ")")
		return sb.String(), binding{alias: b.alias, elem: rec}
	}
	if !b.json {
		return text, b
	}
	v := c.dialect.ElementValue(b.alias+".value", b.elem)
	return "(SELECT " + v + " AS value FROM " + text + " AS " + b.alias + ")",
		binding{alias: b.alias, elem: want}
}

func sameFieldOrder(a, b types.RecordType) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name {
			return false
		}
	}
	return true
}

func recordFieldValue(lit *ir.RecordLit, name string) ir.Expr {
	for _, f := range lit.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	panic(fmt.Sprintf("internal error: field %q vanished from record literal", name))
}

// emitExpand lowers an array-typed expression used in query position: the
// JSON array value it denotes is computed, then expanded back into one
// row per element under a json-backed binding.
func (c *compilation) emitExpand(q ir.Query) (string, binding, error) {
	elem, err := ir.ElemTypeOf(q)
	if err != nil {
		return "", binding{}, err
	}
	col, err := c.emitExpr(q)
	if err != nil {
		return "", binding{}, err
	}
	alias := c.fresh()
	text := "(SELECT * FROM " + c.dialect.ExpandArray(col) + " AS " + alias + " (value))"
	bind := binding{alias: alias, elem: elem, json: true}
	c.corr[q.ID()] = bind
	return text, bind, nil
}

// emitExpr lowers a scalar-valued node to a SQL expression.
func (c *compilation) emitExpr(e ir.Expr) (string, error) {
	switch e := e.(type) {
	case *ir.NumberLit:
		return formatNumber(e.Value), nil

	case *ir.StringLit:
		return quoteString(e.Value), nil

	case *ir.BoolLit:
		return formatBool(e.Value), nil

	case *ir.NullLit:
		return "NULL", nil

	case *ir.RecordLit:
		names := make([]string, len(e.Fields))
		vals := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			names[i] = f.Name
			v, err := c.emitExpr(f.Value)
			if err != nil {
				return "", err
			}
			vals[i] = v
		}
		return c.dialect.RecordObject(names, vals), nil

	case *ir.Field:
		return c.emitField(e)

	case *ir.Row:
		return c.emitRow(e)

	case *ir.First:
		return c.emitFirst(e)

	case *ir.Eq:
		if _, ok := e.Right.(*ir.NullLit); ok {
			l, err := c.emitExpr(e.Left)
			if err != nil {
				return "", err
			}
			return "(" + l + " IS NULL)", nil
		}
		if _, ok := e.Left.(*ir.NullLit); ok {
			r, err := c.emitExpr(e.Right)
			if err != nil {
				return "", err
			}
			return "(" + r + " IS NULL)", nil
		}
		l, err := c.emitExpr(e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.emitExpr(e.Right)
		if err != nil {
			return "", err
		}
		return "(" + l + " = " + r + ")", nil

	case *ir.Compare:
		l, err := c.emitExpr(e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.emitExpr(e.Right)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + compareToken(e.Op) + " " + r + ")", nil

	case *ir.Logical:
		if len(e.Operands) == 0 {
			// Identity elements: the empty conjunction holds, the
			// empty disjunction does not.
			if e.Op == ir.And {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		if len(e.Operands) == 1 {
			return c.emitExpr(e.Operands[0])
		}
		parts := make([]string, len(e.Operands))
		for i, op := range e.Operands {
			v, err := c.emitExpr(op)
			if err != nil {
				return "", err
			}
			parts[i] = v
		}
		sep := " AND "
		if e.Op == ir.Or {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case *ir.Not:
		v, err := c.emitExpr(e.Operand)
		if err != nil {
			return "", err
		}
		return "NOT " + v, nil

	case *ir.Arith:
		l, err := c.emitExpr(e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.emitExpr(e.Right)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + arithToken(e.Op) + " " + r + ")", nil

	case *ir.Count:
		text, b, err := c.emitSubquery(e.Source)
		if err != nil {
			return "", err
		}
		return "(SELECT count(*) FROM " + text + " AS " + b.alias + ")", nil

	case *ir.NumberWindow:
		return c.emitWindow(windowFn(e.Op), e.Source)

	case *ir.ScalarWindow:
		return c.emitWindow(windowFn(e.Op), e.Source)

	case ir.Query:
		// A query in expression position denotes its rows aggregated
		// into a single JSON array value, empty array when no rows.
		text, b, err := c.emitSubquery(e)
		if err != nil {
			return "", err
		}
		agg := c.dialect.EmptyArrayDefault(c.dialect.AggregateRows(b.alias, b.json))
		return "(SELECT " + agg + " FROM " + text + " AS " + b.alias + ")", nil

	default:
		panic(fmt.Sprintf("internal error: unknown expression type %T", e))
	}
}

func (c *compilation) emitField(e *ir.Field) (string, error) {
	switch src := e.Source.(type) {
	case *ir.Row:
		b, ok := c.corr[src.Source.ID()]
		if !ok {
			return "", fmt.Errorf("row used outside its source query")
		}
		rec, ok := b.elem.(types.RecordType)
		if !ok {
			return "", types.SchemaErrorf("field %q of non-record type %s", e.Name, b.elem)
		}
		if b.json {
			return c.dialect.ElementField(b.alias+".value", rec, e.Name), nil
		}
		return b.alias + "." + quoteIdent(e.Name), nil

	case *ir.First:
		// Field of a first element: push the access inside the LIMIT 1
		// subquery, where the element encoding is known.
		text, b, err := c.emitSubquery(src.Source)
		if err != nil {
			return "", err
		}
		rec, ok := b.elem.(types.RecordType)
		if !ok {
			return "", types.SchemaErrorf("field %q of non-record type %s", e.Name, b.elem)
		}
		var access string
		if b.json {
			access = c.dialect.ElementField(b.alias+".value", rec, e.Name)
		} else {
			access = b.alias + "." + quoteIdent(e.Name)
		}
		return "(SELECT " + access + " FROM " + text + " AS " + b.alias + " LIMIT 1)", nil

	default:
		obj, err := c.emitExpr(e.Source)
		if err != nil {
			return "", err
		}
		st, err := ir.TypeOf(e.Source)
		if err != nil {
			return "", err
		}
		rec, ok := st.(types.RecordType)
		if !ok {
			return "", types.SchemaErrorf("field %q of non-record type %s", e.Name, st)
		}
		ft, ok := rec.Lookup(e.Name)
		if !ok {
			return "", types.SchemaErrorf("field %q not found in %s", e.Name, rec)
		}
		return c.dialect.ObjectField(obj, e.Name, ft), nil
	}
}

func (c *compilation) emitRow(e *ir.Row) (string, error) {
	b, ok := c.corr[e.Source.ID()]
	if !ok {
		return "", fmt.Errorf("row used outside its source query")
	}
	if rec, ok := b.elem.(types.RecordType); ok {
		if b.json {
			// The stored value must read back by field name.
			return c.dialect.RowObject(b.alias+".value", rec), nil
		}
		names := make([]string, len(rec.Fields))
		vals := make([]string, len(rec.Fields))
		for i, f := range rec.Fields {
			names[i] = f.Name
			vals[i] = b.alias + "." + quoteIdent(f.Name)
		}
		return c.dialect.RecordObject(names, vals), nil
	}
	if b.json {
		return c.dialect.ElementValue(b.alias+".value", b.elem), nil
	}
	return b.alias + ".value", nil
}

func (c *compilation) emitFirst(e *ir.First) (string, error) {
	text, b, err := c.emitSubquery(e.Source)
	if err != nil {
		return "", err
	}
	var sel string
	if rec, ok := b.elem.(types.RecordType); ok {
		if b.json {
			sel = c.dialect.RowObject(b.alias+".value", rec)
		} else {
			names := make([]string, len(rec.Fields))
			vals := make([]string, len(rec.Fields))
			for i, f := range rec.Fields {
				names[i] = f.Name
				vals[i] = b.alias + "." + quoteIdent(f.Name)
			}
			sel = c.dialect.RecordObject(names, vals)
		}
	} else if b.json {
		sel = c.dialect.ElementValue(b.alias+".value", b.elem)
	} else {
		sel = b.alias + ".value"
	}
	return "(SELECT " + sel + " FROM " + text + " AS " + b.alias + " LIMIT 1)", nil
}

// emitWindow lowers count-like folds that target one scalar per row.
func (c *compilation) emitWindow(fn string, src ir.Expr) (string, error) {
	text, b, err := c.emitSubquery(src)
	if err != nil {
		return "", err
	}
	v := b.alias + ".value"
	if b.json {
		v = c.dialect.ElementValue(b.alias+".value", b.elem)
	}
	return "(SELECT " + fn + "(" + v + ") FROM " + text + " AS " + b.alias + ")", nil
}

// emitSubquery lowers an array-typed expression used in expression
// position. Array-typed expressions always implement Query; anything else
// is a missed case.
//
// The nested emission runs against the live correlation map, so it can
// resolve rows of enclosing queries, but any bindings it registers are
// discarded afterwards: a node shared between the nested query and the
// enclosing scope must not have its binding clobbered while the enclosing
// scope still resolves rows against it.
func (c *compilation) emitSubquery(e ir.Expr) (string, binding, error) {
	q, ok := e.(ir.Query)
	if !ok {
		panic(fmt.Sprintf("internal error: array-typed expression %T is not a query", e))
	}
	saved := make(map[int64]binding, len(c.corr))
	for id, b := range c.corr {
		saved[id] = b
	}
	text, b, err := c.emitQuery(q)
	c.corr = saved
	return text, b, err
}

func compareToken(op ir.CompareOp) string {
	switch op {
	case ir.Gt:
		return ">"
	case ir.Lt:
		return "<"
	case ir.Gte:
		return ">="
	case ir.Lte:
		return "<="
	}
	panic(fmt.Sprintf("internal error: unknown compare op %d", op))
}

func arithToken(op ir.ArithOp) string {
	switch op {
	case ir.Plus:
		return "+"
	case ir.Minus:
		return "-"
	}
	panic(fmt.Sprintf("internal error: unknown arithmetic op %d", op))
}

func setOpKeyword(op ir.SetOpKind) string {
	switch op {
	case ir.Union:
		return "UNION"
	case ir.Intersect:
		return "INTERSECT"
	case ir.Difference:
		return "EXCEPT"
	}
	panic(fmt.Sprintf("internal error: unknown set op %d", op))
}

func windowFn(op ir.AggOp) string {
	switch op {
	case ir.Average:
		return "avg"
	case ir.Sum:
		return "sum"
	case ir.Max:
		return "max"
	case ir.Min:
		return "min"
	}
	panic(fmt.Sprintf("internal error: unknown aggregate op %d", op))
}

// sqlBuilder assembles one SQL fragment.
type sqlBuilder struct {
	buf bytes.Buffer
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.buf.WriteString(p)
	}
}

func (b *sqlBuilder) String() string {
	return b.buf.String()
}
