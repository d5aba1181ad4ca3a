// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"fmt"
	"reflect"

	"github.com/canonical/nestql/internal/ir"
	"github.com/canonical/nestql/types"
)

// Value is a scalar, record or array valued expression under construction.
// A Value built by a failed call carries that error and every later method
// passes it through; ToSQL and TypeOf report it.
type Value struct {
	expr ir.Expr
	err  error
}

// Row is the handle a combinator callback receives for the current element
// of its source collection. It is only meaningful inside the callback that
// received it.
type Row struct {
	node *ir.Row
	err  error
}

// Field returns the named field of a record element.
func (r Row) Field(name string) Value {
	if r.err != nil {
		return Value{err: r.err}
	}
	return makeValue(ir.NewField(r.node, name))
}

// Value returns the element itself.
func (r Row) Value() Value {
	if r.err != nil {
		return Value{err: r.err}
	}
	return makeValue(r.node)
}

// makeValue type-checks expr so a bad expression is reported against the
// call that built it, then wraps it.
func makeValue(expr ir.Expr) Value {
	if _, err := ir.TypeOf(expr); err != nil {
		return Value{err: err}
	}
	return Value{expr: expr}
}

func firstErr(vals ...Value) error {
	for _, v := range vals {
		if v.err != nil {
			return v.err
		}
	}
	return nil
}

// Field returns the named field of a record value.
func (v Value) Field(name string) Value {
	if v.err != nil {
		return v
	}
	return makeValue(ir.NewField(v.expr, name))
}

// Items treats an array valued expression as a collection so combinators
// can be applied to it again, expanding the stored value back into rows.
func (v Value) Items() Collection {
	if v.err != nil {
		return Collection{err: v.err}
	}
	t, err := ir.TypeOf(v.expr)
	if err != nil {
		return Collection{err: err}
	}
	if _, ok := t.(types.ArrayType); !ok {
		return Collection{err: types.SchemaErrorf("cannot iterate over non-array type %s", t)}
	}
	q, ok := v.expr.(ir.Query)
	if !ok {
		panic(fmt.Sprintf("internal error: array-typed expression %T is not a query", v.expr))
	}
	return Collection{query: q}
}

// Eq compares two values for equality. Comparison with a null literal on
// either side lowers to IS NULL.
func (v Value) Eq(other Value) Value {
	if err := firstErr(v, other); err != nil {
		return Value{err: err}
	}
	return makeValue(ir.NewEq(v.expr, other.expr))
}

// Gt is the greater-than comparison.
func (v Value) Gt(other Value) Value { return v.compare(ir.Gt, other) }

// Lt is the less-than comparison.
func (v Value) Lt(other Value) Value { return v.compare(ir.Lt, other) }

// Gte is the greater-or-equal comparison.
func (v Value) Gte(other Value) Value { return v.compare(ir.Gte, other) }

// Lte is the less-or-equal comparison.
func (v Value) Lte(other Value) Value { return v.compare(ir.Lte, other) }

func (v Value) compare(op ir.CompareOp, other Value) Value {
	if err := firstErr(v, other); err != nil {
		return Value{err: err}
	}
	return makeValue(ir.NewCompare(op, v.expr, other.expr))
}

// Plus adds two numbers.
func (v Value) Plus(other Value) Value { return v.arith(ir.Plus, other) }

// Minus subtracts other from v.
func (v Value) Minus(other Value) Value { return v.arith(ir.Minus, other) }

func (v Value) arith(op ir.ArithOp, other Value) Value {
	if err := firstErr(v, other); err != nil {
		return Value{err: err}
	}
	return makeValue(ir.NewArith(op, v.expr, other.expr))
}

// And conjoins two boolean values.
func (v Value) And(other Value) Value {
	if err := firstErr(v, other); err != nil {
		return Value{err: err}
	}
	return makeValue(ir.NewLogical(ir.And, []ir.Expr{v.expr, other.expr}))
}

// Or disjoins two boolean values.
func (v Value) Or(other Value) Value {
	if err := firstErr(v, other); err != nil {
		return Value{err: err}
	}
	return makeValue(ir.NewLogical(ir.Or, []ir.Expr{v.expr, other.expr}))
}

// Not negates a boolean value.
func (v Value) Not() Value {
	if v.err != nil {
		return v
	}
	return makeValue(ir.NewNot(v.expr))
}

// ToSQL compiles the value to SQL text for the dialect: a bare scalar
// expression, or an aliased subquery for array values.
func (v Value) ToSQL(d Dialect) (string, error) {
	return compileSQL(v.expr, v.err, d)
}

// MustSQL is ToSQL, panicking on error.
func (v Value) MustSQL(d Dialect) string {
	s, err := v.ToSQL(d)
	if err != nil {
		panic(err)
	}
	return s
}

// TypeOf returns the inferred result type without compiling.
func (v Value) TypeOf() (types.Type, error) {
	if v.err != nil {
		return nil, v.err
	}
	return ir.TypeOf(v.expr)
}

// Num returns a number literal.
func Num(n float64) Value {
	return Value{expr: ir.NewNumber(n)}
}

// Str returns a string literal.
func Str(s string) Value {
	return Value{expr: ir.NewString(s)}
}

// Lit lifts a plain Go value into a literal. It accepts nil, booleans,
// strings and any integer or float type.
func Lit(v any) Value {
	if v == nil {
		return Value{expr: ir.NewNull()}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return Value{expr: ir.NewBool(rv.Bool())}
	case reflect.String:
		return Value{expr: ir.NewString(rv.String())}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Value{expr: ir.NewNumber(float64(rv.Int()))}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Value{expr: ir.NewNumber(float64(rv.Uint()))}
	case reflect.Float32, reflect.Float64:
		return Value{expr: ir.NewNumber(rv.Float())}
	}
	return Value{err: fmt.Errorf("cannot make a literal from %T", v)}
}

// And joins the operands with logical AND. With no operands it is TRUE.
func And(operands ...Value) Value {
	return logical(ir.And, operands)
}

// Or joins the operands with logical OR. With no operands it is FALSE.
func Or(operands ...Value) Value {
	return logical(ir.Or, operands)
}

func logical(op ir.LogicalOp, operands []Value) Value {
	exprs := make([]ir.Expr, 0, len(operands))
	for _, o := range operands {
		if o.err != nil {
			return Value{err: o.err}
		}
		exprs = append(exprs, o.expr)
	}
	return makeValue(ir.NewLogical(op, exprs))
}

// Not negates a boolean value.
func Not(v Value) Value {
	return v.Not()
}

// RecordField is one named field for RecordOf.
type RecordField struct {
	name  string
	value Value
}

// F pairs a field name with its value for RecordOf.
func F(name string, value Value) RecordField {
	return RecordField{name: name, value: value}
}

// RecordOf builds a record literal, the usual shape of a Map projection.
// Field order fixes the emitted column order.
func RecordOf(fields ...RecordField) Value {
	irFields := make([]ir.RecordField, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.value.err != nil {
			return Value{err: f.value.err}
		}
		if seen[f.name] {
			return Value{err: fmt.Errorf("duplicate record field %q", f.name)}
		}
		seen[f.name] = true
		irFields = append(irFields, ir.RecordField{Name: f.name, Value: f.value.expr})
	}
	return makeValue(ir.NewRecordLit(irFields))
}

// ArrayOf builds an inline collection from literal elements. Elements must
// share one type; records must be built with RecordOf.
func ArrayOf(elems ...Value) Collection {
	exprs := make([]ir.Expr, 0, len(elems))
	for _, e := range elems {
		if e.err != nil {
			return Collection{err: e.err}
		}
		exprs = append(exprs, e.expr)
	}
	lit, err := ir.NewArrayLit(exprs)
	if err != nil {
		return Collection{err: err}
	}
	return Collection{query: lit}
}
