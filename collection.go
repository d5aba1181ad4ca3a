// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"fmt"

	"github.com/canonical/nestql/internal/ir"
	"github.com/canonical/nestql/internal/lower"
	"github.com/canonical/nestql/types"
)

// Collection is an array valued query under construction. Combinators
// derive new collections without mutating the receiver, so partial queries
// can be shared and extended in different directions.
//
// A Collection built by a failed call carries that error and every later
// combinator passes it through; ToSQL, TypeOf and Prepare report it.
type Collection struct {
	query ir.Query
	err   error
}

// row builds the callback handle for the current element.
func (c Collection) row() Row {
	return Row{node: ir.NewRow(c.query)}
}

// derive type-checks the derived query so a bad step is reported against
// the call that built it, then wraps it.
func (c Collection) derive(q ir.Query) Collection {
	if _, err := ir.TypeOf(q); err != nil {
		return Collection{err: err}
	}
	return Collection{query: q}
}

// Filter keeps the elements for which fn returns true.
func (c Collection) Filter(fn func(Row) Value) Collection {
	if c.err != nil {
		return c
	}
	pred := fn(c.row())
	if pred.err != nil {
		return Collection{err: pred.err}
	}
	return c.derive(ir.NewFilter(c.query, pred.expr))
}

// Map projects each element through fn. Record projections must be built
// with RecordOf; returning the row itself is the identity projection.
func (c Collection) Map(fn func(Row) Value) Collection {
	if c.err != nil {
		return c
	}
	proj := fn(c.row())
	if proj.err != nil {
		return Collection{err: proj.err}
	}
	return c.derive(ir.NewMap(c.query, proj.expr))
}

// MapValue projects each element to a bare scalar.
func (c Collection) MapValue(fn func(Row) Value) Collection {
	if c.err != nil {
		return c
	}
	proj := fn(c.row())
	if proj.err != nil {
		return Collection{err: proj.err}
	}
	t, err := ir.TypeOf(proj.expr)
	if err != nil {
		return Collection{err: err}
	}
	if _, ok := t.(types.RecordType); ok {
		return Collection{err: types.SchemaErrorf("map value projection must be a scalar, got %s", t)}
	}
	return c.derive(ir.NewMap(c.query, proj.expr))
}

// FlatMap replaces each element with the elements of the collection fn
// returns, which may be correlated with the element's row.
func (c Collection) FlatMap(fn func(Row) Collection) Collection {
	if c.err != nil {
		return c
	}
	body := fn(c.row())
	if body.err != nil {
		return Collection{err: body.err}
	}
	return c.derive(ir.NewFlatMap(c.query, body.query))
}

// Sort orders the elements by the key fn computes, ascending.
func (c Collection) Sort(fn func(Row) Value) Collection {
	return c.sort(fn, false)
}

// SortDesc orders the elements by the key fn computes, descending.
func (c Collection) SortDesc(fn func(Row) Value) Collection {
	return c.sort(fn, true)
}

func (c Collection) sort(fn func(Row) Value, desc bool) Collection {
	if c.err != nil {
		return c
	}
	key := fn(c.row())
	if key.err != nil {
		return Collection{err: key.err}
	}
	return c.derive(ir.NewSort(c.query, key.expr, desc))
}

// Limit keeps the first n elements.
func (c Collection) Limit(n int) Collection {
	if c.err != nil {
		return c
	}
	if n < 0 {
		return Collection{err: fmt.Errorf("limit cannot be negative, got %d", n)}
	}
	return c.derive(ir.NewLimit(c.query, n))
}

// Offset skips the first n elements.
func (c Collection) Offset(n int) Collection {
	if c.err != nil {
		return c
	}
	if n < 0 {
		return Collection{err: fmt.Errorf("offset cannot be negative, got %d", n)}
	}
	return c.derive(ir.NewOffset(c.query, n))
}

// Union combines two collections, dropping duplicates. Element types must
// match; columns are aligned by name, not position.
func (c Collection) Union(other Collection) Collection {
	return c.setOp(ir.Union, other)
}

// Intersect keeps the elements present in both collections.
func (c Collection) Intersect(other Collection) Collection {
	return c.setOp(ir.Intersect, other)
}

// Difference keeps the elements of c not present in other.
func (c Collection) Difference(other Collection) Collection {
	return c.setOp(ir.Difference, other)
}

func (c Collection) setOp(op ir.SetOpKind, other Collection) Collection {
	if c.err != nil {
		return c
	}
	if other.err != nil {
		return Collection{err: other.err}
	}
	return c.derive(ir.NewSetOp(op, c.query, other.query))
}

// GroupBy buckets the elements by the scalar key fn computes. Each result
// element is a record {key, vals} where vals collects the bucket's source
// elements.
func (c Collection) GroupBy(fn func(Row) Value) Collection {
	if c.err != nil {
		return c
	}
	key := fn(c.row())
	if key.err != nil {
		return Collection{err: key.err}
	}
	return c.derive(ir.NewGroupBy(c.query, key.expr))
}

// Count is the number of elements.
func (c Collection) Count() Value {
	if c.err != nil {
		return Value{err: c.err}
	}
	return makeValue(ir.NewCount(c.query))
}

// Average is the mean of a number collection.
func (c Collection) Average() Value { return c.numberWindow(ir.Average) }

// Sum is the total of a number collection.
func (c Collection) Sum() Value { return c.numberWindow(ir.Sum) }

// Max is the largest element of a number or string collection.
func (c Collection) Max() Value { return c.scalarWindow(ir.Max) }

// Min is the smallest element of a number or string collection.
func (c Collection) Min() Value { return c.scalarWindow(ir.Min) }

func (c Collection) numberWindow(op ir.AggOp) Value {
	if c.err != nil {
		return Value{err: c.err}
	}
	return makeValue(ir.NewNumberWindow(op, c.query))
}

func (c Collection) scalarWindow(op ir.AggOp) Value {
	if c.err != nil {
		return Value{err: c.err}
	}
	return makeValue(ir.NewScalarWindow(op, c.query))
}

// AverageOf is the mean of fn over the elements.
func (c Collection) AverageOf(fn func(Row) Value) Value {
	return c.MapValue(fn).Average()
}

// SumOf is the total of fn over the elements.
func (c Collection) SumOf(fn func(Row) Value) Value {
	return c.MapValue(fn).Sum()
}

// MaxOf is the largest value of fn over the elements.
func (c Collection) MaxOf(fn func(Row) Value) Value {
	return c.MapValue(fn).Max()
}

// MinOf is the smallest value of fn over the elements.
func (c Collection) MinOf(fn func(Row) Value) Value {
	return c.MapValue(fn).Min()
}

// Any reports whether fn holds for at least one element.
func (c Collection) Any(fn func(Row) Value) Value {
	return c.Filter(fn).Count().Gt(Num(0))
}

// Every reports whether fn holds for all elements.
func (c Collection) Every(fn func(Row) Value) Value {
	return c.Filter(func(r Row) Value { return fn(r).Not() }).Count().Eq(Num(0))
}

// First is the first element.
func (c Collection) First() Value {
	if c.err != nil {
		return Value{err: c.err}
	}
	return makeValue(ir.NewFirst(c.query))
}

// AsValue returns the whole collection as an array value, for embedding in
// record projections.
func (c Collection) AsValue() Value {
	if c.err != nil {
		return Value{err: c.err}
	}
	return Value{expr: c.query}
}

// ToSQL compiles the collection to an aliased subquery usable as a FROM
// source.
func (c Collection) ToSQL(d Dialect) (string, error) {
	return compileSQL(c.query, c.err, d)
}

// MustSQL is ToSQL, panicking on error.
func (c Collection) MustSQL(d Dialect) string {
	s, err := c.ToSQL(d)
	if err != nil {
		panic(err)
	}
	return s
}

// TypeOf returns the inferred result type without compiling.
func (c Collection) TypeOf() (types.Type, error) {
	if c.err != nil {
		return nil, c.err
	}
	return ir.TypeOf(c.query)
}

// compileSQL reports sticky builder errors with the same wrapping the
// compiler uses for its own.
func compileSQL(e ir.Expr, err error, d Dialect) (string, error) {
	if err != nil {
		return "", fmt.Errorf("cannot compile query: %w", err)
	}
	ld, err := d.lowerDialect()
	if err != nil {
		return "", err
	}
	return lower.ToSQL(e, ld)
}

// Prepare compiles the collection for the dialect and returns a Statement
// ready to run on a database.
func (c Collection) Prepare(d Dialect) (*Statement, error) {
	if c.err != nil {
		return nil, fmt.Errorf("cannot compile query: %w", c.err)
	}
	elem, err := ir.ElemTypeOf(c.query)
	if err != nil {
		return nil, fmt.Errorf("cannot compile query: %w", err)
	}
	frag, err := compileSQL(c.query, nil, d)
	if err != nil {
		return nil, err
	}
	return stmtCache.newStatement("SELECT * FROM "+frag, elem), nil
}

// MustPrepare is Prepare, panicking on error.
func (c Collection) MustPrepare(d Dialect) *Statement {
	s, err := c.Prepare(d)
	if err != nil {
		panic(err)
	}
	return s
}
