// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ir

import (
	"fmt"

	"github.com/canonical/nestql/types"
)

// TypeOf derives the result type of an expression or query without
// executing anything. It is total over well-formed IR: the only failures
// are schema errors (absent fields, operands or aggregates of the wrong
// type) which are returned as *types.SchemaError.
func TypeOf(e Expr) (types.Type, error) {
	switch e := e.(type) {
	case *NumberLit:
		return types.NumberType{}, nil
	case *StringLit:
		return types.StringType{}, nil
	case *BoolLit:
		return types.BoolType{}, nil
	case *NullLit:
		return types.NullType{}, nil
	case *RecordLit:
		fields := make([]types.Field, 0, len(e.Fields))
		for _, f := range e.Fields {
			t, err := TypeOf(f.Value)
			if err != nil {
				return nil, err
			}
			fields = append(fields, types.Field{Name: f.Name, Type: t})
		}
		return types.RecordType{Fields: fields}, nil
	case *Field:
		st, err := TypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		rec, ok := st.(types.RecordType)
		if !ok {
			return nil, types.SchemaErrorf("field %q of non-record type %s", e.Name, st)
		}
		ft, ok := rec.Lookup(e.Name)
		if !ok {
			return nil, types.SchemaErrorf("field %q not found in %s", e.Name, rec)
		}
		return ft, nil
	case *Row:
		return elemTypeOf(e.Source)
	case *First:
		return elemTypeOf(e.Source)
	case *Eq:
		lt, err := TypeOf(e.Left)
		if err != nil {
			return nil, err
		}
		rt, err := TypeOf(e.Right)
		if err != nil {
			return nil, err
		}
		if !equatable(lt, rt) {
			return nil, types.SchemaErrorf("cannot compare %s with %s", lt, rt)
		}
		return types.BoolType{}, nil
	case *Compare:
		lt, err := TypeOf(e.Left)
		if err != nil {
			return nil, err
		}
		rt, err := TypeOf(e.Right)
		if err != nil {
			return nil, err
		}
		if !orderable(lt, rt) {
			return nil, types.SchemaErrorf("cannot order %s against %s", lt, rt)
		}
		return types.BoolType{}, nil
	case *Logical:
		for _, op := range e.Operands {
			t, err := TypeOf(op)
			if err != nil {
				return nil, err
			}
			if _, ok := t.(types.BoolType); !ok {
				return nil, types.SchemaErrorf("logical operand must be boolean, got %s", t)
			}
		}
		return types.BoolType{}, nil
	case *Not:
		t, err := TypeOf(e.Operand)
		if err != nil {
			return nil, err
		}
		if _, ok := t.(types.BoolType); !ok {
			return nil, types.SchemaErrorf("logical operand must be boolean, got %s", t)
		}
		return types.BoolType{}, nil
	case *Arith:
		lt, err := TypeOf(e.Left)
		if err != nil {
			return nil, err
		}
		rt, err := TypeOf(e.Right)
		if err != nil {
			return nil, err
		}
		if !isNumber(lt) || !isNumber(rt) {
			return nil, types.SchemaErrorf("arithmetic requires numbers, got %s and %s", lt, rt)
		}
		return types.NumberType{}, nil
	case *Count:
		if _, err := elemTypeOf(e.Source); err != nil {
			return nil, err
		}
		return types.NumberType{}, nil
	case *NumberWindow:
		elem, err := elemTypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		if !isNumber(elem) {
			return nil, types.SchemaErrorf("%s requires a number array, got array<%s>", e.Op, elem)
		}
		return types.NumberType{}, nil
	case *ScalarWindow:
		elem, err := elemTypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		switch elem.(type) {
		case types.NumberType, types.StringType:
			return elem, nil
		}
		return nil, types.SchemaErrorf("%s requires number or string elements, got array<%s>", e.Op, elem)
	case *Table:
		return types.ArrayType{Elem: e.Schema}, nil
	case *Filter:
		st, err := arrayTypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		pt, err := TypeOf(e.Pred)
		if err != nil {
			return nil, err
		}
		if _, ok := pt.(types.BoolType); !ok {
			return nil, types.SchemaErrorf("filter predicate must be boolean, got %s", pt)
		}
		return st, nil
	case *Map:
		if _, err := arrayTypeOf(e.Source); err != nil {
			return nil, err
		}
		pt, err := TypeOf(e.Proj)
		if err != nil {
			return nil, err
		}
		return types.ArrayType{Elem: pt}, nil
	case *Sort:
		st, err := arrayTypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		kt, err := TypeOf(e.Key)
		if err != nil {
			return nil, err
		}
		if !isScalar(kt) {
			return nil, types.SchemaErrorf("sort key must be a scalar, got %s", kt)
		}
		return st, nil
	case *Limit:
		return arrayTypeOf(e.Source)
	case *Offset:
		return arrayTypeOf(e.Source)
	case *SetOp:
		lt, err := arrayTypeOf(e.Left)
		if err != nil {
			return nil, err
		}
		rt, err := arrayTypeOf(e.Right)
		if err != nil {
			return nil, err
		}
		if !types.Equal(lt.Elem, rt.Elem) {
			return nil, types.SchemaErrorf("set operation requires matching element types, got %s and %s", lt.Elem, rt.Elem)
		}
		return lt, nil
	case *GroupBy:
		elem, err := elemTypeOf(e.Source)
		if err != nil {
			return nil, err
		}
		kt, err := TypeOf(e.Key)
		if err != nil {
			return nil, err
		}
		if !isScalar(kt) {
			return nil, types.SchemaErrorf("grouping key must be a scalar, got %s", kt)
		}
		return types.ArrayType{Elem: types.RecordType{Fields: []types.Field{
			{Name: "key", Type: kt},
			{Name: "vals", Type: types.ArrayType{Elem: elem}},
		}}}, nil
	case *FlatMap:
		if _, err := arrayTypeOf(e.Source); err != nil {
			return nil, err
		}
		return arrayTypeOf(e.Body)
	case *ArrayLit:
		if len(e.Elems) == 0 {
			return types.ArrayType{Elem: types.NullType{}}, nil
		}
		elem, err := TypeOf(e.Elems[0])
		if err != nil {
			return nil, err
		}
		return types.ArrayType{Elem: elem}, nil
	default:
		panic(fmt.Sprintf("internal error: unknown expression type %T", e))
	}
}

// ElemTypeOf returns the element type of an array-valued expression.
func ElemTypeOf(e Expr) (types.Type, error) {
	return elemTypeOf(e)
}

func elemTypeOf(e Expr) (types.Type, error) {
	at, err := arrayTypeOf(e)
	if err != nil {
		return nil, err
	}
	return at.Elem, nil
}

func arrayTypeOf(e Expr) (types.ArrayType, error) {
	t, err := TypeOf(e)
	if err != nil {
		return types.ArrayType{}, err
	}
	at, ok := t.(types.ArrayType)
	if !ok {
		return types.ArrayType{}, types.SchemaErrorf("cannot iterate over non-array type %s", t)
	}
	return at, nil
}

// equatable reports whether equality between the two types is testable.
// Null pairs with anything through the IS NULL form; otherwise both sides
// must be the same scalar type.
func equatable(l, r types.Type) bool {
	if isNull(l) || isNull(r) {
		return true
	}
	return isScalar(l) && types.Equal(l, r)
}

func orderable(l, r types.Type) bool {
	if isNumber(l) && isNumber(r) {
		return true
	}
	_, ls := l.(types.StringType)
	_, rs := r.(types.StringType)
	return ls && rs
}

func isNull(t types.Type) bool {
	_, ok := t.(types.NullType)
	return ok
}

func isNumber(t types.Type) bool {
	_, ok := t.(types.NumberType)
	return ok
}

func isScalar(t types.Type) bool {
	switch t.(type) {
	case types.BoolType, types.NumberType, types.StringType:
		return true
	}
	return false
}
