// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ir

import (
	"fmt"
	"sync/atomic"

	"github.com/canonical/nestql/types"
)

// nodeIDCount is a global variable used to generate unique node IDs.
var nodeIDCount int64

// node carries the identity shared by every IR variant. The ID is stamped
// at construction and never changes; the correlation map built during
// lowering is keyed by it.
type node struct {
	id int64
}

func newNode() node {
	return node{id: atomic.AddInt64(&nodeIDCount, 1)}
}

// ID returns the node's stable identity.
func (n *node) ID() int64 {
	return n.id
}

// Expr is a nestql expression. It is a closed sum; the exprNode method
// seals it to this package.
type Expr interface {
	ID() int64
	exprNode()
}

// Query is a collection-valued expression usable as a row source. Every
// Query is also an Expr of array type.
type Query interface {
	Expr
	queryNode()
}

// CompareOp is the operator of a Compare node.
type CompareOp int

const (
	Gt CompareOp = iota
	Lt
	Gte
	Lte
)

func (op CompareOp) String() string {
	switch op {
	case Gt:
		return "gt"
	case Lt:
		return "lt"
	case Gte:
		return "gte"
	case Lte:
		return "lte"
	}
	panic(fmt.Sprintf("internal error: unknown compare op %d", op))
}

// LogicalOp is the operator of a Logical node.
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

func (op LogicalOp) String() string {
	switch op {
	case And:
		return "and"
	case Or:
		return "or"
	}
	panic(fmt.Sprintf("internal error: unknown logical op %d", op))
}

// ArithOp is the operator of an Arith node.
type ArithOp int

const (
	Plus ArithOp = iota
	Minus
)

func (op ArithOp) String() string {
	switch op {
	case Plus:
		return "plus"
	case Minus:
		return "minus"
	}
	panic(fmt.Sprintf("internal error: unknown arithmetic op %d", op))
}

// AggOp is the operator of a NumberWindow or ScalarWindow node.
// NumberWindow accepts all four; ScalarWindow accepts Max and Min only.
type AggOp int

const (
	Average AggOp = iota
	Sum
	Max
	Min
)

func (op AggOp) String() string {
	switch op {
	case Average:
		return "average"
	case Sum:
		return "sum"
	case Max:
		return "max"
	case Min:
		return "min"
	}
	panic(fmt.Sprintf("internal error: unknown aggregate op %d", op))
}

// SetOpKind is the operator of a SetOp node.
type SetOpKind int

const (
	Union SetOpKind = iota
	Intersect
	Difference
)

func (op SetOpKind) String() string {
	switch op {
	case Union:
		return "union"
	case Intersect:
		return "intersect"
	case Difference:
		return "difference"
	}
	panic(fmt.Sprintf("internal error: unknown set op %d", op))
}

// NumberLit is a numeric literal.
type NumberLit struct {
	node
	Value float64
}

// StringLit is a text literal.
type StringLit struct {
	node
	Value string
}

// BoolLit is a boolean literal.
type BoolLit struct {
	node
	Value bool
}

// NullLit is the null literal.
type NullLit struct {
	node
}

// RecordField is one named field of a RecordLit.
type RecordField struct {
	Name  string
	Value Expr
}

// RecordLit constructs a record value. Field order is preserved and fixes
// the column order of the projection it lowers to.
type RecordLit struct {
	node
	Fields []RecordField
}

// Field projects a named field out of a record-valued expression. When the
// field itself holds an array it can stand in query position, where the
// stored JSON value is expanded back into rows.
type Field struct {
	node
	Source Expr
	Name   string
}

// Row is the current element of a query while one of its combinator
// callbacks runs. It is only meaningful below the query it references;
// lowering resolves it through the correlation map.
type Row struct {
	node
	Source Query
}

// First is the first element of an array-valued expression.
type First struct {
	node
	Source Expr
}

// Eq compares two expressions for equality. A NullLit on either side
// lowers to IS NULL.
type Eq struct {
	node
	Left  Expr
	Right Expr
}

// Compare is an order comparison between two expressions.
type Compare struct {
	node
	Op    CompareOp
	Left  Expr
	Right Expr
}

// Logical combines boolean operands. An empty operand list lowers to the
// operator's identity: TRUE for And, FALSE for Or.
type Logical struct {
	node
	Op       LogicalOp
	Operands []Expr
}

// Not negates a boolean expression.
type Not struct {
	node
	Operand Expr
}

// Arith is numeric addition or subtraction.
type Arith struct {
	node
	Op    ArithOp
	Left  Expr
	Right Expr
}

// Count is the number of elements of an array-valued expression.
type Count struct {
	node
	Source Expr
}

// NumberWindow folds an array of numbers into one number.
type NumberWindow struct {
	node
	Op     AggOp
	Source Expr
}

// ScalarWindow folds an array of numbers or strings into one element by
// Max or Min.
type ScalarWindow struct {
	node
	Op     AggOp
	Source Expr
}

// Table is a base relation with a declared schema.
type Table struct {
	node
	Name   string
	Schema types.RecordType
}

// Filter keeps the source rows satisfying Pred. The result keeps the
// source's row identity, so lowering reuses the source alias.
type Filter struct {
	node
	Source Query
	Pred   Expr
}

// Map projects each source row through Proj: the identity Row (a no-op), a
// RecordLit, or a bare scalar expression emitted under the value column.
type Map struct {
	node
	Source Query
	Proj   Expr
}

// Sort orders the source rows by Key, descending when Desc is set.
type Sort struct {
	node
	Source Query
	Key    Expr
	Desc   bool
}

// Limit keeps the first N source rows.
type Limit struct {
	node
	Source Query
	N      int
}

// Offset skips the first N source rows.
type Offset struct {
	node
	Source Query
	N      int
}

// SetOp combines two queries of the same element type. The result takes
// its binding from the left operand.
type SetOp struct {
	node
	Op    SetOpKind
	Left  Query
	Right Query
}

// GroupBy buckets source rows by a single key expression. Each result row
// is a record {key, vals} where vals aggregates the complete source rows
// sharing that key.
type GroupBy struct {
	node
	Source Query
	Key    Expr
}

// FlatMap expands each source row into the rows of Body, laterally joined
// so Body may reference the current source row.
type FlatMap struct {
	node
	Source Query
	Body   Query
}

// ArrayLit is an inline collection of scalar expressions or record
// literals of one uniform type.
type ArrayLit struct {
	node
	Elems []Expr
}

func (*NumberLit) exprNode()    {}
func (*StringLit) exprNode()    {}
func (*BoolLit) exprNode()      {}
func (*NullLit) exprNode()      {}
func (*RecordLit) exprNode()    {}
func (*Field) exprNode()        {}
func (*Row) exprNode()          {}
func (*First) exprNode()        {}
func (*Eq) exprNode()           {}
func (*Compare) exprNode()      {}
func (*Logical) exprNode()      {}
func (*Not) exprNode()          {}
func (*Arith) exprNode()        {}
func (*Count) exprNode()        {}
func (*NumberWindow) exprNode() {}
func (*ScalarWindow) exprNode() {}
func (*Table) exprNode()        {}
func (*Filter) exprNode()       {}
func (*Map) exprNode()          {}
func (*Sort) exprNode()         {}
func (*Limit) exprNode()        {}
func (*Offset) exprNode()       {}
func (*SetOp) exprNode()        {}
func (*GroupBy) exprNode()      {}
func (*FlatMap) exprNode()      {}
func (*ArrayLit) exprNode()     {}

func (*Field) queryNode()    {}
func (*Row) queryNode()      {}
func (*First) queryNode()    {}
func (*Table) queryNode()    {}
func (*Filter) queryNode()   {}
func (*Map) queryNode()      {}
func (*Sort) queryNode()     {}
func (*Limit) queryNode()    {}
func (*Offset) queryNode()   {}
func (*SetOp) queryNode()    {}
func (*GroupBy) queryNode()  {}
func (*FlatMap) queryNode()  {}
func (*ArrayLit) queryNode() {}

// NewNumber returns a numeric literal.
func NewNumber(v float64) *NumberLit {
	return &NumberLit{node: newNode(), Value: v}
}

// NewString returns a text literal.
func NewString(v string) *StringLit {
	return &StringLit{node: newNode(), Value: v}
}

// NewBool returns a boolean literal.
func NewBool(v bool) *BoolLit {
	return &BoolLit{node: newNode(), Value: v}
}

// NewNull returns the null literal.
func NewNull() *NullLit {
	return &NullLit{node: newNode()}
}

// NewRecordLit returns a record literal with the given fields, in order.
func NewRecordLit(fields []RecordField) *RecordLit {
	return &RecordLit{node: newNode(), Fields: fields}
}

// NewField projects the named field from source.
func NewField(source Expr, name string) *Field {
	return &Field{node: newNode(), Source: source, Name: name}
}

// NewRow returns the current-element handle of source.
func NewRow(source Query) *Row {
	return &Row{node: newNode(), Source: source}
}

// NewFirst returns the first element of source.
func NewFirst(source Expr) *First {
	return &First{node: newNode(), Source: source}
}

// NewEq returns an equality comparison.
func NewEq(left, right Expr) *Eq {
	return &Eq{node: newNode(), Left: left, Right: right}
}

// NewCompare returns an order comparison.
func NewCompare(op CompareOp, left, right Expr) *Compare {
	return &Compare{node: newNode(), Op: op, Left: left, Right: right}
}

// NewLogical returns a boolean combination of operands.
func NewLogical(op LogicalOp, operands []Expr) *Logical {
	return &Logical{node: newNode(), Op: op, Operands: operands}
}

// NewNot negates operand.
func NewNot(operand Expr) *Not {
	return &Not{node: newNode(), Operand: operand}
}

// NewArith returns an arithmetic operation.
func NewArith(op ArithOp, left, right Expr) *Arith {
	return &Arith{node: newNode(), Op: op, Left: left, Right: right}
}

// NewCount counts the elements of source.
func NewCount(source Expr) *Count {
	return &Count{node: newNode(), Source: source}
}

// NewNumberWindow folds an array of numbers with op.
func NewNumberWindow(op AggOp, source Expr) *NumberWindow {
	return &NumberWindow{node: newNode(), Op: op, Source: source}
}

// NewScalarWindow folds an array of numbers or strings with Max or Min.
func NewScalarWindow(op AggOp, source Expr) *ScalarWindow {
	if op != Max && op != Min {
		panic(fmt.Sprintf("internal error: scalar window does not support %s", op))
	}
	return &ScalarWindow{node: newNode(), Op: op, Source: source}
}

// NewTable returns a base relation scan.
func NewTable(name string, schema types.RecordType) *Table {
	return &Table{node: newNode(), Name: name, Schema: schema}
}

// NewFilter keeps the source rows satisfying pred.
func NewFilter(source Query, pred Expr) *Filter {
	return &Filter{node: newNode(), Source: source, Pred: pred}
}

// NewMap projects each source row through proj.
func NewMap(source Query, proj Expr) *Map {
	return &Map{node: newNode(), Source: source, Proj: proj}
}

// NewSort orders source by key.
func NewSort(source Query, key Expr, desc bool) *Sort {
	return &Sort{node: newNode(), Source: source, Key: key, Desc: desc}
}

// NewLimit keeps the first n source rows.
func NewLimit(source Query, n int) *Limit {
	return &Limit{node: newNode(), Source: source, N: n}
}

// NewOffset skips the first n source rows.
func NewOffset(source Query, n int) *Offset {
	return &Offset{node: newNode(), Source: source, N: n}
}

// NewSetOp combines left and right with op.
func NewSetOp(op SetOpKind, left, right Query) *SetOp {
	return &SetOp{node: newNode(), Op: op, Left: left, Right: right}
}

// NewGroupBy buckets source rows by key.
func NewGroupBy(source Query, key Expr) *GroupBy {
	return &GroupBy{node: newNode(), Source: source, Key: key}
}

// NewFlatMap expands each source row into the rows of body.
func NewFlatMap(source Query, body Query) *FlatMap {
	return &FlatMap{node: newNode(), Source: source, Body: body}
}

// NewArrayLit returns an inline collection. Elements must share one type;
// records must be record literals so they can lower to a VALUES list, and
// array-valued elements are rejected.
func NewArrayLit(elems []Expr) (*ArrayLit, error) {
	var elemType types.Type
	for i, e := range elems {
		t, err := TypeOf(e)
		if err != nil {
			return nil, err
		}
		if _, ok := t.(types.ArrayType); ok {
			return nil, fmt.Errorf("malformed array literal: element %d is array-valued", i)
		}
		if _, ok := t.(types.RecordType); ok {
			if _, ok := e.(*RecordLit); !ok {
				return nil, fmt.Errorf("malformed array literal: element %d is a computed record, not a record literal", i)
			}
		}
		if elemType == nil {
			elemType = t
			continue
		}
		if !types.Equal(elemType, t) {
			return nil, fmt.Errorf("malformed array literal: mixed element types %s and %s", elemType, t)
		}
	}
	return &ArrayLit{node: newNode(), Elems: elems}, nil
}
