package ir_test

import (
	"errors"

	"github.com/canonical/nestql/internal/ir"
	"github.com/canonical/nestql/types"
	. "gopkg.in/check.v1"
)

type TypeOfSuite struct{}

var _ = Suite(&TypeOfSuite{})

func students() *ir.Table { return ir.NewTable("students", studentRec) }

func age(q ir.Query) *ir.Field  { return ir.NewField(ir.NewRow(q), "age") }
func name(q ir.Query) *ir.Field { return ir.NewField(ir.NewRow(q), "name") }

func (s *TypeOfSuite) TestTypeOf(c *C) {
	t := students()
	adults := ir.NewFilter(t, ir.NewCompare(ir.Gt, age(t), ir.NewNumber(18)))
	ages := ir.NewMap(t, age(t))
	projected := ir.NewMap(t, ir.NewRecordLit([]ir.RecordField{
		{Name: "who", Value: name(t)},
		{Name: "isAdult", Value: ir.NewCompare(ir.Gt, age(t), ir.NewNumber(18))},
	}))
	grouped := ir.NewGroupBy(t, age(t))

	tests := []struct {
		summary  string
		expr     ir.Expr
		expected string
	}{{
		"number literal",
		ir.NewNumber(1),
		"number",
	}, {
		"string literal",
		ir.NewString("x"),
		"string",
	}, {
		"bool literal",
		ir.NewBool(true),
		"bool",
	}, {
		"null literal",
		ir.NewNull(),
		"null",
	}, {
		"record literal keeps field order",
		ir.NewRecordLit([]ir.RecordField{
			{Name: "b", Value: ir.NewString("x")},
			{Name: "a", Value: ir.NewNumber(1)},
		}),
		"record{b: string, a: number}",
	}, {
		"field of a table row",
		age(t),
		"number",
	}, {
		"row of a table",
		ir.NewRow(t),
		"record{id: string, name: string, age: number}",
	}, {
		"first element of a table",
		ir.NewFirst(t),
		"record{id: string, name: string, age: number}",
	}, {
		"equality",
		ir.NewEq(name(t), ir.NewString("Ed")),
		"bool",
	}, {
		"equality against null",
		ir.NewEq(name(t), ir.NewNull()),
		"bool",
	}, {
		"comparison",
		ir.NewCompare(ir.Lte, age(t), ir.NewNumber(65)),
		"bool",
	}, {
		"logical",
		ir.NewLogical(ir.And, []ir.Expr{ir.NewBool(true), ir.NewBool(false)}),
		"bool",
	}, {
		"empty logical",
		ir.NewLogical(ir.Or, nil),
		"bool",
	}, {
		"not",
		ir.NewNot(ir.NewBool(false)),
		"bool",
	}, {
		"arithmetic",
		ir.NewArith(ir.Plus, age(t), ir.NewNumber(1)),
		"number",
	}, {
		"count",
		ir.NewCount(adults),
		"number",
	}, {
		"number window over mapped ages",
		ir.NewNumberWindow(ir.Average, ages),
		"number",
	}, {
		"scalar window over mapped names",
		ir.NewScalarWindow(ir.Max, ir.NewMap(t, name(t))),
		"string",
	}, {
		"table",
		t,
		"array<record{id: string, name: string, age: number}>",
	}, {
		"filter passes the source type through",
		adults,
		"array<record{id: string, name: string, age: number}>",
	}, {
		"map to a bare scalar",
		ages,
		"array<number>",
	}, {
		"map to a record literal",
		projected,
		"array<record{who: string, isAdult: bool}>",
	}, {
		"sort passes the source type through",
		ir.NewSort(t, age(t), true),
		"array<record{id: string, name: string, age: number}>",
	}, {
		"limit and offset pass the source type through",
		ir.NewOffset(ir.NewLimit(t, 3), 1),
		"array<record{id: string, name: string, age: number}>",
	}, {
		"set op takes the left type",
		ir.NewSetOp(ir.Union, adults, t),
		"array<record{id: string, name: string, age: number}>",
	}, {
		"group by wraps key and vals",
		grouped,
		"array<record{key: number, vals: array<record{id: string, name: string, age: number}>}>",
	}, {
		"flat map takes the body type",
		ir.NewFlatMap(grouped, ir.NewField(ir.NewRow(grouped), "vals")),
		"array<record{id: string, name: string, age: number}>",
	}, {
		"field standing in query position",
		ir.NewField(ir.NewRow(grouped), "vals"),
		"array<record{id: string, name: string, age: number}>",
	}, {
		"empty array literal",
		mustArrayLit(c, nil),
		"array<null>",
	}, {
		"scalar array literal",
		mustArrayLit(c, []ir.Expr{ir.NewNumber(1), ir.NewNumber(2)}),
		"array<number>",
	}}

	for i, test := range tests {
		got, err := ir.TypeOf(test.expr)
		if err != nil {
			c.Errorf("test %d failed (TypeOf):\nsummary: %s\nerr: %s\n", i, test.summary, err)
			continue
		}
		if got.String() != test.expected {
			c.Errorf("test %d failed (TypeOf):\nsummary: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.expected, got)
		}
	}
}

func (s *TypeOfSuite) TestTypeOfErrors(c *C) {
	t := students()
	ages := ir.NewMap(t, age(t))
	names := ir.NewMap(t, name(t))

	tests := []struct {
		summary string
		expr    ir.Expr
		err     string
	}{{
		"field not found",
		ir.NewField(ir.NewRow(t), "nope"),
		`field "nope" not found in record\{id: string, name: string, age: number\}`,
	}, {
		"field of a scalar row",
		ir.NewField(ir.NewRow(ages), "x"),
		`field "x" of non-record type number`,
	}, {
		"equality across scalar types",
		ir.NewEq(age(t), ir.NewString("18")),
		"cannot compare number with string",
	}, {
		"equality over rows",
		ir.NewEq(ir.NewRow(t), ir.NewRow(t)),
		"cannot compare record\\{.*\\} with record\\{.*\\}",
	}, {
		"ordering across scalar types",
		ir.NewCompare(ir.Gt, age(t), name(t)),
		"cannot order number against string",
	}, {
		"ordering booleans",
		ir.NewCompare(ir.Lt, ir.NewBool(false), ir.NewBool(true)),
		"cannot order bool against bool",
	}, {
		"logical over a string",
		ir.NewLogical(ir.And, []ir.Expr{name(t)}),
		"logical operand must be boolean, got string",
	}, {
		"not over a number",
		ir.NewNot(age(t)),
		"logical operand must be boolean, got number",
	}, {
		"arithmetic over strings",
		ir.NewArith(ir.Minus, name(t), name(t)),
		"arithmetic requires numbers, got string and string",
	}, {
		"count of a scalar",
		ir.NewCount(ir.NewNumber(1)),
		"cannot iterate over non-array type number",
	}, {
		"number window over strings",
		ir.NewNumberWindow(ir.Sum, names),
		"sum requires a number array, got array<string>",
	}, {
		"scalar window over records",
		ir.NewScalarWindow(ir.Min, t),
		"min requires number or string elements, got array<record\\{.*\\}>",
	}, {
		"filter predicate must be boolean",
		ir.NewFilter(t, name(t)),
		"filter predicate must be boolean, got string",
	}, {
		"sort key must be scalar",
		ir.NewSort(t, ir.NewRow(t), false),
		"sort key must be a scalar, got record\\{.*\\}",
	}, {
		"set op element mismatch",
		ir.NewSetOp(ir.Difference, t, names),
		"set operation requires matching element types, got record\\{.*\\} and string",
	}, {
		"group key must be scalar",
		ir.NewGroupBy(t, ir.NewRow(t)),
		"grouping key must be a scalar, got record\\{.*\\}",
	}, {
		"flat map body must be a collection",
		ir.NewFlatMap(t, age(t)),
		"cannot iterate over non-array type number",
	}, {
		"first of a scalar",
		ir.NewFirst(ir.NewNumber(1)),
		"cannot iterate over non-array type number",
	}}

	for i, test := range tests {
		_, err := ir.TypeOf(test.expr)
		if err == nil {
			c.Errorf("test %d failed (TypeOf):\nsummary: %s\nexpected error matching %q, got nil\n", i, test.summary, test.err)
			continue
		}
		c.Check(err, ErrorMatches, test.err, Commentf("test %d failed: summary: %s", i, test.summary))

		var schemaErr *types.SchemaError
		c.Check(errors.As(err, &schemaErr), Equals, true, Commentf("test %d failed (not a SchemaError): summary: %s", i, test.summary))
	}
}

func (s *TypeOfSuite) TestElemTypeOf(c *C) {
	t := students()
	elem, err := ir.ElemTypeOf(t)
	c.Assert(err, IsNil)
	c.Assert(types.Equal(elem, studentRec), Equals, true)

	_, err = ir.ElemTypeOf(ir.NewNumber(1))
	c.Assert(err, ErrorMatches, "cannot iterate over non-array type number")
}

func mustArrayLit(c *C, elems []ir.Expr) *ir.ArrayLit {
	lit, err := ir.NewArrayLit(elems)
	c.Assert(err, IsNil)
	return lit
}
