/*
Package nestql is an embedded query language that models relational data as
nested collections instead of flat foreign-keyed tables.

A table is declared once with its column types and then treated as a
collection of records. Joins and aggregations are written as map, filter
and aggregate combinators over collections, including fields whose value is
itself a correlated sub-collection. The query is compiled to a single flat
SQL string for a target engine; nothing is executed while building.

# Basics

Declare a table and build a query with combinators:

	students := nestql.DeclareTable("students",
		nestql.Col("id", nestql.UUID),
		nestql.Col("name", nestql.String),
		nestql.Col("age", nestql.Number),
	)

	adults := students.Filter(func(s nestql.Row) nestql.Value {
		return s.Field("age").Gte(nestql.Num(18))
	})

	sql, err := adults.ToSQL(nestql.Postgres)

Each combinator callback receives a Row handle for the current element.
Row.Field returns a named field of a record element as a Value, and values
compose with Eq, Gt, Plus, And and the other Value methods. Literals are
built with Num, Str and Lit.

Projections are built with RecordOf. A projected field may be a whole
sub-collection, giving a table-valued column that later combinators can
expand again:

	classesOf := func(s nestql.Row) nestql.Value {
		return classes.Filter(func(c nestql.Row) nestql.Value {
			return c.Field("teacher_id").Eq(s.Field("id"))
		}).AsValue()
	}

	teachers.Map(func(t nestql.Row) nestql.Value {
		return nestql.RecordOf(
			nestql.F("name", t.Field("name")),
			nestql.F("classes", classesOf(t)),
		)
	})

Compilation is pure and deterministic: the same query compiles to the same
SQL text every time, and independent compilations may run concurrently.

# Errors

Builders carry errors instead of panicking. The first failing call records
the error, later combinators pass it through, and ToSQL, TypeOf or Prepare
report it. Type errors are values of *types.SchemaError and can be matched
with errors.As.

# Running queries

A compiled query is prepared for a dialect and run against a database/sql
handle:

	stmt, err := adults.Prepare(nestql.Postgres)
	db := nestql.NewDB(sqldb)

	var out []nestql.M
	err = db.Query(ctx, stmt).All(&out)

Rows decode into structs via `db` tags, into M maps by column name, or
into pointers to plain Go values for scalar collections.
*/
package nestql
