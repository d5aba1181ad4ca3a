package demo

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/canonical/nestql"
)

// school declares the demo relations once; every query below derives from
// these collections.
func school() (teachers, classes, students nestql.Table) {
	teachers = nestql.DeclareTable("teachers",
		nestql.Col("id", nestql.UUID),
		nestql.Col("name", nestql.String),
	)
	classes = nestql.DeclareTable("classes",
		nestql.Col("id", nestql.UUID),
		nestql.Col("teacher_id", nestql.UUID),
		nestql.Col("title", nestql.String),
	)
	students = nestql.DeclareTable("students",
		nestql.Col("id", nestql.UUID),
		nestql.Col("name", nestql.String),
		nestql.Col("age", nestql.Number),
	)
	return teachers, classes, students
}

func example() error {
	teachers, classes, students := school()

	// Adults: a plain filter over a scalar column.
	adults := students.Filter(func(s nestql.Row) nestql.Value {
		return s.Field("age").Gt(nestql.Num(18))
	})

	// A projected boolean column, filtered by name rather than recomputed.
	flagged := students.Map(func(s nestql.Row) nestql.Value {
		return nestql.RecordOf(
			nestql.F("id", s.Field("id")),
			nestql.F("isAdult", s.Field("age").Gt(nestql.Num(18))),
		)
	}).Filter(func(m nestql.Row) nestql.Value {
		return m.Field("isAdult")
	})

	// A correlated count: the inner filter binds to the outer teacher row.
	classCounts := teachers.Map(func(t nestql.Row) nestql.Value {
		mine := classes.Filter(func(c nestql.Row) nestql.Value {
			return c.Field("teacher_id").Eq(t.Field("id"))
		})
		return nestql.RecordOf(
			nestql.F("id", t.Field("id")),
			nestql.F("classCount", mine.Count()),
		)
	})

	// A table-valued column: each teacher row carries its classes as a
	// nested collection, stored as a JSON value in the result.
	withClasses := teachers.Map(func(t nestql.Row) nestql.Value {
		mine := classes.Filter(func(c nestql.Row) nestql.Value {
			return c.Field("teacher_id").Eq(t.Field("id"))
		})
		return nestql.RecordOf(
			nestql.F("name", t.Field("name")),
			nestql.F("classes", mine.AsValue()),
		)
	})

	// One row per distinct age, with the bucket reaggregated into vals.
	byAge := students.GroupBy(func(s nestql.Row) nestql.Value {
		return s.Field("age")
	})

	queries := []struct {
		name string
		coll nestql.Collection
	}{
		{"adults", adults},
		{"flagged", flagged},
		{"classCounts", classCounts},
		{"withClasses", withClasses},
		{"byAge", byAge},
	}

	for _, q := range queries {
		for _, d := range []nestql.Dialect{nestql.Postgres, nestql.Trino} {
			sqlText, err := q.coll.ToSQL(d)
			if err != nil {
				return err
			}
			fmt.Printf("-- %s (%s)\nSELECT * FROM %s;\n\n", q.name, d, sqlText)
		}
	}

	// With a DSN in the environment, run the Postgres renditions for real.
	dsn := os.Getenv("NESTQL_DEMO_PG_DSN")
	if dsn == "" {
		return nil
	}
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	db := nestql.NewDB(sqldb)
	for _, q := range queries {
		stmt, err := q.coll.Prepare(nestql.Postgres)
		if err != nil {
			return err
		}
		var rows []nestql.M
		if err := db.Query(context.Background(), stmt).All(&rows); err != nil {
			return err
		}
		fmt.Printf("-- %s: %d row(s)\n", q.name, len(rows))
		for _, row := range rows {
			fmt.Printf("%v\n", row)
		}
	}
	return nil
}

func main() {
	err := example()
	if err != nil {
		panic(err)
	}
}
