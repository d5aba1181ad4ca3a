package cli

import (
	"fmt"

	"github.com/canonical/nestql"
)

// Scenario is one named query of the built-in suite, defined over the demo
// school schema that seed creates.
type Scenario struct {
	Name string
	Doc  string
	Coll nestql.Collection
}

// Schema returns the demo school tables.
func Schema() (teachers, classes, students nestql.Table) {
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

// Scenarios returns the built-in suite in a fixed order.
func Scenarios() []Scenario {
	teachers, classes, students := Schema()

	classesOf := func(t nestql.Row) nestql.Collection {
		return classes.Filter(func(c nestql.Row) nestql.Value {
			return c.Field("teacher_id").Eq(t.Field("id"))
		})
	}

	return []Scenario{{
		Name: "adults",
		Doc:  "students older than 18",
		Coll: students.Filter(func(s nestql.Row) nestql.Value {
			return s.Field("age").Gt(nestql.Num(18))
		}),
	}, {
		Name: "is-adult",
		Doc:  "filter on a projected boolean column",
		Coll: students.Map(func(s nestql.Row) nestql.Value {
			return nestql.RecordOf(
				nestql.F("id", s.Field("id")),
				nestql.F("isAdult", s.Field("age").Gt(nestql.Num(18))),
			)
		}).Filter(func(m nestql.Row) nestql.Value {
			return m.Field("isAdult")
		}),
	}, {
		Name: "class-counts",
		Doc:  "per-teacher class count via a correlated subquery",
		Coll: teachers.Map(func(t nestql.Row) nestql.Value {
			return nestql.RecordOf(
				nestql.F("name", t.Field("name")),
				nestql.F("classCount", classesOf(t).Count()),
			)
		}),
	}, {
		Name: "with-classes",
		Doc:  "each teacher with its classes as a table-valued column",
		Coll: teachers.Map(func(t nestql.Row) nestql.Value {
			return nestql.RecordOf(
				nestql.F("name", t.Field("name")),
				nestql.F("classes", classesOf(t).AsValue()),
			)
		}),
	}, {
		Name: "by-age",
		Doc:  "students grouped by age, one row per distinct age",
		Coll: students.GroupBy(func(s nestql.Row) nestql.Value {
			return s.Field("age")
		}),
	}}
}

// LookupScenarios resolves names against the suite, all scenarios when
// names is empty.
func LookupScenarios(names []string) ([]Scenario, error) {
	all := Scenarios()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Scenario, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	var picked []Scenario
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		picked = append(picked, s)
	}
	return picked, nil
}
