// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package lower

import (
	"fmt"
	"strings"

	"github.com/canonical/nestql/types"
)

// Dialect supplies the engine-specific SQL forms. The first four methods
// are the lowering contract proper; the remaining four are element
// accessors implied by the row encoding AggregateRows chooses. A new
// backend implements these plus nothing else: the walking algorithm is
// shared.
type Dialect interface {
	// Name identifies the dialect in errors and golden files.
	Name() string

	// AggregateRows folds the rows of alias into one JSON array value.
	// When json is set the rows are already JSON elements under the
	// value column and are aggregated as-is.
	AggregateRows(alias string, json bool) string

	// EmptyArrayDefault wraps an aggregate so an empty rowset yields an
	// empty JSON array instead of NULL.
	EmptyArrayDefault(agg string) string

	// ExpandArray turns a JSON array value back into a rowset, one row
	// per element, exposed under the value column.
	ExpandArray(col string) string

	// RecordObject builds a name-keyed JSON object from parallel field
	// names and already-lowered value expressions.
	RecordObject(names, vals []string) string

	// ElementField reads the named field out of a row-encoded JSON
	// element, cast for scalar use.
	ElementField(elem string, rec types.RecordType, name string) string

	// ElementValue reads a scalar row-encoded JSON element produced by
	// the value-column convention.
	ElementValue(elem string, t types.Type) string

	// ObjectField reads the named field out of a name-keyed JSON object
	// built by RecordObject.
	ObjectField(obj string, name string, t types.Type) string

	// RowObject re-encodes a row-encoded JSON element as a name-keyed
	// object readable by ObjectField. Dialects whose row encoding is
	// already name-keyed return the element unchanged.
	RowObject(elem string, rec types.RecordType) string
}

// Postgres lowers through json_agg and json_array_elements. Rows encode as
// name-keyed JSON objects; bare scalar rows as {"value": v}.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) AggregateRows(alias string, json bool) string {
	if json {
		return "json_agg(" + alias + ".value)"
	}
	return "json_agg(" + alias + ")"
}

func (Postgres) EmptyArrayDefault(agg string) string {
	return "COALESCE(" + agg + ", '[]')"
}

func (Postgres) ExpandArray(col string) string {
	return "json_array_elements(" + col + ")"
}

func (Postgres) RecordObject(names, vals []string) string {
	var sb strings.Builder
	sb.WriteString("json_build_object(")
	for i := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteString(names[i]))
		sb.WriteString(", ")
		sb.WriteString(vals[i])
	}
	sb.WriteString(")")
	return sb.String()
}

func (d Postgres) ElementField(elem string, rec types.RecordType, name string) string {
	t, ok := rec.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("internal error: field %q vanished from %s", name, rec))
	}
	return pgExtract(elem, name, t)
}

func (Postgres) ElementValue(elem string, t types.Type) string {
	return pgExtract(elem, "value", t)
}

func (Postgres) ObjectField(obj string, name string, t types.Type) string {
	return pgExtract(obj, name, t)
}

// Postgres rows aggregate to name-keyed objects already.
func (Postgres) RowObject(elem string, _ types.RecordType) string {
	return elem
}

// pgExtract reads one key from a JSON object: ->> plus a cast for scalar
// use, -> to stay in JSON for nested arrays and records.
func pgExtract(obj, key string, t types.Type) string {
	switch t.(type) {
	case types.ArrayType, types.RecordType:
		return "(" + obj + " -> " + quoteString(key) + ")"
	case types.NumberType:
		return "(" + obj + " ->> " + quoteString(key) + ")::numeric"
	case types.BoolType:
		return "(" + obj + " ->> " + quoteString(key) + ")::boolean"
	case types.StringType, types.NullType:
		return "(" + obj + " ->> " + quoteString(key) + ")"
	default:
		panic(fmt.Sprintf("internal error: unknown type variant %T", t))
	}
}

// Trino lowers through ARRAY_AGG over ROW casts and UNNEST. Rows encode as
// positional JSON arrays in record field order; bare scalar rows at index
// zero. Objects built by RecordObject are name-keyed MAPs.
type Trino struct{}

func (Trino) Name() string { return "trino" }

func (Trino) AggregateRows(alias string, json bool) string {
	if json {
		return "CAST(ARRAY_AGG(" + alias + ".value) AS JSON)"
	}
	return "CAST(ARRAY_AGG(CAST(ROW(" + alias + ".*) AS JSON)) AS JSON)"
}

func (Trino) EmptyArrayDefault(agg string) string {
	return "COALESCE(" + agg + ", CAST('[]' AS JSON))"
}

func (Trino) ExpandArray(col string) string {
	return "UNNEST(CAST(" + col + " AS ARRAY<JSON>))"
}

func (Trino) RecordObject(names, vals []string) string {
	var sb strings.Builder
	sb.WriteString("CAST(MAP(ARRAY[")
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteString(n))
	}
	sb.WriteString("], ARRAY[")
	for i, v := range vals {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("CAST(" + v + " AS JSON)")
	}
	sb.WriteString("]) AS JSON)")
	return sb.String()
}

func (Trino) ElementField(elem string, rec types.RecordType, name string) string {
	i := rec.Index(name)
	if i < 0 {
		panic(fmt.Sprintf("internal error: field %q vanished from %s", name, rec))
	}
	t, _ := rec.Lookup(name)
	return trinoExtract(elem, fmt.Sprintf("$[%d]", i), t)
}

func (Trino) ElementValue(elem string, t types.Type) string {
	return trinoExtract(elem, "$[0]", t)
}

func (Trino) ObjectField(obj string, name string, t types.Type) string {
	return trinoExtract(obj, "$."+name, t)
}

// Trino row elements are positional, so an element stored whole is
// rebuilt as a name-keyed object before ObjectField can read it.
func (d Trino) RowObject(elem string, rec types.RecordType) string {
	names := make([]string, len(rec.Fields))
	vals := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		names[i] = f.Name
		vals[i] = d.ElementField(elem, rec, f.Name)
	}
	return d.RecordObject(names, vals)
}

func trinoExtract(obj, path string, t types.Type) string {
	ex := "JSON_EXTRACT(" + obj + ", '" + path + "')"
	switch t.(type) {
	case types.ArrayType, types.RecordType, types.NullType:
		return ex
	case types.NumberType:
		return "CAST(" + ex + " AS DOUBLE)"
	case types.BoolType:
		return "CAST(" + ex + " AS BOOLEAN)"
	case types.StringType:
		return "CAST(" + ex + " AS VARCHAR)"
	default:
		panic(fmt.Sprintf("internal error: unknown type variant %T", t))
	}
}
