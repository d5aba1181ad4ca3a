// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"fmt"

	"github.com/canonical/nestql/internal/ir"
	"github.com/canonical/nestql/types"
)

// ColumnType is the declared type of a table column.
type ColumnType int

const (
	// UUID columns hold textual ids. They infer as strings but keep
	// their declared tag, visible through Table.Columns.
	UUID ColumnType = iota
	// String columns hold text.
	String
	// Number columns hold numeric values.
	Number
	// Bool columns hold booleans.
	Bool
	// Null columns hold only NULL.
	Null
)

// String returns the column type tag as written in declarations.
func (t ColumnType) String() string {
	switch t {
	case UUID:
		return "uuid"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Null:
		return "null"
	}
	return fmt.Sprintf("columntype(%d)", int(t))
}

// ParseColumnType returns the ColumnType named by tag.
func ParseColumnType(tag string) (ColumnType, error) {
	switch tag {
	case "uuid":
		return UUID, nil
	case "string":
		return String, nil
	case "number":
		return Number, nil
	case "bool":
		return Bool, nil
	case "null":
		return Null, nil
	}
	return 0, fmt.Errorf("unknown column type %q", tag)
}

func (t ColumnType) valueType() types.Type {
	switch t {
	case UUID, String:
		return types.StringType{}
	case Number:
		return types.NumberType{}
	case Bool:
		return types.BoolType{}
	case Null:
		return types.NullType{}
	}
	panic(fmt.Sprintf("internal error: unknown column type %d", int(t)))
}

// Column is a single column of a table declaration.
type Column struct {
	name string
	typ  ColumnType
}

// Col declares a column.
func Col(name string, t ColumnType) Column {
	return Column{name: name, typ: t}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// Type returns the declared column type.
func (c Column) Type() ColumnType { return c.typ }

// Table is a declared base table. It is a Collection, so combinators
// apply to it directly, and it keeps the declared column tags.
type Table struct {
	Collection
	name string
	cols []Column
}

// DeclareTable declares a base table with the given columns. Column
// order fixes the column order of the emitted SQL.
func DeclareTable(name string, cols ...Column) Table {
	if len(cols) == 0 {
		return Table{Collection: Collection{err: fmt.Errorf("table %q has no columns", name)}, name: name}
	}
	fields := make([]types.Field, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if seen[col.name] {
			return Table{Collection: Collection{err: fmt.Errorf("duplicate column %q in table %q", col.name, name)}, name: name}
		}
		seen[col.name] = true
		fields = append(fields, types.Field{Name: col.name, Type: col.typ.valueType()})
	}
	rec := types.RecordType{Fields: fields}
	return Table{
		Collection: Collection{query: ir.NewTable(name, rec)},
		name:       name,
		cols:       append([]Column(nil), cols...),
	}
}

// Name returns the declared table name.
func (t Table) Name() string { return t.name }

// Columns returns the declared columns, uuid tags intact.
func (t Table) Columns() []Column {
	return append([]Column(nil), t.cols...)
}
