// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package types

import (
	"strings"
)

// Type is the result shape of a nestql expression or query. It is a closed
// set: NullType, BoolType, NumberType, StringType, ArrayType and RecordType
// are the only implementations.
type Type interface {
	// String renders the type for error messages.
	String() string

	// typeVariant seals the interface.
	typeVariant()
}

// NullType is the type of the null literal.
type NullType struct{}

// BoolType is the type of boolean values.
type BoolType struct{}

// NumberType is the type of numeric values.
type NumberType struct{}

// StringType is the type of text values.
type StringType struct{}

// ArrayType is a collection of Elem values.
type ArrayType struct {
	Elem Type
}

// Field is a single named field of a record.
type Field struct {
	Name string
	Type Type
}

// RecordType is an ordered set of named fields. Order fixes the column
// order of emitted SQL; it does not affect equality.
type RecordType struct {
	Fields []Field
}

func (NullType) typeVariant()   {}
func (BoolType) typeVariant()   {}
func (NumberType) typeVariant() {}
func (StringType) typeVariant() {}
func (ArrayType) typeVariant()  {}
func (RecordType) typeVariant() {}

func (NullType) String() string   { return "null" }
func (BoolType) String() string   { return "bool" }
func (NumberType) String() string { return "number" }
func (StringType) String() string { return "string" }

func (t ArrayType) String() string {
	return "array<" + t.Elem.String() + ">"
}

func (t RecordType) String() string {
	var sb strings.Builder
	sb.WriteString("record{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Type.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// Lookup returns the type of the named field and whether it exists.
func (t RecordType) Lookup(name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Index returns the position of the named field in declaration order, or -1.
// Positional JSON encodings rely on it.
func (t RecordType) Index(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
