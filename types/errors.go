package types

import (
	"fmt"
)

// SchemaError reports an expression that cannot be given a result type,
// such as access to an absent record field or an aggregate applied to an
// array of the wrong element type.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string {
	return e.Msg
}

// SchemaErrorf builds a SchemaError from a format string.
func SchemaErrorf(format string, args ...any) *SchemaError {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}
