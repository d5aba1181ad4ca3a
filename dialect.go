// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"fmt"

	"github.com/canonical/nestql/internal/lower"
)

// Dialect selects the SQL flavour produced by ToSQL and Prepare.
type Dialect int

const (
	// Postgres emits SQL for PostgreSQL.
	Postgres Dialect = iota
	// Trino emits SQL for Trino.
	Trino
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Trino:
		return "trino"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ParseDialect returns the Dialect named by name.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return Postgres, nil
	case "trino":
		return Trino, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", name)
}

func (d Dialect) lowerDialect() (lower.Dialect, error) {
	switch d {
	case Postgres:
		return lower.Postgres{}, nil
	case Trino:
		return lower.Trino{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %d", int(d))
}
