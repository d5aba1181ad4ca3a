// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package types defines the type model shared by nestql queries and
expressions. Every query result is described by one of six shapes: the
scalars Null, Bool, Number and String, arrays of an element type, and
records of ordered named fields.

Types compare structurally. The order of record fields determines the
order of emitted SQL columns but has no bearing on equality.
*/
package types
