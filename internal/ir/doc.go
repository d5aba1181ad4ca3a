/*
Package ir defines the intermediate representation shared by the nestql
builder layer and the SQL lowering engine.

The IR is a pair of closed sums. Expr covers scalar-valued expressions:
literals, field access, comparisons, arithmetic, boolean logic and
aggregates. Query covers collection-valued steps: table scans, filter, map,
sort, limit, offset, set operations, group-by, flat-map and array literals.
Every Query is also an Expr: used in expression position it denotes an
array value (a table-valued field). Field, Row and First run the other way:
they are expressions that can stand in query position whenever their result
type is an array.

Nodes are immutable once constructed and carry a stable integer identity.
The lowering engine correlates nested scopes by that identity, so one node
feeding several consumers is sharing, not duplication.
*/
package ir
