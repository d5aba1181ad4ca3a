/*
Package lower turns nestql IR into SQL text for one target dialect.

The engine is two mutually recursive walks sharing a per-compilation
context: emitQuery lowers collection-valued nodes to parenthesized,
uniquely aliased subqueries, and emitExpr lowers scalar-valued nodes to
plain SQL expressions. The context owns a monotonic alias counter and a
correlation map from node identity to the alias currently bound to that
node's rows, which is how an inner query's predicate can reference an
enclosing query's row.

Table-valued columns round-trip through the dialect's JSON aggregation:
a query used in expression position is aggregated into a single JSON
value at write time, and an array-typed field read in query position is
expanded back into rows. The two dialects share the walk and differ only
in the aggregation, expansion and object-building primitives plus the
element encodings those choices imply.
*/
package lower
