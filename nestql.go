// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/canonical/nestql/internal/typeinfo"
	"github.com/canonical/nestql/types"
)

// M is a convenience type for decoding result rows by column name. M is not
// a special type, any named map type with string keys and any values can be
// used.
//
// Example:
//
//	stmt := students.MustPrepare(nestql.Postgres)
//	m := nestql.M{}
//	err := db.Query(ctx, stmt).Get(m) // => nestql.M{"name": "Fred", "age": 17}
type M map[string]any

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated with compiled
// Statement objects.
var stmtCache = newStatementCache()

// Statement is a compiled collection query ready to be run on a database.
// A Statement can be used with any [DB].
type Statement struct {
	// cacheID is used to look up the driver prepared statements associated
	// with this statement.
	cacheID int64
	// sql is the executable query text.
	sql string
	// elem is the element type of the compiled collection.
	elem types.Type
}

// SQL returns the executable query text.
func (s *Statement) SQL() string {
	return s.sql
}

// ElementType returns the element type of the compiled collection.
func (s *Statement) ElementType() types.Type {
	return s.elem
}

// DB wraps a database handle so compiled statements can be run on it.
type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID int64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX.
	run func(context.Context) (*sql.Rows, error)
	ctx context.Context
	err error
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	rows    *sql.Rows
	cols    []string
	err     error
	started bool
}

// Query builds a new query from a context and a compiled [Statement]. The
// query is run on the database when one of [Query.Iter], [Query.Run],
// [Query.Get] or [Query.All] is executed.
func (db *DB) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, err := stmtCache.prepareStmt(innerCtx, db.cacheID, db.sqldb, s)
		if err != nil {
			return nil, err
		}
		return sqlstmt.QueryContext(innerCtx)
	}

	return &Query{run: run, ctx: ctx}
}

// Run executes the query and discards the results.
func (q *Query) Run() error {
	return q.Iter().Close()
}

// Get runs the query and decodes the first row returned into the provided
// output arguments. It returns [ErrNoRows] if there were no rows.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	iter := q.Iter()
	if !iter.Next() {
		err := iter.Close()
		if err == nil {
			err = ErrNoRows
		}
		return err
	}
	err := iter.Decode(outputArgs...)
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	rows, err := q.run(q.ctx)
	var cols []string
	if err == nil {
		cols, err = rows.Columns()
	}
	if err != nil {
		if rows != nil {
			rows.Close()
		}
		return &Iterator{err: err}
	}

	return &Iterator{rows: rows, cols: cols}
}

// Next prepares the next row for [Iterator.Decode]. If an error occurs
// during iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Decode decodes the result from the previous [Iterator.Next] call into
// the provided output arguments: pointers to structs with db tags, an [M]
// map collecting unclaimed columns, or pointers to plain Go values.
func (iter *Iterator) Decode(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot decode result: %s", err)
		}
	}()

	if !iter.started {
		return fmt.Errorf("cannot call Decode before Next")
	}
	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	ptrs, onSuccess, err := typeinfo.ScanArgs(iter.cols, outputArgs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	onSuccess()
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close
// can be called multiple times on the [Iterator] and the same error will
// be returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	return err
}

// All iterates over the query and scans all rows into the provided slices.
// sliceArgs must contain pointers to slices of structs, maps or plain
// values. An empty collection is a legal result, so no rows is not an
// error.
func (q *Query) All(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}

	// Check slice inputs are valid using reflection.
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return fmt.Errorf("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	// Iterate over the query results.
	iter := q.Iter()
	for iter.Next() {
		var outputArgs = []any{}
		for _, sliceVal := range sliceVals {
			elemType := sliceVal.Type().Elem()
			var outputArg reflect.Value
			switch elemType.Kind() {
			case reflect.Pointer:
				if elemType.Elem().Kind() != reflect.Struct {
					iter.Close()
					return fmt.Errorf("need slice of structs, maps or values, got slice of pointer to %s", elemType.Elem().Kind())
				}
				outputArg = reflect.New(elemType.Elem())
			case reflect.Map:
				outputArg = reflect.MakeMap(elemType)
			default:
				outputArg = reflect.New(elemType)
			}
			outputArgs = append(outputArgs, outputArg.Interface())
		}
		if err := iter.Decode(outputArgs...); err != nil {
			iter.Close()
			return err
		}
		for i, outputArg := range outputArgs {
			switch k := sliceVals[i].Type().Elem().Kind(); k {
			case reflect.Pointer, reflect.Map:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
			default:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg).Elem())
			}
		}
	}
	err = iter.Close()
	if err != nil {
		return err
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}

	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query on the transaction from a context and a
// compiled [Statement]. The query is run when one of [Query.Iter],
// [Query.Run], [Query.Get] or [Query.All] is executed.
func (tx *TX) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	run := func(innerCtx context.Context) (*sql.Rows, error) {
		sqlstmt, ok := stmtCache.lookupStmt(tx.db, s)
		if ok {
			// Register the prepared statement on the transaction. Note
			// that this does not re-prepare the statement on the driver.
			// The txstmt is closed by database/sql when the transaction
			// is committed or rolled back.
			txstmt := tx.sqltx.Stmt(sqlstmt)
			return txstmt.QueryContext(innerCtx)
		}
		return tx.sqltx.QueryContext(innerCtx, s.sql)
	}

	return &Query{ctx: ctx, run: run}
}
