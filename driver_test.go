// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package nestql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattn/go-sqlite3"
)

// This file registers a wrapper sql.Driver over the SQLite driver that
// records every prepared statement it opens and closes, and counts queries
// run directly on the connection versus through a prepared statement. The
// cache tests use the records to check for statement leaks.

// openedStmts and closedStmts store pointers to the created and closed
// statements indexed by test case. The pointers are kept as uintptr so the
// registry does not keep the statements reachable and block their
// finalizers.
var openedStmts = map[string]map[uintptr]string{}
var closedStmts = map[string]map[uintptr]bool{}
var stmtRegistryMutex sync.RWMutex

// dbQueriesRun and stmtQueriesRun count queries per test case, split by
// whether they ran directly on the connection or through a prepared
// statement. Guarded by queriesRunMutex.
var dbQueriesRun = map[string]int{}
var stmtQueriesRun = map[string]int{}
var queriesRunMutex sync.RWMutex

func bumpQueryCount(counts map[string]int, testName string) {
	queriesRunMutex.Lock()
	defer queriesRunMutex.Unlock()
	counts[testName]++
}

type trackingDriver struct {
	driver.Driver
}

type trackingConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type trackingStmt struct {
	testName string
	*sqlite3.SQLiteStmt
}

func (s *trackingStmt) Close() error {
	stmtRegistryMutex.Lock()
	if _, ok := closedStmts[s.testName]; !ok {
		closedStmts[s.testName] = map[uintptr]bool{}
	}
	closedStmts[s.testName][uintptr(unsafe.Pointer(s))] = true
	stmtRegistryMutex.Unlock()

	return s.SQLiteStmt.Close()
}

func (c *trackingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	sPtr := &trackingStmt{SQLiteStmt: sm, testName: c.testName}

	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	if _, ok := openedStmts[c.testName]; !ok {
		openedStmts[c.testName] = map[uintptr]string{}
	}
	openedStmts[c.testName][uintptr(unsafe.Pointer(sPtr))] = query

	return sPtr, err
}

func (c *trackingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *trackingConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	rows, err := c.SQLiteConn.Query(query, args)
	if err == nil {
		bumpQueryCount(dbQueriesRun, c.testName)
	}
	return rows, err
}

func (c *trackingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		bumpQueryCount(dbQueriesRun, c.testName)
	}
	return rows, err
}

func (c *trackingConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	res, err := c.SQLiteConn.Exec(query, args)
	if err == nil {
		bumpQueryCount(dbQueriesRun, c.testName)
	}
	return res, err
}

func (c *trackingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err == nil {
		bumpQueryCount(dbQueriesRun, c.testName)
	}
	return res, err
}

func (s *trackingStmt) Query(args []driver.Value) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.Query(args)
	if err == nil {
		bumpQueryCount(stmtQueriesRun, s.testName)
	}
	return rows, err
}

func (s *trackingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		bumpQueryCount(stmtQueriesRun, s.testName)
	}
	return rows, err
}

func (s *trackingStmt) Exec(args []driver.Value) (driver.Result, error) {
	res, err := s.SQLiteStmt.Exec(args)
	if err == nil {
		bumpQueryCount(stmtQueriesRun, s.testName)
	}
	return res, err
}

func (s *trackingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	if err == nil {
		bumpQueryCount(stmtQueriesRun, s.testName)
	}
	return res, err
}

const testNameTag = "testName"

// Open expects the DSN to carry the test name in the testName attribute.
func (d *trackingDriver) Open(name string) (driver.Conn, error) {
	var testName string
	parameters := strings.Split(name, "?")[1]
	for _, p := range strings.Split(parameters, "&") {
		if strings.HasPrefix(p, testNameTag) {
			testName = strings.Split(p, "=")[1]
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	conn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &trackingConn{SQLiteConn: conn, testName: testName}, err
}

func init() {
	sql.Register("sqlite3_stmtChecked", &trackingDriver{
		&sqlite3.SQLiteDriver{},
	})
}
