// Package testutil provides a stub database/sql driver for postgres
// persister tests. It understands the bucket upsert and select statements
// and stages writes until the surrounding transaction commits.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq uint64

// StubConn records statements and keeps the state table in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Rows       map[string][]byte
	staged     map[string][]byte
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Bucket returns the committed payload stored for bucket.
func (c *StubConn) Bucket(bucket string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Rows[bucket]
	return data, ok
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	c.staged = make(map[string][]byte)
	c.mu.Unlock()
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("expected bucket and payload args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be a string")
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload must be bytes")
	}
	target := c.Rows
	if c.staged != nil {
		target = c.staged
	}
	target[bucket] = append([]byte(nil), payload...)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for SELECT bucket, payload FROM state.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if !strings.Contains(strings.ToLower(query), "from state") {
		return nil, fmt.Errorf("cannot parse select: %s", query)
	}
	values := make([][]driver.Value, 0, len(c.Rows))
	for bucket, payload := range c.Rows {
		values = append(values, []driver.Value{bucket, append([]byte(nil), payload...)})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	staged := t.conn.staged
	t.conn.staged = nil
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	for bucket, payload := range staged {
		t.conn.Rows[bucket] = payload
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.staged = nil
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
