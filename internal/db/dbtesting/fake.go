package dbtesting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/malbeclabs/pg-mcp/internal/db"
)

var ErrConnClosed = errors.New("conn closed")

// FakeConn is an in-memory db.Conn. QueryFunc answers every query, whether issued on the
// connection or inside a transaction.
type FakeConn struct {
	QueryFunc func(sql string, args []any) (pgx.Rows, error)
	BeginErr  error
	CommitErr error

	mu        sync.Mutex
	queries   []string
	commits   int
	rollbacks int
	closed    bool
}

var _ db.Conn = (*FakeConn)(nil)

func (c *FakeConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.queries = append(c.queries, sql)
	c.mu.Unlock()

	if c.QueryFunc == nil {
		return NewRows(nil), nil
	}
	return c.QueryFunc(sql, args)
}

func (c *FakeConn) Begin(_ context.Context) (pgx.Tx, error) {
	if c.BeginErr != nil {
		return nil, c.BeginErr
	}
	return &FakeTx{conn: c}, nil
}

func (c *FakeConn) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeConn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *FakeConn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *FakeConn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

func (c *FakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeTx implements the parts of pgx.Tx used by the query executor. Calling any other
// method panics on the nil embedded interface.
type FakeTx struct {
	pgx.Tx
	conn *FakeConn
	done bool
}

func (tx *FakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return tx.conn.Query(ctx, sql, args...)
}

func (tx *FakeTx) Commit(_ context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	if tx.conn.CommitErr != nil {
		return tx.conn.CommitErr
	}
	tx.conn.mu.Lock()
	tx.conn.commits++
	tx.conn.mu.Unlock()
	return nil
}

func (tx *FakeTx) Rollback(_ context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.conn.mu.Lock()
	tx.conn.rollbacks++
	tx.conn.mu.Unlock()
	return nil
}

// FakeRows is an in-memory pgx.Rows.
type FakeRows struct {
	Fields []pgconn.FieldDescription
	Data   [][]any
	Tag    string
	// IterErr is reported by Err once iteration finishes.
	IterErr error

	pos    int
	closed bool
}

var _ pgx.Rows = (*FakeRows)(nil)

// NewRows returns text-typed rows for the given columns. A nil column list describes a
// statement that returns no result set.
func NewRows(columns []string, data ...[]any) *FakeRows {
	fields := make([]pgconn.FieldDescription, 0, len(columns))
	for _, name := range columns {
		fields = append(fields, pgconn.FieldDescription{Name: name, DataTypeOID: pgtype.TextOID})
	}
	return &FakeRows{Fields: fields, Data: data, Tag: fmt.Sprintf("SELECT %d", len(data))}
}

// NewCommandRows returns rows for a statement that only reports a command tag.
func NewCommandRows(tag string) *FakeRows {
	return &FakeRows{Tag: tag}
}

// WithOIDs overrides the column type OIDs, in column order.
func (r *FakeRows) WithOIDs(oids ...uint32) *FakeRows {
	for i, oid := range oids {
		r.Fields[i].DataTypeOID = oid
	}
	return r
}

func (r *FakeRows) Close()                                       { r.closed = true }
func (r *FakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag(r.Tag) }
func (r *FakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.Fields }
func (r *FakeRows) RawValues() [][]byte                          { return nil }
func (r *FakeRows) Conn() *pgx.Conn                              { return nil }

func (r *FakeRows) Err() error {
	if r.pos >= len(r.Data) || r.closed {
		return r.IterErr
	}
	return nil
}

func (r *FakeRows) Next() bool {
	if r.closed || r.pos >= len(r.Data) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *FakeRows) Values() ([]any, error) {
	if r.pos == 0 || r.pos > len(r.Data) {
		return nil, errors.New("no current row")
	}
	return r.Data[r.pos-1], nil
}

func (r *FakeRows) Scan(dest ...any) error {
	values, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(values), len(dest))
	}
	for i, d := range dest {
		if err := scanValue(d, values[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func scanValue(dest, value any) error {
	switch d := dest.(type) {
	case *any:
		*d = value
	case *string:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into *string", value)
		}
		*d = s
	case **string:
		if value == nil {
			*d = nil
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan %T into **string", value)
		}
		*d = &s
	case *int64:
		n, ok := value.(int64)
		if !ok {
			return fmt.Errorf("cannot scan %T into *int64", value)
		}
		*d = n
	case **int32:
		if value == nil {
			*d = nil
			return nil
		}
		n, ok := value.(int32)
		if !ok {
			return fmt.Errorf("cannot scan %T into **int32", value)
		}
		*d = &n
	case *bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("cannot scan %T into *bool", value)
		}
		*d = b
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}
