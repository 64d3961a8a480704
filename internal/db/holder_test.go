package db_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/pg-mcp/internal/db"
	"github.com/malbeclabs/pg-mcp/internal/db/dbtesting"
)

func newHolder(t *testing.T, connect db.ConnectFunc) *db.Holder {
	t.Helper()
	holder, err := db.NewHolder(db.HolderConfig{
		Logger:  dbtesting.NewLogger(),
		DB:      db.Config{Database: "postgres", User: "postgres"},
		Connect: connect,
	})
	require.NoError(t, err)
	return holder
}

func TestPGMCP_DB_Holder_NewHolder(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		holder, err := db.NewHolder(db.HolderConfig{
			DB: db.Config{Database: "postgres", User: "postgres"},
		})
		require.Error(t, err)
		require.Nil(t, holder)
		require.Contains(t, err.Error(), "logger is required")
	})

	t.Run("invalid database config", func(t *testing.T) {
		t.Parallel()
		holder, err := db.NewHolder(db.HolderConfig{
			Logger: dbtesting.NewLogger(),
		})
		require.Error(t, err)
		require.Nil(t, holder)
		require.Contains(t, err.Error(), "invalid database config")
	})

	t.Run("does not connect eagerly", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
			calls.Add(1)
			return &dbtesting.FakeConn{}, nil
		})
		require.False(t, holder.Connected())
		require.Zero(t, calls.Load())
	})
}

func TestPGMCP_DB_Holder_Do(t *testing.T) {
	t.Parallel()

	t.Run("connects once and reuses the connection", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		conn := &dbtesting.FakeConn{}
		holder := newHolder(t, func(_ context.Context, connString string) (db.Conn, error) {
			calls.Add(1)
			require.Equal(t, "postgres://postgres:@localhost:5432/postgres?sslmode=disable", connString)
			return conn, nil
		})

		for range 3 {
			err := holder.Do(t.Context(), func(got db.Conn) error {
				require.Same(t, conn, got)
				return nil
			})
			require.NoError(t, err)
		}
		require.Equal(t, int32(1), calls.Load())
		require.True(t, holder.Connected())
	})

	t.Run("connection failure is reported and retried on next use", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("connection refused")
			}
			return &dbtesting.FakeConn{}, nil
		})

		called := false
		err := holder.Do(t.Context(), func(db.Conn) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, db.ErrNotConnected)
		require.Contains(t, err.Error(), "connection refused")
		require.False(t, called)
		require.False(t, holder.Connected())

		err = holder.Do(t.Context(), func(db.Conn) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		require.True(t, called)
		require.Equal(t, int32(2), calls.Load())
	})

	t.Run("replaces a connection that was closed underneath it", func(t *testing.T) {
		t.Parallel()
		first, second := &dbtesting.FakeConn{}, &dbtesting.FakeConn{}
		var calls atomic.Int32
		holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
			if calls.Add(1) == 1 {
				return first, nil
			}
			return second, nil
		})

		// A statement cancelled mid-flight leaves pgx with a closed connection.
		err := holder.Do(t.Context(), func(conn db.Conn) error {
			require.NoError(t, conn.Close(t.Context()))
			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, holder.Connected())

		err = holder.Do(t.Context(), func(conn db.Conn) error {
			require.Same(t, second, conn)
			_, err := conn.Query(t.Context(), "SELECT 1")
			return err
		})
		require.NoError(t, err)
		require.Equal(t, int32(2), calls.Load())
		require.True(t, holder.Connected())
	})

	t.Run("returns callback error", func(t *testing.T) {
		t.Parallel()
		holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
			return &dbtesting.FakeConn{}, nil
		})
		boom := errors.New("boom")
		err := holder.Do(t.Context(), func(db.Conn) error { return boom })
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, db.ErrNotConnected)
	})

	t.Run("serializes concurrent use", func(t *testing.T) {
		t.Parallel()
		holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
			return &dbtesting.FakeConn{}, nil
		})

		var active, maxActive atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = holder.Do(context.Background(), func(db.Conn) error {
					n := active.Add(1)
					for {
						m := maxActive.Load()
						if n <= m || maxActive.CompareAndSwap(m, n) {
							break
						}
					}
					active.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), maxActive.Load())
	})
}

func TestPGMCP_DB_Holder_PingAndClose(t *testing.T) {
	t.Parallel()

	conn := &dbtesting.FakeConn{}
	holder := newHolder(t, func(context.Context, string) (db.Conn, error) {
		return conn, nil
	})

	require.NoError(t, holder.Close(t.Context()), "close before connect is a no-op")

	require.NoError(t, holder.Ping(t.Context()))
	require.Equal(t, []string{"SELECT 1"}, conn.Queries())

	require.NoError(t, holder.Close(t.Context()))
	require.True(t, conn.IsClosed())
	require.False(t, holder.Connected())
}
