package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Conn is the subset of *pgx.Conn the tool handlers rely on.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
	// IsClosed reports whether the connection is unusable. pgx closes a connection when a
	// context is cancelled mid-statement.
	IsClosed() bool
}

// ConnectFunc opens a new connection for the given connection string.
type ConnectFunc func(ctx context.Context, connString string) (Conn, error)

// Connect opens a single pgx connection and checks it with SELECT 1.
func Connect(ctx context.Context, connString string) (Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	var result int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to test postgres connection: %w", err)
	}
	if result != 1 {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("unexpected result from connection test: got %d, expected 1", result)
	}

	return conn, nil
}
