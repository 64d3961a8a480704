package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotConnected is returned when the shared connection could not be established.
var ErrNotConnected = errors.New("could not connect to database")

type HolderConfig struct {
	Logger *slog.Logger
	DB     Config

	// Connect defaults to Connect.
	Connect ConnectFunc
}

func (c *HolderConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if c.Connect == nil {
		c.Connect = Connect
	}
	return nil
}

// Holder owns the process-wide database connection. The connection is created on first
// use and every use is serialized, since a single pgx connection cannot run statements
// concurrently.
type Holder struct {
	log *slog.Logger
	cfg HolderConfig

	mu   sync.Mutex
	conn Conn
}

func NewHolder(cfg HolderConfig) (*Holder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate holder config: %w", err)
	}
	return &Holder{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Do runs fn with the shared connection, connecting first if needed. If the connection
// cannot be established the returned error matches ErrNotConnected and fn is not called.
func (h *Holder) Do(ctx context.Context, fn func(conn Conn) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, err := h.connLocked(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

func (h *Holder) connLocked(ctx context.Context) (Conn, error) {
	if h.conn != nil {
		if !h.conn.IsClosed() {
			return h.conn, nil
		}
		h.log.Warn("db: connection was closed, reconnecting", "uri", h.cfg.DB.Redacted())
		h.conn = nil
	}

	h.log.Debug("db: connecting", "uri", h.cfg.DB.Redacted())
	conn, err := h.cfg.Connect(ctx, h.cfg.DB.ConnString())
	if err != nil {
		h.log.Error("db: failed to connect", "uri", h.cfg.DB.Redacted(), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	h.conn = conn
	h.log.Info("db: connected", "uri", h.cfg.DB.Redacted())
	return conn, nil
}

// Connected reports whether an open connection is held.
func (h *Holder) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil && !h.conn.IsClosed()
}

func (h *Holder) Ping(ctx context.Context) error {
	return h.Do(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, "SELECT 1")
		if err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		rows.Close()
		return rows.Err()
	})
}

func (h *Holder) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil || h.conn.IsClosed() {
		h.conn = nil
		return nil
	}
	err := h.conn.Close(ctx)
	h.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	h.log.Info("db: connection closed")
	return nil
}
