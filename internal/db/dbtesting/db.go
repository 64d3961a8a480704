package dbtesting

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/malbeclabs/pg-mcp/internal/db"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "testdb"
	}
	if cfg.Username == "" {
		cfg.Username = "testuser"
	}
	if cfg.Password == "" {
		cfg.Password = "testpass"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "postgres:16-alpine"
	}
	return nil
}

// DB is a disposable PostgreSQL server running in a container.
type DB struct {
	URI       string
	Config    db.Config
	container *tcpostgres.PostgresContainer
}

func NewDefaultDB(t testing.TB) *DB {
	return NewDB(t, nil)
}

// NewDB starts a PostgreSQL container and terminates it when the test finishes. Tests
// using it are skipped in -short mode.
func NewDB(t testing.TB, cfg *DBConfig) *DB {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate DB config: %v", err)
	}

	// Retry container start up to 3 times for retryable errors
	var container *tcpostgres.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcpostgres.Run(ctx,
			cfg.ContainerImage,
			tcpostgres.WithDatabase(cfg.Database),
			tcpostgres.WithUsername(cfg.Username),
			tcpostgres.WithPassword(cfg.Password),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			lastErr = err
			if isRetryableContainerStartErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			require.NoError(t, err)
		}
		break
	}
	if container == nil {
		t.Fatalf("failed to start postgres container after retries: %v", lastErr)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to cleanup postgres container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return &DB{
		URI:       uri,
		Config:    db.Config{URI: uri},
		container: container,
	}
}

// Conn opens a fresh connection closed at test cleanup.
func (d *DB) Conn(t testing.TB) *pgx.Conn {
	conn, err := pgx.Connect(context.Background(), d.URI)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})
	return conn
}

// Exec runs setup statements on a fresh connection.
func (d *DB) Exec(t testing.TB, statements ...string) {
	conn := d.Conn(t)
	for _, stmt := range statements {
		_, err := conn.Exec(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

// Holder returns a connection holder for the container, closed at test cleanup.
func (d *DB) Holder(t testing.TB) *db.Holder {
	holder, err := db.NewHolder(db.HolderConfig{
		Logger: NewLogger(),
		DB:     d.Config,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = holder.Close(context.Background())
	})
	return holder
}

func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded")
}
