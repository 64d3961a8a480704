package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/pg-mcp/internal/db"
	"github.com/malbeclabs/pg-mcp/internal/db/dbtesting"
	"github.com/malbeclabs/pg-mcp/internal/server/metrics"
)

func newHTTPTestServer(t *testing.T, conn db.Conn, connectErr error) *Server {
	t.Helper()

	holder, err := db.NewHolder(db.HolderConfig{
		Logger: testLogger(t),
		DB:     db.Config{Database: "testdb", User: "testuser"},
		Connect: func(context.Context, string) (db.Conn, error) {
			if connectErr != nil {
				return nil, connectErr
			}
			return conn, nil
		},
	})
	require.NoError(t, err)

	s, err := New(Config{
		Logger:     testLogger(t),
		DB:         holder,
		Transport:  TransportHTTP,
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	return s
}

func TestPGMCP_Server_HealthzHandler(t *testing.T) {
	t.Parallel()

	s := newHTTPTestServer(t, nil, errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok\n", rr.Body.String())
}

func TestPGMCP_Server_ReadyzHandler(t *testing.T) {
	t.Parallel()

	t.Run("database unreachable", func(t *testing.T) {
		t.Parallel()
		s := newHTTPTestServer(t, nil, errors.New("connection refused"))

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()
		s.readyzHandler(rr, req)

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "database not ready\n", rr.Body.String())
	})

	t.Run("database answers", func(t *testing.T) {
		t.Parallel()
		conn := &dbtesting.FakeConn{
			QueryFunc: func(sql string, _ []any) (pgx.Rows, error) {
				require.Equal(t, "SELECT 1", sql)
				return dbtesting.NewRows([]string{"?column?"}, []any{"1"}), nil
			},
		}
		s := newHTTPTestServer(t, conn, nil)

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()
		s.readyzHandler(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "ok\n", rr.Body.String())
	})
}

func TestPGMCP_Server_MetricsMiddleware_CapturesStatus(t *testing.T) {
	t.Parallel()

	s := newHTTPTestServer(t, nil, nil)

	var captured int
	handler := s.metricsMiddleware("teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if rw, ok := w.(*responseWriter); ok {
			captured = rw.statusCode
		}
	}))

	for _, path := range []string{"/anything", "/anything/else?x=1"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusTeapot, rr.Code)
		require.Equal(t, http.StatusTeapot, captured)
	}

	// Requests are counted by route, not by raw path.
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "teapot", "418")))
	require.Zero(t, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/anything", "418")))
}

func TestPGMCP_Server_StreamableHTTP_RoundTrip(t *testing.T) {
	t.Parallel()

	conn := &dbtesting.FakeConn{
		QueryFunc: func(string, []any) (pgx.Rows, error) {
			return dbtesting.NewRows([]string{"table_name"}, []any{"users"}), nil
		},
	}
	s := newHTTPTestServer(t, conn, nil)

	httpServer := httptest.NewServer(s.http.Handler)
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	text, isError := callTool(t, session, "list_tables", nil)
	require.False(t, isError)
	require.Equal(t, "Available tables:\n- users", text)
}

func TestPGMCP_Server_RunHTTP_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := newHTTPTestServer(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
