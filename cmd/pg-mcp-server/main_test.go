package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPGMCP_Main_EnvOverride(t *testing.T) {
	t.Run("env fills unset flag", func(t *testing.T) {
		t.Setenv("PG_MCP_TEST_HOST", "db.internal")
		v := "localhost"
		envOverride(&v, "test-host", "PG_MCP_TEST_HOST")
		require.Equal(t, "db.internal", v)
	})

	t.Run("empty env keeps flag value", func(t *testing.T) {
		t.Setenv("PG_MCP_TEST_HOST", "")
		v := "localhost"
		envOverride(&v, "test-host", "PG_MCP_TEST_HOST")
		require.Equal(t, "localhost", v)
	})
}
