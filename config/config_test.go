package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/caseflow")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Equal(t, "postgres://localhost/caseflow", c.Database.URL)
	require.EqualValues(t, 16, c.Database.MaxConns)
	require.Equal(t, 20, c.PageSize)
	require.Equal(t, 100, c.MaxPageSize)
	require.Equal(t, 2*time.Second, c.Search.ReindexTimeout)
	require.Equal(t, "caseflow:reindex", c.Search.QueueKey)
	require.Equal(t, ":8080", c.ListenAddress())
	require.Equal(t, logrus.InfoLevel, c.Logger().GetLevel())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("PAGE_SIZE=10\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PAGE_SIZE")
		os.Unsetenv("LOG_LEVEL")
	})

	c, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, 10, c.PageSize)
	require.Equal(t, logrus.DebugLevel, c.LogrusLevel())
}

func TestValidate(t *testing.T) {
	base := Configuration{PageSize: 20, MaxPageSize: 100, LogLevel: "info", Search: SearchOptions{ReindexTimeout: time.Second}}
	require.NoError(t, base.Validate())

	bad := base
	bad.MaxPageSize = 5
	require.Error(t, bad.Validate())

	bad = base
	bad.LogLevel = "chatty"
	require.Error(t, bad.Validate())

	bad = base
	bad.PageSize = 0
	require.Error(t, bad.Validate())
}
