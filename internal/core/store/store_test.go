package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modlens/modlens/internal/config"
)

func TestBuildLibsqlDSNFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modlens.db")

	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
	require.NoError(t, err)
	require.Equal(t, "file:"+path, dsn)
}

func TestBuildLibsqlDSNMemory(t *testing.T) {
	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, ":memory:", dsn)
}

func TestBuildLibsqlDSNFileScheme(t *testing.T) {
	dir := t.TempDir()
	path := "file:" + filepath.Join(dir, "modlens.db")

	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
	require.NoError(t, err)
	require.Equal(t, path, dsn)
}

func TestBuildLibsqlDSNPreferURL(t *testing.T) {
	dsn, err := buildLibsqlDSN(config.StoreConfig{
		URL:  "libsql://modlens-example.turso.io",
		Path: "/ignored/local.db",
	})
	require.NoError(t, err)
	require.Equal(t, "libsql://modlens-example.turso.io", dsn)
}

func TestBuildLibsqlDSNURLWithAuthToken(t *testing.T) {
	dsn, err := buildLibsqlDSN(config.StoreConfig{
		URL:       "libsql://modlens-example.turso.io",
		AuthToken: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, "libsql://modlens-example.turso.io?authToken=secret", dsn)
}

func TestBuildLibsqlDSNExistingAuthTokenWins(t *testing.T) {
	dsn, err := buildLibsqlDSN(config.StoreConfig{
		URL:       "libsql://modlens-example.turso.io?authToken=original",
		AuthToken: "ignored",
	})
	require.NoError(t, err)
	require.Equal(t, "libsql://modlens-example.turso.io?authToken=original", dsn)
}

func TestBuildLibsqlDSNRequiresTarget(t *testing.T) {
	_, err := buildLibsqlDSN(config.StoreConfig{})
	require.Error(t, err)
}

func TestExtractFilePath(t *testing.T) {
	path, err := extractFilePath("file:/tmp/modlens/modlens.db")
	require.NoError(t, err)
	require.Equal(t, "/tmp/modlens/modlens.db", path)

	path, err = extractFilePath("file:relative.db")
	require.NoError(t, err)
	require.Equal(t, "relative.db", path)
}
