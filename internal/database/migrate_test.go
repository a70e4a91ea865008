package database

import (
	"path/filepath"
	"testing"

	"github.com/libraryhub/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLite(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	version, err := CurrentVersion(conn)
	assert.Error(t, err, "schema_meta does not exist yet")
	assert.Equal(t, 0, version)

	require.NoError(t, Migrate(conn, DriverSQLite))

	version, err = CurrentVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)

	// running again is a no-op
	require.NoError(t, Migrate(conn, DriverSQLite))

	for _, table := range []string{"members", "books", "transactions", "fines", "notifications"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrate_CopyCounterCheck(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, Migrate(conn, DriverSQLite))

	_, err = conn.Exec(`INSERT INTO books (title, author, year_published, total_copies, available_copies, created_at, updated_at)
		VALUES ('Dune', 'Herbert', 1965, 1, 2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "available copies cannot exceed total copies")
}

func TestMigrate_UnknownDriver(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Error(t, Migrate(conn, "mysql"))
}

func TestInitDB_SQLite(t *testing.T) {
	conn, err := InitDB(config.DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "library.db")})
	require.NoError(t, err)
	defer CloseDB()

	assert.Same(t, conn, GetDB())
}

func TestInitDB_UnsupportedDriver(t *testing.T) {
	_, err := InitDB(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host: "db", Port: "5432", User: "lib", Password: "secret", Name: "library", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=lib password=secret dbname=library sslmode=disable", dsn)
}
