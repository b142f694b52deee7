package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apileon/dbal"
	"github.com/apileon/dbal/drivers/db/sqlite"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn, err := sqlite.DSN(dbal.Config{Database: "/tmp/app.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/app.db?_foreign_keys=1", dsn)

	dsn, err = sqlite.DSN(dbal.Config{Database: "file:app.db?mode=rwc", Options: map[string]string{"_busy_timeout": "5000"}})
	require.NoError(t, err)
	assert.Equal(t, "file:app.db?mode=rwc&_busy_timeout=5000&_foreign_keys=1", dsn)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, dbal.ErrKindConflict, sqlite.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.Equal(t, dbal.ErrKindConnection, sqlite.Classify(sqlite3.Error{Code: sqlite3.ErrCantOpen}))
	assert.Equal(t, dbal.ErrKindQuery, sqlite.Classify(sqlite3.Error{Code: sqlite3.ErrError}))
	assert.Equal(t, dbal.ErrKindUnknown, sqlite.Classify(assert.AnError))
}

func TestRegisteredAliases(t *testing.T) {
	for _, name := range []string{"sqlite", "sqlite3", "SQLite"} {
		d, err := dbal.LookupDriver(name)
		require.NoError(t, err, name)
		assert.Equal(t, "sqlite", d.Name)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	conn, err := dbal.New(dbal.Config{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "fk.db")})
	require.NoError(t, err)
	defer conn.Disconnect()

	require.NoError(t, conn.ExecRaw(ctx, `CREATE TABLE parents (id INTEGER PRIMARY KEY)`))
	require.NoError(t, conn.ExecRaw(ctx, `CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parents (id))`))

	_, err = conn.Table("children").Insert(ctx, map[string]interface{}{"parent_id": 42})
	require.Error(t, err)
	assert.True(t, dbal.IsConflict(err))

	ok, err := conn.HasTable(ctx, "children")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = conn.HasTable(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
