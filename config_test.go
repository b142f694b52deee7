package dbal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apileon/dbal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dbal.toml", `
default = "local"

[connections.local]
driver = "sqlite"
database = "data/app.db"

[connections.main]
driver = "mysql"
host = "db.local"
database = "app"
username = "root"

[migrations]
dir = "database/sql"

[log]
level = "debug"

[lock]
redis_addr = "localhost:6379"

[metrics]
pushgateway = "http://pushgateway:9091"
`)

	f, err := dbal.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", f.Default)
	assert.Equal(t, "migrations", f.Migrations.Table)
	assert.Equal(t, filepath.Join(dir, "database/sql"), f.Resolve(f.Migrations.Dir))
	assert.Equal(t, "debug", f.Log.Level)
	assert.Equal(t, "console", f.Log.Format)
	assert.Equal(t, "localhost:6379", f.Lock.RedisAddr)
	assert.Equal(t, "http://pushgateway:9091", f.Metrics.Pushgateway)
	assert.Equal(t, "dbal", f.Metrics.Job)

	local, err := f.Connection("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data/app.db"), local.Database)

	main, err := f.Connection("main")
	require.NoError(t, err)
	assert.Equal(t, "utf8mb4", main.Charset)

	_, err = f.Connection("other")
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)
}

func TestLoadFile_TOMLUnknownKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dbal.toml", `
[connections.local]
driver = "sqlite"
database = ":memory:"
databse = "typo"
`)
	_, err := dbal.LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databse")
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dbal.yaml", `
connections:
  pg:
    driver: pgsql
    host: localhost
    database: app
    sslmode: require
migrations:
  table: schema_ledger
log:
  format: json
`)
	f, err := dbal.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pg", f.Default, "single connection becomes the default")
	assert.Equal(t, "schema_ledger", f.Migrations.Table)
	assert.Equal(t, "json", f.Log.Format)

	pg, err := f.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "require", pg.SSLMode)
	assert.Equal(t, ":memory:", mustLoadMemory(t).Database)
}

func mustLoadMemory(t *testing.T) dbal.Config {
	t.Helper()
	path := writeFile(t, t.TempDir(), "mem.yml", "connections:\n  m:\n    driver: sqlite\n    database: \":memory:\"\n")
	f, err := dbal.LoadFile(path)
	require.NoError(t, err)
	c, err := f.Connection("m")
	require.NoError(t, err)
	return c
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "dbal.ini", "x=1"},
		{"no connections", "dbal.toml", `default = "x"`},
		{"missing default", "dbal.toml", "default = \"x\"\n[connections.a]\ndriver = \"sqlite\"\ndatabase = \"a.db\"\n"},
		{"missing driver", "dbal.yaml", "connections:\n  a:\n    database: a.db\n"},
		{"yaml unknown field", "dbal.yaml", "connections:\n  a:\n    driver: sqlite\n    database: a.db\n    colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dbal.LoadFile(writeFile(t, dir, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}
