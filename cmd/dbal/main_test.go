package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apileon/dbal/migration"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sqlDir := filepath.Join(dir, "sql")
	require.NoError(t, os.Mkdir(sqlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sqlDir, "2024_06_01_000001_create_posts.up.sql"),
		[]byte("CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sqlDir, "2024_06_01_000001_create_posts.down.sql"),
		[]byte("DROP TABLE posts;"), 0o644))

	path := filepath.Join(dir, "dbal.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[connections.local]
driver = "sqlite"
database = "app.db"

[migrations]
dir = "sql"

[log]
level = "error"
format = "json"
`), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateStatusRollback(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2024_01_01_000001_create_users_table")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated: 2024_01_01_000001_create_users_table\n")
	assert.Contains(t, out, "Migrated: 2024_06_01_000001_create_posts\n")

	out, err = execute(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to do\n", out)

	out, err = execute(t, "--config", cfg, "rollback")
	require.NoError(t, err)
	assert.Equal(t, "Rolled back: 2024_06_01_000001_create_posts\n", out)

	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Regexp(t, `2024_01_01_000001_create_users_table\s+ran\s+1`, out)
	assert.Regexp(t, `2024_06_01_000001_create_posts\s+pending\s+-`, out)
}

func TestRefreshWithSeed(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "--config", cfg, "migrate", "--seed")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "refresh", "--seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated: 2024_01_01_000001_create_users_table")

	out, err = execute(t, "--config", cfg, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back: 2024_01_01_000001_create_users_table")
}

func TestUnknownConnection(t *testing.T) {
	cfg := writeConfig(t)
	_, err := execute(t, "--config", cfg, "--connection", "nope", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, []migration.Status{
		{Name: "a", Applied: true, Batch: 2},
		{Name: "b"},
		{Name: "c", Applied: true, Batch: 1, Missing: true},
	}))
	assert.Equal(t, "MIGRATION  STATUS   BATCH\n"+
		"a          ran      2\n"+
		"b          pending  -\n"+
		"c          missing  1\n", buf.String())
}

func TestPusherWithoutGateway(t *testing.T) {
	var p *Pusher
	assert.NoError(t, p.Push())
	assert.NoError(t, (&Pusher{}).Push())
}
