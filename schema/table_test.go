package schema_test

import (
	"strings"
	"testing"

	"github.com/apileon/dbal/drivers/db/mysql"
	"github.com/apileon/dbal/drivers/db/postgres"
	"github.com/apileon/dbal/drivers/db/sqlite"
	"github.com/apileon/dbal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTable_MySQL(t *testing.T) {
	tbl := schema.Create("users", mysql.Dialector{}, func(t *schema.Table) {
		t.ID()
		t.String("name", 255)
		t.String("email", 255).Unique()
	})

	sql, err := tbl.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE `users` (\n"+
		"    `id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,\n"+
		"    `name` VARCHAR(255) NOT NULL,\n"+
		"    `email` VARCHAR(255) UNIQUE\n"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci", sql)
}

func TestCreateTable_MySQLIndexesAndTimestamps(t *testing.T) {
	tbl := schema.Create("users", mysql.Dialector{}, func(t *schema.Table) {
		t.ID()
		t.Enum("status", []string{"active", "inactive"}).Default("active")
		t.Timestamps()
		t.Index("status")
		t.NamedUnique("users_status_unique", "status", "created_at")
	})

	stmts, err := tbl.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 1, "mysql renders indexes inline")
	sql := stmts[0]
	assert.Contains(t, sql, "`status` ENUM('active','inactive') DEFAULT 'active'")
	assert.Contains(t, sql, "`created_at` TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP,")
	assert.Contains(t, sql, "`updated_at` TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP")
	assert.Contains(t, sql, "INDEX `idx_users_status` (`status`)")
	assert.Contains(t, sql, "UNIQUE INDEX `users_status_unique` (`status`, `created_at`)")
}

func TestCreateTable_SQLite(t *testing.T) {
	tbl := schema.Create("posts", sqlite.Dialector{}, func(t *schema.Table) {
		t.ID()
		t.BigInteger("user_id").Unsigned()
		t.Enum("status", []string{"draft", "published"}).Default("draft")
		t.Index("user_id")
		t.Unique("user_id", "status")
		t.Foreign("user_id").References("id").On("users").CascadeOnDelete()
	})

	stmts, err := tbl.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE \"posts\" (\n"+
		"    \"id\" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,\n"+
		"    \"user_id\" INTEGER NOT NULL CHECK (\"user_id\" >= 0),\n"+
		"    \"status\" VARCHAR(255) DEFAULT 'draft' CHECK (\"status\" IN ('draft','published')),\n"+
		"    CONSTRAINT \"uniq_posts_user_id_status\" UNIQUE (\"user_id\", \"status\"),\n"+
		"    FOREIGN KEY (\"user_id\") REFERENCES \"users\" (\"id\") ON DELETE CASCADE\n"+
		")", stmts[0])
	assert.Equal(t, `CREATE INDEX "idx_posts_user_id" ON "posts" ("user_id")`, stmts[1])
}

func TestCreateTable_Postgres(t *testing.T) {
	tbl := schema.Create("flags", postgres.Dialector{}, func(t *schema.Table) {
		t.ID()
		t.Boolean("active").NotNull().Default(true)
		t.JSON("payload").Nullable()
		t.Decimal("ratio", 8, 2)
		t.Timestamps()
	}).IfNotExists()

	sql, err := tbl.ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, `CREATE TABLE IF NOT EXISTS "flags" (`))
	assert.Contains(t, sql, `"id" BIGSERIAL NOT NULL PRIMARY KEY`)
	assert.Contains(t, sql, `"active" BOOLEAN NOT NULL DEFAULT TRUE`)
	assert.Contains(t, sql, `"payload" JSONB NULL`)
	assert.Contains(t, sql, `"ratio" NUMERIC(8,2) NOT NULL`)
	assert.Contains(t, sql, `"updated_at" TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP`)
	assert.NotContains(t, sql, "ON UPDATE")
	assert.NotContains(t, sql, "ENGINE=")
}

func TestColumnFinalizedOnce(t *testing.T) {
	tbl := schema.Create("users", sqlite.Dialector{}, func(t *schema.Table) {
		t.String("name", 255).Unique()
		t.String("nickname", 50).Nullable().Default("anon")
	})

	sql, err := tbl.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sql, `"name"`))
	assert.Equal(t, 1, strings.Count(sql, `"nickname"`))
	assert.Contains(t, sql, `"nickname" VARCHAR(50) NULL DEFAULT 'anon'`)

	for _, c := range tbl.Columns() {
		assert.True(t, c.Attached(), c.Name())
	}
}

func TestPendingColumnsForcedNotNull(t *testing.T) {
	tbl := schema.NewTable("counters", sqlite.Dialector{})
	c := tbl.Integer("hits").Unsigned()
	assert.False(t, c.Attached())

	stmts, err := tbl.Statements()
	require.NoError(t, err)
	assert.True(t, c.Attached())
	assert.Contains(t, stmts[0], `"hits" INTEGER NOT NULL CHECK ("hits" >= 0)`)
}

func TestDefaultQuoting(t *testing.T) {
	tbl := schema.Create("notes", sqlite.Dialector{}, func(t *schema.Table) {
		t.String("title", 100).Default("it's")
		t.Integer("rank").Default(3)
		t.Boolean("pinned").Default(false)
		t.Text("body").Default(nil)
		t.DateTime("seen_at").Default(schema.Expr("(datetime('now'))"))
	})

	sql, err := tbl.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `"title" VARCHAR(100) DEFAULT 'it''s'`)
	assert.Contains(t, sql, `"rank" INTEGER DEFAULT 3`)
	assert.Contains(t, sql, `"pinned" BOOLEAN DEFAULT 0`)
	assert.Contains(t, sql, `"body" TEXT DEFAULT NULL`)
	assert.Contains(t, sql, `"seen_at" DATETIME DEFAULT (datetime('now'))`)
}

func TestIdentifiersAreEscaped(t *testing.T) {
	tbl := schema.Create("users`; DROP TABLE x", mysql.Dialector{}, func(t *schema.Table) {
		t.String("na`me", 10).Nullable()
	})

	sql, err := tbl.ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "CREATE TABLE `usersDROPTABLEx` ("))
	assert.Contains(t, sql, "`name` VARCHAR(10) NULL")
}

func TestInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *schema.Table)
	}{
		{"foreign key without table", func(t *schema.Table) {
			t.BigInteger("user_id")
			t.Foreign("user_id").References("id")
		}},
		{"unknown referential action", func(t *schema.Table) {
			t.BigInteger("user_id")
			t.Foreign("user_id").References("id").On("users").OnDelete("EXPLODE")
		}},
		{"on update expression", func(t *schema.Table) {
			t.Timestamp("touched_at").OnUpdate("NOW(); DROP TABLE users")
		}},
		{"empty enum", func(t *schema.Table) {
			t.Enum("state", nil)
		}},
		{"zero length string", func(t *schema.Table) {
			t.String("code", 0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Create("things", sqlite.Dialector{}, tt.fn).Statements()
			assert.ErrorIs(t, err, schema.ErrInvalidDefinition)
		})
	}
}

func TestEmptyTable(t *testing.T) {
	_, err := schema.NewTable("empty", sqlite.Dialector{}).Statements()
	assert.ErrorIs(t, err, schema.ErrInvalidDefinition)
}

func TestDropTable(t *testing.T) {
	sql, err := schema.DropTable("users", mysql.Dialector{})
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE `users`", sql)

	sql, err = schema.DropTableIfExists("users", postgres.Dialector{})
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "users"`, sql)
}
