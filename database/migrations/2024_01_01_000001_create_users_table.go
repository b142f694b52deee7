package migrations

import (
	"context"

	"github.com/apileon/dbal/migration"
	"github.com/apileon/dbal/schema"
)

func init() {
	Registry.MustRegister("2024_01_01_000001_create_users_table", migration.Func{
		UpFunc:   createUsersTable,
		DownFunc: dropUsersTable,
	})
}

func createUsersTable(ctx context.Context, s *migration.Schema) error {
	return s.Create(ctx, "users", func(t *schema.Table) {
		t.ID()
		t.String("name", 255)
		t.String("email", 255).Unique()
		t.Timestamp("email_verified_at").Nullable()
		t.String("password", 255)
		t.Enum("status", []string{"active", "inactive", "suspended"}).Default("active")
		t.String("remember_token", 100).Nullable()
		t.Timestamps()

		t.Index("email")
		t.Index("status")
		t.Index("status", "email_verified_at")
	})
}

func dropUsersTable(ctx context.Context, s *migration.Schema) error {
	return s.Drop(ctx, "users")
}
