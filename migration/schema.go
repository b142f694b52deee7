package migration

import (
	"context"

	"github.com/apileon/dbal"
	"github.com/apileon/dbal/schema"
)

// Schema is what a migration unit uses to change the database.
type Schema struct {
	conn *dbal.Connection
}

// NewSchema binds a Schema to conn.
func NewSchema(conn *dbal.Connection) *Schema {
	return &Schema{conn: conn}
}

// Create builds a table with fn and executes its statements.
func (s *Schema) Create(ctx context.Context, table string, fn func(t *schema.Table)) error {
	stmts, err := schema.Create(table, s.conn.Dialect(), fn).Statements()
	if err != nil {
		return err
	}
	return s.execAll(ctx, stmts)
}

// CreateIfNotExists is Create with CREATE TABLE IF NOT EXISTS.
func (s *Schema) CreateIfNotExists(ctx context.Context, table string, fn func(t *schema.Table)) error {
	stmts, err := schema.Create(table, s.conn.Dialect(), fn).IfNotExists().Statements()
	if err != nil {
		return err
	}
	return s.execAll(ctx, stmts)
}

// Drop drops table.
func (s *Schema) Drop(ctx context.Context, table string) error {
	stmt, err := schema.DropTable(table, s.conn.Dialect())
	if err != nil {
		return err
	}
	return s.conn.ExecRaw(ctx, stmt)
}

// DropIfExists drops table when it exists.
func (s *Schema) DropIfExists(ctx context.Context, table string) error {
	stmt, err := schema.DropTableIfExists(table, s.conn.Dialect())
	if err != nil {
		return err
	}
	return s.conn.ExecRaw(ctx, stmt)
}

// HasTable reports whether table exists.
func (s *Schema) HasTable(ctx context.Context, table string) (bool, error) {
	return s.conn.HasTable(ctx, table)
}

// Exec runs raw SQL without bindings.
func (s *Schema) Exec(ctx context.Context, sql string) error {
	return s.conn.ExecRaw(ctx, sql)
}

// Table starts a statement builder, e.g. for data migrations.
func (s *Schema) Table(name string) *dbal.Builder {
	return s.conn.Table(name)
}

// Dialect returns the connection dialect.
func (s *Schema) Dialect() dbal.Dialector {
	return s.conn.Dialect()
}

func (s *Schema) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := s.conn.ExecRaw(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
