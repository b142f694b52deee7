// Package schema is a fluent DSL for CREATE TABLE statements.
//
//	t := schema.Create("users", dialect, func(t *schema.Table) {
//		t.ID()
//		t.String("email", 255).Unique()
//		t.Timestamps()
//	})
//	stmts, err := t.Statements()
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apileon/dbal"
)

// ErrInvalidDefinition reports a malformed table, column or key definition.
var ErrInvalidDefinition = errors.New("schema: invalid definition")

const (
	defaultEngine    = "InnoDB"
	defaultCharset   = "utf8mb4"
	defaultCollation = "utf8mb4_unicode_ci"
)

type indexDefinition struct {
	name    string
	columns []string
	unique  bool
}

// Table collects the columns, indexes and foreign keys of one table.
type Table struct {
	name        string
	dialect     dbal.Dialector
	ifNotExists bool

	columns     []*ColumnDefinition
	indexes     []indexDefinition
	foreignKeys []*ForeignKeyDefinition

	engine    string
	charset   string
	collation string

	err error
}

// NewTable starts a table definition for dialect d.
func NewTable(name string, d dbal.Dialector) *Table {
	return &Table{
		name:      name,
		dialect:   d,
		engine:    defaultEngine,
		charset:   defaultCharset,
		collation: defaultCollation,
	}
}

// Create runs fn against a new table and finalizes every pending column and
// foreign key when fn returns.
func Create(name string, d dbal.Dialector, fn func(t *Table)) *Table {
	t := NewTable(name, d)
	fn(t)
	t.finalize()
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the column definitions in declaration order.
func (t *Table) Columns() []*ColumnDefinition {
	return append([]*ColumnDefinition(nil), t.columns...)
}

func (t *Table) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// IfNotExists renders CREATE TABLE IF NOT EXISTS.
func (t *Table) IfNotExists() *Table {
	t.ifNotExists = true
	return t
}

// Engine sets the MySQL storage engine.
func (t *Table) Engine(engine string) *Table {
	t.engine = engine
	return t
}

// Charset sets the MySQL default character set.
func (t *Table) Charset(charset string) *Table {
	t.charset = charset
	return t
}

// Collation sets the MySQL default collation.
func (t *Table) Collation(collation string) *Table {
	t.collation = collation
	return t
}

func (t *Table) addColumn(name, kind string) *ColumnDefinition {
	c := &ColumnDefinition{table: t, name: name, kind: kind}
	t.columns = append(t.columns, c)
	return c
}

// ID adds an unsigned auto-increment BIGINT primary key named "id" or name[0].
func (t *Table) ID(name ...string) *Table {
	col := "id"
	if len(name) > 0 && name[0] != "" {
		col = name[0]
	}
	c := t.addColumn(col, TypeBigInteger)
	c.unsigned = true
	c.autoIncrement = true
	c.notNull = true
	c.Primary()
	return t
}

// String adds a VARCHAR(length) column.
func (t *Table) String(name string, length int) *ColumnDefinition {
	if length <= 0 {
		t.fail(fmt.Errorf("%w: string %q length must be positive", ErrInvalidDefinition, name))
	}
	c := t.addColumn(name, TypeString)
	c.length = length
	return c
}

// Text adds a TEXT column.
func (t *Table) Text(name string) *ColumnDefinition { return t.addColumn(name, TypeText) }

// LongText adds a LONGTEXT column.
func (t *Table) LongText(name string) *ColumnDefinition { return t.addColumn(name, TypeLongText) }

// Integer adds an INT column.
func (t *Table) Integer(name string) *ColumnDefinition { return t.addColumn(name, TypeInteger) }

// BigInteger adds a BIGINT column.
func (t *Table) BigInteger(name string) *ColumnDefinition { return t.addColumn(name, TypeBigInteger) }

// Decimal adds a DECIMAL(precision,scale) column.
func (t *Table) Decimal(name string, precision, scale int) *ColumnDefinition {
	if precision <= 0 || scale < 0 || scale > precision {
		t.fail(fmt.Errorf("%w: decimal %q (%d,%d)", ErrInvalidDefinition, name, precision, scale))
	}
	c := t.addColumn(name, TypeDecimal)
	c.precision = precision
	c.scale = scale
	return c
}

// Boolean adds a BOOLEAN column.
func (t *Table) Boolean(name string) *ColumnDefinition { return t.addColumn(name, TypeBoolean) }

// Date adds a DATE column.
func (t *Table) Date(name string) *ColumnDefinition { return t.addColumn(name, TypeDate) }

// DateTime adds a DATETIME column.
func (t *Table) DateTime(name string) *ColumnDefinition { return t.addColumn(name, TypeDateTime) }

// Timestamp adds a TIMESTAMP column.
func (t *Table) Timestamp(name string) *ColumnDefinition { return t.addColumn(name, TypeTimestamp) }

// JSON adds a JSON column.
func (t *Table) JSON(name string) *ColumnDefinition { return t.addColumn(name, TypeJSON) }

// Enum adds a column restricted to values.
func (t *Table) Enum(name string, values []string) *ColumnDefinition {
	if len(values) == 0 {
		t.fail(fmt.Errorf("%w: enum %q needs at least one value", ErrInvalidDefinition, name))
	}
	c := t.addColumn(name, TypeEnum)
	c.values = append([]string(nil), values...)
	return c
}

// Timestamps adds nullable created_at and updated_at columns defaulting to
// the current time; updated_at also refreshes on update where supported.
func (t *Table) Timestamps() *Table {
	t.Timestamp("created_at").Nullable().Default("CURRENT_TIMESTAMP")
	t.Timestamp("updated_at").Nullable().Default("CURRENT_TIMESTAMP").OnUpdate("CURRENT_TIMESTAMP")
	return t
}

// Index adds an index named idx_<table>_<columns>.
func (t *Table) Index(columns ...string) *Table {
	return t.NamedIndex("", columns...)
}

// NamedIndex adds an index with an explicit name.
func (t *Table) NamedIndex(name string, columns ...string) *Table {
	return t.addIndex(name, columns, false)
}

// Unique adds a unique index named uniq_<table>_<columns>.
func (t *Table) Unique(columns ...string) *Table {
	return t.NamedUnique("", columns...)
}

// NamedUnique adds a unique index with an explicit name.
func (t *Table) NamedUnique(name string, columns ...string) *Table {
	return t.addIndex(name, columns, true)
}

func (t *Table) addIndex(name string, columns []string, unique bool) *Table {
	if len(columns) == 0 {
		t.fail(fmt.Errorf("%w: index on %q needs at least one column", ErrInvalidDefinition, t.name))
		return t
	}
	if name == "" {
		prefix := "idx"
		if unique {
			prefix = "uniq"
		}
		name = fmt.Sprintf("%s_%s_%s", prefix, t.name, strings.Join(columns, "_"))
	}
	t.indexes = append(t.indexes, indexDefinition{
		name:    name,
		columns: append([]string(nil), columns...),
		unique:  unique,
	})
	return t
}

// Foreign starts a foreign key on column.
func (t *Table) Foreign(column string) *ForeignKeyDefinition {
	f := &ForeignKeyDefinition{table: t, column: column}
	t.foreignKeys = append(t.foreignKeys, f)
	return f
}

func (t *Table) finalize() {
	for _, c := range t.columns {
		c.finalize()
	}
	for _, f := range t.foreignKeys {
		if err := f.validate(); err != nil {
			t.fail(err)
		}
	}
}

// Statements finalizes pending definitions and returns the CREATE TABLE
// statement followed by any separate CREATE INDEX statements.
func (t *Table) Statements() ([]string, error) {
	t.finalize()
	if t.err != nil {
		return nil, t.err
	}
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("%w: table %q has no columns", ErrInvalidDefinition, t.name)
	}
	d := t.dialect
	table, err := dbal.EscapeIdentifier(d, t.name)
	if err != nil {
		return nil, err
	}
	mysql := d.Name() == "mysql"

	var body, trailing []string
	for _, c := range t.columns {
		clause, err := c.render(d)
		if err != nil {
			return nil, err
		}
		body = append(body, clause)
	}
	for _, idx := range t.indexes {
		name, cols, err := t.indexParts(idx)
		if err != nil {
			return nil, err
		}
		switch {
		case mysql && idx.unique:
			body = append(body, fmt.Sprintf("UNIQUE INDEX %s (%s)", name, cols))
		case mysql:
			body = append(body, fmt.Sprintf("INDEX %s (%s)", name, cols))
		case idx.unique:
			body = append(body, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", name, cols))
		default:
			ifNotExists := ""
			if t.ifNotExists {
				ifNotExists = "IF NOT EXISTS "
			}
			trailing = append(trailing, fmt.Sprintf("CREATE INDEX %s%s ON %s (%s)", ifNotExists, name, table, cols))
		}
	}
	for _, f := range t.foreignKeys {
		clause, err := f.render(d)
		if err != nil {
			return nil, err
		}
		body = append(body, clause)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if t.ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(table)
	sb.WriteString(" (\n    ")
	sb.WriteString(strings.Join(body, ",\n    "))
	sb.WriteString("\n)")
	if mysql {
		fmt.Fprintf(&sb, " ENGINE=%s DEFAULT CHARSET=%s COLLATE=%s",
			sanitizeOption(t.engine), sanitizeOption(t.charset), sanitizeOption(t.collation))
	}
	return append([]string{sb.String()}, trailing...), nil
}

// ToSQL returns Statements joined by ";\n".
func (t *Table) ToSQL() (string, error) {
	stmts, err := t.Statements()
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, ";\n"), nil
}

func (t *Table) indexParts(idx indexDefinition) (string, string, error) {
	name, err := dbal.EscapeIdentifier(t.dialect, idx.name)
	if err != nil {
		return "", "", err
	}
	cols := make([]string, len(idx.columns))
	for i, c := range idx.columns {
		if cols[i], err = dbal.EscapeIdentifier(t.dialect, c); err != nil {
			return "", "", err
		}
	}
	return name, strings.Join(cols, ", "), nil
}

// sanitizeOption keeps table option values to identifier characters.
func sanitizeOption(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, v)
}

// DropTable returns DROP TABLE for name.
func DropTable(name string, d dbal.Dialector) (string, error) {
	table, err := dbal.EscapeIdentifier(d, name)
	if err != nil {
		return "", err
	}
	return "DROP TABLE " + table, nil
}

// DropTableIfExists returns DROP TABLE IF EXISTS for name.
func DropTableIfExists(name string, d dbal.Dialector) (string, error) {
	table, err := dbal.EscapeIdentifier(d, name)
	if err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + table, nil
}
