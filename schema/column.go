package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apileon/dbal"
)

// Expr is a default value rendered verbatim, e.g. Expr("CURRENT_TIMESTAMP").
type Expr string

var onUpdateExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\(\d*\))?$`)

// ColumnDefinition builds one column. It is attached to its table exactly
// once: by a terminal modifier (Nullable, Default, OnUpdate, Primary,
// Unique) or, failing that, when the table is finalized, at which point it
// becomes NOT NULL unless it is nullable, primary or auto-increment.
type ColumnDefinition struct {
	table *Table
	name  string
	kind  string

	length    int
	precision int
	scale     int
	values    []string

	nullable      bool
	notNull       bool
	hasDefault    bool
	def           interface{}
	onUpdate      string
	unsigned      bool
	autoIncrement bool
	primary       bool
	unique        bool

	attached bool
}

// Name returns the column name.
func (c *ColumnDefinition) Name() string { return c.name }

// Attached reports whether the column has been finalized.
func (c *ColumnDefinition) Attached() bool { return c.attached }

func (c *ColumnDefinition) attach() *ColumnDefinition {
	c.attached = true
	return c
}

// Nullable allows NULL and attaches the column.
func (c *ColumnDefinition) Nullable() *ColumnDefinition {
	c.nullable = true
	c.notNull = false
	return c.attach()
}

// NotNull forbids NULL.
func (c *ColumnDefinition) NotNull() *ColumnDefinition {
	c.notNull = true
	c.nullable = false
	return c
}

// Default sets the column default and attaches the column. Strings are
// quoted except CURRENT_TIMESTAMP; use Expr for other raw expressions.
func (c *ColumnDefinition) Default(value interface{}) *ColumnDefinition {
	c.hasDefault = true
	c.def = value
	return c.attach()
}

// OnUpdate sets a MySQL ON UPDATE expression and attaches the column. Other
// dialects ignore it.
func (c *ColumnDefinition) OnUpdate(expr string) *ColumnDefinition {
	if !onUpdateExpr.MatchString(expr) {
		c.table.fail(fmt.Errorf("%w: on update expression %q", ErrInvalidDefinition, expr))
		return c
	}
	c.onUpdate = expr
	return c.attach()
}

// Unsigned marks a numeric column unsigned.
func (c *ColumnDefinition) Unsigned() *ColumnDefinition {
	c.unsigned = true
	return c
}

// AutoIncrement marks the column auto-incrementing.
func (c *ColumnDefinition) AutoIncrement() *ColumnDefinition {
	c.autoIncrement = true
	return c
}

// Primary makes the column the primary key and attaches it.
func (c *ColumnDefinition) Primary() *ColumnDefinition {
	c.primary = true
	return c.attach()
}

// Unique adds a UNIQUE constraint and attaches the column.
func (c *ColumnDefinition) Unique() *ColumnDefinition {
	c.unique = true
	return c.attach()
}

// finalize attaches a pending column, forcing NOT NULL where applicable.
func (c *ColumnDefinition) finalize() {
	if c.attached {
		return
	}
	if !c.nullable && !c.primary && !c.autoIncrement {
		c.notNull = true
	}
	c.attached = true
}

func (c *ColumnDefinition) render(d dbal.Dialector) (string, error) {
	name, err := dbal.EscapeIdentifier(d, c.name)
	if err != nil {
		return "", err
	}
	typ, err := sqlType(d, c)
	if err != nil {
		return "", err
	}
	mysql := d.Name() == "mysql"
	sqlite := d.Name() == "sqlite"

	parts := []string{name, typ}
	if c.unsigned && mysql {
		parts = append(parts, "UNSIGNED")
	}
	switch {
	case c.nullable:
		parts = append(parts, "NULL")
	case c.notNull:
		parts = append(parts, "NOT NULL")
	}
	if c.hasDefault {
		parts = append(parts, "DEFAULT "+renderDefault(d, c.def))
	}
	if c.onUpdate != "" && mysql {
		parts = append(parts, "ON UPDATE "+c.onUpdate)
	}
	if c.autoIncrement && mysql {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if c.primary {
		parts = append(parts, "PRIMARY KEY")
		if c.autoIncrement && sqlite {
			parts = append(parts, "AUTOINCREMENT")
		}
	}
	if c.unique {
		parts = append(parts, "UNIQUE")
	}
	if c.kind == TypeEnum && !mysql {
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (%s))", name, quotedList(c.values)))
	}
	if c.unsigned && !mysql && !c.autoIncrement {
		parts = append(parts, fmt.Sprintf("CHECK (%s >= 0)", name))
	}
	return strings.Join(parts, " "), nil
}

func renderDefault(d dbal.Dialector, v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case Expr:
		return string(t)
	case string:
		if strings.EqualFold(t, "CURRENT_TIMESTAMP") {
			return "CURRENT_TIMESTAMP"
		}
		return quoteLiteral(t)
	case bool:
		if d.Name() == "pgsql" {
			if t {
				return "TRUE"
			}
			return "FALSE"
		}
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return quoteLiteral(t.UTC().Format("2006-01-02 15:04:05"))
	default:
		return quoteLiteral(fmt.Sprint(t))
	}
}
