package schema

import (
	"fmt"
	"strings"

	"github.com/apileon/dbal"
)

var referentialActions = map[string]bool{
	"CASCADE":     true,
	"SET NULL":    true,
	"RESTRICT":    true,
	"NO ACTION":   true,
	"SET DEFAULT": true,
}

// ForeignKeyDefinition builds a FOREIGN KEY clause. It is attached when the
// table is finalized and must name both References and On by then.
type ForeignKeyDefinition struct {
	table      *Table
	column     string
	references string
	on         string
	onDelete   string
	onUpdate   string
}

// References sets the referenced column.
func (f *ForeignKeyDefinition) References(column string) *ForeignKeyDefinition {
	f.references = column
	return f
}

// On sets the referenced table.
func (f *ForeignKeyDefinition) On(table string) *ForeignKeyDefinition {
	f.on = table
	return f
}

// OnDelete sets the ON DELETE action.
func (f *ForeignKeyDefinition) OnDelete(action string) *ForeignKeyDefinition {
	if a, ok := f.action(action); ok {
		f.onDelete = a
	}
	return f
}

// OnUpdate sets the ON UPDATE action.
func (f *ForeignKeyDefinition) OnUpdate(action string) *ForeignKeyDefinition {
	if a, ok := f.action(action); ok {
		f.onUpdate = a
	}
	return f
}

// CascadeOnDelete is OnDelete("CASCADE").
func (f *ForeignKeyDefinition) CascadeOnDelete() *ForeignKeyDefinition {
	return f.OnDelete("CASCADE")
}

// CascadeOnUpdate is OnUpdate("CASCADE").
func (f *ForeignKeyDefinition) CascadeOnUpdate() *ForeignKeyDefinition {
	return f.OnUpdate("CASCADE")
}

func (f *ForeignKeyDefinition) action(action string) (string, bool) {
	a := strings.ToUpper(strings.Join(strings.Fields(action), " "))
	if !referentialActions[a] {
		f.table.fail(fmt.Errorf("%w: referential action %q", ErrInvalidDefinition, action))
		return "", false
	}
	return a, true
}

func (f *ForeignKeyDefinition) validate() error {
	if f.references == "" || f.on == "" {
		return fmt.Errorf("%w: foreign key on %q needs References and On", ErrInvalidDefinition, f.column)
	}
	return nil
}

func (f *ForeignKeyDefinition) render(d dbal.Dialector) (string, error) {
	col, err := dbal.EscapeIdentifier(d, f.column)
	if err != nil {
		return "", err
	}
	table, err := dbal.EscapeIdentifier(d, f.on)
	if err != nil {
		return "", err
	}
	ref, err := dbal.EscapeIdentifier(d, f.references)
	if err != nil {
		return "", err
	}
	clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", col, table, ref)
	if f.onDelete != "" {
		clause += " ON DELETE " + f.onDelete
	}
	if f.onUpdate != "" {
		clause += " ON UPDATE " + f.onUpdate
	}
	return clause, nil
}
