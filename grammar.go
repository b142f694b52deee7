package dbal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// allowedOperators is the WHERE operator allow-list, keyed upper case.
var allowedOperators = map[string]bool{
	"=":        true,
	"!=":       true,
	"<>":       true,
	"<":        true,
	">":        true,
	"<=":       true,
	">=":       true,
	"LIKE":     true,
	"NOT LIKE": true,
	"IN":       true,
	"NOT IN":   true,
}

var joinOperators = map[string]bool{
	"=":  true,
	"!=": true,
	"<>": true,
	"<":  true,
	">":  true,
	"<=": true,
	">=": true,
}

var identifierStrip = regexp.MustCompile(`[^A-Za-z0-9_]`)

// normalizeOperator upper-cases op, collapses inner whitespace and checks
// it against the allow-list.
func normalizeOperator(op string, allowed map[string]bool) (string, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if !allowed[norm] {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	return norm, nil
}

// EscapeIdentifier strips every character outside [A-Za-z0-9_.] from ident
// and quotes each dot-separated part for dialect d. "*" and "table.*" are
// kept unquoted in the star position.
func EscapeIdentifier(d Dialector, ident string) (string, error) {
	ident = strings.TrimSpace(ident)
	if ident == "*" {
		return "*", nil
	}
	parts := strings.Split(ident, ".")
	quoted := make([]string, 0, len(parts))
	for i, p := range parts {
		if p == "*" && i > 0 && i == len(parts)-1 {
			quoted = append(quoted, "*")
			continue
		}
		clean := identifierStrip.ReplaceAllString(p, "")
		if clean == "" {
			return "", fmt.Errorf("%w: invalid identifier %q", ErrInvalidArgument, ident)
		}
		quoted = append(quoted, d.Quote(clean))
	}
	return strings.Join(quoted, "."), nil
}

// noLimit is the LIMIT value a dialect needs to express "all rows" when only
// OFFSET is set. Empty means OFFSET may stand alone.
func noLimit(d Dialector) string {
	switch d.Name() {
	case "mysql":
		return "18446744073709551615"
	case "sqlite":
		return "-1"
	default:
		return ""
	}
}

// selectOptions.aggregate drops ORDER BY and LIMIT/OFFSET for COUNT and MAX.
type selectOptions struct {
	aggregate bool
}

func (b *Builder) compileSelect(opts selectOptions) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.table == "" {
		return "", ErrTableNotSet
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	for _, j := range b.joins {
		fmt.Fprintf(&sb, " %s JOIN %s ON %s %s %s", j.kind, j.table, j.left, j.operator, j.right)
	}
	sb.WriteString(b.compileWheres())
	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groups, ", "))
	}
	if !opts.aggregate && len(b.orders) > 0 {
		parts := make([]string, len(b.orders))
		for i, o := range b.orders {
			parts[i] = o.column + " " + o.direction
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if !opts.aggregate {
		sb.WriteString(b.compileLimit())
	}
	return sb.String(), nil
}

func (b *Builder) compileLimit() string {
	var sb strings.Builder
	switch {
	case b.limit != nil:
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*b.limit))
	case b.offset != nil:
		if all := noLimit(b.dialect); all != "" {
			sb.WriteString(" LIMIT ")
			sb.WriteString(all)
		}
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(*b.offset))
	}
	return sb.String()
}

// compileWheres renders predicates in insertion order. The first predicate
// never carries its boolean.
func (b *Builder) compileWheres() string {
	if len(b.wheres) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(" WHERE ")
	for i, w := range b.wheres {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(w.boolean)
			sb.WriteString(" ")
		}
		switch w.kind {
		case whereBasic:
			fmt.Fprintf(&sb, "%s %s %s", w.column, w.operator, w.placeholders[0])
		case whereIn:
			fmt.Fprintf(&sb, "%s %s (%s)", w.column, w.operator, strings.Join(w.placeholders, ", "))
		case whereNull:
			fmt.Fprintf(&sb, "%s IS NULL", w.column)
		case whereNotNull:
			fmt.Fprintf(&sb, "%s IS NOT NULL", w.column)
		}
	}
	return sb.String()
}

func (b *Builder) compileInsert(data map[string]interface{}) (string, error) {
	cols, err := b.escapeKeys(data)
	if err != nil {
		return "", err
	}
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.escaped
		placeholders[i] = b.bind(data[c.key])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(names, ", "), strings.Join(placeholders, ", ")), nil
}

func (b *Builder) compileUpdate(data map[string]interface{}) (string, error) {
	cols, err := b.escapeKeys(data)
	if err != nil {
		return "", err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c.escaped + " = " + b.bind(data[c.key])
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", b.table, strings.Join(sets, ", "), b.compileWheres()), nil
}

func (b *Builder) compileDelete() string {
	return fmt.Sprintf("DELETE FROM %s%s", b.table, b.compileWheres())
}

type escapedKey struct {
	key     string
	escaped string
}

// escapeKeys returns the data keys in sorted order with their escaped form.
func (b *Builder) escapeKeys(data map[string]interface{}) ([]escapedKey, error) {
	keys := sortedKeys(data)
	out := make([]escapedKey, len(keys))
	for i, k := range keys {
		e, err := EscapeIdentifier(b.dialect, k)
		if err != nil {
			return nil, err
		}
		out[i] = escapedKey{key: k, escaped: e}
	}
	return out, nil
}
