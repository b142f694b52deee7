package schema

import (
	"fmt"
	"strings"

	"github.com/apileon/dbal"
)

// Logical column types.
const (
	TypeString     = "string"
	TypeText       = "text"
	TypeLongText   = "longText"
	TypeInteger    = "integer"
	TypeBigInteger = "bigInteger"
	TypeDecimal    = "decimal"
	TypeBoolean    = "boolean"
	TypeDate       = "date"
	TypeDateTime   = "dateTime"
	TypeTimestamp  = "timestamp"
	TypeJSON       = "json"
	TypeEnum       = "enum"
)

// TypeMapping maps a dialect and logical column type to its SQL type.
// %d verbs take the length, or precision and scale for decimals.
var TypeMapping = map[string]map[string]string{
	"mysql": {
		TypeString:     "VARCHAR(%d)",
		TypeText:       "TEXT",
		TypeLongText:   "LONGTEXT",
		TypeInteger:    "INT",
		TypeBigInteger: "BIGINT",
		TypeDecimal:    "DECIMAL(%d,%d)",
		TypeBoolean:    "BOOLEAN",
		TypeDate:       "DATE",
		TypeDateTime:   "DATETIME",
		TypeTimestamp:  "TIMESTAMP",
		TypeJSON:       "JSON",
		TypeEnum:       "ENUM(%s)",
	},
	"pgsql": {
		TypeString:     "VARCHAR(%d)",
		TypeText:       "TEXT",
		TypeLongText:   "TEXT",
		TypeInteger:    "INTEGER",
		TypeBigInteger: "BIGINT",
		TypeDecimal:    "NUMERIC(%d,%d)",
		TypeBoolean:    "BOOLEAN",
		TypeDate:       "DATE",
		TypeDateTime:   "TIMESTAMP",
		TypeTimestamp:  "TIMESTAMP",
		TypeJSON:       "JSONB",
		TypeEnum:       "VARCHAR(255)",
	},
	"sqlite": {
		TypeString:     "VARCHAR(%d)",
		TypeText:       "TEXT",
		TypeLongText:   "TEXT",
		TypeInteger:    "INTEGER",
		TypeBigInteger: "INTEGER",
		TypeDecimal:    "NUMERIC(%d,%d)",
		TypeBoolean:    "BOOLEAN",
		TypeDate:       "DATE",
		TypeDateTime:   "DATETIME",
		TypeTimestamp:  "TIMESTAMP",
		TypeJSON:       "TEXT",
		TypeEnum:       "VARCHAR(255)",
	},
}

// serialTypes replaces integer types of auto-increment columns on PostgreSQL.
var serialTypes = map[string]string{
	TypeInteger:    "SERIAL",
	TypeBigInteger: "BIGSERIAL",
}

func sqlType(d dbal.Dialector, c *ColumnDefinition) (string, error) {
	typeMap, ok := TypeMapping[d.Name()]
	if !ok {
		return "", fmt.Errorf("%w: unsupported dialect %q", ErrInvalidDefinition, d.Name())
	}
	if d.Name() == "pgsql" && c.autoIncrement {
		if t, ok := serialTypes[c.kind]; ok {
			return t, nil
		}
	}
	pattern, ok := typeMap[c.kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown column type %q", ErrInvalidDefinition, c.kind)
	}
	switch c.kind {
	case TypeString:
		return fmt.Sprintf(pattern, c.length), nil
	case TypeDecimal:
		return fmt.Sprintf(pattern, c.precision, c.scale), nil
	case TypeEnum:
		if strings.Contains(pattern, "%s") {
			return fmt.Sprintf(pattern, quotedList(c.values)), nil
		}
	}
	return pattern, nil
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quotedList(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = quoteLiteral(v)
	}
	return strings.Join(parts, ",")
}
