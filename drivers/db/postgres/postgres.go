// Package postgres registers the "pgsql" driver backed by jackc/pgx.
package postgres

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/apileon/dbal"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" with database/sql
)

const (
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Dialector quotes identifiers with double quotes.
type Dialector struct{}

func (Dialector) Name() string { return "pgsql" }

func (Dialector) Quote(identifier string) string {
	return `"` + identifier + `"`
}

func init() {
	dbal.RegisterDriver(dbal.Driver{
		Name:      "pgsql",
		Aliases:   []string{"postgres", "postgresql"},
		SQLDriver: "pgx",
		Dialect:   Dialector{},
		DSN:       DSN,
		Classify:  Classify,
		TableExistsQuery: `SELECT tablename FROM pg_catalog.pg_tables ` +
			`WHERE schemaname = current_schema() AND tablename = :name`,
	})
}

// DSN builds a libpq key=value connection string.
func DSN(cfg dbal.Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("%w: pgsql requires host", dbal.ErrInvalidArgument)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = defaultSSLMode
	}

	parts := []string{
		"host=" + quoteValue(cfg.Host),
		"port=" + strconv.Itoa(port),
		"dbname=" + quoteValue(cfg.Database),
		"sslmode=" + quoteValue(sslmode),
	}
	if cfg.Username != "" {
		parts = append(parts, "user="+quoteValue(cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteValue(cfg.Password))
	}
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(cfg.Options[k]))
	}
	return strings.Join(parts, " "), nil
}

// quoteValue single-quotes v when it is empty or contains spaces, quotes
// or backslashes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Classify maps SQLSTATE codes to error kinds.
func Classify(err error) dbal.ErrKind {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		var ce *pgconn.ConnectError
		if errors.As(err, &ce) {
			return dbal.ErrKindConnection
		}
		return dbal.ErrKindUnknown
	}
	switch {
	case pe.Code == "23505", pe.Code == "23503":
		return dbal.ErrKindConflict
	case strings.HasPrefix(pe.Code, "08"), pe.Code == "28P01", pe.Code == "3D000":
		return dbal.ErrKindConnection
	}
	return dbal.ErrKindQuery
}
