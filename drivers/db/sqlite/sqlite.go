// Package sqlite registers the "sqlite" driver backed by mattn/go-sqlite3.
//
//	import _ "github.com/apileon/dbal/drivers/db/sqlite"
package sqlite

import (
	"errors"
	"net/url"
	"strings"

	"github.com/apileon/dbal"
	"github.com/mattn/go-sqlite3"
)

// Dialector quotes identifiers with double quotes.
type Dialector struct{}

func (Dialector) Name() string { return "sqlite" }

func (Dialector) Quote(identifier string) string {
	return `"` + identifier + `"`
}

func init() {
	dbal.RegisterDriver(dbal.Driver{
		Name:             "sqlite",
		Aliases:          []string{"sqlite3"},
		SQLDriver:        "sqlite3",
		Dialect:          Dialector{},
		DSN:              DSN,
		Classify:         Classify,
		TableExistsQuery: `SELECT name FROM sqlite_master WHERE type = 'table' AND name = :name`,
	})
}

// DSN returns the database path with foreign key enforcement switched on
// and cfg.Options appended as query parameters.
func DSN(cfg dbal.Config) (string, error) {
	params := url.Values{}
	params.Set("_foreign_keys", "1")
	for k, v := range cfg.Options {
		params.Set(k, v)
	}
	sep := "?"
	if strings.Contains(cfg.Database, "?") {
		sep = "&"
	}
	return cfg.Database + sep + params.Encode(), nil
}

// Classify maps SQLite result codes to error kinds.
func Classify(err error) dbal.ErrKind {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return dbal.ErrKindUnknown
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintForeignKey:
		return dbal.ErrKindConflict
	}
	switch se.Code {
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return dbal.ErrKindConnection
	}
	return dbal.ErrKindQuery
}
