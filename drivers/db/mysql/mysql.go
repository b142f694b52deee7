// Package mysql registers the "mysql" driver backed by go-sql-driver/mysql.
package mysql

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/apileon/dbal"
	"github.com/go-sql-driver/mysql"
)

const defaultPort = 3306

// Dialector quotes identifiers with backticks.
type Dialector struct{}

func (Dialector) Name() string { return "mysql" }

func (Dialector) Quote(identifier string) string {
	return "`" + identifier + "`"
}

func init() {
	dbal.RegisterDriver(dbal.Driver{
		Name:      "mysql",
		Aliases:   []string{"mariadb"},
		SQLDriver: "mysql",
		Dialect:   Dialector{},
		DSN:       DSN,
		Classify:  Classify,
		TableExistsQuery: `SELECT table_name FROM information_schema.tables ` +
			`WHERE table_schema = DATABASE() AND table_name = :name`,
	})
}

// DSN builds a go-sql-driver DSN with parseTime enabled and UTC location.
func DSN(cfg dbal.Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("%w: mysql requires host", dbal.ErrInvalidArgument)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{}
	if cfg.Charset != "" {
		mc.Params["charset"] = cfg.Charset
	}
	for k, v := range cfg.Options {
		mc.Params[k] = v
	}
	// Round-trip to validate the extra options.
	if _, err := mysql.ParseDSN(mc.FormatDSN()); err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	return mc.FormatDSN(), nil
}

// Classify maps MySQL error numbers to error kinds.
func Classify(err error) dbal.ErrKind {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		if errors.Is(err, mysql.ErrInvalidConn) {
			return dbal.ErrKindConnection
		}
		return dbal.ErrKindUnknown
	}
	switch me.Number {
	case 1062, 1451, 1452: // duplicate entry, fk parent, fk child
		return dbal.ErrKindConflict
	case 1045, 1049, 2003: // access denied, unknown database, can't connect
		return dbal.ErrKindConnection
	}
	return dbal.ErrKindQuery
}
