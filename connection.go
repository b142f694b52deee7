package dbal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Connection owns the single database handle and the transaction flag.
// It is not safe for concurrent use; callers serialize access.
type Connection struct {
	driver  *Driver
	dsn     string
	log     zerolog.Logger
	metrics *Metrics

	mu sync.Mutex // guards db during lazy open
	db *sqlx.DB
	tx *sqlx.Tx
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger used for statement and transaction logs.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithMetrics records statement durations and failures into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// New validates cfg and prepares a connection. The handle is opened lazily
// by the first statement or by Open.
func New(cfg Config, opts ...Option) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	drv, err := LookupDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := drv.DSN(cfg)
	if err != nil {
		return nil, &ConnectionError{Driver: drv.Name, Err: err}
	}
	c := &Connection{
		driver: drv,
		dsn:    dsn,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open connects the handle if it is not open yet and verifies it with a ping.
func (c *Connection) Open(ctx context.Context) error {
	_, err := c.handle(ctx)
	return err
}

func (c *Connection) handle(ctx context.Context) (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	db, err := sqlx.Open(c.driver.SQLDriver, c.dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: c.driver.Name, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Driver: c.driver.Name, Err: err}
	}
	c.log.Debug().Str("driver", c.driver.Name).Msg("connection opened")
	c.db = db
	return db, nil
}

// DriverName returns the canonical name of the configured driver.
func (c *Connection) DriverName() string { return c.driver.Name }

// Dialect returns the SQL dialect of the configured driver.
func (c *Connection) Dialect() Dialector { return c.driver.Dialect }

// Logger returns the connection logger.
func (c *Connection) Logger() zerolog.Logger { return c.log }

// Table starts a statement builder targeting table.
func (c *Connection) Table(table string) *Builder {
	return newBuilder(c).Table(table)
}

// HasTable reports whether table exists in the connected database.
func (c *Connection) HasTable(ctx context.Context, table string) (bool, error) {
	rows, err := c.Select(ctx, c.driver.TableExistsQuery, map[string]interface{}{"name": table})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InTransaction reports whether a transaction is active.
func (c *Connection) InTransaction() bool { return c.tx != nil }

// BeginTransaction starts a transaction. It returns false without side
// effects if one is already active.
func (c *Connection) BeginTransaction(ctx context.Context) (bool, error) {
	if c.tx != nil {
		return false, nil
	}
	db, err := c.handle(ctx)
	if err != nil {
		return false, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, c.queryError("BEGIN", err)
	}
	c.tx = tx
	c.log.Debug().Msg("transaction begun")
	return true, nil
}

// Commit commits the active transaction. It returns false if none is active.
// The flag is cleared even when the commit fails.
func (c *Connection) Commit() (bool, error) {
	if c.tx == nil {
		return false, nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return false, c.queryError("COMMIT", err)
	}
	c.log.Debug().Msg("transaction committed")
	return true, nil
}

// Rollback rolls back the active transaction. It returns false if none is
// active. The flag is cleared even when the rollback fails.
func (c *Connection) Rollback() (bool, error) {
	if c.tx == nil {
		return false, nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return false, c.queryError("ROLLBACK", err)
	}
	c.log.Debug().Msg("transaction rolled back")
	return true, nil
}

// Transaction runs fn inside a transaction. When a transaction is already
// active fn joins it and the outer owner decides commit or rollback.
// Otherwise fn's error or panic rolls back and success commits.
func (c *Connection) Transaction(ctx context.Context, fn func() error) (err error) {
	began, err := c.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if !began {
		return fn()
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = c.Rollback()
			panic(p)
		}
	}()

	if err = fn(); err != nil {
		if _, rbErr := c.Rollback(); rbErr != nil {
			err = multierror.Append(err, rbErr)
		}
		return err
	}
	_, err = c.Commit()
	return err
}

// Select runs a query and returns all rows. bindings maps placeholder
// names (without the leading colon) to values.
func (c *Connection) Select(ctx context.Context, query string, bindings map[string]interface{}) ([]*Row, error) {
	start := time.Now()
	rows, err := c.selectRows(ctx, query, bindings)
	c.finish("select", query, start, err, int64(len(rows)))
	return rows, err
}

func (c *Connection) selectRows(ctx context.Context, query string, bindings map[string]interface{}) ([]*Row, error) {
	ext, err := c.ext(ctx)
	if err != nil {
		return nil, err
	}
	q, args, err := bindNamed(ext, query, bindings)
	if err != nil {
		return nil, err
	}
	rs, err := ext.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, c.queryError(query, err)
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, c.queryError(query, err)
	}
	var out []*Row
	for rs.Next() {
		scanned := make(map[string]interface{}, len(cols))
		if err := rs.MapScan(scanned); err != nil {
			return nil, c.queryError(query, err)
		}
		out = append(out, newRowFromScan(cols, scanned))
	}
	if err := rs.Err(); err != nil {
		return nil, c.queryError(query, err)
	}
	return out, nil
}

// Exec runs a statement with named bindings.
func (c *Connection) Exec(ctx context.Context, query string, bindings map[string]interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := c.exec(ctx, query, bindings)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	c.finish("exec", query, start, err, affected)
	return res, err
}

// ExecRaw runs a statement without bindings, typically DDL.
func (c *Connection) ExecRaw(ctx context.Context, query string) error {
	start := time.Now()
	_, err := c.exec(ctx, query, nil)
	c.finish("ddl", query, start, err, 0)
	return err
}

func (c *Connection) exec(ctx context.Context, query string, bindings map[string]interface{}) (sql.Result, error) {
	ext, err := c.ext(ctx)
	if err != nil {
		return nil, err
	}
	q, args, err := bindNamed(ext, query, bindings)
	if err != nil {
		return nil, err
	}
	res, err := ext.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, c.queryError(query, err)
	}
	return res, nil
}

// Disconnect rolls back any active transaction and closes the handle.
func (c *Connection) Disconnect() error {
	var result error
	if _, err := c.Rollback(); err != nil {
		result = multierror.Append(result, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close: %w", err))
		}
		c.db = nil
		c.log.Debug().Str("driver", c.driver.Name).Msg("connection closed")
	}
	return result
}

func (c *Connection) ext(ctx context.Context) (sqlx.ExtContext, error) {
	if c.tx != nil {
		return c.tx, nil
	}
	return c.handle(ctx)
}

// bindNamed converts :name placeholders into the driver bindvar.
func bindNamed(ext sqlx.ExtContext, query string, bindings map[string]interface{}) (string, []interface{}, error) {
	if len(bindings) == 0 {
		return query, nil, nil
	}
	q, args, err := sqlx.Named(query, bindings)
	if err != nil {
		return "", nil, fmt.Errorf("bind %q: %w", query, err)
	}
	return ext.Rebind(q), args, nil
}

func (c *Connection) queryError(query string, err error) error {
	kind := ErrKindQuery
	if c.driver.Classify != nil {
		if k := c.driver.Classify(err); k != ErrKindUnknown {
			kind = k
		}
	}
	return &QueryExecutionError{SQL: query, Kind: kind, Err: err}
}

func (c *Connection) finish(op, query string, start time.Time, err error, rows int64) {
	c.metrics.observe(op, start, err)
	if err != nil {
		c.log.Error().Err(err).Str("op", op).Str("sql", query).Msg("statement failed")
		return
	}
	c.log.Debug().
		Str("op", op).
		Str("sql", query).
		Dur("took", time.Since(start)).
		Int64("rows", rows).
		Msg("statement executed")
}
