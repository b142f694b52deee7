package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/apileon/dbal"
	"github.com/apileon/dbal/lock"
	"github.com/apileon/dbal/schema"
)

const (
	defaultTable   = "migrations"
	defaultLockTTL = 10 * time.Minute
)

// Runner applies and reverts units from a Source and records them in the
// ledger table.
type Runner struct {
	conn    *dbal.Connection
	source  Source
	table   string
	log     zerolog.Logger
	locker  lock.Locker
	lockTTL time.Duration
	seeder  Seeder
}

// Option configures a Runner.
type Option func(*Runner)

// WithTable sets the ledger table name. The default is "migrations".
func WithTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.table = name
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithLocker serializes runs through l for at most ttl each.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithSeeder sets the seeder run by Seed.
func WithSeeder(s Seeder) Option {
	return func(r *Runner) { r.seeder = s }
}

// NewRunner creates a runner for conn.
func NewRunner(conn *dbal.Connection, source Source, opts ...Option) *Runner {
	r := &Runner{
		conn:    conn,
		source:  source,
		table:   defaultTable,
		log:     zerolog.Nop(),
		lockTTL: defaultLockTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entry is one ledger row.
type Entry struct {
	ID    int64
	Name  string
	Batch int64
}

// Status describes one unit. Missing marks a ledger entry whose unit no
// source provides any more.
type Status struct {
	Name    string
	Applied bool
	Batch   int64
	Missing bool
}

// Migrate applies every pending unit in name order under one new batch
// number. Each unit and its ledger row commit together. It stops at the
// first failure and returns the units applied before it.
func (r *Runner) Migrate(ctx context.Context) ([]string, error) {
	var applied []string
	err := r.locked(ctx, func() (err error) {
		applied, err = r.migrate(ctx)
		return err
	})
	return applied, err
}

// Rollback reverts the steps most recently applied units, newest first.
func (r *Runner) Rollback(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: rollback steps must be at least 1, got %d", dbal.ErrInvalidArgument, steps)
	}
	var reverted []string
	err := r.locked(ctx, func() (err error) {
		reverted, err = r.rollback(ctx, steps)
		return err
	})
	return reverted, err
}

// Reset reverts every applied unit.
func (r *Runner) Reset(ctx context.Context) ([]string, error) {
	var reverted []string
	err := r.locked(ctx, func() (err error) {
		reverted, err = r.rollback(ctx, 0)
		return err
	})
	return reverted, err
}

// Refresh reverts every applied unit, then migrates from scratch.
func (r *Runner) Refresh(ctx context.Context) ([]string, error) {
	var applied []string
	err := r.locked(ctx, func() error {
		if _, err := r.rollback(ctx, 0); err != nil {
			return err
		}
		var err error
		applied, err = r.migrate(ctx)
		return err
	})
	return applied, err
}

// Seed runs the configured seeder. Without one it does nothing.
func (r *Runner) Seed(ctx context.Context) error {
	if r.seeder == nil {
		r.log.Info().Msg("no seeder configured")
		return nil
	}
	start := time.Now()
	r.log.Info().Msg("seeding database")
	if err := r.seeder.Run(ctx, r.conn); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	r.log.Info().Dur("took", time.Since(start)).Msg("database seeded")
	return nil
}

// Status reports every discovered unit and whether it is applied. It does
// not create the ledger table.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	units, err := r.source.Migrations()
	if err != nil {
		return nil, err
	}
	exists, err := r.conn.HasTable(ctx, r.table)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if exists {
		if entries, err = r.Ledger(ctx); err != nil {
			return nil, err
		}
	}

	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	out := make([]Status, 0, len(units))
	known := make(map[string]bool, len(units))
	for _, u := range units {
		known[u.Name] = true
		e, ok := byName[u.Name]
		out = append(out, Status{Name: u.Name, Applied: ok, Batch: e.Batch})
	}
	for _, e := range entries {
		if !known[e.Name] {
			out = append(out, Status{Name: e.Name, Applied: true, Batch: e.Batch, Missing: true})
		}
	}
	return out, nil
}

// Ledger returns the ledger rows in the order they were applied.
func (r *Runner) Ledger(ctx context.Context) ([]Entry, error) {
	rows, err := r.conn.Table(r.table).
		Select("id", "migration", "batch").
		OrderBy("batch", "asc").
		OrderBy("id", "asc").
		Get(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		id, err := row.Int64("id")
		if err != nil {
			return nil, err
		}
		batch, err := row.Int64("batch")
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Name: row.String("migration"), Batch: batch})
	}
	return entries, nil
}

func (r *Runner) migrate(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	units, err := r.source.Migrations()
	if err != nil {
		return nil, err
	}
	entries, err := r.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	ran := make(map[string]bool, len(entries))
	for _, e := range entries {
		ran[e.Name] = true
	}

	var pending []Unit
	for _, u := range units {
		if !ran[u.Name] {
			pending = append(pending, u)
		}
	}
	if len(pending) == 0 {
		r.log.Info().Msg("nothing to migrate")
		return nil, nil
	}

	batch, err := r.nextBatch(ctx)
	if err != nil {
		return nil, err
	}
	s := NewSchema(r.conn)
	applied := make([]string, 0, len(pending))
	for _, u := range pending {
		start := time.Now()
		r.log.Info().Str("migration", u.Name).Int64("batch", batch).Msg("migrating")
		err := r.conn.Transaction(ctx, func() error {
			if err := u.Migration.Up(ctx, s); err != nil {
				return err
			}
			_, err := r.conn.Table(r.table).Insert(ctx, map[string]interface{}{
				"migration": u.Name,
				"batch":     batch,
			})
			return err
		})
		if err != nil {
			r.log.Error().Err(err).Str("migration", u.Name).Msg("migration failed")
			return applied, &MigrationFailedError{Name: u.Name, Direction: "up", Err: err}
		}
		r.log.Info().Str("migration", u.Name).Dur("took", time.Since(start)).Msg("migrated")
		applied = append(applied, u.Name)
	}
	return applied, nil
}

// rollback reverts the newest steps entries; steps 0 means all of them.
func (r *Runner) rollback(ctx context.Context, steps int) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	entries, err := r.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		r.log.Info().Msg("nothing to roll back")
		return nil, nil
	}
	if steps == 0 || steps > len(entries) {
		steps = len(entries)
	}

	units, err := r.source.Migrations()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Migration, len(units))
	for _, u := range units {
		byName[u.Name] = u.Migration
	}

	s := NewSchema(r.conn)
	reverted := make([]string, 0, steps)
	for i := len(entries) - 1; i >= len(entries)-steps; i-- {
		e := entries[i]
		m, ok := byName[e.Name]
		if !ok {
			return reverted, &MigrationFailedError{Name: e.Name, Direction: "down", Err: ErrMigrationNotFound}
		}
		start := time.Now()
		r.log.Info().Str("migration", e.Name).Int64("batch", e.Batch).Msg("rolling back")
		err := r.conn.Transaction(ctx, func() error {
			if err := m.Down(ctx, s); err != nil {
				return err
			}
			_, err := r.conn.Table(r.table).WhereEq("id", e.ID).Delete(ctx)
			return err
		})
		if err != nil {
			r.log.Error().Err(err).Str("migration", e.Name).Msg("rollback failed")
			return reverted, &MigrationFailedError{Name: e.Name, Direction: "down", Err: err}
		}
		r.log.Info().Str("migration", e.Name).Dur("took", time.Since(start)).Msg("rolled back")
		reverted = append(reverted, e.Name)
	}
	return reverted, nil
}

func (r *Runner) nextBatch(ctx context.Context) (int64, error) {
	row, err := r.conn.Table(r.table).Select("batch").OrderByDesc("batch").First(ctx)
	if err != nil || row == nil {
		return 1, err
	}
	last, err := row.Int64("batch")
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// ensureLedger creates the ledger table when it does not exist.
func (r *Runner) ensureLedger(ctx context.Context) error {
	stmts, err := schema.Create(r.table, r.conn.Dialect(), func(t *schema.Table) {
		t.ID()
		t.String("migration", 255).NotNull().Unique()
		t.Integer("batch")
		t.Timestamp("executed_at").Nullable().Default("CURRENT_TIMESTAMP")
	}).IfNotExists().Statements()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := r.conn.ExecRaw(ctx, stmt); err != nil {
			return fmt.Errorf("create ledger table %s: %w", r.table, err)
		}
	}
	return nil
}

func (r *Runner) lockKey() string { return "dbal:migrations:" + r.table }

func (r *Runner) locked(ctx context.Context, fn func() error) (err error) {
	if r.locker == nil {
		return fn()
	}
	key := r.lockKey()
	ok, err := r.locker.Acquire(ctx, key, r.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if relErr := r.locker.Release(ctx, key); relErr != nil {
			err = multierror.Append(err, fmt.Errorf("release migration lock: %w", relErr))
		}
	}()
	return fn()
}
