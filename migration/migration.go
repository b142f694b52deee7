// Package migration applies and reverts versioned schema changes and keeps
// a ledger of what ran in which batch.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrMigrationNotFound is returned when the ledger names a unit no source provides.
	ErrMigrationNotFound = errors.New("migration: unit not found")
	// ErrLocked is returned when another runner holds the migration lock.
	ErrLocked = errors.New("migration: another run holds the migration lock")
	// ErrDuplicateMigration is returned when two units share a name.
	ErrDuplicateMigration = errors.New("migration: duplicate unit name")
)

// MigrationFailedError reports the unit and direction that failed. Units
// applied earlier in the same call stay committed.
type MigrationFailedError struct {
	Name      string
	Direction string // up | down
	Err       error
}

func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Name, e.Direction, e.Err)
}

func (e *MigrationFailedError) Unwrap() error { return e.Err }

// Migration is one versioned schema change. Down must revert Up; the
// runner does not check it.
type Migration interface {
	Up(ctx context.Context, s *Schema) error
	Down(ctx context.Context, s *Schema) error
}

// Func adapts two functions to Migration.
type Func struct {
	UpFunc   func(ctx context.Context, s *Schema) error
	DownFunc func(ctx context.Context, s *Schema) error
}

func (f Func) Up(ctx context.Context, s *Schema) error {
	if f.UpFunc == nil {
		return nil
	}
	return f.UpFunc(ctx, s)
}

func (f Func) Down(ctx context.Context, s *Schema) error {
	if f.DownFunc == nil {
		return nil
	}
	return f.DownFunc(ctx, s)
}

// Unit is a named migration. Units run in ascending name order.
type Unit struct {
	Name      string
	Migration Migration
}

// Source discovers migration units.
type Source interface {
	Migrations() ([]Unit, error)
}

// Registry is a Source of migrations registered from Go code.
type Registry struct {
	mu    sync.Mutex
	units map[string]Migration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Migration)}
}

// Register adds m under name.
func (r *Registry) Register(name string, m Migration) error {
	if name == "" || m == nil {
		return fmt.Errorf("migration: register needs a name and a migration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.units[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateMigration, name)
	}
	r.units[name] = m
	return nil
}

// MustRegister is Register that panics on error, for use from init().
func (r *Registry) MustRegister(name string, m Migration) {
	if err := r.Register(name, m); err != nil {
		panic(err)
	}
}

// Migrations returns the registered units sorted by name.
func (r *Registry) Migrations() ([]Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make([]Unit, 0, len(r.units))
	for name, m := range r.units {
		units = append(units, Unit{Name: name, Migration: m})
	}
	sortUnits(units)
	return units, nil
}

type multiSource []Source

// Sources merges several sources. Names must be unique across them.
func Sources(sources ...Source) Source {
	return multiSource(sources)
}

func (ms multiSource) Migrations() ([]Unit, error) {
	seen := make(map[string]bool)
	var all []Unit
	for _, s := range ms {
		units, err := s.Migrations()
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			if seen[u.Name] {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateMigration, u.Name)
			}
			seen[u.Name] = true
			all = append(all, u)
		}
	}
	sortUnits(all)
	return all, nil
}

func sortUnits(units []Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
}
