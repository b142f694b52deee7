// interfaces.go
// Core contracts for dbal: Dialector and the driver registry.
// Driver packages under drivers/db register themselves from init().

package dbal

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialector defines how to quote identifiers for a specific SQL dialect.
type Dialector interface {
	Name() string                   // Config identifier of the dialect ("mysql", "pgsql", "sqlite")
	Quote(identifier string) string // Quote a single, already escaped identifier part
}

// Driver describes a registered database driver.
type Driver struct {
	Name      string   // Config identifier, e.g. "pgsql"
	Aliases   []string // Alternative identifiers accepted in Config.Driver
	SQLDriver string   // database/sql driver name passed to sqlx.Open
	Dialect   Dialector
	DSN       func(cfg Config) (string, error)
	// Classify maps a driver error to an ErrKind. Optional.
	Classify func(err error) ErrKind
	// TableExistsQuery selects one row when the table bound to :name exists.
	TableExistsQuery string
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]*Driver)
)

// RegisterDriver makes a driver available by name and aliases.
// It panics if the driver is incomplete or a name is registered twice.
func RegisterDriver(d Driver) {
	if d.Name == "" || d.SQLDriver == "" || d.Dialect == nil || d.DSN == nil || d.TableExistsQuery == "" {
		panic("dbal: RegisterDriver called with incomplete driver")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	drv := d
	for _, name := range append([]string{d.Name}, d.Aliases...) {
		key := strings.ToLower(name)
		if _, dup := drivers[key]; dup {
			panic("dbal: RegisterDriver called twice for driver " + name)
		}
		drivers[key] = &drv
	}
}

// LookupDriver returns the registered driver for name.
func LookupDriver(name string) (*Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s; forgot to import a drivers/db package?)",
			ErrUnsupportedDriver, name, strings.Join(registeredNames(), ", "))
	}
	return d, nil
}

func registeredNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
