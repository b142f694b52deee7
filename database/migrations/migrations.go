// Package migrations holds the migrations compiled into the dbal binary.
// Each file registers one unit from init() under its file name.
package migrations

import "github.com/apileon/dbal/migration"

// Registry collects the bundled migrations.
var Registry = migration.NewRegistry()
