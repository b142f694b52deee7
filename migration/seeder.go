package migration

import (
	"context"

	"github.com/apileon/dbal"
)

// Seeder fills the database with data. Seeders manage their own
// transactions.
type Seeder interface {
	Run(ctx context.Context, conn *dbal.Connection) error
}

// SeederFunc adapts a function to Seeder.
type SeederFunc func(ctx context.Context, conn *dbal.Connection) error

func (f SeederFunc) Run(ctx context.Context, conn *dbal.Connection) error {
	return f(ctx, conn)
}

type seederChain []Seeder

// Seeders runs several seeders in order, stopping at the first error.
func Seeders(seeders ...Seeder) Seeder {
	return seederChain(seeders)
}

func (c seederChain) Run(ctx context.Context, conn *dbal.Connection) error {
	for _, s := range c {
		if err := s.Run(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}
