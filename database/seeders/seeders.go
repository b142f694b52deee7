// Package seeders holds the bundled database seeders.
package seeders

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/apileon/dbal"
	"github.com/apileon/dbal/migration"
)

// DatabaseSeeder runs every bundled seeder.
func DatabaseSeeder() migration.Seeder {
	return migration.Seeders(&UserSeeder{})
}

type seedUser struct {
	name     string
	email    string
	status   string
	verified bool
}

var seedUsers = []seedUser{
	{"Admin User", "admin@apileon.com", "active", true},
	{"John Doe", "john@example.com", "active", true},
	{"Jane Smith", "jane@example.com", "active", false},
	{"Bob Johnson", "bob@example.com", "inactive", true},
	{"Alice Wilson", "alice@example.com", "active", true},
	{"Charlie Brown", "charlie@example.com", "suspended", true},
}

const defaultPassword = "password123"

// UserSeeder inserts an admin and five test users into the users table.
type UserSeeder struct {
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
	// Now stamps email_verified_at; nil means time.Now.
	Now func() time.Time
}

// Run inserts the users in one transaction.
func (s *UserSeeder) Run(ctx context.Context, conn *dbal.Connection) error {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), cost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	err = conn.Transaction(ctx, func() error {
		for _, u := range seedUsers {
			var verifiedAt interface{}
			if u.verified {
				verifiedAt = now().UTC()
			}
			_, err := conn.Table("users").Insert(ctx, map[string]interface{}{
				"name":              u.name,
				"email":             u.email,
				"password":          string(hash),
				"email_verified_at": verifiedAt,
				"status":            u.status,
			})
			if err != nil {
				return fmt.Errorf("seed user %s: %w", u.email, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log := conn.Logger()
	log.Info().Int("users", len(seedUsers)).Msg("users seeded")
	return nil
}
