// Command dbal runs migrations and seeders against a configured database.
//
//	dbal --config dbal.toml migrate --seed
//	dbal rollback --steps 2
//	dbal status
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	_ "github.com/apileon/dbal/drivers/db/mysql"
	_ "github.com/apileon/dbal/drivers/db/postgres"
	_ "github.com/apileon/dbal/drivers/db/sqlite"
	"github.com/apileon/dbal/migration"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	config     string
	connection string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dbal",
		Short:         "Database migrations and seeders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.config, "config", "dbal.toml", "path to TOML or YAML config file")
	root.PersistentFlags().StringVar(&opts.connection, "connection", "", "connection name (default from config)")

	root.AddCommand(
		newMigrateCmd(opts),
		newRollbackCmd(opts),
		newResetCmd(opts),
		newRefreshCmd(opts),
		newSeedCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// run builds the application, runs fn and pushes metrics afterwards.
func run(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *Application) error) error {
	app, cleanup, err := initializeApplication(configPath(opts.config), connectionName(opts.connection))
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := fn(cmd.Context(), app)
	if err := app.Pusher.Push(); err != nil {
		app.Log.Warn().Err(err).Msg("metrics push failed")
	}
	return runErr
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				applied, err := app.Runner.Migrate(ctx)
				printNames(cmd.OutOrStdout(), "Migrated", applied)
				if err != nil || !seed {
					return err
				}
				return app.Runner.Seed(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "run the seeders afterwards")
	return cmd
}

func newRollbackCmd(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recently applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				reverted, err := app.Runner.Rollback(ctx, steps)
				printNames(cmd.OutOrStdout(), "Rolled back", reverted)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Revert every applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				reverted, err := app.Runner.Reset(ctx)
				printNames(cmd.OutOrStdout(), "Rolled back", reverted)
				return err
			})
		},
	}
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Revert every migration and migrate again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				applied, err := app.Runner.Refresh(ctx)
				printNames(cmd.OutOrStdout(), "Migrated", applied)
				if err != nil || !seed {
					return err
				}
				return app.Runner.Seed(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "run the seeders afterwards")
	return cmd
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run the database seeders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				if err := app.Runner.Seed(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database seeded")
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which migrations have run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, app *Application) error {
				statuses, err := app.Runner.Status(ctx)
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), statuses)
			})
		},
	}
}

func printNames(w io.Writer, verb string, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, "Nothing to do")
		return
	}
	for _, n := range names {
		fmt.Fprintf(w, "%s: %s\n", verb, n)
	}
}

func printStatus(w io.Writer, statuses []migration.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tSTATUS\tBATCH")
	for _, s := range statuses {
		state, batch := "pending", "-"
		if s.Applied {
			state, batch = "ran", fmt.Sprint(s.Batch)
		}
		if s.Missing {
			state = "missing"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, state, batch)
	}
	return tw.Flush()
}
