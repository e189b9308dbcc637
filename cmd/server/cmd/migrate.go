package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/config"
	"github.com/Togather-Foundation/eventdesk/internal/storage/mongo"
	"github.com/Togather-Foundation/eventdesk/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var (
	migrateDatabaseURL string
	migrateDriver      string
	migrateDBName      string
	migrateSteps       int
)

var errMongoMigrations = errors.New("mongodb has no versioned schema; only 'migrate up' (index creation) is supported")

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back the embedded schema migrations.

PostgreSQL uses versioned SQL migrations. For MongoDB, 'migrate up' creates
the collection indexes (unique user email, event date ordering).

The connection comes from --database-url or DATABASE_URL; no other
configuration is required.`,
	}
	cmd.PersistentFlags().StringVar(&migrateDatabaseURL, "database-url", "", "database connection URL (default: $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&migrateDriver, "driver", "", "database driver: postgres or mongo (default: $DATABASE_DRIVER or postgres)")
	cmd.PersistentFlags().StringVar(&migrateDBName, "database-name", "", "mongodb database name (default: $DATABASE_NAME or eventdesk)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveMigrateTarget()
			if err != nil {
				return err
			}
			if target.driver == config.DriverMongo {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				store, err := mongo.Connect(ctx, target.url, target.name, 1, 0)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close(context.Background()) }()
				fmt.Fprintln(cmd.OutOrStdout(), "mongodb indexes ensured")
				return nil
			}
			if err := postgres.MigrateUp(target.url); err != nil {
				return err
			}
			return printVersion(cmd, target.url)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveMigrateTarget()
			if err != nil {
				return err
			}
			if target.driver == config.DriverMongo {
				return errMongoMigrations
			}
			if err := postgres.MigrateDown(target.url, migrateSteps); err != nil {
				return err
			}
			return printVersion(cmd, target.url)
		},
	}
	down.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveMigrateTarget()
			if err != nil {
				return err
			}
			if target.driver == config.DriverMongo {
				return errMongoMigrations
			}
			return printVersion(cmd, target.url)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

type migrateTarget struct {
	driver string
	url    string
	name   string
}

func resolveMigrateTarget() (migrateTarget, error) {
	target := migrateTarget{
		driver: strings.ToLower(firstNonEmpty(migrateDriver, os.Getenv("DATABASE_DRIVER"), config.DriverPostgres)),
		url:    firstNonEmpty(migrateDatabaseURL, os.Getenv("DATABASE_URL")),
		name:   firstNonEmpty(migrateDBName, os.Getenv("DATABASE_NAME"), "eventdesk"),
	}
	if target.url == "" {
		return migrateTarget{}, errors.New("database URL is required (--database-url or DATABASE_URL)")
	}
	if target.driver != config.DriverPostgres && target.driver != config.DriverMongo {
		return migrateTarget{}, fmt.Errorf("unsupported database driver %q", target.driver)
	}
	return target, nil
}

func printVersion(cmd *cobra.Command, url string) error {
	version, dirty, err := postgres.MigrationVersion(url)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
