package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Postgres schema migrations (managed mode)",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

// resolveDSN loads the Postgres DSN, which comes from the environment
// only (CONDUCTOR_POSTGRES_DSN), never the config file.
func resolveDSN() (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.PostgresDSN == "" {
		return "", fmt.Errorf("CONDUCTOR_POSTGRES_DSN environment variable is not set")
	}
	return cfg.Storage.PostgresDSN, nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			if err := pg.Migrate(dsn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			if err := pg.Rollback(dsn); err != nil {
				return err
			}
			fmt.Println("rolled back one migration")
			return nil
		},
	}
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			v, dirty, err := pg.Version(dsn)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Printf("version %d (dirty)\n", v)
			} else {
				fmt.Printf("version %d\n", v)
			}
			return nil
		},
	}
}
