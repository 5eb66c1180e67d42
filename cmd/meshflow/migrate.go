package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

type migrateFlags struct {
	dbType string
	dbURL  string
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	f := &migrateFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the metadata schema",
		Example: `  meshflow migrate up
  meshflow migrate status --config /etc/meshflow/config.yaml
  meshflow migrate goto 1
  meshflow migrate up --db-type sqlite --db-url "file:meshflow.db?mode=rwc"`,
	}
	cmd.PersistentFlags().StringVar(&f.dbType, "db-type", "", "Database type: postgres, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&f.dbURL, "db-url", "", "Database connection URL (default: from config)")

	// withCLI 为子命令打开迁移器，执行后关闭
	withCLI := func(fn func(ctx context.Context, cli *migration.CLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := f.open(opts.cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			cli := migration.NewCLI(m)
			cli.SetOutput(cmd.OutOrStdout())
			return fn(cmd.Context(), cli, args)
		}
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
			if all {
				return cli.RunDownAll(ctx)
			}
			return cli.RunDown(ctx)
		}),
	}
	down.Flags().BoolVar(&all, "all", false, "Roll back every applied migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
				return cli.RunUp(ctx)
			}),
		},
		down,
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations (negative N rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
				return cli.RunSteps(ctx, n)
			}),
		},
		&cobra.Command{
			Use:   "goto VERSION",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunGoto(ctx, uint(v))
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Force set the migration version (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunForce(ctx, v)
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Roll back all migrations and re-apply them",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
				return cli.RunReset(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show every migration and whether it is applied",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
				return cli.RunStatus(ctx)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
				return cli.RunVersion(ctx)
			}),
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show a migration summary",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(ctx context.Context, cli *migration.CLI, _ []string) error {
				return cli.RunInfo(ctx)
			}),
		},
	)

	return cmd
}

// open 按 --db-type/--db-url 或配置创建迁移器
func (f *migrateFlags) open(cfg *config.Config) (*migration.DefaultMigrator, error) {
	if f.dbURL != "" {
		dbType := f.dbType
		if dbType == "" {
			dbType = cfg.Database.Driver
		}
		return migration.NewMigratorFromURL(dbType, f.dbURL)
	}

	dbCfg := cfg.Database
	if f.dbType != "" {
		dbCfg.Driver = f.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(dbCfg)
}
