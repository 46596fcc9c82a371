package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/vsearch/internal/app"
	"github.com/kdimtricp/vsearch/internal/database"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations",
		SilenceUsage: true,
	}
	cli, err := app.NewCLI(cmd)
	if err != nil {
		panic(err)
	}
	cmd.Flags().BoolVar(&status, "status", false, "Show migration status only")
	cmd.Flags().String("db", "sqlite", "Database type (postgres or sqlite)")
	cmd.Flags().String("host", "localhost", "Database host")
	cmd.Flags().Int("port", 5432, "Database port")
	cmd.Flags().String("user", "vsearch", "Database user")
	cmd.Flags().String("name", "vsearch", "Database name")
	for key, flag := range map[string]string{
		"database.type": "db",
		"database.host": "host",
		"database.port": "port",
		"database.user": "user",
		"database.name": "name",
	} {
		if err := cli.Bind(cmd, key, flag); err != nil {
			panic(err)
		}
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		// NewDB migrates sqlite on open; postgres is only migrated here.
		db, err := database.NewDB(ctx, cfg.Database.DB(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := database.NewMigrator(db)
		out := cmd.OutOrStdout()

		if status {
			if err := migrator.Initialize(ctx); err != nil {
				return err
			}
			applied, err := migrator.AppliedMigrations(ctx)
			if err != nil {
				return err
			}
			migrations, err := migrator.LoadMigrations()
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Migration Status:")
			fmt.Fprintln(out, "=================")
			for _, m := range migrations {
				state := "pending"
				if applied[m.Version] {
					state = "applied"
				}
				fmt.Fprintf(out, "%s - %s [%s]\n", m.Version, m.Name, state)
			}
			return nil
		}

		n, err := migrator.RunCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Applied %d migration(s) to %s database\n", n, cfg.Database.Type)
		return nil
	}
	return cmd
}
