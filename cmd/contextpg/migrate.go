package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

var migrateCommand = &command{
	name:    "migrate",
	summary: "Apply, roll back or list the embedded schema migrations",
	usage:   "migrate [--status | --rollback] [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var status, rollback bool
		fs.BoolVar(&status, "status", false, "list migrations and whether they are applied")
		fs.BoolVar(&rollback, "rollback", false, "revert the most recently applied migration")

		return func(ctx context.Context, e *env, args []string) error {
			if status && rollback {
				return fmt.Errorf("--status and --rollback are mutually exclusive")
			}

			e.cfg.Database.AutoMigrate = false
			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()
			if b.sql == nil {
				return errNeedsPostgres
			}

			switch {
			case rollback:
				if err := b.sql.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(e.stdout, "Rolled back the latest migration.")
				return nil
			case status:
			default:
				if err := b.sql.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(e.stdout, "Migrations applied.")
			}

			records, err := b.sql.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tAPPLIED\tAPPLIED AT")
			for _, r := range records {
				appliedAt := "-"
				if r.AppliedAt != nil {
					appliedAt = r.AppliedAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\n", r.Name, r.Applied, appliedAt)
			}
			return tw.Flush()
		}
	},
}
