package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateDryRun bool

func migrateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and columns of the model",
		Long: `Compare the model with the database and create the missing tables,
columns and foreign keys. Nothing is dropped or altered.`,
		Run: cmdMigrate,
	}

	c.Flags().BoolVar(&migrateDryRun, "dry-run", false, "print the statements without running them")
	return c
}

func cmdMigrate(cmd *cobra.Command, args []string) {
	setup(cpath)

	if len(conf.Entities) == 0 && conf.ModelFile == "" {
		log.Fatal("migrate needs a model: set entities or model_file")
	}

	if !migrateDryRun {
		fatalInProduction("migrate")
	}

	nq := newNavQL(true)

	ops, err := nq.Migrate(context.Background(), migrateDryRun)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if len(ops) == 0 {
		log.Info("database is up to date")
		return
	}

	if migrateDryRun {
		for _, op := range ops {
			fmt.Fprintln(cmd.OutOrStdout(), op)
		}
		return
	}
	log.Infow("migration done", "statements", len(ops))
}
