package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	seedRows        int
	seedConcurrency int
	seedValue       int64
)

func seedCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with fake rows",
		Long: `Insert fake rows into every table of the model. Tables referenced by
foreign keys are filled first.`,
		Run: cmdSeed,
	}

	c.Flags().IntVar(&seedRows, "rows", 20, "rows per table")
	c.Flags().IntVar(&seedConcurrency, "concurrency", 8, "inserts running at the same time")
	c.Flags().Int64Var(&seedValue, "seed", 0, "random seed, 0 picks one")
	return c
}

func cmdSeed(cmd *cobra.Command, args []string) {
	setup(cpath)
	fatalInProduction("seed")

	nq := newNavQL(true)

	seed := seedValue
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	tables, err := newSeeder(nq.ModelInfo(), seedRows, seed).tables()
	if err != nil {
		log.Fatalf("%s", err)
	}

	log.Infof("seeding %d tables (please wait)", len(tables))

	if err := insertTables(context.Background(), db, tables, seedConcurrency); err != nil {
		log.Fatalf("%s", err)
	}

	log.Infof("seeding done")
}
