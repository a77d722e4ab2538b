package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch [model file]",
		Short: "Reload the model each time the model file changes",
		Long: `Watch the model file and rebuild the model on every change, logging
reload errors. Useful to check a model file while editing it.`,
		Args: cobra.MaximumNArgs(1),
		Run:  cmdWatch,
	}
	return c
}

func cmdWatch(cmd *cobra.Command, args []string) {
	setup(cpath)

	if len(args) != 0 {
		conf.ModelFile = args[0]
		conf.Entities = nil
	}

	nq := newNavQL(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := nq.WatchModel(ctx, ""); err != nil {
		log.Fatalf("%s", err)
	}

	log.Infow("watching model", "file", conf.ModelFile, "entities", len(nq.ModelInfo().Entities))
	<-ctx.Done()
}
