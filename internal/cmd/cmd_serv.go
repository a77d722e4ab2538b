package cmd

import (
	"github.com/navql/navql/serv"
	"github.com/spf13/cobra"
)

func servCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the navql service",
		Run:     cmdServ,
	}
	return c
}

func cmdServ(*cobra.Command, []string) {
	setup(cpath)

	s, err := serv.NewService(conf)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := s.Start(); err != nil {
		log.Fatalf("%s", err)
	}
}
