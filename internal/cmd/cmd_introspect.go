package cmd

import (
	"io"

	"github.com/navql/navql/core"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var introspectOut string

func introspectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "introspect",
		Short: "Write the model of the database as a model file",
		Long: `Read the tables, keys and foreign keys of the configured SQL Server
schema and print the model as YAML, ready to be used as model_file.`,
		Run: cmdIntrospect,
	}

	c.Flags().StringVarP(&introspectOut, "out", "o", "", "model file to write, stdout when empty")
	return c
}

func cmdIntrospect(cmd *cobra.Command, args []string) {
	setup(cpath)
	initDB()

	// an empty model makes the engine introspect
	c := &core.Config{Schema: conf.Schema, Blocklist: conf.Blocklist}

	nq, err := core.NewNavQL(c, db, core.OptionSetLogger(log))
	if err != nil {
		log.Fatalf("failed to introspect: %s", err)
	}
	info := nq.ModelInfo()

	if introspectOut == "" {
		printYAML(cmd.OutOrStdout(), info)
		return
	}

	b, err := yaml.Marshal(info)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := afero.WriteFile(afero.NewOsFs(), introspectOut, b, 0o644); err != nil {
		log.Fatalf("%s", err)
	}

	log.Infow("model written", "file", introspectOut, "entities", len(info.Entities))
}

func printYAML(w io.Writer, v interface{}) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		log.Fatalf("%s", err)
	}
	_ = enc.Close()
}
