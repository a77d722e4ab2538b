// Package cmd holds the navql command line: compiling query documents,
// introspecting and seeding databases and running the HTTP service.
package cmd

import (
	"database/sql"
	"path/filepath"

	"github.com/navql/navql/core"
	"github.com/navql/navql/internal/util"
	"github.com/navql/navql/serv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	db    *sql.DB
	conf  *serv.Config
	cpath string
)

func Cmd() {
	log = util.NewLogger(false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "navql",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(introspectCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(servCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

func setup(cpath string) {
	if conf != nil {
		return
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		log.Fatal(err)
	}

	if conf, err = serv.ReadInConfig(filepath.Join(cp, serv.GetConfigName())); err != nil {
		log.Fatal(err)
	}

	if conf.LogLevel != "" || conf.LogFormat != "" {
		log = util.NewLoggerWithLevel(conf.LogFormat == "json", conf.LogLevel).Sugar()
	}
}

func initDB() {
	var err error

	if db != nil {
		return
	}

	if db, err = serv.NewDB(conf, log); err != nil {
		log.Fatalf("failed to connect to database: %s", err)
	}
}

// newNavQL creates the engine from the config. A database is opened when
// the model has to be introspected or when needDB is set.
func newNavQL(needDB bool) *core.NavQL {
	setup(cpath)

	if needDB || (len(conf.Entities) == 0 && conf.ModelFile == "") {
		initDB()
	}

	nq, err := core.NewNavQL(&conf.Core, db, core.OptionSetLogger(log))
	if err != nil {
		log.Fatalf("failed to initialize: %s", err)
	}
	return nq
}

func fatalInProduction(name string) {
	if conf.Production {
		log.Fatalf("%s is disabled in production", name)
	}
}
