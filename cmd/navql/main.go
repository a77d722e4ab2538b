// Main package for the navql service and command line tooling
/*
navql
Compiles navigation-aware queries to SQL Server T-SQL.

Usage:
  navql [command]

Available Commands:
  compile     Compile a query document to T-SQL
  introspect  Write the model of the database as a model file
  migrate     Create the tables and columns of the model
  seed        Fill the database with fake rows
  serve       Run the navql service
  watch       Reload the model each time the model file changes
  version     Version information
  help        Help about any command

Flags:
  -h, --help          help for navql
      --path string   path to config files (default "./config")

Use "navql [command] --help" for more information about a command.
*/
package main

import "github.com/navql/navql/internal/cmd"

func main() {
	cmd.Cmd()
}
