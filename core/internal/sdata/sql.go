package sdata

import _ "embed"

//go:embed sql/mssql_columns.sql
var columnsStmt string

//go:embed sql/mssql_foreign_keys.sql
var foreignKeysStmt string

//go:embed sql/mssql_unique_indexes.sql
var uniqueIndexesStmt string
