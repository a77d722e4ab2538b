// Package migrate works out the DDL that brings a database in line with a
// model: missing tables, missing columns and the foreign keys of new
// tables.
package migrate

import (
	"fmt"
	"strings"

	"github.com/navql/navql/core/internal/sdata"
)

// LockName is the application lock held while a migration runs.
const LockName = "__navql_migration_lock"

// MigrateSchema returns the statements that turn current into expected.
// Tables and columns present in current but not in expected are left
// alone. The statements are meant to run in one transaction.
func MigrateSchema(current, expected *sdata.ModelInfo) []string {
	ops := []string{
		fmt.Sprintf("EXEC sp_getapplock @Resource = N'%s', @LockMode = 'Exclusive', @LockOwner = 'Transaction', @LockTimeout = 10000;", LockName),
	}

	var created []sdata.EntityInfo

	for _, exp := range expected.Entities {
		cur := findTable(current, tableName(exp), schemaName(expected, exp))

		if cur == nil {
			ops = append(ops, CreateTableQuery(expected, exp))
			created = append(created, exp)
			continue
		}

		for _, col := range exp.Columns {
			if !hasColumn(cur, col.Name) {
				ops = append(ops, AddColumnQuery(expected, exp, col))
			}
		}
	}

	// foreign keys once every table exists
	for _, e := range created {
		for _, fk := range e.ForeignKeys {
			if q := ForeignKeyQuery(expected, e, fk); q != "" {
				ops = append(ops, q)
			}
		}
	}

	if len(ops) == 1 {
		return nil
	}
	return ops
}

func CreateTableQuery(info *sdata.ModelInfo, e sdata.EntityInfo) string {
	var cols, keys []string

	for _, c := range e.Columns {
		cols = append(cols, columnDef(c))
		if c.Key {
			keys = append(keys, quote(c.Name))
		}
	}

	if len(keys) != 0 {
		cols = append(cols, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			quote("PK_"+tableName(e)), strings.Join(keys, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s);", qualified(info, e), strings.Join(cols, ", "))
}

func AddColumnQuery(info *sdata.ModelInfo, e sdata.EntityInfo, c sdata.ColumnInfo) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s;", qualified(info, e), columnDef(c))
}

// ForeignKeyQuery returns the constraint for fk, referencing the key of
// the principal entity when no columns are named.
func ForeignKeyQuery(info *sdata.ModelInfo, e sdata.EntityInfo, fk sdata.ForeignKeyInfo) string {
	var prin *sdata.EntityInfo
	for i := range info.Entities {
		if info.Entities[i].Name == fk.References {
			prin = &info.Entities[i]
			break
		}
	}
	if prin == nil {
		return ""
	}

	refs := fk.RefColumns
	if len(refs) == 0 {
		for _, c := range prin.Columns {
			if c.Key {
				refs = append(refs, c.Name)
			}
		}
	}
	if len(refs) != len(fk.Columns) {
		return ""
	}

	name := fk.Name
	if name == "" {
		name = "FK_" + tableName(e) + "_" + tableName(*prin) + "_" + fk.Columns[0]
	}

	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		qualified(info, e), quote(name), quoteList(fk.Columns), qualified(info, *prin), quoteList(refs))
}

func columnDef(c sdata.ColumnInfo) string {
	null := " NOT NULL"
	if c.Nullable && !c.Key {
		null = " NULL"
	}
	return quote(c.Name) + " " + sqlType(c) + null
}

// sqlType fills in the length of types declared without one. Key columns
// get a length that fits in an index.
func sqlType(c sdata.ColumnInfo) string {
	t := strings.ToLower(c.Type)

	switch {
	case t == "":
		return "nvarchar(max)"
	case strings.Contains(t, "("):
		return t
	case t == "nvarchar" || t == "varchar" || t == "varbinary":
		if c.Key {
			return t + "(450)"
		}
		return t + "(max)"
	case t == "nchar" || t == "char":
		return t + "(1)"
	case t == "decimal" || t == "numeric":
		return t + "(18, 2)"
	}
	return t
}

func findTable(info *sdata.ModelInfo, table, schema string) *sdata.EntityInfo {
	if info == nil {
		return nil
	}
	for i, e := range info.Entities {
		if strings.EqualFold(tableName(e), table) &&
			strings.EqualFold(schemaName(info, e), schema) {
			return &info.Entities[i]
		}
	}
	return nil
}

func hasColumn(e *sdata.EntityInfo, name string) bool {
	for _, c := range e.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func tableName(e sdata.EntityInfo) string {
	if e.Table != "" {
		return e.Table
	}
	return e.Name
}

func schemaName(info *sdata.ModelInfo, e sdata.EntityInfo) string {
	switch {
	case e.Schema != "":
		return e.Schema
	case info != nil && info.Schema != "":
		return info.Schema
	}
	return "dbo"
}

func qualified(info *sdata.ModelInfo, e sdata.EntityInfo) string {
	return quote(schemaName(info, e)) + "." + quote(tableName(e))
}

func quote(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func quoteList(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = quote(c)
	}
	return strings.Join(q, ", ")
}
