package sdata

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/gobuffalo/flect"
	"github.com/pkg/errors"
)

// GetModelInfo introspects a SQL Server schema and returns a model
// description. Tables whose primary key is made up of exactly two foreign
// keys become join entities backing a pair of skip navigations.
func GetModelInfo(ctx context.Context, db *sql.DB, schema string, blockList []string) (*ModelInfo, error) {
	if schema == "" {
		schema = "dbo"
	}
	mi := &ModelInfo{Schema: schema}

	tables, err := getColumns(ctx, db, schema, blockList)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		mi.Entities = append(mi.Entities, *t)
	}

	fks, err := getForeignKeys(ctx, db, schema)
	if err != nil {
		return nil, err
	}

	uniques, err := getUniqueIndexes(ctx, db, schema)
	if err != nil {
		return nil, err
	}

	em := make(map[string]*EntityInfo, len(mi.Entities))
	for i := range mi.Entities {
		em[mi.Entities[i].Table] = &mi.Entities[i]
	}

	for _, fk := range fks {
		dep, ok1 := em[fk.table]
		prin, ok2 := em[fk.refTable]
		if !ok1 || !ok2 {
			continue
		}

		dep.ForeignKeys = append(dep.ForeignKeys, ForeignKeyInfo{
			Name:       fk.name,
			Columns:    fk.cols,
			References: prin.Name,
			RefColumns: fk.refCols,
			Unique:     isUnique(dep, uniques[dep.Table], fk.cols),
		})
	}

	for i := range mi.Entities {
		addSkipNavigations(mi, &mi.Entities[i])
	}

	return mi, nil
}

func getColumns(ctx context.Context, db *sql.DB, schema string, blockList []string) ([]*EntityInfo, error) {
	rows, err := db.QueryContext(ctx, columnsStmt, schema)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching columns")
	}
	defer rows.Close()

	var tables []*EntityInfo
	tm := make(map[string]*EntityInfo)

	for rows.Next() {
		var ts, tn string
		var c ColumnInfo

		if err := rows.Scan(&ts, &tn, &c.Name, &c.Type, &c.Nullable, &c.Key); err != nil {
			return nil, errors.Wrap(err, "error reading columns")
		}

		if isInList(tn, blockList) || isInList(c.Name, blockList) {
			continue
		}

		t, ok := tm[tn]
		if !ok {
			t = &EntityInfo{Name: entityName(tn), Table: tn}
			tm[tn] = t
			tables = append(tables, t)
		}
		t.Columns = append(t.Columns, c)
	}

	return tables, rows.Err()
}

type fkInfo struct {
	name     string
	table    string
	refTable string
	cols     []string
	refCols  []string
}

func getForeignKeys(ctx context.Context, db *sql.DB, schema string) ([]*fkInfo, error) {
	rows, err := db.QueryContext(ctx, foreignKeysStmt, schema)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching foreign keys")
	}
	defer rows.Close()

	var fks []*fkInfo
	var fk *fkInfo

	for rows.Next() {
		var name, table, col, refTable, refCol string

		if err := rows.Scan(&name, &table, &col, &refTable, &refCol); err != nil {
			return nil, errors.Wrap(err, "error reading foreign keys")
		}

		if fk == nil || fk.name != name || fk.table != table {
			fk = &fkInfo{name: name, table: table, refTable: refTable}
			fks = append(fks, fk)
		}
		fk.cols = append(fk.cols, col)
		fk.refCols = append(fk.refCols, refCol)
	}

	return fks, rows.Err()
}

func getUniqueIndexes(ctx context.Context, db *sql.DB, schema string) (map[string][][]string, error) {
	rows, err := db.QueryContext(ctx, uniqueIndexesStmt, schema)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching unique indexes")
	}
	defer rows.Close()

	res := make(map[string][][]string)
	var lastTable, lastIndex string

	for rows.Next() {
		var table, index, col string

		if err := rows.Scan(&table, &index, &col); err != nil {
			return nil, errors.Wrap(err, "error reading unique indexes")
		}

		if table != lastTable || index != lastIndex {
			res[table] = append(res[table], nil)
			lastTable, lastIndex = table, index
		}
		idx := res[table]
		idx[len(idx)-1] = append(idx[len(idx)-1], col)
	}

	return res, rows.Err()
}

// isUnique reports whether the foreign key columns are covered by a unique
// index or are the whole primary key.
func isUnique(e *EntityInfo, indexes [][]string, cols []string) bool {
	var key []string
	for _, c := range e.Columns {
		if c.Key {
			key = append(key, c.Name)
		}
	}

	if sameSet(key, cols) {
		return true
	}
	for _, idx := range indexes {
		if sameSet(idx, cols) {
			return true
		}
	}
	return false
}

func addSkipNavigations(mi *ModelInfo, e *EntityInfo) {
	if len(e.ForeignKeys) != 2 {
		return
	}

	var key []string
	for _, c := range e.Columns {
		if !c.Key {
			return
		}
		key = append(key, c.Name)
	}

	fk1, fk2 := &e.ForeignKeys[0], &e.ForeignKeys[1]

	var cols []string
	cols = append(cols, fk1.Columns...)
	cols = append(cols, fk2.Columns...)
	if !sameSet(key, cols) {
		return
	}

	// a join entity: no navigations of its own
	fk1.Navigation, fk1.Inverse = noNavigation, noNavigation
	fk2.Navigation, fk2.Inverse = noNavigation, noNavigation

	var left, right *EntityInfo
	for i := range mi.Entities {
		t := &mi.Entities[i]
		if t.Name == fk1.References {
			left = t
		}
		if t.Name == fk2.References {
			right = t
		}
	}
	if left == nil || right == nil {
		return
	}

	name := flect.Pluralize(right.Name)
	inverse := flect.Pluralize(left.Name)
	if name == inverse {
		inverse += "Inverse"
	}

	left.SkipNavigations = append(left.SkipNavigations, SkipInfo{
		Name:    name,
		Target:  right.Name,
		Through: e.Name,
		Inverse: inverse,
		Columns: fk1.Columns,
	})
}

func entityName(table string) string {
	return flect.Singularize(table)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)

	for i := range x {
		if !strings.EqualFold(x[i], y[i]) {
			return false
		}
	}
	return true
}

func isInList(val string, s []string) bool {
	for _, v := range s {
		if strings.EqualFold(v, val) {
			return true
		}
	}
	return false
}
