package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/navql/navql/core"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var seedEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// seedTable holds the fake rows generated for one entity.
type seedTable struct {
	name string // qualified table name
	cols []string
	rows [][]interface{}
}

type seeder struct {
	info *core.ModelInfo
	rows int
	fake *gofakeit.Faker
}

func newSeeder(info *core.ModelInfo, rows int, seed int64) *seeder {
	return &seeder{info: info, rows: rows, fake: gofakeit.New(seed)}
}

// tables generates rows for every entity, principals before dependents.
func (s *seeder) tables() ([]seedTable, error) {
	order, err := dependencyOrder(s.info)
	if err != nil {
		return nil, err
	}

	tables := make([]seedTable, 0, len(order))
	for _, e := range order {
		tables = append(tables, s.table(e))
	}
	return tables, nil
}

func (s *seeder) table(e core.EntityInfo) seedTable {
	t := seedTable{name: qualifiedName(s.info, e)}

	fks := make(map[string]core.ForeignKeyInfo)
	for _, fk := range e.ForeignKeys {
		for _, c := range fk.Columns {
			fks[c] = fk
		}
	}

	for _, c := range e.Columns {
		t.cols = append(t.cols, c.Name)
	}

	for i := 1; i <= s.rows; i++ {
		row := make([]interface{}, 0, len(e.Columns))
		keyFK := 0

		for _, c := range e.Columns {
			fk, isFK := fks[c.Name]

			switch {
			case isFK && c.Key:
				row = append(row, s.keyRef(i, keyFK))
				keyFK++

			case isFK:
				row = append(row, s.ref(e, c, fk, i))

			case c.Key && isInteger(c.Type):
				row = append(row, int64(i))

			case c.Key && isDate(c.Type):
				row = append(row, seedEpoch.AddDate(0, 0, i))

			case c.Key:
				row = append(row, s.fake.UUID())

			default:
				row = append(row, s.value(c))
			}
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// keyRef spreads the rows of a join entity over distinct key pairs.
func (s *seeder) keyRef(i, n int) int64 {
	v := i - 1
	for j := 0; j < n; j++ {
		v /= s.rows
	}
	return int64(v%s.rows + 1)
}

func (s *seeder) ref(e core.EntityInfo, c core.ColumnInfo, fk core.ForeignKeyInfo, i int) interface{} {
	self := fk.References == e.Name

	switch {
	case len(fk.Columns) > 1 && c.Nullable:
		return nil

	case self && c.Nullable:
		// rows point at earlier rows only
		if i == 1 || s.fake.Number(0, 3) == 0 {
			return nil
		}
		return int64(s.fake.Number(1, i-1))

	case self:
		return int64(i)

	case fk.Unique:
		return int64(i)

	case c.Nullable && s.fake.Number(0, 4) == 0:
		return nil
	}
	return int64(s.fake.Number(1, s.rows))
}

func (s *seeder) value(c core.ColumnInfo) interface{} {
	if c.Nullable && s.fake.Number(0, 9) == 0 {
		return nil
	}

	t := strings.ToLower(c.Type)
	if i := strings.IndexByte(t, '('); i != -1 {
		t = t[:i]
	}

	switch t {
	case "int", "bigint", "smallint", "tinyint":
		return int64(s.fake.Number(1, 100))
	case "bit":
		return s.fake.Bool()
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return s.fake.DateRange(seedEpoch, seedEpoch.AddDate(10, 0, 0))
	case "decimal", "numeric", "money", "smallmoney", "float", "real":
		return s.fake.Price(1, 1000)
	case "uniqueidentifier":
		return s.fake.UUID()
	}
	return s.text(c.Name)
}

// text picks a generator by column name.
func (s *seeder) text(name string) string {
	n := strings.ToLower(name)

	switch {
	case strings.Contains(n, "email"):
		return s.fake.Email()
	case strings.Contains(n, "first"):
		return s.fake.FirstName()
	case strings.Contains(n, "last"):
		return s.fake.LastName()
	case strings.Contains(n, "phone"):
		return s.fake.Phone()
	case strings.Contains(n, "city"):
		return s.fake.City()
	case strings.Contains(n, "country"):
		return s.fake.Country()
	case strings.Contains(n, "street"), strings.Contains(n, "address"):
		return s.fake.Street()
	case strings.Contains(n, "url"):
		return s.fake.URL()
	case strings.Contains(n, "title"):
		return s.fake.Sentence(3)
	case strings.Contains(n, "description"):
		return s.fake.Sentence(10)
	case strings.Contains(n, "name"):
		return s.fake.Name()
	}
	return s.fake.Word()
}

// insertTables writes the rows of the tables in order, the rows of one table
// concurrently.
func insertTables(ctx context.Context, db *sql.DB, tables []seedTable, concurrency int) error {
	for _, t := range tables {
		stmt := insertStmt(t)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for _, row := range t.rows {
			row := row
			g.Go(func() error {
				_, err := db.ExecContext(gctx, stmt, row...)
				return err
			})
		}

		if err := g.Wait(); err != nil {
			return errors.Wrapf(err, "seeding %s", t.name)
		}
	}
	return nil
}

func insertStmt(t seedTable) string {
	cols := make([]string, len(t.cols))
	params := make([]string, len(t.cols))

	for i, c := range t.cols {
		cols[i] = quote(c)
		params[i] = "@p" + strconv.Itoa(i+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), strings.Join(params, ", "))
}

// dependencyOrder sorts entities so that every entity comes after the
// entities its foreign keys reference. Self references are ignored.
func dependencyOrder(info *core.ModelInfo) ([]core.EntityInfo, error) {
	byName := make(map[string]core.EntityInfo, len(info.Entities))
	for _, e := range info.Entities {
		byName[e.Name] = e
	}

	var order []core.EntityInfo
	state := make(map[string]int) // 1 visiting, 2 done

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("foreign key cycle through %s", name)
		case 2:
			return nil
		}
		state[name] = 1

		e := byName[name]
		refs := make([]string, 0, len(e.ForeignKeys))
		for _, fk := range e.ForeignKeys {
			if fk.References != name {
				if _, ok := byName[fk.References]; ok {
					refs = append(refs, fk.References)
				}
			}
		}
		sort.Strings(refs)

		for _, r := range refs {
			if err := visit(r); err != nil {
				return err
			}
		}

		state[name] = 2
		order = append(order, e)
		return nil
	}

	for _, e := range info.Entities {
		if err := visit(e.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func isDate(t string) bool {
	return strings.HasPrefix(strings.ToLower(t), "date") ||
		strings.EqualFold(t, "smalldatetime")
}

func isInteger(t string) bool {
	switch strings.ToLower(t) {
	case "int", "bigint", "smallint", "tinyint":
		return true
	}
	return false
}

func qualifiedName(info *core.ModelInfo, e core.EntityInfo) string {
	table := e.Table
	if table == "" {
		table = e.Name
	}

	schema := e.Schema
	if schema == "" {
		schema = info.Schema
	}
	if schema == "" {
		return quote(table)
	}
	return quote(schema) + "." + quote(table)
}

func quote(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}
