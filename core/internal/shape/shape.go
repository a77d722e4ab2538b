// Package shape turns the flat rows returned by the SQL statements of a
// query into nested records: included references become nested records,
// included collections become lists.
package shape

import (
	"fmt"
	"sort"
	"strings"

	"github.com/navql/navql/core/internal/qcode"
)

type Record map[string]interface{}

// Result holds the rows read for one statement. Sel is the select whose
// rows the statement returns, zero for the main statement.
type Result struct {
	Sel     int32
	Columns []qcode.Field
	Rows    [][]interface{}
}

type shaper struct {
	qc   *qcode.QCode
	recs []map[string]Record
	out  []Record
	// set when joined collections repeat the root rows
	dedupe bool
}

// Materialize builds the root records of a query from the results of its
// statements. The main statement comes first, split statements follow in
// the order they were compiled.
func Materialize(qc *qcode.QCode, results []Result) ([]Record, error) {
	s := &shaper{
		qc:   qc,
		recs: make([]map[string]Record, len(qc.Selects)),
		out:  []Record{},
	}
	for i := range s.recs {
		s.recs[i] = make(map[string]Record)
	}

	for _, sel := range qc.Selects {
		if isList(sel.Type) {
			s.dedupe = true
		}
	}

	for i, r := range results {
		if i == 0 && r.Sel != 0 {
			return nil, fmt.Errorf("shape: first result must be the main statement, got select %d", r.Sel)
		}
		if err := s.add(r); err != nil {
			return nil, err
		}
	}
	return s.out, nil
}

func isList(t qcode.SelType) bool {
	return t == qcode.SelCollection || t == qcode.SelSkip || t == qcode.SelGroupJoin
}

// layout groups the column indexes of a result by select.
type layout struct {
	cols   []qcode.Field
	sels   []int32
	fields map[int32][]int
	keys   map[int32][]int
}

func (s *shaper) layout(r Result) (layout, error) {
	l := layout{
		cols:   r.Columns,
		fields: make(map[int32][]int),
		keys:   make(map[int32][]int),
	}

	for i, f := range r.Columns {
		if f.Sel < 0 || int(f.Sel) >= len(s.qc.Selects) {
			return l, fmt.Errorf("shape: column %s has unknown select %d", f.Name, f.Sel)
		}
		if _, ok := l.fields[f.Sel]; !ok {
			l.sels = append(l.sels, f.Sel)
		}
		l.fields[f.Sel] = append(l.fields[f.Sel], i)
		if f.Key {
			l.keys[f.Sel] = append(l.keys[f.Sel], i)
		}
	}

	// parents are added before their children
	sort.Slice(l.sels, func(i, j int) bool { return l.sels[i] < l.sels[j] })
	return l, nil
}

func (s *shaper) add(r Result) error {
	l, err := s.layout(r)
	if err != nil {
		return err
	}

	for n, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("shape: row %d has %d values, expected %d", n, len(row), len(r.Columns))
		}
		s.addRow(r.Sel, l, n, row)
	}
	return nil
}

func (s *shaper) addRow(base int32, l layout, n int, row []interface{}) {
	ident := make(map[int32]string, len(l.sels))

	for _, id := range l.sels {
		sel := &s.qc.Selects[id]

		pid := ""
		if id != 0 {
			var ok bool
			if pid, ok = ident[sel.ParentID]; !ok {
				continue
			}
		}

		key, ok := s.identity(id, l, n, row)
		if !ok {
			continue
		}
		rid := pid + "/" + key

		if _, ok := s.recs[id][rid]; ok {
			ident[id] = rid
			continue
		}

		// rows of a split statement only add records from its select down
		if base != 0 && !s.below(id, base) {
			continue
		}
		ident[id] = rid

		rec := s.newRecord(id)
		for _, i := range l.fields[id] {
			if f := l.cols[i]; !f.Hidden {
				rec[f.Name] = row[i]
			}
		}
		s.recs[id][rid] = rec

		if id == 0 {
			s.out = append(s.out, rec)
			continue
		}
		attach(s.recs[sel.ParentID][pid], sel, rec)
	}
}

// identity returns the key values of select id in a row. A row with no
// value for any key has no record for the select.
func (s *shaper) identity(id int32, l layout, n int, row []interface{}) (string, bool) {
	keys := l.keys[id]

	if len(keys) == 0 || (id == 0 && !s.dedupe) {
		return fmt.Sprintf("#%d", n), true
	}

	var sb strings.Builder
	present := false
	for i, k := range keys {
		if i != 0 {
			sb.WriteByte('|')
		}
		if row[k] != nil {
			present = true
		}
		fmt.Fprintf(&sb, "%T:%v", row[k], row[k])
	}
	return sb.String(), present
}

// below reports whether id is base or under it.
func (s *shaper) below(id, base int32) bool {
	for ; id != -1; id = s.qc.Selects[id].ParentID {
		if id == base {
			return true
		}
	}
	return false
}

func (s *shaper) newRecord(id int32) Record {
	rec := make(Record)
	for _, cid := range s.qc.Selects[id].Children {
		child := &s.qc.Selects[cid]
		if isList(child.Type) {
			rec[child.Name] = []Record{}
		} else {
			rec[child.Name] = nil
		}
	}
	return rec
}

func attach(parent Record, sel *qcode.Select, rec Record) {
	if parent == nil {
		return
	}
	if isList(sel.Type) {
		list, _ := parent[sel.Name].([]Record)
		parent[sel.Name] = append(list, rec)
		return
	}
	parent[sel.Name] = rec
}
