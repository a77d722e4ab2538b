// Package mssql renders compiled query trees as SQL Server statements.
package mssql

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/query"
)

var ErrEmptyQuery = errors.New("empty query")

type Config struct {
	// DefaultSchema is not written in front of table names.
	DefaultSchema string
}

type Compiler struct {
	defaultSchema string
}

func NewCompiler(conf Config) *Compiler {
	if conf.DefaultSchema == "" {
		conf.DefaultSchema = "dbo"
	}
	return &Compiler{defaultSchema: conf.DefaultSchema}
}

// Statement is one SQL command of a compiled query. Columns lists the
// output columns in order, Sel is the select whose rows it returns.
type Statement struct {
	SQL string
	// Positional is SQL with the parameters named @p1, @p2... after their
	// place in Params, the names the driver binds positional arguments to.
	Positional string
	Params     []*qcode.Param
	Columns    []qcode.Field
	Sel        int32
}

// CommandText is the statement as it is logged: one line per parameter,
// a blank line and the SQL.
func (st Statement) CommandText() string {
	if len(st.Params) == 0 {
		return st.SQL
	}

	var sb strings.Builder
	for _, p := range st.Params {
		sb.WriteString(`@`)
		sb.WriteString(p.Name)
		sb.WriteString(`=`)
		sb.WriteString(paramValue(p.Value))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(st.SQL)
	return sb.String()
}

func paramValue(v interface{}) string {
	switch v1 := v.(type) {
	case nil:
		return "NULL"
	case string:
		size := 4000
		if len(v1) > 4000 {
			size = -1
		}
		return fmt.Sprintf("'%s' (Size = %d)", v1, size)
	case bool:
		if v1 {
			return "'True'"
		}
		return "'False'"
	case time.Time:
		return "'" + v1.Format("2006-01-02T15:04:05.0000000") + "'"
	}
	return fmt.Sprintf("'%v'", v)
}

type compilerContext struct {
	w  *bytes.Buffer
	qc *qcode.QCode
	s  []qcode.Select
	*Compiler

	aliases map[*qcode.Table]string
	letters map[byte]int
	// derived table aliases reserved per select, in render order
	dalias map[int32][]string
	wrap   map[*qcode.Table]*derived
	dt     []*derived
	joined map[*qcode.Table]struct{}
	used   map[*qcode.Param]struct{}
	pidx   map[*qcode.Param]int
}

func (co *Compiler) newContext(qc *qcode.QCode) *compilerContext {
	c := &compilerContext{
		w:        &bytes.Buffer{},
		qc:       qc,
		s:        qc.Selects,
		Compiler: co,
		aliases:  make(map[*qcode.Table]string),
		letters:  make(map[byte]int),
		dalias:   make(map[int32][]string),
		wrap:     make(map[*qcode.Table]*derived),
		joined:   make(map[*qcode.Table]struct{}),
		used:     make(map[*qcode.Param]struct{}),
		pidx:     make(map[*qcode.Param]int, len(qc.Params)),
	}
	for i, p := range qc.Params {
		c.pidx[p] = i
	}
	return c
}

// Compile renders the statements of a query. Split queries return one
// statement for the root and one per included collection.
func (co *Compiler) Compile(qc *qcode.QCode) ([]Statement, error) {
	if len(qc.Selects) == 0 {
		return nil, ErrEmptyQuery
	}

	stmts := []Statement{co.compileMain(qc)}

	if qc.Split {
		c := co.newContext(qc)
		for _, id := range c.collections(0, true) {
			if t := c.s[id].Type; t == qcode.SelCollection || t == qcode.SelSkip {
				stmts = append(stmts, co.compileSplit(qc, id))
			}
		}
	}
	return stmts, nil
}

// statement finishes the SQL text of a context. Parameters are written
// as placeholders and named once the parameters of the statement are
// known.
func (c *compilerContext) statement(sel int32, cols []qcode.Field) Statement {
	st := Statement{Columns: cols, Sel: sel}

	pos := make(map[int]int)
	for i, p := range c.qc.Params {
		if _, ok := c.used[p]; ok {
			st.Params = append(st.Params, p)
			pos[i] = len(st.Params)
		}
	}

	text := c.expand(c.w.String())
	st.SQL = nameParams(text, func(i int) string { return "@" + c.qc.Params[i].Name })
	st.Positional = nameParams(text, func(i int) string { return "@p" + strconv.Itoa(pos[i]) })

	if c.qc.Tag != "" {
		tag := "-- " + strings.ReplaceAll(c.qc.Tag, "\n", "\n-- ") + "\n\n"
		st.SQL = tag + st.SQL
		st.Positional = tag + st.Positional
	}
	return st
}

const paramMark = '\x01'

func paramMarker(i int) string {
	return string(paramMark) + strconv.Itoa(i) + string(paramMark)
}

// nameParams replaces the parameter placeholders of s with the names fn
// returns for their index.
func nameParams(s string, fn func(i int) string) string {
	if strings.IndexByte(s, paramMark) == -1 {
		return s
	}

	var sb strings.Builder
	for {
		i := strings.IndexByte(s, paramMark)
		if i == -1 {
			sb.WriteString(s)
			return sb.String()
		}
		j := strings.IndexByte(s[i+1:], paramMark)
		if j == -1 {
			sb.WriteString(s)
			return sb.String()
		}
		n, _ := strconv.Atoi(s[i+1 : i+1+j])

		sb.WriteString(s[:i])
		sb.WriteString(fn(n))
		s = s[i+j+2:]
	}
}

// alloc gives a table its alias unless it has one.
func (c *compilerContext) alloc(t *qcode.Table) {
	if t == nil {
		return
	}
	if _, ok := c.aliases[t]; ok {
		return
	}
	c.aliases[t] = c.nextAlias(t.Entity.Table)
}

// nextAlias returns the first letter of name lowercased, numbered from
// its second use in the statement.
func (c *compilerContext) nextAlias(name string) string {
	b := byte('t')
	if name != "" {
		r := unicode.ToLower(rune(name[0]))
		if r >= 'a' && r <= 'z' {
			b = byte(r)
		}
	}

	n := c.letters[b]
	c.letters[b] = n + 1

	if n == 0 {
		return string(b)
	}
	return string(b) + strconv.Itoa(n-1)
}

func (c *compilerContext) reserveDerived(id int32, n int) {
	for i := 0; i < n; i++ {
		c.dalias[id] = append(c.dalias[id], c.nextAlias("t"))
	}
}

func (c *compilerContext) takeDerived(id int32) string {
	list := c.dalias[id]
	if len(list) == 0 {
		return c.nextAlias("t")
	}
	c.dalias[id] = list[1:]
	return list[0]
}

func (c *compilerContext) allocPaths(paths []*qcode.Table) {
	for _, t := range paths {
		c.alloc(t)
	}
}

// allocExp reserves the aliases of the subqueries of ex in the order
// they are written.
func (c *compilerContext) allocExp(ex *qcode.Exp) {
	if ex == nil {
		return
	}

	switch ex.Op {
	case qcode.OpAnd, qcode.OpOr, qcode.OpNot:
		for _, ch := range ex.Children {
			c.allocExp(ch)
		}
		return

	case qcode.OpExists, qcode.OpNotExists:
		c.allocSub(ex.Sub)
		return
	}

	for _, o := range []qcode.Operand{ex.Left, ex.Right} {
		if o.Type == qcode.ValCount {
			c.allocSub(o.Sub)
		}
	}
}

func (c *compilerContext) allocSub(sub *qcode.Sub) {
	c.alloc(sub.Through)
	c.alloc(sub.Table)
	c.allocPaths(sub.Paths)
	c.allocExp(sub.Where)
}

func (c *compilerContext) allocRoot() {
	root := &c.s[0]
	c.alloc(root.Table)
	c.allocPaths(root.Paths)
	c.allocExp(root.Where)
}

func (c *compilerContext) allocSelect(id int32) {
	sel := &c.s[id]

	if sel.Type == qcode.SelReference {
		c.alloc(sel.Table)
		return
	}

	c.alloc(sel.Through)
	c.alloc(sel.Table)
	c.allocPaths(sel.Paths)
	c.allocExp(sel.Where)
	c.reserveDerived(id, c.derivedCount(sel))
}

// derivedCount is the number of derived tables a select renders with.
func (c *compilerContext) derivedCount(sel *qcode.Select) int {
	paged := !sel.Paging.Empty()

	switch sel.Type {
	case qcode.SelCollection:
		switch {
		case paged:
			return 2
		case sel.Where != nil:
			return 1
		}

	case qcode.SelSkip:
		if paged {
			return 2
		}
		return 1

	case qcode.SelGroupJoin:
		if sel.Where != nil {
			return 1
		}

	case qcode.SelJoin:
		if paged || sel.Where != nil || sel.Through != nil {
			return 1
		}
		if sel.Rel == nil && sel.Join == query.SelectManyLeft {
			return 1
		}
	}
	return 0
}

// collections lists in pre-order the selects under id that nest rows
// of their own. Split queries leave out included collections unless all
// is set.
func (c *compilerContext) collections(id int32, all bool) []int32 {
	var list []int32

	for _, cid := range c.s[id].Children {
		switch c.s[cid].Type {
		case qcode.SelCollection, qcode.SelSkip:
			if c.qc.Split && !all {
				continue
			}
			list = append(list, cid)
		case qcode.SelGroupJoin:
			list = append(list, cid)
		}
		list = append(list, c.collections(cid, all)...)
	}
	return list
}

// refChain lists the reference selects reached from id through
// references only.
func (c *compilerContext) refChain(id int32) []int32 {
	var list []int32
	for _, cid := range c.s[id].Children {
		if c.s[cid].Type == qcode.SelReference {
			list = append(list, cid)
			list = append(list, c.refChain(cid)...)
		}
	}
	return list
}

// keyFields returns the identifying columns of a select.
func (c *compilerContext) keyFields(id int32) []qcode.Field {
	src := c.s[id].Fields
	if id == 0 || len(src) == 0 {
		src = c.qc.Fields
	}

	var fields []qcode.Field
	for _, f := range src {
		if f.Sel == id && f.Key {
			f.Hidden = true
			fields = append(fields, f)
		}
	}
	return fields
}

type orderCol struct {
	col  qcode.ColRef
	desc bool
}

func fieldCols(fields []qcode.Field) []orderCol {
	list := make([]orderCol, 0, len(fields))
	for _, f := range fields {
		list = append(list, orderCol{col: f.Col})
	}
	return list
}

func orderCols(ob []qcode.OrderBy) []orderCol {
	list := make([]orderCol, 0, len(ob))
	for _, o := range ob {
		list = append(list, orderCol{col: o.Col, desc: o.Desc})
	}
	return list
}

func keyCols(t *qcode.Table, cols []*sdata.Column) []orderCol {
	list := make([]orderCol, 0, len(cols))
	for _, col := range cols {
		list = append(list, orderCol{col: qcode.ColRef{Table: t, Col: col}})
	}
	return list
}

// identifiers are the columns that tell apart the rows of a select
// within its parent: its key and the keys of the references joined to it.
func (c *compilerContext) identifiers(id int32) []orderCol {
	sel := &c.s[id]
	var list []orderCol

	for _, f := range c.keyFields(id) {
		if sel.Type == qcode.SelSkip && f.Col.Table != sel.Table {
			continue
		}
		list = append(list, orderCol{col: f.Col})
	}

	if id == 0 {
		for _, cid := range sel.Children {
			if c.s[cid].Type == qcode.SelJoin {
				list = append(list, fieldCols(c.keyFields(cid))...)
			}
		}
	}

	for _, rid := range c.refChain(id) {
		list = append(list, fieldCols(c.keyFields(rid))...)
	}
	return list
}

// collOrdering is the ordering a collection adds ahead of its identifiers.
func (c *compilerContext) collOrdering(id int32) []orderCol {
	sel := &c.s[id]
	var list []orderCol

	if !sel.Paging.Empty() {
		list = append(list, c.partitionCols(sel)...)
	}
	list = append(list, orderCols(sel.OrderBy)...)

	if sel.Type == qcode.SelSkip {
		list = append(list, keyCols(sel.Through, sel.Rel.Right)...)
		list = append(list, keyCols(sel.Through, sel.Rel.Through.Cols)...)
	}
	return list
}

func (c *compilerContext) partitionCols(sel *qcode.Select) []orderCol {
	if sel.Type == qcode.SelSkip {
		return keyCols(sel.Through, sel.Rel.Right)
	}
	return keyCols(sel.Table, sel.Rel.Right)
}

func dedupe(list []orderCol) []orderCol {
	type key struct {
		t   *qcode.Table
		col *sdata.Column
	}

	seen := make(map[key]struct{}, len(list))
	out := list[:0]
	for _, o := range list {
		k := key{o.col.Table, o.col.Col}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// ancestors returns the chain of selects from the root down to the
// parent of id.
func (c *compilerContext) ancestors(id int32) []int32 {
	var list []int32
	for p := c.s[id].ParentID; p != -1; p = c.s[p].ParentID {
		list = append([]int32{p}, list...)
	}
	return list
}
