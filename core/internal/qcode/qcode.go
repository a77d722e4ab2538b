package qcode

import (
	"errors"
	"fmt"

	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/core/internal/util"
	"github.com/navql/navql/query"
)

var ErrInvalidQuery = errors.New("invalid query")

const defaultMaxSelects = 64

type SelType int8

const (
	SelRoot SelType = iota
	SelReference
	SelCollection
	SelSkip
	SelJoin
	SelGroupJoin
)

func (st SelType) String() string {
	switch st {
	case SelRoot:
		return "root"
	case SelReference:
		return "reference"
	case SelCollection:
		return "collection"
	case SelSkip:
		return "skip"
	case SelJoin:
		return "join"
	case SelGroupJoin:
		return "group_join"
	}
	return "unknown"
}

type QCode struct {
	Selects []Select
	// Fields is the main projection in output order. Columns of included
	// navigations follow it.
	Fields []Field
	Params []*Param
	Split  bool
	Tag    string
}

// Table is one occurrence of an entity in a statement.
type Table struct {
	ID       int32
	Entity   *sdata.Entity
	Rel      *sdata.Rel
	Parent   *Table
	Optional bool
}

type Select struct {
	ID       int32
	ParentID int32
	Type     SelType
	Name     string
	Table    *Table
	Rel      *sdata.Rel
	// Through is the join entity of a skip navigation.
	Through   *Table
	Join      query.JoinKind
	OuterKeys []ColRef
	InnerKeys []ColRef
	Where     *Exp
	// Corr marks a join whose filter reads earlier range variables
	Corr     bool
	OrderBy  []OrderBy
	Paging   Paging
	Distinct bool
	// Paths are the reference joins needed by the filter, ordering and
	// projection of this select.
	Paths    []*Table
	Fields   []Field
	Children []int32
}

// Field is a projected column. Sel is the select whose record receives
// the value, Key marks the identifying columns of that select.
type Field struct {
	Name   string
	Sel    int32
	Col    ColRef
	Key    bool
	Hidden bool
}

type ColRef struct {
	Table    *Table
	Col      *sdata.Column
	Nullable bool
}

type OrderBy struct {
	Col  ColRef
	Desc bool
}

type Paging struct {
	Skip *Operand
	Take *Operand
}

func (p Paging) Empty() bool {
	return p.Skip == nil && p.Take == nil
}

type Param struct {
	Name  string
	Value interface{}
}

type Config struct {
	MaxSelects         int
	UseRelationalNulls bool
}

type Compiler struct {
	m *sdata.Model
	c Config
}

func NewCompiler(m *sdata.Model, c Config) (*Compiler, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if c.MaxSelects == 0 {
		c.MaxSelects = defaultMaxSelects
	}
	return &Compiler{m: m, c: c}, nil
}

// compilerContext holds the state of a single compile.
type compilerContext struct {
	co      *Compiler
	qc      *QCode
	tableID int32
	pmap    map[string]*Param
	root    *scope
	// paths collects the path joins of each select while compiling,
	// indexed by select ID
	paths []*[]*Table
}

func (co *Compiler) Compile(q *query.Query) (*QCode, error) {
	if q == nil || q.Entity == "" {
		return nil, fmt.Errorf("%w: no entity to query", ErrInvalidQuery)
	}

	c := &compilerContext{
		co:   co,
		qc:   &QCode{Split: q.Split, Tag: q.Tag},
		pmap: make(map[string]*Param),
	}

	if err := c.compileQuery(q); err != nil {
		return nil, err
	}

	for i := range c.qc.Selects {
		c.qc.Selects[i].Paths = *c.paths[i]
	}
	return c.qc, nil
}

func (c *compilerContext) compileQuery(q *query.Query) error {
	e, err := c.co.m.Entity(q.Entity)
	if err != nil {
		return invalid(err)
	}

	name := q.As
	if name == "" {
		name = e.Name
	}

	root := c.addSelect(Select{
		ParentID: -1,
		Type:     SelRoot,
		Name:     name,
		Table:    c.newTable(e, nil, nil, false),
		Distinct: q.Distinct,
	}, nil)

	c.root = newScope(nil, root.Table, c.paths[0])
	c.root.addVar(name, root.ID, root.Table)

	for i := range q.Joins {
		if q.Split && q.Joins[i].Kind != query.GroupJoin {
			return fmt.Errorf("%w: split queries cannot flatten joins", ErrInvalidQuery)
		}
		if err := c.compileJoin(&q.Joins[i]); err != nil {
			return err
		}
	}

	// the root select may move in memory as selects are added
	sel := &c.qc.Selects[0]

	if sel.Where, err = c.compileFilter(c.root, q.Where); err != nil {
		return err
	}

	if sel.OrderBy, err = c.compileOrderBy(c.root, q.OrderBy); err != nil {
		return err
	}

	if sel.Paging, err = c.compilePaging(q.Skip, q.Take, true); err != nil {
		return err
	}

	includes, err := c.compileProjection(q.Select)
	if err != nil {
		return err
	}

	if includes {
		for i := range q.Includes {
			if err := c.compileInclude(&q.Includes[i]); err != nil {
				return err
			}
		}
	}

	return c.addKeys()
}

func (c *compilerContext) compileJoin(j *query.Join) error {
	if j.As == "" {
		return fmt.Errorf("%w: join needs a range variable", ErrInvalidQuery)
	}

	if _, _, ok := c.root.lookupVar(j.As); ok {
		return fmt.Errorf("%w: duplicate range variable: %s", ErrInvalidQuery, j.As)
	}

	sel := Select{
		ParentID: 0,
		Type:     SelJoin,
		Name:     j.As,
		Join:     j.Kind,
	}
	paths := &[]*Table{}

	switch j.Kind {
	case query.InnerJoin, query.LeftJoin, query.GroupJoin:
		e, err := c.co.m.Entity(j.Entity)
		if err != nil {
			return invalid(err)
		}

		if len(j.OuterKeys) == 0 || len(j.OuterKeys) != len(j.InnerKeys) {
			return fmt.Errorf("%w: join %s needs matching outer and inner keys", ErrInvalidQuery, j.As)
		}

		sel.Table = c.newTable(e, nil, nil, j.Kind != query.InnerJoin)

		for _, k := range j.OuterKeys {
			cr, err := c.compileKey(c.root, k)
			if err != nil {
				return err
			}
			sel.OuterKeys = append(sel.OuterKeys, cr)
		}

		sc := newScope(nil, sel.Table, paths)
		sc.addVar(j.As, -1, sel.Table)

		for _, k := range j.InnerKeys {
			cr, err := c.compileKey(sc, k)
			if err != nil {
				return err
			}
			if cr.Table != sel.Table {
				return fmt.Errorf("%w: inner key %s must be a column of %s", ErrInvalidQuery, k, j.As)
			}
			sel.InnerKeys = append(sel.InnerKeys, cr)
		}

		if j.Kind == query.GroupJoin {
			sel.Type = SelGroupJoin
			if id := c.selectOf(sel.OuterKeys[0].Table); id > 0 {
				sel.ParentID = id
			}
		}

	case query.SelectMany, query.SelectManyLeft:
		left := j.Kind == query.SelectManyLeft

		if j.Nav == "" {
			e, err := c.co.m.Entity(j.Entity)
			if err != nil {
				return invalid(err)
			}
			sel.Table = c.newTable(e, nil, nil, left)
			break
		}

		from := j.From
		if from == "" {
			from = c.qc.Selects[0].Name
		}

		_, ft, ok := c.root.lookupVar(from)
		if !ok {
			return fmt.Errorf("%w: unknown range variable: %s", ErrInvalidQuery, from)
		}

		rel, err := ft.Entity.Rel(j.Nav)
		if err != nil {
			return invalid(err)
		}

		opt := left || ft.Optional || (rel.Type == sdata.RelReference && !rel.Required())
		sel.Table = c.newTable(rel.To, rel, ft, opt)
		sel.Rel = rel

		if rel.Type == sdata.RelSkip {
			sel.Through = c.newTable(rel.Through.Entity, nil, nil, false)
		}

	default:
		return fmt.Errorf("%w: unknown join kind: %s", ErrInvalidQuery, j.Kind)
	}

	// the filter may read the range variables declared before the join
	sc := newScope(c.root, sel.Table, paths)
	sc.addVar(j.As, -1, sel.Table)
	sc.corr = &sel.Corr
	var err error

	if sel.Where, err = c.compileFilter(sc, j.Where); err != nil {
		return err
	}

	if sel.OrderBy, err = c.compileOrderBy(sc, j.OrderBy); err != nil {
		return err
	}

	if sel.Paging, err = c.compilePaging(j.Skip, j.Take, false); err != nil {
		return err
	}

	if !sel.Paging.Empty() && j.Kind != query.SelectMany && j.Kind != query.SelectManyLeft {
		return fmt.Errorf("%w: only select many joins can be paged", ErrInvalidQuery)
	}

	s := c.addSelect(sel, paths)
	c.root.addVar(j.As, s.ID, s.Table)
	return nil
}

// compileKey resolves a join key, keys are plain columns.
func (c *compilerContext) compileKey(sc *scope, e query.Exp) (ColRef, error) {
	col, ok := e.(*query.ColExp)
	if !ok {
		return ColRef{}, fmt.Errorf("%w: join keys must be columns", ErrInvalidQuery)
	}

	cr, _, err := c.resolveCol(sc, col)
	if err != nil {
		return ColRef{}, err
	}

	if cr.Col == nil {
		return ColRef{}, fmt.Errorf("%w: join key %s is not a column", ErrInvalidQuery, col)
	}
	return cr, nil
}

func (c *compilerContext) compileFilter(sc *scope, e query.Exp) (*Exp, error) {
	if e == nil {
		return nil, nil
	}

	ex, err := c.compileExp(sc, e)
	if err != nil {
		return nil, err
	}
	return c.co.rewriteNulls(ex), nil
}

func (c *compilerContext) compileOrderBy(sc *scope, list []query.Order) ([]OrderBy, error) {
	var ob []OrderBy

	for _, o := range list {
		col, ok := o.Exp.(*query.ColExp)
		if !ok {
			return nil, fmt.Errorf("%w: order by takes columns", ErrInvalidQuery)
		}

		cr, _, err := c.resolveCol(sc, col)
		if err != nil {
			return nil, err
		}

		if cr.Col == nil {
			return nil, fmt.Errorf("%w: cannot order by %s", ErrInvalidQuery, col)
		}
		ob = append(ob, OrderBy{Col: cr, Desc: o.Desc})
	}
	return ob, nil
}

// compilePaging turns skip and take into parameters for the root and into
// literals everywhere else.
func (c *compilerContext) compilePaging(skip, take *int, param bool) (Paging, error) {
	var p Paging

	for _, v := range []*int{skip, take} {
		if v != nil && *v < 0 {
			return p, fmt.Errorf("%w: skip and take cannot be negative", ErrInvalidQuery)
		}
	}

	if skip != nil {
		p.Skip = c.pagingOperand(*skip, param)
	}
	if take != nil {
		p.Take = c.pagingOperand(*take, param)
	}
	return p, nil
}

func (c *compilerContext) pagingOperand(n int, param bool) *Operand {
	if param {
		return &Operand{Type: ValParam, Param: c.newParam("p", int64(n))}
	}
	return &Operand{Type: ValNum, Val: int64(n)}
}

// compileProjection builds the main projection. It reports whether the
// root entity is projected whole, includes only apply in that case.
func (c *compilerContext) compileProjection(fields []query.Field) (bool, error) {
	if len(fields) == 0 {
		for i := range c.qc.Selects {
			sel := &c.qc.Selects[i]
			c.qc.Fields = append(c.qc.Fields, entityFields(sel.ID, sel.Table)...)
		}
		return true, nil
	}

	var rootWhole bool

	for _, f := range fields {
		col, ok := f.Exp.(*query.ColExp)
		if !ok {
			return false, fmt.Errorf("%w: only columns and entities can be selected", ErrInvalidQuery)
		}

		cr, ent, err := c.resolveCol(c.root, col)
		if err != nil {
			return false, err
		}

		if cr.Col != nil {
			name := f.As
			if name == "" {
				name = cr.Col.Name
			}
			c.qc.Fields = append(c.qc.Fields, Field{Name: name, Sel: 0, Col: cr})
			continue
		}

		id := c.selectOf(ent)
		switch {
		case id == 0:
			rootWhole = true
		case id == -1:
			// a reference navigation projected whole
			id = c.refSelect(ent)
			if f.As != "" {
				c.qc.Selects[id].Name = f.As
			}
		}

		if err := c.checkMaxSelects(); err != nil {
			return false, err
		}
		c.qc.Fields = append(c.qc.Fields, entityFields(id, ent)...)
	}

	return rootWhole, nil
}

func (c *compilerContext) compileInclude(inc *query.Include) error {
	from := inc.From
	if from == "" {
		from = c.qc.Selects[0].Name
	}

	id, _, ok := c.root.lookupVar(from)
	if !ok || id < 0 {
		return fmt.Errorf("%w: unknown range variable: %s", ErrInvalidQuery, from)
	}

	return c.compileIncludeAt(id, inc)
}

type includeItem struct {
	parent int32
	inc    *query.Include
}

func (c *compilerContext) compileIncludeAt(parent int32, inc *query.Include) error {
	st := util.NewStack()
	st.Push(includeItem{parent: parent, inc: inc})

	for st.Len() != 0 {
		it := st.Pop().(includeItem)

		id, err := c.compileIncludeNav(it.parent, it.inc)
		if err != nil {
			return err
		}

		// pushed in reverse so children compile in the order written
		for i := len(it.inc.Includes) - 1; i >= 0; i-- {
			st.Push(includeItem{parent: id, inc: &it.inc.Includes[i]})
		}
	}
	return nil
}

func (c *compilerContext) compileIncludeNav(parent int32, inc *query.Include) (int32, error) {
	path := splitPath(inc.Nav)
	if len(path) == 0 {
		return -1, fmt.Errorf("%w: include needs a navigation", ErrInvalidQuery)
	}

	id := parent
	for i, name := range path {
		last := i == len(path)-1

		var err error
		if last {
			id, err = c.includeNav(id, name, inc)
		} else {
			id, err = c.includeNav(id, name, nil)
		}
		if err != nil {
			return -1, err
		}
	}
	return id, nil
}

func (c *compilerContext) includeNav(parent int32, name string, inc *query.Include) (int32, error) {
	parent, rel, err := c.includeRel(parent, name)
	if err != nil {
		return -1, err
	}

	psel := &c.qc.Selects[parent]
	pt := psel.Table

	filtered := inc != nil && (inc.Where != nil || len(inc.OrderBy) != 0 || inc.Skip != nil || inc.Take != nil)

	if rel.Type == sdata.RelReference && filtered {
		return -1, fmt.Errorf("%w: filtered include on reference navigation %s", ErrInvalidQuery, rel)
	}

	// includes of the same unfiltered navigation are merged
	if !filtered {
		for _, cid := range psel.Children {
			cs := &c.qc.Selects[cid]
			if cs.Rel == rel && cs.Type != SelJoin && cs.Where == nil && cs.Paging.Empty() && len(cs.OrderBy) == 0 {
				return cid, nil
			}
		}
	}

	sel := Select{ParentID: parent, Name: rel.Name, Rel: rel}
	paths := &[]*Table{}

	switch rel.Type {
	case sdata.RelReference:
		sel.Type = SelReference
		sel.Table = c.findPath(c.pathsOf(parent), pt, rel)
		if sel.Table == nil {
			sel.Table = c.newTable(rel.To, rel, pt, pt.Optional || !rel.Required())
		}

	case sdata.RelCollection:
		sel.Type = SelCollection
		sel.Table = c.newTable(rel.To, rel, pt, true)

	case sdata.RelSkip:
		sel.Type = SelSkip
		sel.Table = c.newTable(rel.To, rel, pt, true)
		sel.Through = c.newTable(rel.Through.Entity, nil, nil, true)
	}

	if inc != nil && filtered {
		sc := newScope(nil, sel.Table, paths)

		if sel.Where, err = c.compileFilter(sc, inc.Where); err != nil {
			return -1, err
		}

		if sel.OrderBy, err = c.compileOrderBy(sc, inc.OrderBy); err != nil {
			return -1, err
		}

		for _, ob := range sel.OrderBy {
			if ob.Col.Table != sel.Table {
				return -1, fmt.Errorf("%w: included %s can only be ordered by its own columns", ErrInvalidQuery, rel.Name)
			}
		}

		if sel.Paging, err = c.compilePaging(inc.Skip, inc.Take, false); err != nil {
			return -1, err
		}
	}

	s := c.addSelect(sel, paths)
	if err := c.checkMaxSelects(); err != nil {
		return -1, err
	}

	if s.Type == SelSkip {
		for _, col := range s.Rel.Right {
			s.Fields = append(s.Fields, Field{
				Name:   col.Name,
				Sel:    s.ID,
				Col:    ColRef{Table: s.Through, Col: col},
				Key:    true,
				Hidden: true,
			})
		}
		for _, col := range s.Rel.Through.Cols {
			s.Fields = append(s.Fields, Field{
				Name:   col.Name,
				Sel:    s.ID,
				Col:    ColRef{Table: s.Through, Col: col},
				Key:    true,
				Hidden: true,
			})
		}
	}
	s.Fields = append(s.Fields, entityFields(s.ID, s.Table)...)

	return s.ID, nil
}

// includeRel finds the navigation name of the entity of parent. A name
// that is not a navigation but another entity includes the shortest chain
// of navigations leading to it, the select of the last but one hop becomes
// the parent.
func (c *compilerContext) includeRel(parent int32, name string) (int32, *sdata.Rel, error) {
	e := c.qc.Selects[parent].Table.Entity

	rel, err := e.Rel(name)
	if err == nil {
		return parent, rel, nil
	}

	path, perr := c.co.m.FindPath(e.Name, name)
	if perr != nil {
		return -1, nil, invalid(err)
	}

	for _, r := range path[:len(path)-1] {
		if parent, err = c.includeNav(parent, r.Name, nil); err != nil {
			return -1, nil, err
		}
	}
	return parent, path[len(path)-1], nil
}

// addKeys adds hidden key columns to the main projection for selects
// whose rows must be told apart when nesting collections.
func (c *compilerContext) addKeys() error {
	for i := range c.qc.Selects {
		sel := &c.qc.Selects[i]
		if sel.Type != SelRoot && sel.Type != SelJoin && sel.Type != SelGroupJoin {
			continue
		}

		for _, kc := range sel.Table.Entity.Key {
			found := false
			for n := range c.qc.Fields {
				f := &c.qc.Fields[n]
				if f.Sel == sel.ID && f.Col.Table == sel.Table && f.Col.Col == kc {
					f.Key = true
					found = true
				}
			}

			need := c.hasCollections(sel.ID) || (sel.Type == SelJoin && c.hasCollections(0))
			if !found && need {
				c.qc.Fields = append(c.qc.Fields, Field{
					Name:   kc.Name,
					Sel:    sel.ID,
					Col:    ColRef{Table: sel.Table, Col: kc, Nullable: sel.Table.Optional},
					Key:    true,
					Hidden: true,
				})
			}
		}
	}
	return nil
}

func (c *compilerContext) hasCollections(id int32) bool {
	for _, cid := range c.qc.Selects[id].Children {
		switch c.qc.Selects[cid].Type {
		case SelCollection, SelSkip, SelGroupJoin:
			return true
		}
	}
	if id == 0 {
		for i := range c.qc.Selects {
			if c.qc.Selects[i].Type == SelGroupJoin {
				return true
			}
		}
	}
	return false
}

func (c *compilerContext) addSelect(sel Select, paths *[]*Table) *Select {
	if paths == nil {
		paths = &[]*Table{}
	}
	sel.ID = int32(len(c.qc.Selects))
	c.qc.Selects = append(c.qc.Selects, sel)
	c.paths = append(c.paths, paths)

	if sel.ParentID != -1 {
		p := &c.qc.Selects[sel.ParentID]
		p.Children = append(p.Children, sel.ID)
	}
	return &c.qc.Selects[sel.ID]
}

func (c *compilerContext) checkMaxSelects() error {
	if len(c.qc.Selects) > c.co.c.MaxSelects {
		return fmt.Errorf("%w: too many selects, max allowed is %d", ErrInvalidQuery, c.co.c.MaxSelects)
	}
	return nil
}

func (c *compilerContext) newTable(e *sdata.Entity, rel *sdata.Rel, parent *Table, optional bool) *Table {
	t := &Table{ID: c.tableID, Entity: e, Rel: rel, Parent: parent, Optional: optional}
	c.tableID++
	return t
}

// selectOf returns the select that owns a table, -1 when the table is
// only joined for a path.
func (c *compilerContext) selectOf(t *Table) int32 {
	for i := range c.qc.Selects {
		if c.qc.Selects[i].Table == t {
			return c.qc.Selects[i].ID
		}
	}
	return -1
}

// pathsOf returns the path joins visible to a select: its own and for
// joins and references those of the select they hang from.
func (c *compilerContext) pathsOf(id int32) *[]*Table {
	sel := &c.qc.Selects[id]
	switch sel.Type {
	case SelReference:
		return c.pathsOf(sel.ParentID)
	case SelJoin, SelGroupJoin:
		return c.paths[0]
	case SelCollection, SelSkip:
		// joins inside a collection stay inside its derived table
		return nil
	}
	return c.paths[id]
}

// refSelect returns the select of a path table, adding reference selects
// for it and for any of its parents that have none.
func (c *compilerContext) refSelect(t *Table) int32 {
	if id := c.selectOf(t); id != -1 {
		return id
	}
	pid := c.refSelect(t.Parent)

	s := c.addSelect(Select{
		ParentID: pid,
		Type:     SelReference,
		Name:     t.Rel.Name,
		Table:    t,
		Rel:      t.Rel,
	}, nil)
	return s.ID
}

func (c *compilerContext) findPath(paths *[]*Table, parent *Table, rel *sdata.Rel) *Table {
	if paths == nil {
		return nil
	}
	for _, t := range *paths {
		if t.Parent == parent && t.Rel == rel {
			return t
		}
	}
	return nil
}

func (c *compilerContext) newParam(prefix string, v interface{}) *Param {
	p := &Param{
		Name:  fmt.Sprintf("__%s_%d", prefix, len(c.qc.Params)),
		Value: v,
	}
	c.qc.Params = append(c.qc.Params, p)
	return p
}

func entityFields(id int32, t *Table) []Field {
	fields := make([]Field, 0, len(t.Entity.Columns))
	for i := range t.Entity.Columns {
		col := &t.Entity.Columns[i]
		fields = append(fields, Field{
			Name: col.Name,
			Sel:  id,
			Col:  ColRef{Table: t, Col: col, Nullable: col.Nullable || t.Optional},
			Key:  col.Key,
		})
	}
	return fields
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, err)
}
