package mssql

import (
	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/query"
)

// compileMain renders the statement that returns the root rows together
// with every include that is not split into a statement of its own.
func (co *Compiler) compileMain(qc *qcode.QCode) Statement {
	c := co.newContext(qc)
	root := &c.s[0]

	colls := c.collections(0, false)
	split := qc.Split && len(c.collections(0, true)) > len(colls)
	pushdown := (!root.Paging.Empty() || root.Distinct) && len(colls) != 0

	c.allocRoot()
	if pushdown {
		c.reserveDerived(0, 1)
	}
	c.allocChildren(0, qc.Split)

	from := c.capture(func() {
		if pushdown {
			c.renderRootDerived(qc.Fields)
		} else {
			c.renderRootFrom()
		}
		c.renderIncludes(0, qc.Split)
	})

	cols := c.mainColumns()

	c.w.WriteString(`SELECT `)
	if !pushdown {
		c.renderSelectPrefix(root.Distinct, root.Paging)
	}
	c.renderColumns(cols)
	c.w.WriteString("\n")
	c.w.WriteString(from)

	if !pushdown && root.Where != nil {
		c.w.WriteString("\nWHERE ")
		c.renderExp(root.Where)
	}

	ob := orderCols(root.OrderBy)
	if len(colls) != 0 || split {
		ob = append(ob, c.identifiers(0)...)
	}
	for i, id := range colls {
		ob = append(ob, c.collOrdering(id)...)
		if i != len(colls)-1 {
			ob = append(ob, c.identifiers(id)...)
		}
	}
	ob = dedupe(ob)

	if pushdown {
		c.renderOrderBy(ob, qcode.Paging{})
	} else {
		c.renderOrderBy(ob, root.Paging)
	}

	c.renderBodies()
	return c.statement(0, cols)
}

// compileSplit renders the statement for the included collection id. It
// repeats the root filter and joins down from the root so its rows can be
// matched to their parents by the ancestor keys.
func (co *Compiler) compileSplit(qc *qcode.QCode, id int32) Statement {
	c := co.newContext(qc)
	root := &c.s[0]
	sel := &c.s[id]
	chain := c.ancestors(id)
	refs := c.refChain(id)
	paged := !root.Paging.Empty() || root.Distinct

	c.allocRoot()
	if paged {
		c.reserveDerived(0, 1)
	}
	for _, a := range chain[1:] {
		c.allocSelect(a)
	}
	c.allocSelect(id)
	for _, r := range refs {
		c.allocSelect(r)
	}

	var keys []qcode.Field
	for _, a := range chain {
		keys = append(keys, c.keyFields(a)...)
	}

	from := c.capture(func() {
		if paged {
			c.renderRootDerived(c.keyFields(0))
		} else {
			c.renderRootFrom()
		}
		for _, a := range chain[1:] {
			c.renderAncestor(&c.s[a])
		}
		c.renderCollection(sel, `INNER JOIN`)
		for _, r := range refs {
			c.renderReference(&c.s[r])
		}
	})

	cols := append([]qcode.Field{}, sel.Fields...)
	for _, r := range refs {
		cols = append(cols, c.s[r].Fields...)
	}
	cols = append(cols, keys...)

	c.w.WriteString(`SELECT `)
	c.renderColumns(cols)
	c.w.WriteString("\n")
	c.w.WriteString(from)

	if !paged && root.Where != nil {
		c.w.WriteString("\nWHERE ")
		c.renderExp(root.Where)
	}

	ob := orderCols(root.OrderBy)
	for _, a := range chain {
		if a != 0 {
			ob = append(ob, c.collOrdering(a)...)
		}
		ob = append(ob, fieldCols(c.keyFields(a))...)
	}
	c.renderOrderBy(dedupe(ob), qcode.Paging{})

	c.renderBodies()
	return c.statement(id, cols)
}

func (c *compilerContext) allocChildren(id int32, split bool) {
	for _, cid := range c.s[id].Children {
		t := c.s[cid].Type
		if split && (t == qcode.SelCollection || t == qcode.SelSkip) {
			continue
		}
		c.allocSelect(cid)
		c.allocChildren(cid, split)
	}
}

// mainColumns is the main projection followed by the columns of the
// includes in pre-order.
func (c *compilerContext) mainColumns() []qcode.Field {
	cols := append([]qcode.Field{}, c.qc.Fields...)

	var walk func(id int32)
	walk = func(id int32) {
		for _, cid := range c.s[id].Children {
			sel := &c.s[cid]
			switch sel.Type {
			case qcode.SelCollection, qcode.SelSkip:
				if c.qc.Split {
					continue
				}
				cols = append(cols, sel.Fields...)
			case qcode.SelReference:
				cols = append(cols, sel.Fields...)
			}
			walk(cid)
		}
	}
	walk(0)
	return cols
}

//nolint:errcheck
func (c *compilerContext) renderColumns(cols []qcode.Field) {
	for i, f := range cols {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.colRef(f.Col.Table, f.Col.Col)
		if f.Name != f.Col.Col.Name {
			alias(c.w, f.Name)
		}
	}
}

// colRef writes a column of t, through the derived table wrapping t if
// there is one, and returns the name the column is read by.
func (c *compilerContext) colRef(t *qcode.Table, col *sdata.Column) string {
	if d, ok := c.wrap[t]; ok && d != nil {
		name := d.expose(t, col)
		colWithTable(c.w, d.alias, name)
		return name
	}
	colWithTable(c.w, c.aliases[t], col.Name)
	return col.Name
}

func (c *compilerContext) renderTable(t *qcode.Table) {
	e := t.Entity
	if e.Schema != "" && e.Schema != c.defaultSchema {
		quoted(c.w, e.Schema)
		c.w.WriteString(`.`)
	}
	quoted(c.w, e.Table)
	alias(c.w, c.aliases[t])
}

// renderCond writes the equality of two column lists.
func (c *compilerContext) renderCond(lt *qcode.Table, lcols []*sdata.Column,
	rt *qcode.Table, rcols []*sdata.Column) {
	for i := range lcols {
		if i != 0 {
			c.w.WriteString(` AND `)
		}
		c.colRef(lt, lcols[i])
		c.w.WriteString(` = `)
		c.colRef(rt, rcols[i])
	}
}

//nolint:errcheck
func (c *compilerContext) renderSelectPrefix(distinct bool, p qcode.Paging) {
	if distinct {
		c.w.WriteString(`DISTINCT `)
	}
	if p.Take != nil && p.Skip == nil {
		c.w.WriteString(`TOP(`)
		c.renderVal(*p.Take)
		c.w.WriteString(`) `)
	}
}

//nolint:errcheck
func (c *compilerContext) renderOrderBy(list []orderCol, p qcode.Paging) {
	if len(list) == 0 && p.Skip == nil {
		return
	}

	c.w.WriteString("\nORDER BY ")
	if len(list) == 0 {
		c.w.WriteString(`(SELECT 1)`)
	}
	for i, o := range list {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.colRef(o.col.Table, o.col.Col)
		if o.desc {
			c.w.WriteString(` DESC`)
		}
	}

	if p.Skip == nil {
		return
	}
	c.w.WriteString(` OFFSET `)
	c.renderVal(*p.Skip)
	c.w.WriteString(` ROWS`)

	if p.Take != nil {
		c.w.WriteString(` FETCH NEXT `)
		c.renderVal(*p.Take)
		c.w.WriteString(` ROWS ONLY`)
	}
}

// renderRootFrom writes the root table, its explicit joins and the
// reference joins based on each of them.
func (c *compilerContext) renderRootFrom() {
	root := &c.s[0]

	c.w.WriteString(`FROM `)
	c.renderTable(root.Table)
	c.renderPathsFrom(root.Paths, root.Table)

	for _, cid := range root.Children {
		sel := &c.s[cid]
		if sel.Type != qcode.SelJoin {
			continue
		}
		c.renderJoin(sel)
		c.renderPathsFrom(root.Paths, sel.Table)
	}
}

// rootTables are the tables joined by renderRootFrom.
func (c *compilerContext) rootTables() []*qcode.Table {
	root := &c.s[0]
	tables := []*qcode.Table{root.Table}
	tables = append(tables, root.Paths...)

	for _, cid := range root.Children {
		if sel := &c.s[cid]; sel.Type == qcode.SelJoin {
			tables = append(tables, c.selTables(sel)...)
		}
	}
	return tables
}

// renderRootDerived moves the root, its filter and its paging into a
// derived table so that the joined collections do not multiply the rows
// the paging counts.
func (c *compilerContext) renderRootDerived(fields []qcode.Field) {
	root := &c.s[0]
	tables := c.rootTables()

	d := c.newDerived(c.takeDerived(0), tables)
	for _, f := range fields {
		if d.covers(f.Col.Table) {
			d.expose(f.Col.Table, f.Col.Col)
		}
	}
	for _, t := range tables {
		c.joined[t] = struct{}{}
	}

	d.body = func() {
		// the tables are joined inside the body, not next to it
		for _, t := range tables {
			delete(c.joined, t)
		}
		from := c.capture(c.renderRootFrom)

		c.w.WriteString(`SELECT `)
		c.renderSelectPrefix(root.Distinct, root.Paging)
		c.renderDerivedCols(d)
		c.w.WriteString("\n")
		c.w.WriteString(from)

		if root.Where != nil {
			c.w.WriteString("\nWHERE ")
			c.renderExp(root.Where)
		}
		c.renderOrderBy(orderCols(root.OrderBy), root.Paging)
	}

	c.setWrap(d)
	c.w.WriteString("FROM (\n")
	c.w.WriteString(d.marker())
	c.w.WriteString("\n)")
	alias(c.w, d.alias)
}

func (d *derived) covers(t *qcode.Table) bool {
	for _, t1 := range d.tables {
		if t1 == t {
			return true
		}
	}
	return false
}

// renderPathsFrom writes the reference joins of paths whose chain starts
// at base.
func (c *compilerContext) renderPathsFrom(paths []*qcode.Table, base *qcode.Table) {
	in := make(map[*qcode.Table]struct{}, len(paths))
	for _, t := range paths {
		in[t] = struct{}{}
	}

	for _, t := range paths {
		b := t
		for {
			if _, ok := in[b]; !ok {
				break
			}
			b = b.Parent
		}
		if b == base {
			c.renderPathJoin(t)
		}
	}
}

func (c *compilerContext) renderPaths(paths []*qcode.Table) {
	for _, t := range paths {
		c.renderPathJoin(t)
	}
}

// renderPathJoin joins a reference table to its parent, inner when the
// reference always exists.
func (c *compilerContext) renderPathJoin(t *qcode.Table) {
	if _, ok := c.joined[t]; ok {
		return
	}
	c.joined[t] = struct{}{}

	if t.Optional {
		c.w.WriteString("\nLEFT JOIN ")
	} else {
		c.w.WriteString("\nINNER JOIN ")
	}
	c.renderTable(t)
	c.w.WriteString(` ON `)
	c.renderCond(t.Parent, t.Rel.Left, t, t.Rel.Right)
}

// renderIncludes writes the joins of the selects under id in pre-order.
func (c *compilerContext) renderIncludes(id int32, split bool) {
	for _, cid := range c.s[id].Children {
		sel := &c.s[cid]

		switch sel.Type {
		case qcode.SelCollection, qcode.SelSkip:
			if split {
				continue
			}
			c.renderCollection(sel, `LEFT JOIN`)
		case qcode.SelGroupJoin:
			c.renderJoin(sel)
		case qcode.SelReference:
			c.renderReference(sel)
		}
		c.renderIncludes(cid, split)
	}
}

func (c *compilerContext) renderReference(sel *qcode.Select) {
	c.renderPathJoin(sel.Table)
}

func (c *compilerContext) renderAncestor(sel *qcode.Select) {
	switch sel.Type {
	case qcode.SelReference:
		c.renderReference(sel)
	case qcode.SelCollection, qcode.SelSkip:
		c.renderCollection(sel, `INNER JOIN`)
	}
}

// selTables are the tables rendered inside the derived tables of sel.
func (c *compilerContext) selTables(sel *qcode.Select) []*qcode.Table {
	var tables []*qcode.Table
	if sel.Through != nil {
		tables = append(tables, sel.Through)
	}
	tables = append(tables, sel.Table)
	return append(tables, sel.Paths...)
}

// renderCollection joins an included collection to its parent. A filter
// moves it into a derived table, paging numbers its rows per parent in a
// second one.
func (c *compilerContext) renderCollection(sel *qcode.Select, kind string) {
	p := sel.Table.Parent
	rt := sel.Table
	if sel.Through != nil {
		rt = sel.Through
	}

	switch {
	case sel.Type == qcode.SelCollection && sel.Paging.Empty() && sel.Where == nil:
		c.w.WriteString("\n")
		c.w.WriteString(kind)
		c.w.WriteString(` `)
		c.renderTable(sel.Table)
		c.joined[sel.Table] = struct{}{}

	case sel.Paging.Empty():
		d := c.newDerived(c.takeDerived(sel.ID), c.selTables(sel))
		d.exposeFields(sel.Fields)
		d.body = func() { c.renderSelBody(d, sel, bodyOpts{}) }
		c.writeDerived(kind, d)

	default:
		ia, oa := c.takeDerived(sel.ID), c.takeDerived(sel.ID)
		tables := c.selTables(sel)

		outer := c.newDerived(oa, tables)
		inner := c.newDerived(ia, tables)
		inner.reserve("row")
		outer.inner = inner
		outer.exposeFields(sel.Fields)

		outer.body = func() { c.renderRowFilter(outer, inner, sel.Paging) }
		inner.body = func() { c.renderSelBody(inner, sel, bodyOpts{rowNumber: true}) }
		c.writeDerived(kind, outer)
	}

	c.w.WriteString(` ON `)
	c.renderCond(p, sel.Rel.Left, rt, sel.Rel.Right)
}

// renderRowFilter keeps the numbered rows of inner that fall in the page.
//
//nolint:errcheck
func (c *compilerContext) renderRowFilter(outer, inner *derived, p qcode.Paging) {
	c.w.WriteString(`SELECT `)
	c.renderDerivedCols(outer)
	c.w.WriteString("\nFROM (\n")
	c.w.WriteString(inner.marker())
	c.w.WriteString("\n)")
	alias(c.w, inner.alias)
	c.w.WriteString("\nWHERE ")

	var skip int64
	if p.Skip != nil {
		skip, _ = p.Skip.Val.(int64)
	}

	// rows are numbered from 1, a zero skip needs no lower bound
	lower := p.Skip != nil && (skip > 0 || p.Take == nil)
	if lower {
		int64String(c.w, skip)
		c.w.WriteString(` < `)
		colWithTable(c.w, inner.alias, "row")
	}
	if p.Take != nil {
		take, _ := p.Take.Val.(int64)
		if lower {
			c.w.WriteString(` AND `)
		}
		colWithTable(c.w, inner.alias, "row")
		c.w.WriteString(` <= `)
		int64String(c.w, skip+take)
	}
}

type bodyOpts struct {
	// corr correlates the rows with the parent table, for APPLY.
	corr bool
	// paged writes the paging of the select.
	paged bool
	// rowNumber numbers the rows per parent.
	rowNumber bool
}

// renderSelBody writes the select behind a derived table of sel.
//
//nolint:errcheck
func (c *compilerContext) renderSelBody(d *derived, sel *qcode.Select, o bodyOpts) {
	from := c.capture(func() { c.renderSelFrom(sel) })

	c.w.WriteString(`SELECT `)
	if o.paged {
		c.renderSelectPrefix(false, sel.Paging)
	}
	c.renderDerivedCols(d)

	if o.rowNumber {
		c.w.WriteString(`, ROW_NUMBER() OVER(PARTITION BY `)
		c.renderColList(c.partitionCols(sel))
		c.w.WriteString(` ORDER BY `)
		ob := orderCols(sel.OrderBy)
		if len(ob) == 0 {
			ob = keyCols(sel.Table, sel.Table.Entity.Key)
		}
		c.renderColList(ob)
		c.w.WriteString(`) AS [row]`)
	}

	c.w.WriteString("\n")
	c.w.WriteString(from)

	cond := o.corr && (sel.Rel != nil || len(sel.OuterKeys) != 0)

	if cond || sel.Where != nil {
		c.w.WriteString("\nWHERE ")
	}
	if cond {
		c.renderJoinCond(sel)
		if sel.Where != nil {
			c.w.WriteString(` AND `)
			c.renderPred(sel.Where)
		}
	} else if sel.Where != nil {
		c.renderExp(sel.Where)
	}

	if o.paged {
		c.renderOrderBy(orderCols(sel.OrderBy), sel.Paging)
	}
}

func (c *compilerContext) renderColList(list []orderCol) {
	for i, o := range list {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		c.colRef(o.col.Table, o.col.Col)
		if o.desc {
			c.w.WriteString(` DESC`)
		}
	}
}

// renderSelFrom writes the FROM clause of a derived table of sel, going
// through the join entity for skip navigations.
func (c *compilerContext) renderSelFrom(sel *qcode.Select) {
	c.w.WriteString(`FROM `)

	if sel.Through != nil {
		c.renderTable(sel.Through)
		c.w.WriteString("\nINNER JOIN ")
		c.renderTable(sel.Table)
		c.w.WriteString(` ON `)
		c.renderCond(sel.Through, sel.Rel.Through.Cols, sel.Table, sel.Rel.Through.Target)
	} else {
		c.renderTable(sel.Table)
	}
	c.renderPaths(sel.Paths)
}

// renderJoin writes an explicit join or group join. A join whose filter
// reads earlier range variables is applied to each outer row.
//
//nolint:errcheck
func (c *compilerContext) renderJoin(sel *qcode.Select) {
	paged := !sel.Paging.Empty()
	left := sel.Join == query.LeftJoin ||
		sel.Join == query.GroupJoin ||
		sel.Join == query.SelectManyLeft

	apply := `CROSS APPLY`
	if left {
		apply = `OUTER APPLY`
	}

	switch {
	case sel.Rel == nil && len(sel.OuterKeys) != 0 && sel.Corr:
		c.renderApply(apply, sel, bodyOpts{corr: true})

	case sel.Rel == nil && len(sel.OuterKeys) != 0:
		kind := `INNER JOIN`
		if left {
			kind = `LEFT JOIN`
		}

		if sel.Where == nil {
			c.w.WriteString("\n")
			c.w.WriteString(kind)
			c.w.WriteString(` `)
			c.renderTable(sel.Table)
			c.joined[sel.Table] = struct{}{}
		} else {
			d := c.newDerived(c.takeDerived(sel.ID), c.selTables(sel))
			d.exposeTable(sel.Table)
			d.body = func() { c.renderSelBody(d, sel, bodyOpts{}) }
			c.writeDerived(kind, d)
		}

		c.w.WriteString(` ON `)
		c.renderJoinCond(sel)

	case sel.Rel == nil:
		if !left && !paged && sel.Where == nil {
			c.w.WriteString("\nCROSS JOIN ")
			c.renderTable(sel.Table)
			c.joined[sel.Table] = struct{}{}
			return
		}

		kind := `CROSS JOIN`
		if left || paged || sel.Corr {
			kind = apply
		}
		c.renderApply(kind, sel, bodyOpts{corr: sel.Corr, paged: paged})

	case paged || sel.Corr:
		c.renderApply(apply, sel, bodyOpts{corr: true, paged: paged})

	default:
		kind := `INNER JOIN`
		if sel.Table.Optional {
			kind = `LEFT JOIN`
		}

		if sel.Where == nil && sel.Through == nil {
			c.w.WriteString("\n")
			c.w.WriteString(kind)
			c.w.WriteString(` `)
			c.renderTable(sel.Table)
			c.joined[sel.Table] = struct{}{}
		} else {
			d := c.newDerived(c.takeDerived(sel.ID), c.selTables(sel))
			d.exposeTable(sel.Table)
			d.body = func() { c.renderSelBody(d, sel, bodyOpts{}) }
			c.writeDerived(kind, d)
		}

		c.w.WriteString(` ON `)
		c.renderJoinCond(sel)
	}
}

// renderApply writes a join as a derived table joined with kind.
func (c *compilerContext) renderApply(kind string, sel *qcode.Select, o bodyOpts) {
	d := c.newDerived(c.takeDerived(sel.ID), c.selTables(sel))
	d.exposeTable(sel.Table)
	d.body = func() { c.renderSelBody(d, sel, o) }
	c.writeDerived(kind, d)
}

// renderJoinCond writes the condition matching the rows of a join to the
// outer rows: its key pairs or its navigation.
func (c *compilerContext) renderJoinCond(sel *qcode.Select) {
	if sel.Rel == nil {
		for i := range sel.OuterKeys {
			if i != 0 {
				c.w.WriteString(` AND `)
			}
			ok, ik := sel.OuterKeys[i], sel.InnerKeys[i]
			c.colRef(ok.Table, ok.Col)
			c.w.WriteString(` = `)
			c.colRef(ik.Table, ik.Col)
		}
		return
	}

	rt := sel.Table
	if sel.Through != nil {
		rt = sel.Through
	}
	c.renderCond(sel.Table.Parent, sel.Rel.Left, rt, sel.Rel.Right)
}
