package mssql

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/core/internal/sdata"
)

type dkey struct {
	t   *qcode.Table
	col *sdata.Column
}

type dcol struct {
	dkey
	name string
}

// derived is a table expression in a FROM clause. Columns read from the
// tables inside it are exposed on first use, so its select list is only
// written once the enclosing statement is done.
type derived struct {
	id     int
	alias  string
	tables []*qcode.Table
	inner  *derived
	cols   []dcol
	names  map[string]struct{}
	byCol  map[dkey]string
	body   func()
	text   string
}

func (c *compilerContext) newDerived(alias string, tables []*qcode.Table) *derived {
	d := &derived{
		id:     len(c.dt),
		alias:  alias,
		tables: tables,
		names:  make(map[string]struct{}),
		byCol:  make(map[dkey]string),
	}
	c.dt = append(c.dt, d)
	return d
}

// expose returns the name a column has in the derived table, adding it
// to the select list when needed. Clashing names get a numeric suffix.
func (d *derived) expose(t *qcode.Table, col *sdata.Column) string {
	k := dkey{t, col}
	if name, ok := d.byCol[k]; ok {
		return name
	}

	name := col.Name
	if _, ok := d.names[name]; ok {
		for i := 0; ; i++ {
			n := col.Name + strconv.Itoa(i)
			if _, ok := d.names[n]; !ok {
				name = n
				break
			}
		}
	}

	d.reserve(name)
	d.byCol[k] = name
	d.cols = append(d.cols, dcol{dkey: k, name: name})
	return name
}

func (d *derived) reserve(name string) {
	d.names[name] = struct{}{}
}

func (d *derived) exposeFields(fields []qcode.Field) {
	for _, f := range fields {
		d.expose(f.Col.Table, f.Col.Col)
	}
}

func (d *derived) exposeTable(t *qcode.Table) {
	for i := range t.Entity.Columns {
		d.expose(t, &t.Entity.Columns[i])
	}
}

func (d *derived) marker() string {
	return "\x00" + strconv.Itoa(d.id) + "\x00"
}

func (c *compilerContext) setWrap(d *derived) {
	for _, t := range d.tables {
		c.wrap[t] = d
	}
}

// writeDerived writes a derived table placeholder joined with kind.
func (c *compilerContext) writeDerived(kind string, d *derived) {
	c.setWrap(d)

	c.w.WriteString("\n")
	c.w.WriteString(kind)
	c.w.WriteString(" (\n")
	c.w.WriteString(d.marker())
	c.w.WriteString("\n)")
	alias(c.w, d.alias)
}

func (c *compilerContext) renderDerivedCols(d *derived) {
	for i, dc := range d.cols {
		if i != 0 {
			c.w.WriteString(`, `)
		}
		if name := c.colRef(dc.t, dc.col); name != dc.name {
			alias(c.w, dc.name)
		}
	}
}

// renderBodies renders the derived tables in the order they were added.
// Inside a derived table its own tables are read directly, or through
// the table it wraps.
func (c *compilerContext) renderBodies() {
	for i := 0; i < len(c.dt); i++ {
		d := c.dt[i]

		saved := make(map[*qcode.Table]*derived, len(d.tables))
		for _, t := range d.tables {
			saved[t] = c.wrap[t]
			if d.inner != nil {
				c.wrap[t] = d.inner
			} else {
				delete(c.wrap, t)
			}
		}

		d.text = c.capture(d.body)

		for t, w := range saved {
			if w != nil {
				c.wrap[t] = w
			} else {
				delete(c.wrap, t)
			}
		}
	}
}

// expand replaces the derived table placeholders in s with their
// indented bodies.
func (c *compilerContext) expand(s string) string {
	for _, d := range c.dt {
		m := d.marker()
		if strings.Contains(s, m) {
			s = strings.Replace(s, m, indent(c.expand(d.text)), 1)
		}
	}
	return s
}

func (c *compilerContext) capture(fn func()) string {
	w := c.w
	c.w = &bytes.Buffer{}
	fn()
	s := c.w.String()
	c.w = w
	return s
}
