package mssql

import (
	"fmt"

	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/core/internal/util"
)

//nolint:errcheck
func (c *compilerContext) renderExp(ex *qcode.Exp) {
	st := util.NewStack()
	st.Push(ex)

	for st.Len() != 0 {
		switch val := st.Pop().(type) {
		case string:
			c.w.WriteString(val)

		case *qcode.Exp:
			switch val.Op {
			case qcode.OpAnd, qcode.OpOr:
				sep := ` AND `
				if val.Op == qcode.OpOr {
					sep = ` OR `
				}
				for i := len(val.Children) - 1; i >= 0; i-- {
					ch := val.Children[i]
					paren := (ch.Op == qcode.OpAnd || ch.Op == qcode.OpOr) && ch.Op != val.Op
					if paren {
						st.Push(`)`)
					}
					st.Push(ch)
					if paren {
						st.Push(`(`)
					}
					if i != 0 {
						st.Push(sep)
					}
				}

			case qcode.OpNot:
				st.Push(`)`)
				st.Push(val.Children[0])
				st.Push(`NOT (`)

			default:
				c.renderOp(val)
			}
		}
	}
}

// renderPred writes a predicate that follows an AND.
func (c *compilerContext) renderPred(ex *qcode.Exp) {
	if ex.Op == qcode.OpOr {
		c.w.WriteString(`(`)
		c.renderExp(ex)
		c.w.WriteString(`)`)
		return
	}
	c.renderExp(ex)
}

var binOps = map[qcode.ExpOp]string{
	qcode.OpEquals:          ` = `,
	qcode.OpNotEquals:       ` <> `,
	qcode.OpLesserThan:      ` < `,
	qcode.OpLesserOrEquals:  ` <= `,
	qcode.OpGreaterThan:     ` > `,
	qcode.OpGreaterOrEquals: ` >= `,
	qcode.OpLike:            ` LIKE `,
	qcode.OpNotLike:         ` NOT LIKE `,
	qcode.OpIn:              ` IN `,
	qcode.OpNotIn:           ` NOT IN `,
}

//nolint:errcheck
func (c *compilerContext) renderOp(ex *qcode.Exp) {
	switch ex.Op {
	case qcode.OpTrue:
		c.w.WriteString(`1 = 1`)

	case qcode.OpFalse:
		c.w.WriteString(`0 = 1`)

	case qcode.OpExists, qcode.OpNotExists:
		if ex.Op == qcode.OpNotExists {
			c.w.WriteString(`NOT `)
		}
		c.w.WriteString("EXISTS (\n")
		c.w.WriteString(indent(c.capture(func() { c.renderSub(ex.Sub, `SELECT 1`) })))
		c.w.WriteString(`)`)

	case qcode.OpIsNull:
		c.renderVal(ex.Left)
		c.w.WriteString(` IS NULL`)

	case qcode.OpIsNotNull:
		c.renderVal(ex.Left)
		c.w.WriteString(` IS NOT NULL`)

	case qcode.OpStartsWith, qcode.OpNotStartsWith, qcode.OpEndsWith, qcode.OpNotEndsWith:
		fn, op := `LEFT(`, ` = `
		if ex.Op == qcode.OpEndsWith || ex.Op == qcode.OpNotEndsWith {
			fn = `RIGHT(`
		}
		if ex.Op == qcode.OpNotStartsWith || ex.Op == qcode.OpNotEndsWith {
			op = ` <> `
		}
		c.w.WriteString(fn)
		c.renderVal(ex.Left)
		c.w.WriteString(`, LEN(`)
		c.renderVal(ex.Right)
		c.w.WriteString(`))`)
		c.w.WriteString(op)
		c.renderVal(ex.Right)

	case qcode.OpContains, qcode.OpNotContains:
		// CHARINDEX finds no empty string
		cmp, join, like := ` > 0`, ` OR `, ` LIKE N''`
		if ex.Op == qcode.OpNotContains {
			cmp, join, like = ` = 0`, ` AND `, ` NOT LIKE N''`
		}
		c.w.WriteString(`(CHARINDEX(`)
		c.renderVal(ex.Right)
		c.w.WriteString(`, `)
		c.renderVal(ex.Left)
		c.w.WriteString(`)`)
		c.w.WriteString(cmp)
		c.w.WriteString(join)
		c.renderVal(ex.Right)
		c.w.WriteString(like)
		c.w.WriteString(`)`)

	default:
		op, ok := binOps[ex.Op]
		if !ok {
			panic(fmt.Sprintf("mssql: unexpected operator %s", ex.Op))
		}
		c.renderVal(ex.Left)
		c.w.WriteString(op)
		c.renderVal(ex.Right)

		if ex.Escape {
			c.w.WriteString(` ESCAPE N'\'`)
		}
	}
}

//nolint:errcheck
func (c *compilerContext) renderVal(o qcode.Operand) {
	switch o.Type {
	case qcode.ValCol:
		c.colRef(o.Col.Table, o.Col.Col)

	case qcode.ValParam:
		c.renderParam(o.Param)

	case qcode.ValStr:
		squoted(c.w, o.Val.(string))

	case qcode.ValNum:
		fmt.Fprintf(c.w, "%v", o.Val)

	case qcode.ValBool:
		if v, _ := o.Val.(bool); v {
			c.w.WriteString(`CAST(1 AS bit)`)
		} else {
			c.w.WriteString(`CAST(0 AS bit)`)
		}

	case qcode.ValNull:
		c.w.WriteString(`NULL`)

	case qcode.ValList:
		c.w.WriteString(`(`)
		for i, v := range o.List {
			if i != 0 {
				c.w.WriteString(`, `)
			}
			c.renderVal(v)
		}
		c.w.WriteString(`)`)

	case qcode.ValCount:
		c.w.WriteString("(\n")
		c.w.WriteString(indent(c.capture(func() { c.renderSub(o.Sub, `SELECT COUNT(*)`) })))
		c.w.WriteString(`)`)
	}
}

func (c *compilerContext) renderParam(p *qcode.Param) {
	c.used[p] = struct{}{}
	c.w.WriteString(paramMarker(c.pidx[p]))
}

// renderSub writes the correlated subquery behind an EXISTS or a count.
//
//nolint:errcheck
func (c *compilerContext) renderSub(sub *qcode.Sub, head string) {
	c.w.WriteString(head)
	c.w.WriteString("\nFROM ")

	rt := sub.Table
	if sub.Through != nil {
		rt = sub.Through
		c.renderTable(sub.Through)
		c.w.WriteString("\nINNER JOIN ")
		c.renderTable(sub.Table)
		c.w.WriteString(` ON `)
		c.renderCond(sub.Through, sub.Rel.Through.Cols, sub.Table, sub.Rel.Through.Target)
	} else {
		c.renderTable(sub.Table)
	}
	c.renderPaths(sub.Paths)

	c.w.WriteString("\nWHERE ")
	c.renderCond(sub.Outer, sub.Rel.Left, rt, sub.Rel.Right)

	if sub.Where != nil {
		c.w.WriteString(` AND `)
		c.renderPred(sub.Where)
	}
}
