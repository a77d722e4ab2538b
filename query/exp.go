package query

import (
	"fmt"
	"strings"
)

// Exp is a predicate or value expression.
type Exp interface {
	isExp()
}

type Op int8

const (
	OpNop Op = iota
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpContains
	OpStartsWith
	OpEndsWith
)

var opNames = map[Op]string{
	OpEq:         "=",
	OpNe:         "<>",
	OpLt:         "<",
	OpLe:         "<=",
	OpGt:         ">",
	OpGe:         ">=",
	OpLike:       "like",
	OpContains:   "contains",
	OpStartsWith: "starts_with",
	OpEndsWith:   "ends_with",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "nop"
}

type NavOp int8

const (
	NavHas NavOp = iota
	NavAny
	NavAll
	NavCount
)

func (o NavOp) String() string {
	switch o {
	case NavAny:
		return "any"
	case NavAll:
		return "all"
	case NavCount:
		return "count"
	}
	return "has"
}

// ColExp references a column. Var names the range variable, an empty Var
// means the innermost scope. Path may walk reference navigations before
// the column, and may end on a navigation when projecting an entity.
type ColExp struct {
	Var  string
	Path []string
}

type ValExp struct {
	Value interface{}
}

// VarExp is a named value sent to the server as a parameter.
type VarExp struct {
	Name  string
	Value interface{}
}

type BinExp struct {
	Op    Op
	Left  Exp
	Right Exp
}

type InExp struct {
	Left   Exp
	Values []Exp
}

type AndExp struct {
	Args []Exp
}

type OrExp struct {
	Args []Exp
}

type NotExp struct {
	Exp Exp
}

// NavExp filters through the navigation Nav. On a collection or skip
// navigation Has and Any test for a matching row, All for no row failing
// Pred and Count counts the matching rows. On a reference navigation Has
// applies Pred to the referenced row.
type NavExp struct {
	Op   NavOp
	Var  string
	Nav  string
	Pred Exp
}

func (*ColExp) isExp() {}
func (*ValExp) isExp() {}
func (*VarExp) isExp() {}
func (*BinExp) isExp() {}
func (*InExp) isExp()  {}
func (*AndExp) isExp() {}
func (*OrExp) isExp()  {}
func (*NotExp) isExp() {}
func (*NavExp) isExp() {}

// Col references a column by a dotted path such as
// "OneToOne_Required_FK1.Name" or "l2.Name".
func Col(path string) *ColExp {
	return &ColExp{Path: strings.Split(path, ".")}
}

func ColOf(v, path string) *ColExp {
	c := &ColExp{Var: v}
	if path != "" {
		c.Path = strings.Split(path, ".")
	}
	return c
}

// Entity references every column of a range variable.
func Entity(v string) *ColExp {
	return &ColExp{Var: v}
}

func Val(v interface{}) *ValExp { return &ValExp{Value: v} }
func Str(v string) *ValExp      { return &ValExp{Value: v} }
func Int(v int64) *ValExp       { return &ValExp{Value: v} }
func Bool(v bool) *ValExp       { return &ValExp{Value: v} }
func Null() *ValExp             { return &ValExp{} }

func Var(name string, value interface{}) *VarExp {
	return &VarExp{Name: name, Value: value}
}

func Eq(l, r Exp) *BinExp { return &BinExp{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Exp) *BinExp { return &BinExp{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Exp) *BinExp { return &BinExp{Op: OpLt, Left: l, Right: r} }
func Le(l, r Exp) *BinExp { return &BinExp{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Exp) *BinExp { return &BinExp{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Exp) *BinExp { return &BinExp{Op: OpGe, Left: l, Right: r} }

func Like(l, r Exp) *BinExp       { return &BinExp{Op: OpLike, Left: l, Right: r} }
func Contains(l, r Exp) *BinExp   { return &BinExp{Op: OpContains, Left: l, Right: r} }
func StartsWith(l, r Exp) *BinExp { return &BinExp{Op: OpStartsWith, Left: l, Right: r} }
func EndsWith(l, r Exp) *BinExp   { return &BinExp{Op: OpEndsWith, Left: l, Right: r} }

func IsNull(e Exp) *BinExp    { return Eq(e, Null()) }
func IsNotNull(e Exp) *BinExp { return Ne(e, Null()) }

func In(l Exp, values ...Exp) *InExp {
	return &InExp{Left: l, Values: values}
}

func And(args ...Exp) *AndExp { return &AndExp{Args: args} }
func Or(args ...Exp) *OrExp   { return &OrExp{Args: args} }
func Not(e Exp) *NotExp       { return &NotExp{Exp: e} }

// Has applies pred through a navigation. The navigation may be prefixed
// with a range variable ("l1.OneToMany_Optional1").
func Has(nav string, pred Exp) *NavExp {
	return newNavExp(NavHas, nav, pred)
}

func Any(nav string, pred Exp) *NavExp {
	return newNavExp(NavAny, nav, pred)
}

func All(nav string, pred Exp) *NavExp {
	return newNavExp(NavAll, nav, pred)
}

func Count(nav string, pred Exp) *NavExp {
	return newNavExp(NavCount, nav, pred)
}

func newNavExp(op NavOp, nav string, pred Exp) *NavExp {
	ne := &NavExp{Op: op, Nav: nav, Pred: pred}
	if i := strings.IndexByte(nav, '.'); i != -1 {
		ne.Var, ne.Nav = nav[:i], nav[i+1:]
	}
	return ne
}

func (c *ColExp) String() string {
	p := strings.Join(c.Path, ".")
	if c.Var == "" {
		return p
	}
	if p == "" {
		return c.Var
	}
	return c.Var + "." + p
}

func (v *ValExp) String() string {
	return fmt.Sprintf("%v", v.Value)
}
