package qcode

import (
	"fmt"
	"strings"

	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/query"
)

type ExpOp int8

const (
	OpNop ExpOp = iota
	OpAnd
	OpOr
	OpNot
	OpEquals
	OpNotEquals
	OpLesserThan
	OpLesserOrEquals
	OpGreaterThan
	OpGreaterOrEquals
	OpLike
	OpNotLike
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
	OpExists
	OpNotExists
	OpTrue
	OpFalse
	// pattern tests against a column, rendered without LIKE
	OpStartsWith
	OpNotStartsWith
	OpEndsWith
	OpNotEndsWith
	OpContains
	OpNotContains
)

type ValType int8

const (
	ValNone ValType = iota
	ValCol
	ValStr
	ValNum
	ValBool
	ValNull
	ValParam
	ValList
	ValCount
)

type Exp struct {
	Op       ExpOp
	Left     Operand
	Right    Operand
	Children []*Exp
	// Sub is the correlated subquery of OpExists and OpNotExists
	Sub *Sub
	// Escape marks a LIKE pattern whose wildcards were escaped with '\'
	Escape bool
}

type Operand struct {
	Type  ValType
	Col   *ColRef
	Val   interface{}
	Param *Param
	List  []Operand
	Sub   *Sub
}

// Sub is a correlated subquery over a collection or skip navigation of
// Outer.
type Sub struct {
	Rel     *sdata.Rel
	Outer   *Table
	Table   *Table
	Through *Table
	Paths   []*Table
	Where   *Exp
}

func (e *Exp) String() string {
	var sb strings.Builder
	e.write(&sb)
	return sb.String()
}

func (e *Exp) write(sb *strings.Builder) {
	switch e.Op {
	case OpAnd, OpOr, OpNot:
		sb.WriteString(e.Op.String())
		sb.WriteByte('(')
		for i, c := range e.Children {
			if i != 0 {
				sb.WriteString(", ")
			}
			c.write(sb)
		}
		sb.WriteByte(')')
	case OpTrue, OpFalse, OpExists, OpNotExists:
		sb.WriteString(e.Op.String())
		if e.Sub != nil {
			fmt.Fprintf(sb, "(%s)", e.Sub.Rel.Name)
		}
	case OpIsNull, OpIsNotNull:
		fmt.Fprintf(sb, "%s(%s)", e.Op, e.Left)
	default:
		fmt.Fprintf(sb, "%s(%s, %s)", e.Op, e.Left, e.Right)
	}
}

func (op ExpOp) String() string {
	switch op {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	case OpEquals:
		return "eq"
	case OpNotEquals:
		return "ne"
	case OpLesserThan:
		return "lt"
	case OpLesserOrEquals:
		return "le"
	case OpGreaterThan:
		return "gt"
	case OpGreaterOrEquals:
		return "ge"
	case OpLike:
		return "like"
	case OpNotLike:
		return "not_like"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	case OpIsNull:
		return "is_null"
	case OpIsNotNull:
		return "is_not_null"
	case OpExists:
		return "exists"
	case OpNotExists:
		return "not_exists"
	case OpTrue:
		return "true"
	case OpFalse:
		return "false"
	case OpStartsWith:
		return "starts_with"
	case OpNotStartsWith:
		return "not_starts_with"
	case OpEndsWith:
		return "ends_with"
	case OpNotEndsWith:
		return "not_ends_with"
	case OpContains:
		return "contains"
	case OpNotContains:
		return "not_contains"
	}
	return "nop"
}

func (o Operand) String() string {
	switch o.Type {
	case ValCol:
		return fmt.Sprintf("%s.%s", o.Col.Table.Entity.Name, o.Col.Col.Name)
	case ValNull:
		return "null"
	case ValParam:
		return "@" + o.Param.Name
	case ValCount:
		return "count(" + o.Sub.Rel.Name + ")"
	case ValList:
		s := make([]string, 0, len(o.List))
		for _, v := range o.List {
			s = append(s, v.String())
		}
		return "[" + strings.Join(s, ", ") + "]"
	}
	return fmt.Sprintf("%v", o.Val)
}

// Nullable reports whether the operand can evaluate to NULL.
func (o Operand) Nullable() bool {
	switch o.Type {
	case ValCol:
		return o.Col.Nullable
	case ValNull:
		return true
	}
	return false
}

type scopeVar struct {
	sel int32
	t   *Table
}

// scope resolves range variables and collects the reference joins needed
// by the expressions compiled in it.
type scope struct {
	vars   map[string]scopeVar
	def    *Table
	paths  *[]*Table
	parent *scope
	// corr is set when a variable is found above this scope
	corr *bool
}

func newScope(parent *scope, def *Table, paths *[]*Table) *scope {
	return &scope{
		vars:   make(map[string]scopeVar),
		def:    def,
		paths:  paths,
		parent: parent,
	}
}

func (sc *scope) addVar(name string, sel int32, t *Table) {
	sc.vars[name] = scopeVar{sel: sel, t: t}
}

func (sc *scope) lookupVar(name string) (int32, *Table, bool) {
	var corr *bool
	for s := sc; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			if corr != nil {
				*corr = true
			}
			return v.sel, v.t, true
		}
		if s.corr != nil {
			corr = s.corr
		}
	}
	return -1, nil, false
}

// owner returns the scope whose FROM clause holds t.
func (sc *scope) owner(t *Table) *scope {
	for s := sc; s != nil; s = s.parent {
		if s.def == t {
			return s
		}
		for _, v := range s.vars {
			if v.t == t {
				return s
			}
		}
		for _, p := range *s.paths {
			if p == t {
				return s
			}
		}
	}
	return sc
}

// pathTable returns the reference join of rel from t, adding it to the
// scope that owns t when it does not exist yet.
func (c *compilerContext) pathTable(sc *scope, t *Table, rel *sdata.Rel) *Table {
	s := sc.owner(t)

	if pt := c.findPath(s.paths, t, rel); pt != nil {
		return pt
	}

	pt := c.newTable(rel.To, rel, t, t.Optional || !rel.Required())
	*s.paths = append(*s.paths, pt)
	return pt
}

// resolveCol resolves a column path. When the path ends on an entity
// (a range variable or a reference navigation) the column is empty and the
// entity table is returned.
func (c *compilerContext) resolveCol(sc *scope, col *query.ColExp) (ColRef, *Table, error) {
	t, path, err := c.resolveBase(sc, col.Var, col.Path)
	if err != nil {
		return ColRef{}, nil, err
	}

	if len(path) == 0 {
		return ColRef{}, t, nil
	}

	for _, name := range path[:len(path)-1] {
		rel, err := t.Entity.Rel(name)
		if err != nil {
			return ColRef{}, nil, invalid(err)
		}
		if rel.Type != sdata.RelReference {
			return ColRef{}, nil, fmt.Errorf("%w: collection navigation %s cannot be used in a column path",
				ErrInvalidQuery, rel.Name)
		}
		t = c.pathTable(sc, t, rel)
	}

	last := path[len(path)-1]

	if cl, err := t.Entity.Column(last); err == nil {
		return ColRef{Table: t, Col: cl, Nullable: cl.Nullable || t.Optional}, nil, nil
	}

	rel, err := t.Entity.Rel(last)
	if err != nil {
		return ColRef{}, nil, fmt.Errorf("%w: column not found: %s.%s", ErrInvalidQuery, t.Entity.Name, last)
	}

	if rel.Type != sdata.RelReference {
		return ColRef{}, nil, fmt.Errorf("%w: collection navigation %s is not a column",
			ErrInvalidQuery, rel.Name)
	}
	return ColRef{}, c.pathTable(sc, t, rel), nil
}

// resolveBase picks the table a path starts from. An explicit variable
// wins, otherwise a leading segment naming a range variable that is not a
// member of the default entity selects that variable.
func (c *compilerContext) resolveBase(sc *scope, v string, path []string) (*Table, []string, error) {
	if v != "" {
		_, t, ok := sc.lookupVar(v)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown range variable: %s", ErrInvalidQuery, v)
		}
		return t, path, nil
	}

	if len(path) != 0 && !isMember(sc.def.Entity, path[0]) {
		if _, t, ok := sc.lookupVar(path[0]); ok {
			return t, path[1:], nil
		}
	}
	return sc.def, path, nil
}

func isMember(e *sdata.Entity, name string) bool {
	if _, err := e.Column(name); err == nil {
		return true
	}
	if _, err := e.Rel(name); err == nil {
		return true
	}
	return false
}

func (c *compilerContext) compileExp(sc *scope, e query.Exp) (*Exp, error) {
	switch v := e.(type) {
	case *query.AndExp:
		return c.compileList(sc, OpAnd, v.Args)

	case *query.OrExp:
		return c.compileList(sc, OpOr, v.Args)

	case *query.NotExp:
		ex, err := c.compileExp(sc, v.Exp)
		if err != nil {
			return nil, err
		}
		return &Exp{Op: OpNot, Children: []*Exp{ex}}, nil

	case *query.BinExp:
		return c.compileBin(sc, v)

	case *query.InExp:
		return c.compileIn(sc, v)

	case *query.NavExp:
		return c.compileNav(sc, v)

	case *query.ColExp:
		// a boolean column used as a predicate
		left, err := c.compileOperand(sc, v)
		if err != nil {
			return nil, err
		}
		if left.Type != ValCol || left.Col.Col.Type != "bit" {
			return nil, fmt.Errorf("%w: %s is not a boolean column", ErrInvalidQuery, v)
		}
		return &Exp{Op: OpEquals, Left: left, Right: Operand{Type: ValBool, Val: true}}, nil

	case *query.ValExp:
		if b, ok := v.Value.(bool); ok {
			if b {
				return &Exp{Op: OpTrue}, nil
			}
			return &Exp{Op: OpFalse}, nil
		}
	}

	return nil, fmt.Errorf("%w: unsupported predicate %T", ErrInvalidQuery, e)
}

func (c *compilerContext) compileList(sc *scope, op ExpOp, args []query.Exp) (*Exp, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidQuery, op)
	}

	ex := &Exp{Op: op, Children: make([]*Exp, 0, len(args))}
	for _, a := range args {
		ce, err := c.compileExp(sc, a)
		if err != nil {
			return nil, err
		}
		// nested lists of the same operator are flattened
		if ce.Op == op {
			ex.Children = append(ex.Children, ce.Children...)
		} else {
			ex.Children = append(ex.Children, ce)
		}
	}

	if len(ex.Children) == 1 {
		return ex.Children[0], nil
	}
	return ex, nil
}

var compareOps = map[query.Op]ExpOp{
	query.OpEq: OpEquals,
	query.OpNe: OpNotEquals,
	query.OpLt: OpLesserThan,
	query.OpLe: OpLesserOrEquals,
	query.OpGt: OpGreaterThan,
	query.OpGe: OpGreaterOrEquals,
}

// inverse of a comparison when its operands are swapped
var swapOps = map[ExpOp]ExpOp{
	OpEquals:          OpEquals,
	OpNotEquals:       OpNotEquals,
	OpLesserThan:      OpGreaterThan,
	OpLesserOrEquals:  OpGreaterOrEquals,
	OpGreaterThan:     OpLesserThan,
	OpGreaterOrEquals: OpLesserOrEquals,
}

func (c *compilerContext) compileBin(sc *scope, v *query.BinExp) (*Exp, error) {
	left, err := c.compileOperand(sc, v.Left)
	if err != nil {
		return nil, err
	}

	op, ok := compareOps[v.Op]
	if !ok {
		return c.compileLike(sc, v, left)
	}

	right, err := c.compileOperand(sc, v.Right)
	if err != nil {
		return nil, err
	}

	if left.Type != ValCol && left.Type != ValCount && (right.Type == ValCol || right.Type == ValCount) {
		left, right = right, left
		op = swapOps[op]
	}

	switch {
	case left.Type == ValNull && right.Type == ValNull:
		if op == OpEquals {
			return &Exp{Op: OpTrue}, nil
		}
		return &Exp{Op: OpFalse}, nil

	case right.Type == ValNull || left.Type == ValNull:
		if left.Type == ValNull {
			left = right
		}
		switch op {
		case OpEquals:
			return &Exp{Op: OpIsNull, Left: left}, nil
		case OpNotEquals:
			return &Exp{Op: OpIsNotNull, Left: left}, nil
		}
		// ordering against null never matches
		return &Exp{Op: OpFalse}, nil
	}

	return &Exp{Op: op, Left: left, Right: right}, nil
}

// wildcards added around the pattern of contains, starts with and ends with
var likeWraps = map[query.Op][2]string{
	query.OpContains:   {"%", "%"},
	query.OpStartsWith: {"", "%"},
	query.OpEndsWith:   {"%", ""},
}

// pattern tests of a column pattern
var patternOps = map[query.Op]ExpOp{
	query.OpContains:   OpContains,
	query.OpStartsWith: OpStartsWith,
	query.OpEndsWith:   OpEndsWith,
}

// compileLike compiles like, contains, starts with and ends with. The
// wildcards of a literal or variable pattern are escaped before the
// pattern is wrapped, a column pattern is compared by position instead.
func (c *compilerContext) compileLike(sc *scope, v *query.BinExp, left Operand) (*Exp, error) {
	if !isString(left) {
		return nil, fmt.Errorf("%w: %s needs a string operand", ErrInvalidQuery, likeName(v.Op))
	}

	wrap, wrapped := likeWraps[v.Op]

	if vr, ok := v.Right.(*query.VarExp); ok && wrapped && vr.Value != nil {
		s, ok := vr.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string pattern", ErrInvalidQuery, likeName(v.Op))
		}
		return &Exp{
			Op:     OpLike,
			Left:   left,
			Right:  Operand{Type: ValParam, Param: c.patternParam(vr.Name, v.Op, wrap, s)},
			Escape: true,
		}, nil
	}

	right, err := c.compileOperand(sc, v.Right)
	if err != nil {
		return nil, err
	}

	switch right.Type {
	case ValNull:
		return &Exp{Op: OpFalse}, nil
	case ValStr, ValParam, ValCol:
	default:
		return nil, fmt.Errorf("%w: %s needs a string pattern", ErrInvalidQuery, likeName(v.Op))
	}

	if right.Type == ValCol && !isString(right) {
		return nil, fmt.Errorf("%w: %s needs a string pattern", ErrInvalidQuery, likeName(v.Op))
	}

	ex := &Exp{Op: OpLike, Left: left, Right: right}
	if !wrapped {
		return ex, nil
	}

	if right.Type != ValStr {
		ex.Op = patternOps[v.Op]
		return ex, nil
	}

	s, esc := escapeLike(right.Val.(string))
	ex.Right.Val = wrap[0] + s + wrap[1]
	ex.Escape = esc
	return ex, nil
}

// patternParam returns the parameter holding the escaped and wrapped
// value of a variable used as a pattern. Uses of the same variable with
// the same operator share it.
func (c *compilerContext) patternParam(name string, op query.Op, wrap [2]string, v string) *Param {
	key := name + "\x00" + likeName(op)
	if p, ok := c.pmap[key]; ok {
		return p
	}

	s, _ := escapeLike(v)
	p := c.newParam(name, wrap[0]+s+wrap[1])
	c.pmap[key] = p
	return p
}

func (c *compilerContext) compileIn(sc *scope, v *query.InExp) (*Exp, error) {
	left, err := c.compileOperand(sc, v.Left)
	if err != nil {
		return nil, err
	}

	if left.Type != ValCol {
		return nil, fmt.Errorf("%w: in needs a column", ErrInvalidQuery)
	}

	if len(v.Values) == 0 {
		return &Exp{Op: OpFalse}, nil
	}

	list := Operand{Type: ValList, List: make([]Operand, 0, len(v.Values))}
	for _, val := range v.Values {
		o, err := c.compileOperand(sc, val)
		if err != nil {
			return nil, err
		}
		switch o.Type {
		case ValCol, ValList, ValCount:
			return nil, fmt.Errorf("%w: in takes values", ErrInvalidQuery)
		}
		list.List = append(list.List, o)
	}

	return &Exp{Op: OpIn, Left: left, Right: list}, nil
}

func (c *compilerContext) compileOperand(sc *scope, e query.Exp) (Operand, error) {
	switch v := e.(type) {
	case *query.ColExp:
		cr, t, err := c.resolveCol(sc, v)
		if err != nil {
			return Operand{}, err
		}
		if t != nil {
			return Operand{}, fmt.Errorf("%w: %s is an entity not a column", ErrInvalidQuery, v)
		}
		return Operand{Type: ValCol, Col: &cr}, nil

	case *query.ValExp:
		return literal(v.Value)

	case *query.VarExp:
		if v.Value == nil {
			return Operand{Type: ValNull}, nil
		}
		p, ok := c.pmap[v.Name]
		if !ok {
			p = c.newParam(v.Name, v.Value)
			c.pmap[v.Name] = p
		}
		return Operand{Type: ValParam, Param: p}, nil

	case *query.NavExp:
		if v.Op != query.NavCount {
			break
		}
		sub, err := c.compileSub(sc, v)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Type: ValCount, Sub: sub}, nil
	}

	return Operand{}, fmt.Errorf("%w: unsupported operand %T", ErrInvalidQuery, e)
}

func literal(v interface{}) (Operand, error) {
	switch v1 := v.(type) {
	case nil:
		return Operand{Type: ValNull}, nil
	case string:
		return Operand{Type: ValStr, Val: v1}, nil
	case bool:
		return Operand{Type: ValBool, Val: v1}, nil
	case int:
		return Operand{Type: ValNum, Val: int64(v1)}, nil
	case int32:
		return Operand{Type: ValNum, Val: int64(v1)}, nil
	case int64, float64:
		return Operand{Type: ValNum, Val: v1}, nil
	}
	return Operand{}, fmt.Errorf("%w: unsupported literal %v", ErrInvalidQuery, v)
}

func (c *compilerContext) compileNav(sc *scope, v *query.NavExp) (*Exp, error) {
	t, rel, err := c.resolveNav(sc, v)
	if err != nil {
		return nil, err
	}

	if rel.Type == sdata.RelReference {
		if v.Op != query.NavHas {
			return nil, fmt.Errorf("%w: %s needs a collection navigation, %s is a reference",
				ErrInvalidQuery, v.Op, rel.Name)
		}

		pt := c.pathTable(sc, t, rel)

		if v.Pred == nil {
			key := pt.Entity.Key[0]
			return &Exp{Op: OpIsNotNull, Left: Operand{
				Type: ValCol,
				Col:  &ColRef{Table: pt, Col: key, Nullable: pt.Optional},
			}}, nil
		}

		ns := newScope(sc, pt, sc.owner(t).paths)
		return c.compileExp(ns, v.Pred)
	}

	sub, err := c.compileSub(sc, v)
	if err != nil {
		return nil, err
	}

	switch v.Op {
	case query.NavAll:
		if sub.Where == nil {
			return &Exp{Op: OpTrue}, nil
		}
		sub.Where = &Exp{Op: OpNot, Children: []*Exp{sub.Where}}
		return &Exp{Op: OpNotExists, Sub: sub}, nil

	case query.NavCount:
		return nil, fmt.Errorf("%w: count is a value, compare it", ErrInvalidQuery)
	}

	return &Exp{Op: OpExists, Sub: sub}, nil
}

// resolveNav finds the table a navigation starts from. Leading segments of
// a dotted navigation walk reference navigations.
func (c *compilerContext) resolveNav(sc *scope, v *query.NavExp) (*Table, *sdata.Rel, error) {
	path := splitPath(v.Nav)

	var t *Table
	if v.Var != "" {
		if _, vt, ok := sc.lookupVar(v.Var); ok {
			t = vt
		} else {
			path = append([]string{v.Var}, path...)
		}
	}

	if t == nil {
		var err error
		if t, path, err = c.resolveBase(sc, "", path); err != nil {
			return nil, nil, err
		}
	}

	if len(path) == 0 {
		return nil, nil, fmt.Errorf("%w: missing navigation", ErrInvalidQuery)
	}

	for i, name := range path {
		rel, err := t.Entity.Rel(name)
		if err != nil {
			return nil, nil, invalid(err)
		}

		if i == len(path)-1 {
			return t, rel, nil
		}

		if rel.Type != sdata.RelReference {
			return nil, nil, fmt.Errorf("%w: collection navigation %s cannot be used in a path",
				ErrInvalidQuery, rel.Name)
		}
		t = c.pathTable(sc, t, rel)
	}
	return nil, nil, nil
}

func (c *compilerContext) compileSub(sc *scope, v *query.NavExp) (*Sub, error) {
	t, rel, err := c.resolveNav(sc, v)
	if err != nil {
		return nil, err
	}

	if rel.Type == sdata.RelReference {
		return nil, fmt.Errorf("%w: %s needs a collection navigation, %s is a reference",
			ErrInvalidQuery, v.Op, rel.Name)
	}

	sub := &Sub{
		Rel:   rel,
		Outer: t,
		Table: c.newTable(rel.To, rel, t, false),
	}

	if rel.Type == sdata.RelSkip {
		sub.Through = c.newTable(rel.Through.Entity, nil, nil, false)
	}

	if v.Pred != nil {
		paths := &[]*Table{}
		ns := newScope(sc, sub.Table, paths)

		if sub.Where, err = c.compileExp(ns, v.Pred); err != nil {
			return nil, err
		}
		sub.Paths = *paths
	}

	return sub, nil
}

func isString(o Operand) bool {
	switch o.Type {
	case ValStr:
		return true
	case ValParam:
		_, ok := o.Param.Value.(string)
		return ok
	case ValCol:
		switch strings.ToLower(o.Col.Col.Type) {
		case "nvarchar", "varchar", "nchar", "char", "ntext", "text":
			return true
		}
	}
	return false
}

func likeName(op query.Op) string {
	switch op {
	case query.OpContains:
		return "contains"
	case query.OpStartsWith:
		return "starts_with"
	case query.OpEndsWith:
		return "ends_with"
	}
	return "like"
}

// escapeLike escapes LIKE wildcards in a literal, reporting whether any
// were found.
func escapeLike(s string) (string, bool) {
	if !strings.ContainsAny(s, `%_[\`) {
		return s, false
	}

	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '[', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String(), true
}

func splitPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}
