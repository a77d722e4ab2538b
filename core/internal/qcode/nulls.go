package qcode

// nullRewriter gives predicates the two-valued equality of the host
// language: null equals null and a comparison with null is false rather
// than unknown. NOT is pushed down to the comparisons first so every
// expansion sees the operator it renders.
type nullRewriter struct {
	relational bool
}

func (co *Compiler) rewriteNulls(ex *Exp) *Exp {
	nr := nullRewriter{relational: co.c.UseRelationalNulls}
	return nr.rewrite(ex)
}

func (nr nullRewriter) rewrite(ex *Exp) *Exp {
	if ex == nil {
		return nil
	}

	switch ex.Op {
	case OpNot:
		return nr.rewrite(nr.negate(ex.Children[0]))

	case OpAnd, OpOr:
		children := make([]*Exp, 0, len(ex.Children))
		for _, c := range ex.Children {
			children = append(children, nr.rewrite(c))
		}
		return simplify(ex.Op, children)

	case OpExists, OpNotExists:
		ex.Sub.Where = nr.rewrite(ex.Sub.Where)
		return ex
	}

	nr.rewriteSubs(ex)
	return nr.expand(ex)
}

func (nr nullRewriter) rewriteSubs(ex *Exp) {
	for _, o := range []*Operand{&ex.Left, &ex.Right} {
		if o.Type == ValCount {
			o.Sub.Where = nr.rewrite(o.Sub.Where)
		}
	}
}

// negate returns the negation of ex. Negated ordering comparisons keep
// the rows where a side is null.
func (nr nullRewriter) negate(ex *Exp) *Exp {
	switch ex.Op {
	case OpNot:
		return ex.Children[0]

	case OpAnd, OpOr:
		op := OpOr
		if ex.Op == OpOr {
			op = OpAnd
		}
		children := make([]*Exp, 0, len(ex.Children))
		for _, c := range ex.Children {
			children = append(children, nr.negate(c))
		}
		return &Exp{Op: op, Children: children}

	case OpLesserThan, OpLesserOrEquals, OpGreaterThan, OpGreaterOrEquals:
		n := *ex
		n.Op = flipOps[ex.Op]
		if nr.relational {
			return &n
		}
		return orNulls(&n, ex.Left, ex.Right)
	}

	n := *ex
	n.Op = negOps[ex.Op]
	return &n
}

var flipOps = map[ExpOp]ExpOp{
	OpLesserThan:      OpGreaterOrEquals,
	OpLesserOrEquals:  OpGreaterThan,
	OpGreaterThan:     OpLesserOrEquals,
	OpGreaterOrEquals: OpLesserThan,
}

var negOps = map[ExpOp]ExpOp{
	OpEquals:    OpNotEquals,
	OpNotEquals: OpEquals,
	OpLike:      OpNotLike,
	OpNotLike:   OpLike,
	OpIn:        OpNotIn,
	OpNotIn:     OpIn,
	OpIsNull:    OpIsNotNull,
	OpIsNotNull: OpIsNull,
	OpExists:    OpNotExists,
	OpNotExists: OpExists,
	OpTrue:      OpFalse,
	OpFalse:     OpTrue,

	OpStartsWith:    OpNotStartsWith,
	OpNotStartsWith: OpStartsWith,
	OpEndsWith:      OpNotEndsWith,
	OpNotEndsWith:   OpEndsWith,
	OpContains:      OpNotContains,
	OpNotContains:   OpContains,
}

func (nr nullRewriter) expand(ex *Exp) *Exp {
	switch ex.Op {
	case OpIsNull:
		if !ex.Left.Nullable() {
			return &Exp{Op: OpFalse}
		}
		return ex

	case OpIsNotNull:
		if !ex.Left.Nullable() {
			return &Exp{Op: OpTrue}
		}
		return ex

	case OpIn, OpNotIn:
		return nr.expandIn(ex)
	}

	if nr.relational {
		return ex
	}

	ln, rn := ex.Left.Nullable(), ex.Right.Nullable()

	switch ex.Op {
	case OpEquals:
		if ln && rn {
			return &Exp{Op: OpOr, Children: []*Exp{
				ex,
				{Op: OpAnd, Children: []*Exp{isNull(ex.Left), isNull(ex.Right)}},
			}}
		}

	case OpNotEquals:
		switch {
		case ln && rn:
			return &Exp{Op: OpAnd, Children: []*Exp{
				{Op: OpOr, Children: []*Exp{ex, isNull(ex.Left), isNull(ex.Right)}},
				{Op: OpOr, Children: []*Exp{isNotNull(ex.Left), isNotNull(ex.Right)}},
			}}
		case ln || rn:
			return orNulls(ex, ex.Left, ex.Right)
		}

	case OpNotLike, OpNotStartsWith, OpNotEndsWith, OpNotContains:
		return orNulls(ex, ex.Left, ex.Right)
	}

	return ex
}

// expandIn moves null values out of the list into an IS NULL test.
func (nr nullRewriter) expandIn(ex *Exp) *Exp {
	list := make([]Operand, 0, len(ex.Right.List))
	hasNull := false

	for _, v := range ex.Right.List {
		if v.Type == ValNull {
			hasNull = true
			continue
		}
		list = append(list, v)
	}

	if !hasNull || nr.relational {
		if ex.Op == OpNotIn && !nr.relational {
			return orNulls(ex, ex.Left, Operand{})
		}
		return ex
	}

	n := *ex
	n.Right.List = list

	if ex.Op == OpIn {
		if len(list) == 0 {
			return nr.expand(isNull(ex.Left))
		}
		return simplify(OpOr, []*Exp{&n, nr.expand(isNull(ex.Left))})
	}

	if len(list) == 0 {
		return nr.expand(isNotNull(ex.Left))
	}
	return simplify(OpAnd, []*Exp{&n, nr.expand(isNotNull(ex.Left))})
}

// orNulls adds an IS NULL test for each nullable column operand.
func orNulls(ex *Exp, ops ...Operand) *Exp {
	children := []*Exp{ex}
	for _, o := range ops {
		if o.Type == ValCol && o.Nullable() {
			children = append(children, isNull(o))
		}
	}
	if len(children) == 1 {
		return ex
	}
	return &Exp{Op: OpOr, Children: children}
}

func isNull(o Operand) *Exp {
	return &Exp{Op: OpIsNull, Left: o}
}

func isNotNull(o Operand) *Exp {
	return &Exp{Op: OpIsNotNull, Left: o}
}

// simplify folds constant children out of an AND or OR and flattens
// nested lists of the same operator.
func simplify(op ExpOp, children []*Exp) *Exp {
	absorb, neutral := OpFalse, OpTrue
	if op == OpOr {
		absorb, neutral = OpTrue, OpFalse
	}

	list := make([]*Exp, 0, len(children))
	for _, c := range children {
		switch c.Op {
		case absorb:
			return &Exp{Op: absorb}
		case neutral:
			continue
		case op:
			list = append(list, c.Children...)
			continue
		}
		list = append(list, c)
	}

	switch len(list) {
	case 0:
		return &Exp{Op: neutral}
	case 1:
		return list[0]
	}
	return &Exp{Op: op, Children: list}
}
