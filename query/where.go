package query

import (
	"fmt"
	"strings"
)

var compareOps = map[string]Op{
	"eq":                OpEq,
	"equals":            OpEq,
	"neq":               OpNe,
	"not_equals":        OpNe,
	"gt":                OpGt,
	"greater_than":      OpGt,
	"lt":                OpLt,
	"lesser_than":       OpLt,
	"gte":               OpGe,
	"greater_or_equals": OpGe,
	"lte":               OpLe,
	"lesser_or_equals":  OpLe,
	"like":              OpLike,
	"contains":          OpContains,
	"starts_with":       OpStartsWith,
	"ends_with":         OpEndsWith,
}

func isColumnOp(k string) bool {
	if _, ok := compareOps[k]; ok {
		return true
	}
	switch k {
	case "in", "nin", "not_in", "nlike", "not_like", "is_null":
		return true
	}
	return false
}

func isNavOp(k string) bool {
	switch k {
	case "any", "all", "count", "exists":
		return true
	}
	return false
}

// where parses the filter object syntax:
//
//	{Name: {eq: "L1 01"}}            column comparison
//	{Name: "L1 01"}                  shorthand for eq
//	{and: [...]} {or: [...]}         logical operators
//	{not: {...}}
//	{Nav: {Name: {eq: "x"}}}         filter through a navigation
//	{Nav: {any|all: {...}}}          collection quantifiers
//	{Nav: {count: {gt: 1}}}          row count of a collection
//	{Nav: {exists: false}}
//
// Values written as $name are variables, {col: path} references a column.
func (d *decoder) where(v interface{}) (Exp, error) {
	if v == nil {
		return nil, nil
	}

	ms, ok := v.(mapSlice)
	if !ok {
		return nil, fmt.Errorf("%w: a filter must be an object", ErrInvalidDocument)
	}

	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: empty filter", ErrInvalidDocument)
	}

	exps := make([]Exp, 0, len(ms))
	for _, item := range ms {
		ex, err := d.whereItem(item)
		if err != nil {
			return nil, err
		}
		exps = append(exps, ex)
	}

	if len(exps) == 1 {
		return exps[0], nil
	}
	return And(exps...), nil
}

func (d *decoder) whereItem(item mapItem) (Exp, error) {
	switch item.Key {
	case "and", "or":
		args, err := d.whereList(item.Value)
		if err != nil {
			return nil, err
		}
		if item.Key == "and" {
			return And(args...), nil
		}
		return Or(args...), nil

	case "not":
		ex, err := d.where(item.Value)
		if err != nil {
			return nil, err
		}
		return Not(ex), nil
	}

	ms, ok := item.Value.(mapSlice)
	if !ok {
		val, err := d.value(item.Value)
		if err != nil {
			return nil, err
		}
		return Eq(Col(item.Key), val), nil
	}

	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: empty filter for '%s'", ErrInvalidDocument, item.Key)
	}

	if len(ms) == 1 && ms[0].Key == "col" {
		val, err := d.value(ms)
		if err != nil {
			return nil, err
		}
		return Eq(Col(item.Key), val), nil
	}

	switch {
	case allKeys(ms, isColumnOp):
		return d.columnOps(Col(item.Key), ms)

	case allKeys(ms, isNavOp):
		return d.navOps(item.Key, ms)

	default:
		pred, err := d.where(ms)
		if err != nil {
			return nil, err
		}
		return Has(item.Key, pred), nil
	}
}

func (d *decoder) whereList(v interface{}) ([]Exp, error) {
	var args []Exp

	switch v1 := v.(type) {
	case []interface{}:
		for _, e := range v1 {
			ex, err := d.where(e)
			if err != nil {
				return nil, err
			}
			args = append(args, ex)
		}

	case mapSlice:
		for _, item := range v1 {
			ex, err := d.whereItem(item)
			if err != nil {
				return nil, err
			}
			args = append(args, ex)
		}

	default:
		return nil, fmt.Errorf("%w: 'and' and 'or' take a list or an object", ErrInvalidDocument)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing expression after logical operator", ErrInvalidDocument)
	}
	return args, nil
}

func (d *decoder) columnOps(col *ColExp, ms mapSlice) (Exp, error) {
	exps := make([]Exp, 0, len(ms))

	for _, item := range ms {
		var ex Exp

		switch item.Key {
		case "in", "nin", "not_in":
			list, ok := item.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: '%s' takes a list", ErrInvalidDocument, item.Key)
			}
			vals := make([]Exp, 0, len(list))
			for _, v := range list {
				val, err := d.value(v)
				if err != nil {
					return nil, err
				}
				vals = append(vals, val)
			}
			ex = In(col, vals...)
			if item.Key != "in" {
				ex = Not(ex)
			}

		case "nlike", "not_like":
			val, err := d.value(item.Value)
			if err != nil {
				return nil, err
			}
			ex = Not(Like(col, val))

		case "is_null":
			b, ok := item.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: 'is_null' takes true or false", ErrInvalidDocument)
			}
			if b {
				ex = IsNull(col)
			} else {
				ex = IsNotNull(col)
			}

		default:
			val, err := d.value(item.Value)
			if err != nil {
				return nil, err
			}
			ex = &BinExp{Op: compareOps[item.Key], Left: col, Right: val}
		}

		exps = append(exps, ex)
	}

	if len(exps) == 1 {
		return exps[0], nil
	}
	return And(exps...), nil
}

func (d *decoder) navOps(nav string, ms mapSlice) (Exp, error) {
	exps := make([]Exp, 0, len(ms))

	for _, item := range ms {
		var ex Exp

		switch item.Key {
		case "any", "all":
			pred, err := d.where(item.Value)
			if err != nil {
				return nil, err
			}
			if item.Key == "any" {
				ex = Any(nav, pred)
			} else {
				ex = All(nav, pred)
			}

		case "count":
			cm, ok := item.Value.(mapSlice)
			if !ok {
				return nil, fmt.Errorf("%w: 'count' takes comparison operators", ErrInvalidDocument)
			}
			var err error
			if ex, err = d.columnOps(nil, cm); err != nil {
				return nil, err
			}
			ex = withLeft(ex, Count(nav, nil))

		case "exists":
			b, ok := item.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: 'exists' takes true or false", ErrInvalidDocument)
			}
			ex = Any(nav, nil)
			if !b {
				ex = Not(ex)
			}
		}

		exps = append(exps, ex)
	}

	if len(exps) == 1 {
		return exps[0], nil
	}
	return And(exps...), nil
}

// withLeft sets the left operand of comparisons built without one.
func withLeft(ex Exp, left Exp) Exp {
	switch e := ex.(type) {
	case *BinExp:
		e.Left = left
	case *InExp:
		e.Left = left
	case *NotExp:
		withLeft(e.Exp, left)
	case *AndExp:
		for _, a := range e.Args {
			withLeft(a, left)
		}
	}
	return ex
}

func (d *decoder) value(v interface{}) (Exp, error) {
	switch v1 := v.(type) {
	case nil:
		return Null(), nil

	case string:
		if strings.HasPrefix(v1, "$") {
			name := v1[1:]
			val, ok := d.vars[name]
			if !ok {
				return nil, fmt.Errorf("%w: variable '%s' not set", ErrInvalidDocument, name)
			}
			return Var(name, val), nil
		}
		return Str(v1), nil

	case int:
		return Int(int64(v1)), nil

	case int64:
		return Int(v1), nil

	case uint64:
		return Int(int64(v1)), nil

	case float64, bool:
		return Val(v1), nil

	case mapSlice:
		if len(v1) == 1 && v1[0].Key == "col" {
			if s, ok := v1[0].Value.(string); ok {
				return Col(s), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: unsupported value %v", ErrInvalidDocument, v)
}

func allKeys(ms mapSlice, fn func(string) bool) bool {
	for _, item := range ms {
		if !fn(item.Key) {
			return false
		}
	}
	return true
}
