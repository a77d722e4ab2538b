// Package query holds the navigation-aware query tree compiled by navql.
// Queries are either built with the fluent builder or decoded from YAML and
// JSON documents.
package query

type JoinKind int8

const (
	InnerJoin JoinKind = iota + 1
	LeftJoin
	GroupJoin
	SelectMany
	SelectManyLeft
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case GroupJoin:
		return "group"
	case SelectMany:
		return "select_many"
	case SelectManyLeft:
		return "select_many_left"
	}
	return "none"
}

// Query reads rows of Entity through range variable As. When Select is
// empty every range variable is projected whole.
type Query struct {
	Entity   string
	As       string
	Where    Exp
	OrderBy  []Order
	Skip     *int
	Take     *int
	Distinct bool
	Joins    []Join
	Includes []Include
	Select   []Field
	Split    bool
	Tag      string
}

// Join adds a range variable. InnerJoin, LeftJoin and GroupJoin match
// Entity rows on key lists, SelectMany and SelectManyLeft walk the
// navigation Nav of range variable From (or cross join Entity when Nav is
// empty).
type Join struct {
	Kind      JoinKind
	Entity    string
	Nav       string
	From      string
	As        string
	OuterKeys []Exp
	InnerKeys []Exp
	Where     Exp
	OrderBy   []Order
	Skip      *int
	Take      *int
}

// Include loads a navigation of the included entity along with it. Nested
// Includes continue from the navigation target.
type Include struct {
	Nav      string
	From     string
	Where    Exp
	OrderBy  []Order
	Skip     *int
	Take     *int
	Includes []Include
}

type Order struct {
	Exp  Exp
	Desc bool
}

// Field is one projected value. An entity reference projects every
// column of the range variable or reference navigation it names.
type Field struct {
	Exp Exp
	As  string
}

// Filter restricts the included rows.
func (i Include) Filter(e Exp) Include {
	i.Where = e
	return i
}

func (i Include) Order(o ...Order) Include {
	i.OrderBy = append(append([]Order{}, i.OrderBy...), o...)
	return i
}

func (i Include) Paged(skip, take int) Include {
	if skip >= 0 {
		i.Skip = &skip
	}
	if take >= 0 {
		i.Take = &take
	}
	return i
}

// Then adds nested includes (ThenInclude).
func (i Include) Then(inc ...Include) Include {
	i.Includes = append(append([]Include{}, i.Includes...), inc...)
	return i
}

// Inc starts an include of the named navigation.
func Inc(nav string) Include {
	return Include{Nav: nav}
}

func Asc(e Exp) Order {
	return Order{Exp: e}
}

func Desc(e Exp) Order {
	return Order{Exp: e, Desc: true}
}

func F(e Exp, as string) Field {
	return Field{Exp: e, As: as}
}
