package query

// Builder assembles a Query.
//
//	q := query.From("LevelOne").As("l1").
//		Where(query.Eq(query.Col("Name"), query.Str("L1 01"))).
//		Include(query.Inc("OneToMany_Optional1")).
//		Build()
type Builder struct {
	q Query
}

func From(entity string) *Builder {
	return &Builder{q: Query{Entity: entity}}
}

func (b *Builder) As(v string) *Builder {
	b.q.As = v
	return b
}

// Where adds a predicate, several calls are joined with AND.
func (b *Builder) Where(e Exp) *Builder {
	if b.q.Where == nil {
		b.q.Where = e
	} else {
		b.q.Where = And(b.q.Where, e)
	}
	return b
}

func (b *Builder) OrderBy(o ...Order) *Builder {
	b.q.OrderBy = append(b.q.OrderBy, o...)
	return b
}

func (b *Builder) Skip(n int) *Builder {
	b.q.Skip = &n
	return b
}

func (b *Builder) Take(n int) *Builder {
	b.q.Take = &n
	return b
}

func (b *Builder) Distinct() *Builder {
	b.q.Distinct = true
	return b
}

// AsSplitQuery loads included collections with one statement each.
func (b *Builder) AsSplitQuery() *Builder {
	b.q.Split = true
	return b
}

func (b *Builder) Tag(tag string) *Builder {
	b.q.Tag = tag
	return b
}

func (b *Builder) Include(inc ...Include) *Builder {
	b.q.Includes = append(b.q.Includes, inc...)
	return b
}

func (b *Builder) Select(f ...Field) *Builder {
	b.q.Select = append(b.q.Select, f...)
	return b
}

// Join matches entity rows through range variable as on outer = inner.
func (b *Builder) Join(entity, as string, outer, inner Exp) *Builder {
	return b.JoinOn(InnerJoin, entity, as, []Exp{outer}, []Exp{inner})
}

func (b *Builder) LeftJoin(entity, as string, outer, inner Exp) *Builder {
	return b.JoinOn(LeftJoin, entity, as, []Exp{outer}, []Exp{inner})
}

func (b *Builder) GroupJoin(entity, as string, outer, inner Exp) *Builder {
	return b.JoinOn(GroupJoin, entity, as, []Exp{outer}, []Exp{inner})
}

// JoinOn joins on a list of key pairs, composite keys match column by column.
func (b *Builder) JoinOn(kind JoinKind, entity, as string, outer, inner []Exp) *Builder {
	b.q.Joins = append(b.q.Joins, Join{
		Kind:      kind,
		Entity:    entity,
		As:        as,
		OuterKeys: outer,
		InnerKeys: inner,
	})
	return b
}

// SelectMany flattens a navigation of range variable from.
func (b *Builder) SelectMany(from, nav, as string) *Builder {
	b.q.Joins = append(b.q.Joins, Join{Kind: SelectMany, From: from, Nav: nav, As: as})
	return b
}

func (b *Builder) SelectManyLeft(from, nav, as string) *Builder {
	b.q.Joins = append(b.q.Joins, Join{Kind: SelectManyLeft, From: from, Nav: nav, As: as})
	return b
}

// AddJoin appends a fully specified join, used for filtered or paged
// joins.
func (b *Builder) AddJoin(j Join) *Builder {
	b.q.Joins = append(b.q.Joins, j)
	return b
}

func (b *Builder) Build() *Query {
	q := b.q
	return &q
}
