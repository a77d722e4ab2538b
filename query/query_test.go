package query_test

import (
	"errors"
	"testing"

	"github.com/navql/navql/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	q := query.From("LevelOne").As("l1").
		Where(query.Eq(query.Col("Name"), query.Str("L1 01"))).
		Where(query.Gt(query.Col("Id"), query.Int(2))).
		OrderBy(query.Desc(query.Col("Date"))).
		Skip(1).Take(3).
		Include(query.Inc("OneToMany_Optional1").
			Filter(query.Ne(query.Col("Name"), query.Str("Foo"))).
			Order(query.Asc(query.Col("Name"))).
			Paged(-1, 2).
			Then(query.Inc("OneToMany_Optional2"))).
		Build()

	assert.Equal(t, "LevelOne", q.Entity)
	assert.Equal(t, "l1", q.As)
	assert.Equal(t, query.And(
		query.Eq(query.Col("Name"), query.Str("L1 01")),
		query.Gt(query.Col("Id"), query.Int(2))), q.Where)
	require.NotNil(t, q.Skip)
	assert.Equal(t, 1, *q.Skip)
	assert.Equal(t, 3, *q.Take)

	require.Len(t, q.Includes, 1)
	inc := q.Includes[0]
	assert.Nil(t, inc.Skip)
	assert.Equal(t, 2, *inc.Take)
	assert.Equal(t, "OneToMany_Optional2", inc.Includes[0].Nav)
}

func TestBuilderJoins(t *testing.T) {
	q := query.From("LevelOne").As("l1").
		Join("LevelTwo", "l2", query.Col("l1.Id"), query.Col("l2.Level1_Optional_Id")).
		SelectMany("l1", "OneToMany_Optional1", "l3").
		Select(query.F(query.Col("l1.Name"), "Name1"), query.F(query.Entity("l2"), "")).
		Build()

	require.Len(t, q.Joins, 2)
	assert.Equal(t, query.InnerJoin, q.Joins[0].Kind)
	assert.Equal(t, []query.Exp{query.Col("l1.Id")}, q.Joins[0].OuterKeys)
	assert.Equal(t, query.SelectMany, q.Joins[1].Kind)
	assert.Equal(t, "l1", q.Joins[1].From)
	assert.Equal(t, "l2", q.Select[1].Exp.(*query.ColExp).Var)
}

func TestNavExpVar(t *testing.T) {
	ne := query.Any("l1.OneToMany_Optional1", nil)
	assert.Equal(t, "l1", ne.Var)
	assert.Equal(t, "OneToMany_Optional1", ne.Nav)

	ne = query.All("OneToMany_Optional1", query.IsNull(query.Col("Name")))
	assert.Equal(t, "", ne.Var)
	assert.Equal(t, query.NavAll, ne.Op)
}

const yamlDoc = `
from: LevelOne
as: l1
where:
  Name: { eq: L1 01 }
  Id: { gt: 2 }
order_by:
  - Date: desc
skip: 1
take: 3
include:
  - nav: OneToMany_Optional1
    where:
      Name: { neq: Foo }
    order_by: { Name: asc }
    take: 2
    include:
      - OneToMany_Optional2
`

const jsonDoc = `{
  "from": "LevelOne",
  "as": "l1",
  "where": { "Name": { "eq": "L1 01" }, "Id": { "gt": 2 } },
  "order_by": [ { "Date": "desc" } ],
  "skip": 1,
  "take": 3,
  "include": [
    {
      "nav": "OneToMany_Optional1",
      "where": { "Name": { "neq": "Foo" } },
      "order_by": { "Name": "asc" },
      "take": 2,
      "include": [ "OneToMany_Optional2" ]
    }
  ]
}`

func TestDecode(t *testing.T) {
	exp := query.From("LevelOne").As("l1").
		Where(query.Eq(query.Col("Name"), query.Str("L1 01"))).
		Where(query.Gt(query.Col("Id"), query.Int(2))).
		OrderBy(query.Desc(query.Col("Date"))).
		Skip(1).Take(3).
		Include(query.Inc("OneToMany_Optional1").
			Filter(query.Ne(query.Col("Name"), query.Str("Foo"))).
			Order(query.Asc(query.Col("Name"))).
			Paged(-1, 2).
			Then(query.Inc("OneToMany_Optional2"))).
		Build()

	for name, doc := range map[string]string{"yaml": yamlDoc, "json": jsonDoc} {
		t.Run(name, func(t *testing.T) {
			q, err := query.Decode([]byte(doc), nil)
			require.NoError(t, err)
			assert.Equal(t, exp, q)
		})
	}
}

func TestDecodeWhere(t *testing.T) {
	doc := `
from: LevelOne
where:
  or:
    - OneToOne_Required_FK1:
        Name: { like: "%x%" }
    - OneToMany_Optional1:
        any: { Name: $name }
    - OneToMany_Required1:
        count: { gte: 2 }
    - OneToMany_Optional_Self1:
        exists: false
  not:
    Name: { in: [a, b], is_null: false }
  Date: { col: Date }
`
	q, err := query.Decode([]byte(doc), map[string]interface{}{"name": "L2 01"})
	require.NoError(t, err)

	exp := query.And(
		query.Or(
			query.Has("OneToOne_Required_FK1", query.Like(query.Col("Name"), query.Str("%x%"))),
			query.Any("OneToMany_Optional1", query.Eq(query.Col("Name"), query.Var("name", "L2 01"))),
			query.Ge(query.Count("OneToMany_Required1", nil), query.Int(2)),
			query.Not(query.Any("OneToMany_Optional_Self1", nil)),
		),
		query.Not(query.And(
			query.In(query.Col("Name"), query.Str("a"), query.Str("b")),
			query.IsNotNull(query.Col("Name")),
		)),
		query.Eq(query.Col("Date"), query.Col("Date")),
	)
	assert.Equal(t, exp, q.Where)
}

func TestDecodeJoinsAndSelect(t *testing.T) {
	doc := `
from: EntityCompositeKey
as: c
joins:
  - kind: left
    entity: EntityBranch
    as: b
    on:
      - [c.Key1, b.CompositeId1]
      - [c.Key2, b.CompositeId2]
  - kind: select_many
    from: c
    nav: RootSkipShared
    as: r
include:
  - Branches.Composite
  - Branches
select:
  - c.Name
  - { col: b.Name, as: BranchName }
`
	q, err := query.Decode([]byte(doc), nil)
	require.NoError(t, err)

	require.Len(t, q.Joins, 2)
	assert.Equal(t, query.LeftJoin, q.Joins[0].Kind)
	assert.Equal(t, []query.Exp{query.Col("c.Key1"), query.Col("c.Key2")}, q.Joins[0].OuterKeys)
	assert.Equal(t, []query.Exp{query.Col("b.CompositeId1"), query.Col("b.CompositeId2")}, q.Joins[0].InnerKeys)
	assert.Equal(t, query.SelectMany, q.Joins[1].Kind)
	assert.Equal(t, "RootSkipShared", q.Joins[1].Nav)

	require.Len(t, q.Includes, 1)
	assert.Equal(t, "Branches", q.Includes[0].Nav)
	assert.Equal(t, "Composite", q.Includes[0].Includes[0].Nav)

	assert.Equal(t, []query.Field{
		{Exp: query.Col("c.Name")},
		{Exp: query.Col("b.Name"), As: "BranchName"},
	}, q.Select)
}

func TestDecodeErrors(t *testing.T) {
	docs := []string{
		`where: { Name: { eq: x } }`,
		`{from: LevelOne, where: [1, 2]}`,
		`{from: LevelOne, where: { Name: $missing }}`,
		`{from: LevelOne, order_by: { Name: sideways }}`,
		`{from: LevelOne, joins: [{kind: outer, entity: LevelTwo}]}`,
		`{from: LevelOne, unknown: true}`,
		`{from: LevelOne, include: [{where: {Name: x}}]}`,
		`{from: LevelOne, where: { Name: { in: x } }}`,
	}

	for _, doc := range docs {
		_, err := query.Decode([]byte(doc), nil)
		assert.True(t, errors.Is(err, query.ErrInvalidDocument), doc)
	}
}
