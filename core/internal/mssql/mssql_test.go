package mssql_test

import (
	"log"
	"os"
	"testing"

	"github.com/navql/navql/core/internal/mssql"
	"github.com/navql/navql/core/internal/qcode"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	qcompile *qcode.Compiler
	mcompile *mssql.Compiler
)

func TestMain(m *testing.M) {
	model, err := sdata.GetTestModel()
	if err != nil {
		log.Fatal(err)
	}

	qcompile, err = qcode.NewCompiler(model, qcode.Config{})
	if err != nil {
		log.Fatal(err)
	}

	mcompile = mssql.NewCompiler(mssql.Config{})
	os.Exit(m.Run())
}

func compileSQL(t *testing.T, q *query.Query) []mssql.Statement {
	t.Helper()

	qc, err := qcompile.Compile(q)
	require.NoError(t, err)

	stmts, err := mcompile.Compile(qc)
	require.NoError(t, err)
	return stmts
}

func compileOne(t *testing.T, q *query.Query) mssql.Statement {
	t.Helper()

	stmts := compileSQL(t, q)
	require.Len(t, stmts, 1)
	return stmts[0]
}

const (
	levelOneCols   = `[l].[Id], [l].[Date], [l].[Name], [l].[OneToMany_Optional_Self_Inverse1Id], [l].[OneToOne_Optional_Self1Id]`
	levelTwoCols   = `[Id], [Date], [Level1_Optional_Id], [Level1_Required_Id], [Name], [OneToMany_Optional_Inverse2Id], [OneToMany_Optional_Self_Inverse2Id], [OneToMany_Required_Inverse2Id]`
	levelThreeCols = `[Id], [Level2_Optional_Id], [Level2_Required_Id], [Name], [OneToMany_Optional_Inverse3Id], [OneToMany_Required_Inverse3Id]`
)

// withTable prefixes every column of a comma separated list.
func withTable(alias, cols string) string {
	out := ""
	start := 0
	for i := 0; i <= len(cols); i++ {
		if i == len(cols) || cols[i] == ',' {
			c := cols[start:i]
			if c[0] == ' ' {
				c = c[1:]
			}
			if out != "" {
				out += ", "
			}
			out += "[" + alias + "]." + c
			start = i + 1
		}
	}
	return out
}

func TestCompileSimple(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Eq(query.Col("Name"), query.Var("name", "L1 01"))).
		Build())

	exp := `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @__name_0`

	assert.Equal(t, exp, st.SQL)
	require.Len(t, st.Params, 1)
	assert.Equal(t, "@__name_0='L1 01' (Size = 4000)\n\n"+exp, st.CommandText())
	assert.Equal(t, int32(0), st.Sel)
	assert.Len(t, st.Columns, 5)
}

func TestCompileReferencePath(t *testing.T) {
	st := compileOne(t, query.From("LevelTwo").
		Where(query.Eq(query.Col("OneToOne_Required_FK_Inverse2.Name"), query.Str("L1 01"))).
		Build())

	exp := `SELECT ` + withTable("l", levelTwoCols) + `
FROM [LevelTwo] AS [l]
INNER JOIN [LevelOne] AS [l0] ON [l].[Level1_Required_Id] = [l0].[Id]
WHERE [l0].[Name] = N'L1 01'`

	assert.Equal(t, exp, st.SQL)
	assert.Empty(t, st.Params)
}

func TestCompileExists(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Any("OneToMany_Optional1", query.Gt(query.Col("Id"), query.Int(5)))).
		Build())

	exp := `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE EXISTS (
    SELECT 1
    FROM [LevelTwo] AS [l0]
    WHERE [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id] AND [l0].[Id] > 5)`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileCount(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Gt(query.Count("OneToMany_Optional1", nil), query.Int(1))).
		Build())

	exp := `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE (
    SELECT COUNT(*)
    FROM [LevelTwo] AS [l0]
    WHERE [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]) > 1`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileLike(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Contains(query.Col("Name"), query.Str("a_b"))).
		Build())

	assert.Contains(t, st.SQL, `WHERE [l].[Name] LIKE N'%a\_b%' ESCAPE N'\'`)

	st = compileOne(t, query.From("LevelOne").
		Where(query.StartsWith(query.Col("Name"), query.Var("prefix", "L1"))).
		Build())

	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE [l].[Name] LIKE @__prefix_0 ESCAPE N'\'`, st.SQL)
	require.Len(t, st.Params, 1)
	assert.Equal(t, "L1%", st.Params[0].Value)

	st = compileOne(t, query.From("LevelOne").
		Where(query.StartsWith(query.Col("Name"), query.Var("prefix", "50%"))).
		Build())

	assert.Equal(t, "@__prefix_0='50\\%%' (Size = 4000)\n\n"+`SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE [l].[Name] LIKE @__prefix_0 ESCAPE N'\'`, st.CommandText())
}

func TestCompileColumnPattern(t *testing.T) {
	other := query.Col("OneToOne_Optional_FK1.Name")

	tests := []struct {
		name string
		exp  query.Exp
		want string
	}{
		{
			"starts with",
			query.StartsWith(query.Col("Name"), other),
			`LEFT([l].[Name], LEN([l0].[Name])) = [l0].[Name]`,
		},
		{
			"ends with",
			query.EndsWith(query.Col("Name"), other),
			`RIGHT([l].[Name], LEN([l0].[Name])) = [l0].[Name]`,
		},
		{
			"contains",
			query.Contains(query.Col("Name"), other),
			`(CHARINDEX([l0].[Name], [l].[Name]) > 0 OR [l0].[Name] LIKE N'')`,
		},
		{
			"not starts with",
			query.Not(query.StartsWith(query.Col("Name"), other)),
			`LEFT([l].[Name], LEN([l0].[Name])) <> [l0].[Name] OR [l].[Name] IS NULL OR [l0].[Name] IS NULL`,
		},
		{
			"not contains",
			query.Not(query.Contains(query.Col("Name"), other)),
			`(CHARINDEX([l0].[Name], [l].[Name]) = 0 AND [l0].[Name] NOT LIKE N'') OR [l].[Name] IS NULL OR [l0].[Name] IS NULL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := compileOne(t, query.From("LevelOne").Where(tt.exp).Build())

			exp := `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
LEFT JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[Level1_Optional_Id]
WHERE ` + tt.want

			assert.Equal(t, exp, st.SQL)
			assert.NotContains(t, st.SQL, "ESCAPE")
		})
	}
}

func TestCompileInclude(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1")).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("l0", levelTwoCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id]`

	assert.Equal(t, exp, st.SQL)
	assert.Len(t, st.Columns, 13)
}

func TestCompileIncludeEntity(t *testing.T) {
	q, err := query.Decode([]byte("from: LevelOne\ninclude:\n  - LevelThree\n"), nil)
	require.NoError(t, err)

	st := compileOne(t, q)

	exp := `SELECT ` + levelOneCols + `, ` + withTable("l0", levelTwoCols) + `, ` + withTable("l1", levelThreeCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[Level1_Optional_Id]
LEFT JOIN [LevelThree] AS [l1] ON [l0].[Id] = [l1].[Level2_Optional_Id]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileFilteredInclude(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1").Filter(query.Gt(query.Col("Id"), query.Int(1)))).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t", levelTwoCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN (
    SELECT ` + withTable("l0", levelTwoCols) + `
    FROM [LevelTwo] AS [l0]
    WHERE [l0].[Id] > 1
) AS [t] ON [l].[Id] = [t].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompilePagedInclude(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1").
			Order(query.Asc(query.Col("Name"))).
			Paged(1, 2)).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t0", levelTwoCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN (
    SELECT ` + withTable("t", levelTwoCols) + `
    FROM (
        SELECT ` + withTable("l0", levelTwoCols) + `, ROW_NUMBER() OVER(PARTITION BY [l0].[OneToMany_Optional_Inverse2Id] ORDER BY [l0].[Name]) AS [row]
        FROM [LevelTwo] AS [l0]
    ) AS [t]
    WHERE 1 < [t].[row] AND [t].[row] <= 3
) AS [t0] ON [l].[Id] = [t0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id], [t0].[OneToMany_Optional_Inverse2Id], [t0].[Name]`

	assert.Equal(t, exp, st.SQL)
	assert.Empty(t, st.Params)
}

func TestCompilePagedIncludeNoSkip(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1").
			Order(query.Asc(query.Col("Name"))).
			Paged(0, 2)).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t0", levelTwoCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN (
    SELECT ` + withTable("t", levelTwoCols) + `
    FROM (
        SELECT ` + withTable("l0", levelTwoCols) + `, ROW_NUMBER() OVER(PARTITION BY [l0].[OneToMany_Optional_Inverse2Id] ORDER BY [l0].[Name]) AS [row]
        FROM [LevelTwo] AS [l0]
    ) AS [t]
    WHERE [t].[row] <= 2
) AS [t0] ON [l].[Id] = [t0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id], [t0].[OneToMany_Optional_Inverse2Id], [t0].[Name]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompilePagedRoot(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		OrderBy(query.Asc(query.Col("Id"))).
		Take(2).
		Include(query.Inc("OneToMany_Optional1")).
		Build())

	exp := `SELECT ` + withTable("t", `[Id], [Date], [Name], [OneToMany_Optional_Self_Inverse1Id], [OneToOne_Optional_Self1Id]`) +
		`, ` + withTable("l0", levelTwoCols) + `
FROM (
    SELECT TOP(@__p_0) ` + levelOneCols + `
    FROM [LevelOne] AS [l]
    ORDER BY [l].[Id]
) AS [t]
LEFT JOIN [LevelTwo] AS [l0] ON [t].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
ORDER BY [t].[Id]`

	assert.Equal(t, exp, st.SQL)
	require.Len(t, st.Params, 1)
	assert.Equal(t, "__p_0", st.Params[0].Name)
}

func TestCompileTopAndOffset(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").Take(3).Build())
	assert.Equal(t, `SELECT TOP(@__p_0) `+levelOneCols+`
FROM [LevelOne] AS [l]`, st.SQL)

	st = compileOne(t, query.From("LevelOne").Skip(1).Take(3).Build())
	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
ORDER BY (SELECT 1) OFFSET @__p_0 ROWS FETCH NEXT @__p_1 ROWS ONLY`, st.SQL)
	assert.Len(t, st.Params, 2)
}

func TestCompileSkipInclude(t *testing.T) {
	st := compileOne(t, query.From("EntityOne").
		Include(query.Inc("TwoSkip")).
		Build())

	exp := `SELECT [e].[Id], [e].[Name], [t].[OneId], [t].[TwoId], [t].[Id], [t].[CollectionInverseId], [t].[Name], [t].[ReferenceInverseId]
FROM [EntityOnes] AS [e]
LEFT JOIN (
    SELECT [j].[OneId], [j].[TwoId], [e0].[Id], [e0].[CollectionInverseId], [e0].[Name], [e0].[ReferenceInverseId]
    FROM [JoinOneToTwo] AS [j]
    INNER JOIN [EntityTwos] AS [e0] ON [j].[TwoId] = [e0].[Id]
) AS [t] ON [e].[Id] = [t].[OneId]
ORDER BY [e].[Id], [t].[OneId], [t].[TwoId]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileSplit(t *testing.T) {
	stmts := compileSQL(t, query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1")).
		AsSplitQuery().
		Build())

	require.Len(t, stmts, 2)

	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
ORDER BY [l].[Id]`, stmts[0].SQL)

	assert.Equal(t, `SELECT `+withTable("l0", levelTwoCols)+`, [l].[Id]
FROM [LevelOne] AS [l]
INNER JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id]`, stmts[1].SQL)

	assert.Equal(t, int32(1), stmts[1].Sel)
	last := stmts[1].Columns[len(stmts[1].Columns)-1]
	assert.True(t, last.Hidden)
	assert.Equal(t, int32(0), last.Sel)
}

func TestCompileCorrelatedJoin(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").As("l1").
		AddJoin(query.Join{
			Kind:   query.SelectMany,
			Entity: "LevelTwo",
			As:     "l2",
			Where:  query.Eq(query.Col("l2.Level1_Optional_Id"), query.Col("l1.Id")),
		}).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t", levelTwoCols) + `
FROM [LevelOne] AS [l]
CROSS APPLY (
    SELECT ` + withTable("l0", levelTwoCols) + `
    FROM [LevelTwo] AS [l0]
    WHERE [l0].[Level1_Optional_Id] = [l].[Id]
) AS [t]`

	assert.Equal(t, exp, st.SQL)

	st = compileOne(t, query.From("LevelOne").As("l1").
		AddJoin(query.Join{
			Kind:      query.LeftJoin,
			Entity:    "LevelTwo",
			As:        "l2",
			OuterKeys: []query.Exp{query.Col("l1.Id")},
			InnerKeys: []query.Exp{query.Col("l2.Level1_Optional_Id")},
			Where:     query.Gt(query.Col("l2.Id"), query.Col("l1.Id")),
		}).
		Build())

	exp = `SELECT ` + levelOneCols + `, ` + withTable("t", levelTwoCols) + `
FROM [LevelOne] AS [l]
OUTER APPLY (
    SELECT ` + withTable("l0", levelTwoCols) + `
    FROM [LevelTwo] AS [l0]
    WHERE [l].[Id] = [l0].[Level1_Optional_Id] AND [l0].[Id] > [l].[Id]
) AS [t]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompilePositional(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Or(
			query.Eq(query.Col("Name"), query.Var("name", "L1 01")),
			query.Eq(query.Col("Name"), query.Str("@__name_0")))).
		Skip(1).Take(2).
		Build())

	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @__name_0 OR [l].[Name] = N'@__name_0'
ORDER BY (SELECT 1) OFFSET @__p_1 ROWS FETCH NEXT @__p_2 ROWS ONLY`, st.SQL)

	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @p1 OR [l].[Name] = N'@__name_0'
ORDER BY (SELECT 1) OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`, st.Positional)
	require.Len(t, st.Params, 3)

	// only the parameters a statement uses are numbered
	stmts := compileSQL(t, query.From("LevelOne").
		Where(query.Eq(query.Col("Name"), query.Var("name", "L1 01"))).
		Take(2).
		Include(query.Inc("OneToMany_Optional1").
			Filter(query.Eq(query.Col("Name"), query.Var("child", "L2 01")))).
		AsSplitQuery().
		Build())

	require.Len(t, stmts, 2)
	require.Len(t, stmts[0].Params, 2)
	assert.Contains(t, stmts[0].Positional, `TOP(@p2)`)
	assert.Contains(t, stmts[0].Positional, `[l].[Name] = @p1`)
	assert.NotContains(t, stmts[0].SQL, `@__child_2`)
	assert.Len(t, stmts[1].Params, 3)
	assert.Contains(t, stmts[1].SQL, `@__child_2`)
	assert.Contains(t, stmts[1].Positional, `[l0].[Name] = @p3`)
}

func TestCompileControlCharLiteral(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").
		Where(query.Eq(query.Col("Name"), query.Str("a\x011\x01'b"))).
		Build())

	assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE [l].[Name] = (N'a' + NCHAR(1) + N'1' + NCHAR(1) + N'''b')`, st.SQL)
	assert.Equal(t, st.SQL, st.Positional)
}

func TestCompileCrossJoin(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").As("l1").
		AddJoin(query.Join{Kind: query.SelectMany, Entity: "LevelTwo", As: "l2"}).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("l0", levelTwoCols) + `
FROM [LevelOne] AS [l]
CROSS JOIN [LevelTwo] AS [l0]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileCrossApply(t *testing.T) {
	take := 2

	st := compileOne(t, query.From("LevelOne").As("l1").
		AddJoin(query.Join{
			Kind:    query.SelectMany,
			Entity:  "LevelTwo",
			As:      "l2",
			OrderBy: []query.Order{query.Asc(query.Col("l2.Id"))},
			Take:    &take,
		}).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t", levelTwoCols) + `
FROM [LevelOne] AS [l]
CROSS APPLY (
    SELECT TOP(2) ` + withTable("l0", levelTwoCols) + `
    FROM [LevelTwo] AS [l0]
    ORDER BY [l0].[Id]
) AS [t]`

	assert.Equal(t, exp, st.SQL)
	assert.Empty(t, st.Params)
}

func TestCompileOuterApply(t *testing.T) {
	take := 2

	st := compileOne(t, query.From("LevelOne").As("l1").
		AddJoin(query.Join{
			Kind: query.SelectManyLeft,
			From: "l1",
			Nav:  "OneToMany_Optional1",
			As:   "l2",
			Take: &take,
		}).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("t", levelTwoCols) + `
FROM [LevelOne] AS [l]
OUTER APPLY (
    SELECT TOP(2) ` + withTable("l0", levelTwoCols) + `
    FROM [LevelTwo] AS [l0]
    WHERE [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
) AS [t]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileGroupJoin(t *testing.T) {
	st := compileOne(t, query.From("LevelOne").As("l1").
		GroupJoin("LevelTwo", "g", query.Col("l1.Id"), query.Col("g.Level1_Optional_Id")).
		Build())

	exp := `SELECT ` + levelOneCols + `, ` + withTable("l0", levelTwoCols) + `
FROM [LevelOne] AS [l]
LEFT JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[Level1_Optional_Id]
ORDER BY [l].[Id]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileDerivedColumnNames(t *testing.T) {
	st := compileOne(t, query.From("LevelTwo").
		Where(query.Eq(query.Col("OneToOne_Required_FK_Inverse2.Name"), query.Str("L1 01"))).
		Take(2).
		Include(query.Inc("OneToOne_Required_FK_Inverse2"), query.Inc("OneToMany_Optional2")).
		Build())

	exp := `SELECT ` + withTable("t", levelTwoCols) + `, [t].[Id0], [t].[Date0], [t].[Name0], [t].[OneToMany_Optional_Self_Inverse1Id], [t].[OneToOne_Optional_Self1Id], ` + withTable("l1", levelThreeCols) + `
FROM (
    SELECT TOP(@__p_0) ` + withTable("l", levelTwoCols) + `, [l0].[Id] AS [Id0], [l0].[Date] AS [Date0], [l0].[Name] AS [Name0], [l0].[OneToMany_Optional_Self_Inverse1Id], [l0].[OneToOne_Optional_Self1Id]
    FROM [LevelTwo] AS [l]
    INNER JOIN [LevelOne] AS [l0] ON [l].[Level1_Required_Id] = [l0].[Id]
    WHERE [l0].[Name] = N'L1 01'
) AS [t]
LEFT JOIN [LevelThree] AS [l1] ON [t].[Id] = [l1].[OneToMany_Optional_Inverse3Id]
ORDER BY [t].[Id], [t].[Id0]`

	assert.Equal(t, exp, st.SQL)
}

func TestCompileSchema(t *testing.T) {
	m, err := sdata.NewModel(&sdata.ModelInfo{
		Schema: "dbo",
		Entities: []sdata.EntityInfo{
			{
				Name:  "Customer",
				Table: "Customers",
				Columns: []sdata.ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "Name", Type: "nvarchar"},
				},
			},
			{
				Name:   "Order",
				Table:  "Orders",
				Schema: "sales",
				Columns: []sdata.ColumnInfo{
					{Name: "Id", Type: "int", Key: true},
					{Name: "CustomerId", Type: "int"},
				},
				ForeignKeys: []sdata.ForeignKeyInfo{
					{Columns: []string{"CustomerId"}, References: "Customer"},
				},
			},
		},
	})
	require.NoError(t, err)

	co, err := qcode.NewCompiler(m, qcode.Config{})
	require.NoError(t, err)

	qc, err := co.Compile(query.From("Order").
		Where(query.Eq(query.Col("Customer.Name"), query.Str("Ann"))).
		Build())
	require.NoError(t, err)

	stmts, err := mssql.NewCompiler(mssql.Config{}).Compile(qc)
	require.NoError(t, err)
	assert.Equal(t, `SELECT [o].[Id], [o].[CustomerId]
FROM [sales].[Orders] AS [o]
INNER JOIN [Customers] AS [c] ON [o].[CustomerId] = [c].[Id]
WHERE [c].[Name] = N'Ann'`, stmts[0].SQL)

	stmts, err = mssql.NewCompiler(mssql.Config{DefaultSchema: "sales"}).Compile(qc)
	require.NoError(t, err)
	assert.Equal(t, `SELECT [o].[Id], [o].[CustomerId]
FROM [Orders] AS [o]
INNER JOIN [dbo].[Customers] AS [c] ON [o].[CustomerId] = [c].[Id]
WHERE [c].[Name] = N'Ann'`, stmts[0].SQL)
}

func TestCompilePrecedence(t *testing.T) {
	tests := []struct {
		name string
		exp  query.Exp
		want string
	}{
		{
			"or under and",
			query.And(
				query.Or(query.Eq(query.Col("Id"), query.Int(1)), query.Eq(query.Col("Id"), query.Int(2))),
				query.Gt(query.Col("Id"), query.Int(0))),
			`([l].[Id] = 1 OR [l].[Id] = 2) AND [l].[Id] > 0`,
		},
		{
			"and under or",
			query.Or(
				query.Eq(query.Col("Id"), query.Int(1)),
				query.And(query.Gt(query.Col("Id"), query.Int(2)), query.Lt(query.Col("Id"), query.Int(5)))),
			`[l].[Id] = 1 OR ([l].[Id] > 2 AND [l].[Id] < 5)`,
		},
		{
			"not like",
			query.Not(query.Like(query.Col("Name"), query.Str("%a"))),
			`[l].[Name] NOT LIKE N'%a' OR [l].[Name] IS NULL`,
		},
		{
			"not like under and",
			query.And(
				query.Not(query.Like(query.Col("Name"), query.Str("%a"))),
				query.Gt(query.Col("Id"), query.Int(1))),
			`([l].[Name] NOT LIKE N'%a' OR [l].[Name] IS NULL) AND [l].[Id] > 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := compileOne(t, query.From("LevelOne").Where(tt.exp).Build())
			assert.Equal(t, `SELECT `+levelOneCols+`
FROM [LevelOne] AS [l]
WHERE `+tt.want, st.SQL)
		})
	}
}

func TestCompileEmpty(t *testing.T) {
	_, err := mcompile.Compile(&qcode.QCode{})
	assert.ErrorIs(t, err, mssql.ErrEmptyQuery)
}

func TestCommandText(t *testing.T) {
	st := mssql.Statement{
		SQL: "SELECT 1",
		Params: []*qcode.Param{
			{Name: "a", Value: int64(2)},
			{Name: "b", Value: true},
			{Name: "c", Value: nil},
		},
	}
	assert.Equal(t, "@a='2'\n@b='True'\n@c=NULL\n\nSELECT 1", st.CommandText())
}
