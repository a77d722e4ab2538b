package core_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/navql/navql/core"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/core/sqltest"
	"github.com/navql/navql/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	levelOneCols = `[l].[Id], [l].[Date], [l].[Name], [l].[OneToMany_Optional_Self_Inverse1Id], [l].[OneToOne_Optional_Self1Id]`
	levelTwoCols = `[l0].[Id], [l0].[Date], [l0].[Level1_Optional_Id], [l0].[Level1_Required_Id], [l0].[Name], [l0].[OneToMany_Optional_Inverse2Id], [l0].[OneToMany_Optional_Self_Inverse2Id], [l0].[OneToMany_Required_Inverse2Id]`

	byNameSQL = `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @__name_0`
)

var levelOneRow = []string{"Id", "Date", "Name", "OneToMany_Optional_Self_Inverse1Id", "OneToOne_Optional_Self1Id"}

func newTestNavQL(t *testing.T, db *sql.DB, opts ...core.Option) (*core.NavQL, *sqltest.Recorder) {
	t.Helper()

	rec := sqltest.NewRecorder()
	opts = append([]core.Option{
		core.OptionSetModel(sdata.GetTestModelInfo()),
		core.OptionSetRecorder(rec),
	}, opts...)

	nq, err := core.NewNavQL(&core.Config{}, db, opts...)
	require.NoError(t, err)
	return nq, rec
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func byName(name string) *query.Query {
	return query.From("LevelOne").
		Where(query.Eq(query.Col("Name"), query.Var("name", name))).
		Build()
}

func TestCompile(t *testing.T) {
	nq, rec := newTestNavQL(t, nil)

	res, err := nq.Compile(context.Background(), byName("L1 01"))
	require.NoError(t, err)

	require.Len(t, res.Statements, 1)
	assert.Equal(t, byNameSQL, res.Statements[0].SQL)
	assert.Equal(t, []core.Param{{Name: "__name_0", Value: "L1 01"}}, res.Statements[0].Params)
	assert.NotEmpty(t, res.QueryID)

	sqltest.AssertSQL(t, rec, "@__name_0='L1 01' (Size = 4000)\n\n"+byNameSQL)
}

func TestCompileCache(t *testing.T) {
	nq, _ := newTestNavQL(t, nil)

	res, err := nq.Compile(context.Background(), byName("L1 01"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res, err = nq.Compile(context.Background(), byName("L1 01"))
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	res, err = nq.Compile(context.Background(), byName("L1 02"))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "L1 02", res.Statements[0].Params[0].Value)
}

func TestCompileErrors(t *testing.T) {
	nq, rec := newTestNavQL(t, nil)

	_, err := nq.Compile(context.Background(), query.From("Nope").Build())
	assert.ErrorIs(t, err, core.ErrUnknownEntity)

	_, err = nq.Compile(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = nq.Compile(context.Background(), query.From("LevelOne").
		Where(query.Eq(query.Col("Nope"), query.Int(1))).
		Build())
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = nq.CompileDocument(context.Background(), []byte("from: [broken"), nil)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	sqltest.AssertSQL(t, rec)
}

func TestCompileDocument(t *testing.T) {
	nq, rec := newTestNavQL(t, nil)

	doc := `
from: LevelOne
where:
  Name: $name
`
	res, err := nq.CompileDocument(context.Background(), []byte(doc), map[string]interface{}{"name": "L1 01"})
	require.NoError(t, err)
	assert.Equal(t, byNameSQL, res.Statements[0].SQL)

	sqltest.AssertSQL(t, rec, "@__name_0='L1 01' (Size = 4000)\n\n"+byNameSQL)
}

func TestCompileTag(t *testing.T) {
	nq, _ := newTestNavQL(t, nil)

	res, err := nq.Compile(context.Background(), query.From("LevelOne").Tag("levels\nby name").Build())
	require.NoError(t, err)
	assert.Equal(t, "-- levels\n-- by name\n\nSELECT "+levelOneCols+"\nFROM [LevelOne] AS [l]", res.Statements[0].SQL)
}

func TestGolden(t *testing.T) {
	tests := []struct {
		name string
		q    *query.Query
	}{
		{"by_name", byName("L1 01")},
		{"like_variable", query.From("LevelOne").
			Where(query.StartsWith(query.Col("Name"), query.Var("prefix", "50%"))).
			Build()},
		{"paged_include", query.From("LevelOne").
			Include(query.Inc("OneToMany_Optional1").
				Order(query.Asc(query.Col("Name"))).
				Paged(1, 2)).
			Build()},
		{"split", query.From("LevelOne").
			Include(query.Inc("OneToMany_Optional1")).
			AsSplitQuery().
			Build()},
		{"correlated_join", query.From("LevelOne").As("l1").
			AddJoin(query.Join{
				Kind:   query.SelectMany,
				Entity: "LevelTwo",
				As:     "l2",
				Where:  query.Eq(query.Col("l2.Level1_Optional_Id"), query.Col("l1.Id")),
			}).
			Build()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nq, rec := newTestNavQL(t, nil)

			_, err := nq.Compile(context.Background(), tt.q)
			require.NoError(t, err)

			sqltest.AssertGolden(t, rec)
		})
	}
}

func TestQuery(t *testing.T) {
	db, mock := newMock(t)
	nq, rec := newTestNavQL(t, db)

	mock.ExpectQuery(`SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @p1`).
		WithArgs("L1 01").
		WillReturnRows(sqlmock.NewRows(levelOneRow).
			AddRow(int64(1), "2001-01-01", "L1 01", nil, nil))

	res, err := nq.Query(context.Background(), byName("L1 01"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(1), res.Records[0]["Id"])
	assert.Equal(t, "L1 01", res.Records[0]["Name"])
	assert.Nil(t, res.Records[0]["OneToOne_Optional_Self1Id"])

	sqltest.AssertSQL(t, rec, "@__name_0='L1 01' (Size = 4000)\n\n"+byNameSQL)
}

func TestQueryParamNameInLiteral(t *testing.T) {
	db, mock := newMock(t)
	nq, rec := newTestNavQL(t, db)

	named := `SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @__name_0 OR [l].[Name] = N'@__name_0'`

	mock.ExpectQuery(`SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @p1 OR [l].[Name] = N'@__name_0'`).
		WithArgs("L1 01").
		WillReturnRows(sqlmock.NewRows(levelOneRow))

	_, err := nq.Query(context.Background(), query.From("LevelOne").
		Where(query.Or(
			query.Eq(query.Col("Name"), query.Var("name", "L1 01")),
			query.Eq(query.Col("Name"), query.Str("@__name_0")))).
		Build())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	sqltest.AssertSQL(t, rec, "@__name_0='L1 01' (Size = 4000)\n\n"+named)
}

func TestQueryAsync(t *testing.T) {
	db, mock := newMock(t)
	nq, _ := newTestNavQL(t, db)

	mock.ExpectQuery(`SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @p1`).
		WithArgs("L1 02").
		WillReturnRows(sqlmock.NewRows(levelOneRow).
			AddRow(int64(2), "2002-02-02", "L1 02", nil, nil).
			AddRow(int64(3), "2003-03-03", "L1 02", int64(2), nil))

	ar := <-nq.QueryAsync(context.Background(), byName("L1 02"))
	require.NoError(t, ar.Err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, ar.Result.Records, 2)
	assert.Equal(t, int64(2), ar.Result.Records[1]["OneToMany_Optional_Self_Inverse1Id"])
}

func TestQueryCollection(t *testing.T) {
	db, mock := newMock(t)
	nq, _ := newTestNavQL(t, db)

	cols := append(append([]string{}, levelOneRow...),
		"Id", "Date", "Level1_Optional_Id", "Level1_Required_Id", "Name",
		"OneToMany_Optional_Inverse2Id", "OneToMany_Optional_Self_Inverse2Id", "OneToMany_Required_Inverse2Id")

	mock.ExpectQuery(`SELECT ` + levelOneCols + `, ` + levelTwoCols + `
FROM [LevelOne] AS [l]
LEFT JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id]`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "d", "L1 01", nil, nil, int64(10), "d", nil, int64(1), "L2 10", int64(1), nil, int64(1)).
			AddRow(int64(1), "d", "L1 01", nil, nil, int64(11), "d", nil, int64(1), "L2 11", int64(1), nil, int64(1)).
			AddRow(int64(2), "d", "L1 02", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))

	res, err := nq.Query(context.Background(), query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1")).
		Build())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, res.Records, 2)

	children := res.Records[0]["OneToMany_Optional1"].([]core.Record)
	require.Len(t, children, 2)
	assert.Equal(t, "L2 11", children[1]["Name"])
	assert.Empty(t, res.Records[1]["OneToMany_Optional1"])
}

func TestQuerySplit(t *testing.T) {
	db, mock := newMock(t)
	nq, rec := newTestNavQL(t, db)

	mock.ExpectQuery(`SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
ORDER BY [l].[Id]`).
		WillReturnRows(sqlmock.NewRows(levelOneRow).
			AddRow(int64(1), "d", "L1 01", nil, nil).
			AddRow(int64(2), "d", "L1 02", nil, nil))

	mock.ExpectQuery(`SELECT ` + levelTwoCols + `, [l].[Id]
FROM [LevelOne] AS [l]
INNER JOIN [LevelTwo] AS [l0] ON [l].[Id] = [l0].[OneToMany_Optional_Inverse2Id]
ORDER BY [l].[Id]`).
		WillReturnRows(sqlmock.NewRows([]string{
			"Id", "Date", "Level1_Optional_Id", "Level1_Required_Id", "Name",
			"OneToMany_Optional_Inverse2Id", "OneToMany_Optional_Self_Inverse2Id", "OneToMany_Required_Inverse2Id", "Id",
		}).AddRow(int64(20), "d", nil, int64(2), "L2 20", int64(2), nil, int64(2), int64(2)))

	res, err := nq.Query(context.Background(), query.From("LevelOne").
		Include(query.Inc("OneToMany_Optional1")).
		AsSplitQuery().
		Build())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, res.Records, 2)
	assert.Empty(t, res.Records[0]["OneToMany_Optional1"])

	children := res.Records[1]["OneToMany_Optional1"].([]core.Record)
	require.Len(t, children, 1)
	assert.Equal(t, "L2 20", children[0]["Name"])

	assert.Len(t, rec.Commands(), 2)
}

func TestQueryError(t *testing.T) {
	db, mock := newMock(t)
	nq, _ := newTestNavQL(t, db)

	mock.ExpectQuery(`SELECT ` + levelOneCols + `
FROM [LevelOne] AS [l]
WHERE [l].[Name] = @p1`).
		WithArgs("L1 01").
		WillReturnError(sql.ErrConnDone)

	_, err := nq.Query(context.Background(), byName("L1 01"))
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestQueryWithoutDB(t *testing.T) {
	nq, _ := newTestNavQL(t, nil)

	_, err := nq.Query(context.Background(), byName("L1 01"))
	assert.Error(t, err)
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	nq, _ := newTestNavQL(t, nil, core.OptionSetTracer(tp.Tracer("test")))

	_, err := nq.Compile(context.Background(), byName("L1 01"))
	require.NoError(t, err)

	_, err = nq.Compile(context.Background(), query.From("Nope").Build())
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "navql.compile", spans[0].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
