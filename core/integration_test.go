//go:build integration

package core_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/denisenkom/go-mssqldb"
	"github.com/navql/navql/core"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/navql/navql/query"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/mssql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "YourStrong!Passw0rd"

func startSQLServer(t *testing.T) *sql.DB {
	t.Helper()

	con, err := gnomock.Start(
		mssql.Preset(
			mssql.WithLicense(true),
			mssql.WithVersion("2019-latest"),
			mssql.WithAdminPassword(adminPassword),
			mssql.WithDatabase("levels"),
		),
		gnomock.WithLogWriter(os.Stdout))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gnomock.Stop(con) })

	db, err := sql.Open("sqlserver",
		fmt.Sprintf("sqlserver://sa:%s@%s?database=levels", adminPassword, con.DefaultAddress()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	err = retry.Do(db.Ping, retry.Attempts(10), retry.Delay(time.Second))
	require.NoError(t, err)
	return db
}

var seed = []string{
	`INSERT INTO [LevelOne] ([Id], [Date], [Name]) VALUES (1, '2001-01-01', N'L1 01'), (2, '2002-01-01', N'L1 02')`,
	`INSERT INTO [LevelTwo] ([Id], [Date], [Level1_Required_Id], [Name], [OneToMany_Optional_Inverse2Id], [OneToMany_Required_Inverse2Id])
	 VALUES (10, '2001-01-01', 1, N'L2 10', 1, 1), (11, '2001-01-01', 2, N'L2 11', 1, 1), (12, '2001-01-01', 2, N'L2 12', NULL, 2)`,
}

func TestIntegration(t *testing.T) {
	db := startSQLServer(t)
	ctx := context.Background()

	nq, err := core.NewNavQL(&core.Config{}, db, core.OptionSetModel(sdata.GetTestModelInfo()))
	require.NoError(t, err)

	ops, err := nq.Migrate(ctx, false)
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	for _, s := range seed {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err)
	}

	t.Run("introspect", func(t *testing.T) {
		nq1, err := core.NewNavQL(&core.Config{}, db)
		require.NoError(t, err)
		assert.NotEmpty(t, nq1.ModelInfo().Entities)
	})

	t.Run("filter", func(t *testing.T) {
		res, err := nq.Query(ctx, query.From("LevelOne").
			Where(query.Eq(query.Col("Name"), query.Var("name", "L1 02"))).
			Build())
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, int64(2), res.Records[0]["Id"])
	})

	t.Run("collection", func(t *testing.T) {
		res, err := nq.Query(ctx, query.From("LevelOne").
			Include(query.Inc("OneToMany_Optional1")).
			Build())
		require.NoError(t, err)
		require.Len(t, res.Records, 2)
		assert.Len(t, res.Records[0]["OneToMany_Optional1"], 2)
		assert.Len(t, res.Records[1]["OneToMany_Optional1"], 0)
	})

	t.Run("paged collection", func(t *testing.T) {
		res, err := nq.Query(ctx, query.From("LevelOne").
			Include(query.Inc("OneToMany_Optional1").
				Order(query.Desc(query.Col("Name"))).
				Paged(0, 1)).
			Build())
		require.NoError(t, err)

		children := res.Records[0]["OneToMany_Optional1"].([]core.Record)
		require.Len(t, children, 1)
		assert.Equal(t, "L2 11", children[0]["Name"])
	})

	t.Run("split", func(t *testing.T) {
		res, err := nq.Query(ctx, query.From("LevelOne").
			Include(query.Inc("OneToMany_Optional1")).
			AsSplitQuery().
			Build())
		require.NoError(t, err)
		require.Len(t, res.Statements, 2)
		assert.Len(t, res.Records[0]["OneToMany_Optional1"], 2)
	})

	t.Run("count", func(t *testing.T) {
		res, err := nq.Query(ctx, query.From("LevelOne").
			Where(query.Gt(query.Count("OneToMany_Optional1", nil), query.Int(1))).
			Build())
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "L1 01", res.Records[0]["Name"])
	})
}
