package serv_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-resty/resty/v2"
	"github.com/navql/navql/core"
	"github.com/navql/navql/serv"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiStmt struct {
	SQL         string                 `json:"sql"`
	Params      map[string]interface{} `json:"params"`
	CommandText string                 `json:"command_text"`
}

type apiResp struct {
	QueryID    string                   `json:"query_id"`
	Statements []apiStmt                `json:"statements"`
	Data       []map[string]interface{} `json:"data"`
	Error      string                   `json:"error"`
}

const customersSQL = "SELECT [c].[Id], [c].[Name]\nFROM [Customers] AS [c]"

func newConfig() *serv.Config {
	conf := &serv.Config{}
	conf.Entities = []core.EntityInfo{{
		Name:  "Customer",
		Table: "Customers",
		Columns: []core.ColumnInfo{
			{Name: "Id", Type: "int", Key: true},
			{Name: "Name", Type: "nvarchar", Nullable: true},
		},
	}}
	return conf
}

func newServer(t *testing.T, conf *serv.Config) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := serv.NewService(conf, serv.OptionSetDB(db), serv.OptionSetLogger(zap.NewNop()))
	require.NoError(t, err)

	h, err := s.Handler()
	require.NoError(t, err)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, mock
}

func TestHealth(t *testing.T) {
	ts, _ := newServer(t, newConfig())

	res, err := resty.New().R().Get(ts.URL + "/health")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, "All's Well", res.String())
	assert.Equal(t, "navql", res.Header().Get("Server"))
}

func TestCompile(t *testing.T) {
	ts, _ := newServer(t, newConfig())

	var out apiResp
	res, err := resty.New().R().
		SetBody(map[string]interface{}{
			"query":     "from: Customer\nwhere:\n  Name: $name\n",
			"variables": map[string]interface{}{"name": "Ann"},
		}).
		SetResult(&out).
		Post(ts.URL + "/api/v1/compile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())

	require.Len(t, out.Statements, 1)
	assert.Equal(t, customersSQL+"\nWHERE [c].[Name] = @__name_0", out.Statements[0].SQL)
	assert.Equal(t, map[string]interface{}{"__name_0": "Ann"}, out.Statements[0].Params)
	assert.NotEmpty(t, out.QueryID)
}

func TestCompileObjectDocument(t *testing.T) {
	ts, _ := newServer(t, newConfig())

	var out apiResp
	res, err := resty.New().R().
		SetBody(`{"query": {"from": "Customer", "take": 5}}`).
		SetHeader("Content-Type", "application/json").
		SetResult(&out).
		Post(ts.URL + "/api/v1/compile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())

	require.Len(t, out.Statements, 1)
	assert.Equal(t, "SELECT TOP(@__p_0) [c].[Id], [c].[Name]\nFROM [Customers] AS [c]", out.Statements[0].SQL)
}

func TestCompileErrors(t *testing.T) {
	ts, _ := newServer(t, newConfig())
	client := resty.New()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown entity", `{"query": "from: Order"}`, http.StatusBadRequest},
		{"unknown column", `{"query": {"from": "Customer", "where": {"Nope": 1}}}`, http.StatusBadRequest},
		{"empty", `{}`, http.StatusBadRequest},
		{"broken json", `{"query"`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out apiResp
			res, err := client.R().
				SetBody(tt.body).
				SetHeader("Content-Type", "application/json").
				SetError(&out).
				Post(ts.URL + "/api/v1/compile")
			require.NoError(t, err)

			assert.Equal(t, tt.status, res.StatusCode())
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestQuery(t *testing.T) {
	ts, mock := newServer(t, newConfig())

	mock.ExpectQuery(customersSQL).
		WillReturnRows(sqlmock.NewRows([]string{"Id", "Name"}).
			AddRow(int64(1), "Ann").
			AddRow(int64(2), "Bob"))

	var out apiResp
	res, err := resty.New().R().
		SetBody(map[string]interface{}{"query": "from: Customer"}).
		SetResult(&out).
		Post(ts.URL + "/api/v1/query")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, out.Data, 2)
	assert.Equal(t, "Bob", out.Data[1]["Name"])
	assert.Equal(t, float64(1), out.Data[0]["Id"])
}

func TestModel(t *testing.T) {
	ts, _ := newServer(t, newConfig())
	client := resty.New()

	var out core.ModelInfo
	res, err := client.R().SetResult(&out).Get(ts.URL + "/api/v1/model")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "Customer", out.Entities[0].Name)

	etag := res.Header().Get("ETag")
	require.NotEmpty(t, etag)

	res, err = client.R().SetHeader("If-None-Match", etag).Get(ts.URL + "/api/v1/model")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.StatusCode())
}

func TestModelHiddenInProduction(t *testing.T) {
	conf := newConfig()
	conf.Production = true
	ts, _ := newServer(t, conf)

	res, err := resty.New().R().Get(ts.URL + "/api/v1/model")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode())
}

func TestRateLimiter(t *testing.T) {
	conf := newConfig()
	conf.RateLimiter.Rate = 0.001
	conf.RateLimiter.Bucket = 1
	ts, _ := newServer(t, conf)

	client := resty.New().SetHeader("X-Forwarded-For", "10.20.30.40")

	res, err := client.R().Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())

	res, err = client.R().Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode())
}

func TestCORS(t *testing.T) {
	conf := newConfig()
	conf.AllowedOrigins = []string{"http://example.com"}
	ts, _ := newServer(t, conf)

	res, err := resty.New().R().
		SetHeader("Origin", "http://example.com").
		Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", res.Header().Get("Access-Control-Allow-Origin"))
}

// nolint: errcheck
func TestReadInConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/conf/dev.yml", []byte(`
app_name: shop
model_file: model.yml
database:
  host: db.local
  dbname: shop
rate_limiter:
  rate: 10
`), 0666)

	conf, err := serv.ReadInConfigFS("/conf/dev.yml", fs)
	require.NoError(t, err)

	assert.Equal(t, "shop", conf.AppName)
	assert.Equal(t, "/conf/model.yml", conf.ModelFile)
	assert.Equal(t, "db.local", conf.DB.Host)
	assert.Equal(t, uint16(1433), conf.DB.Port)
	assert.Equal(t, 20, conf.RateLimiter.Bucket)
	assert.Equal(t, "dbo", conf.Schema)

	t.Setenv("NAVQL_DATABASE_HOST", "db.prod")
	conf, err = serv.ReadInConfigFS("/conf/dev.yml", fs)
	require.NoError(t, err)
	assert.Equal(t, "db.prod", conf.DB.Host)

	assert.Equal(t, "sqlserver://sa:@db.prod:1433?app+name=shop&database=shop", serv.ConnString(conf))
}

// nolint: errcheck
func TestReadInConfigInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/dev.yml", []byte("log_level: loud\n"), 0666)

	_, err := serv.ReadInConfigFS("/dev.yml", fs)
	assert.Error(t, err)
}

func TestGetConfigName(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	assert.Equal(t, "prod", serv.GetConfigName())

	t.Setenv("GO_ENV", "")
	assert.Equal(t, "dev", serv.GetConfigName())
}
