package core

import (
	"context"
	"database/sql"

	"github.com/navql/navql/core/internal/mssql"
	"github.com/navql/navql/core/internal/shape"
	"github.com/navql/navql/query"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Statement is one SQL command of a query.
type Statement struct {
	SQL    string
	Params []Param
	// CommandText is the statement as logged: the parameter values, a
	// blank line and the SQL
	CommandText string
}

type Param struct {
	Name  string
	Value interface{}
}

// Result struct contains the statements of a query and, once it ran, the
// shaped records.
type Result struct {
	QueryID    string
	Statements []Statement
	Records    []Record
	FromCache  bool

	c *compiled
}

type Record = shape.Record

// Compile translates q into SQL statements without running them.
func (n *NavQL) Compile(c context.Context, q *query.Query) (*Result, error) {
	s := n.state()

	c, span := s.startSpan(c, "navql.compile")
	defer span.End()

	res, err := s.compile(q)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("query_id", res.QueryID))

	for _, st := range res.Statements {
		s.logCommand(res.QueryID, st.CommandText)
	}
	return res, nil
}

// CompileDocument compiles a YAML or JSON query document, $name values
// are taken from vars.
func (n *NavQL) CompileDocument(c context.Context, doc []byte, vars map[string]interface{}) (*Result, error) {
	q, err := query.Decode(doc, vars)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidQuery, err.Error())
	}
	return n.Compile(c, q)
}

// Query compiles q, runs its statements and shapes the rows into records.
func (n *NavQL) Query(c context.Context, q *query.Query) (*Result, error) {
	s := n.state()

	c, span := s.startSpan(c, "navql.query")
	defer span.End()

	res, err := s.compile(q)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("query_id", res.QueryID))

	if err := s.execute(c, res); err != nil {
		spanError(span, err)
		return nil, err
	}
	return res, nil
}

// QueryDocument is Query for a YAML or JSON query document.
func (n *NavQL) QueryDocument(c context.Context, doc []byte, vars map[string]interface{}) (*Result, error) {
	q, err := query.Decode(doc, vars)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidQuery, err.Error())
	}
	return n.Query(c, q)
}

type AsyncResult struct {
	Result *Result
	Err    error
}

// QueryAsync runs Query in a goroutine. The channel receives one value
// and is closed.
func (n *NavQL) QueryAsync(c context.Context, q *query.Query) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)

	go func() {
		defer close(ch)
		res, err := n.Query(c, q)
		ch <- AsyncResult{Result: res, Err: err}
	}()
	return ch
}

func (s *navql) compile(q *query.Query) (*Result, error) {
	if q == nil {
		return nil, errors.Wrap(ErrInvalidQuery, "query is nil")
	}

	if _, err := s.model.Entity(q.Entity); err != nil {
		return nil, errors.Wrapf(ErrUnknownEntity, "%s", q.Entity)
	}

	res := &Result{QueryID: xid.New().String()}

	key, err := cacheKey(q)
	if err == nil {
		if cq, ok := s.cache.Get(key); ok {
			res.c = cq
			res.FromCache = true
		}
	}

	if res.c == nil {
		qc, err := s.qc.Compile(q)
		if err != nil {
			return nil, err
		}

		stmts, err := s.mc.Compile(qc)
		if err != nil {
			return nil, errors.Wrap(err, "rendering sql")
		}

		res.c = &compiled{qc: qc, stmts: stmts}
		if key != 0 {
			s.cache.Set(key, res.c)
		}
	}

	for _, st := range res.c.stmts {
		res.Statements = append(res.Statements, newStatement(st))
	}
	return res, nil
}

func newStatement(st mssql.Statement) Statement {
	s := Statement{SQL: st.SQL, CommandText: st.CommandText()}
	for _, p := range st.Params {
		s.Params = append(s.Params, Param{Name: p.Name, Value: p.Value})
	}
	return s
}

// execute runs the statements of a result. Split statements share one
// connection unless they are allowed to run at the same time.
func (s *navql) execute(c context.Context, res *Result) error {
	if s.db == nil {
		return errors.New("no database to run the query on")
	}

	stmts := res.c.stmts
	results := make([]shape.Result, len(stmts))

	if s.conf.SplitConcurrency > 1 && len(stmts) > 1 {
		g, gc := errgroup.WithContext(c)
		g.SetLimit(s.conf.SplitConcurrency)

		for i := range stmts {
			i := i
			g.Go(func() (err error) {
				results[i], err = s.run(gc, s.db, res.QueryID, stmts[i])
				return
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		conn, err := s.db.Conn(c)
		if err != nil {
			return errors.Wrap(err, "opening connection")
		}
		defer conn.Close() //nolint:errcheck

		for i := range stmts {
			if results[i], err = s.run(c, conn, res.QueryID, stmts[i]); err != nil {
				return err
			}
		}
	}

	recs, err := shape.Materialize(res.c.qc, results)
	if err != nil {
		return err
	}
	res.Records = recs
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *navql) run(c context.Context, db queryer, queryID string, st mssql.Statement) (shape.Result, error) {
	res := shape.Result{Sel: st.Sel, Columns: st.Columns}

	c, span := s.startSpan(c, "navql.exec")
	defer span.End()

	s.logCommand(queryID, st.CommandText())

	text, args := bindParams(st)
	rows, err := db.QueryContext(c, text, args...)
	if err != nil {
		spanError(span, err)
		return res, errors.Wrapf(err, "query %s", queryID)
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]interface{}, len(st.Columns))
		ptrs := make([]interface{}, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			spanError(span, err)
			return res, errors.Wrapf(err, "query %s", queryID)
		}

		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}

	if err := rows.Err(); err != nil {
		spanError(span, err)
		return res, errors.Wrapf(err, "query %s", queryID)
	}

	span.SetAttributes(attribute.Int("rows", len(res.Rows)))
	return res, nil
}

// bindParams returns the statement text with ordinal parameter names
// @p1, @p2... and the values in that order. Named arguments must start
// with a letter, statement parameters start with an underscore.
func bindParams(st mssql.Statement) (string, []interface{}) {
	if len(st.Params) == 0 {
		return st.SQL, nil
	}

	args := make([]interface{}, len(st.Params))
	for i, p := range st.Params {
		args[i] = p.Value
	}
	return st.Positional, args
}

func (s *navql) startSpan(c context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(c, name)
}

func spanError(span trace.Span, err error) {
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// logCommand logs a command and hands it to the recorder. Commands are
// logged at info level in debug mode.
func (s *navql) logCommand(queryID, cmd string) {
	if s.conf.Debug {
		s.log.Infow("command", "query_id", queryID, "sql", cmd)
	} else {
		s.log.Debugw("command", "query_id", queryID, "sql", cmd)
	}
	if s.recorder != nil {
		s.recorder.Record(cmd)
	}
}
