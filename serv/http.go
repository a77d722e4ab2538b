package serv

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/navql/navql/core"
)

const maxReadBytes = 100000 // 100Kb

// apiReq is a query document with its variables. The document is YAML
// or JSON text, or a JSON object.
type apiReq struct {
	Query json.RawMessage        `json:"query"`
	Vars  map[string]interface{} `json:"variables"`
}

type apiResp struct {
	QueryID    string        `json:"query_id,omitempty"`
	Statements []apiStmt     `json:"statements,omitempty"`
	Data       []core.Record `json:"data,omitempty"`
	FromCache  bool          `json:"from_cache,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type apiStmt struct {
	SQL         string                 `json:"sql"`
	Params      map[string]interface{} `json:"params,omitempty"`
	CommandText string                 `json:"command_text"`
}

var errEmptyQuery = errors.New("empty query document")

func (s *Service) apiV1Compile(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, false)
}

func (s *Service) apiV1Query(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, true)
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request, run bool) {
	start := time.Now()
	ct := r.Context()

	doc, vars, err := readRequest(r)
	if err != nil {
		s.renderErr(w, http.StatusBadRequest, err)
		return
	}

	var res *core.Result
	if run {
		res, err = s.nq.QueryDocument(ct, doc, vars)
	} else {
		res, err = s.nq.CompileDocument(ct, doc, vars)
	}

	if err != nil {
		s.renderErr(w, errorStatus(err), err)
		return
	}

	if !run && s.conf.CacheControl != "" {
		w.Header().Set(headers.CacheControl, s.conf.CacheControl)
	}

	s.render(w, http.StatusOK, newResp(res))

	s.zlog.Sugar().Infow("success",
		"query_id", res.QueryID,
		"statements", len(res.Statements),
		"from_cache", res.FromCache,
		"duration", time.Since(start))
}

func readRequest(r *http.Request) ([]byte, map[string]interface{}, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxReadBytes))
	if err != nil {
		return nil, nil, err
	}
	defer r.Body.Close()

	var req apiReq
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, nil, err
	}

	if len(req.Query) == 0 || string(req.Query) == "null" {
		return nil, nil, errEmptyQuery
	}

	// a string holds the document text, anything else is the document
	var text string
	if err := json.Unmarshal(req.Query, &text); err == nil {
		return []byte(text), req.Vars, nil
	}
	return req.Query, req.Vars, nil
}

func newResp(res *core.Result) apiResp {
	resp := apiResp{
		QueryID:   res.QueryID,
		Data:      res.Records,
		FromCache: res.FromCache,
	}

	for _, st := range res.Statements {
		as := apiStmt{SQL: st.SQL, CommandText: st.CommandText}
		if len(st.Params) != 0 {
			as.Params = make(map[string]interface{}, len(st.Params))
			for _, p := range st.Params {
				as.Params[p.Name] = p.Value
			}
		}
		resp.Statements = append(resp.Statements, as)
	}
	return resp
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidQuery), errors.Is(err, core.ErrUnknownEntity):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Service) apiV1Model(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, s.nq.ModelInfo())
}

//nolint:errcheck
func (s *Service) render(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(headers.ContentType, "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Service) renderErr(w http.ResponseWriter, status int, err error) {
	s.zlog.Sugar().Errorw("request failed", "status", status, "error", err)
	s.render(w, status, apiResp{Error: err.Error()})
}
