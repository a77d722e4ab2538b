// Package serv runs navql as an HTTP service: query documents are posted
// to it and come back as T-SQL statements or as shaped records.
package serv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navql/navql/core"
	"github.com/navql/navql/internal/util"
	"go.uber.org/zap"
)

const serverName = "navql"

type Service struct {
	log  *zap.SugaredLogger // logger
	zlog *zap.Logger        // faster logger
	conf *Config            // parsed config
	db   *sql.DB            // database connection pool
	nq   *core.NavQL
	srv  *http.Server
}

type Option func(*Service) error

// OptionSetDB sets the database the service runs queries on. No connection
// is opened from the config when set.
func OptionSetDB(db *sql.DB) Option {
	return func(s *Service) error {
		s.db = db
		return nil
	}
}

func OptionSetLogger(zlog *zap.Logger) Option {
	return func(s *Service) error {
		s.zlog = zlog
		return nil
	}
}

// NewService creates the service. Without a database the service only
// compiles, running a query fails.
func NewService(conf *Config, options ...Option) (*Service, error) {
	s := &Service{conf: conf}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if s.zlog == nil {
		s.zlog = util.NewLoggerWithLevel(conf.LogFormat == "json", conf.LogLevel)
	}
	s.log = s.zlog.Sugar()

	if s.db == nil && (conf.DB.ConnString != "" || conf.DB.DBName != "") {
		db, err := NewDB(conf, s.log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
	}

	nq, err := core.NewNavQL(&conf.Core, s.db, core.OptionSetLogger(s.log))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	s.nq = nq

	return s, nil
}

// NavQL returns the engine behind the service.
func (s *Service) NavQL() *core.NavQL {
	return s.nq
}

// Start runs the HTTP server until an interrupt or terminate signal.
func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.conf.WatchAndReload && s.conf.ModelFile != "" {
		if err := s.nq.WatchModel(ctx, ""); err != nil {
			return err
		}
	}

	hp := s.conf.HostPort
	if hp == "" {
		hp = defaultHP
	}

	h, err := s.Handler()
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Addr:              hp,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warnf("http: %s", err)
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.log.Error(err)
			}
		}
	})

	s.log.Infow(serverName+" started", "host_port", hp, "app_name", s.conf.AppName, "production", s.conf.Production)

	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-idleConnsClosed
	return nil
}
