package serv

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/denisenkom/go-mssqldb"
	"go.uber.org/zap"
)

// ConnString returns the sqlserver:// connection url for the database
// config.
func ConnString(conf *Config) string {
	if cs := conf.DB.ConnString; cs != "" {
		return cs
	}

	q := url.Values{}
	if conf.DB.DBName != "" {
		q.Set("database", conf.DB.DBName)
	}
	if conf.DB.Encrypt != "" {
		q.Set("encrypt", conf.DB.Encrypt)
	}
	if conf.AppName != "" {
		q.Set("app name", conf.AppName)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conf.DB.User, conf.DB.Password),
		Host:     fmt.Sprintf("%s:%d", conf.DB.Host, conf.DB.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// NewDB opens the connection pool and waits for the server to answer,
// retrying up to conf.DB.MaxRetries times.
func NewDB(conf *Config, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", ConnString(conf))
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}

	if conf.DB.PoolSize != 0 {
		db.SetMaxIdleConns(conf.DB.PoolSize)
		db.SetMaxOpenConns(conf.DB.PoolSize)
	}

	timeout := conf.DB.PingTimeout
	if timeout == 0 {
		timeout = time.Minute
	}

	ping := func() error {
		c, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return db.PingContext(c)
	}

	err = retry.Do(ping,
		retry.Attempts(uint(conf.DB.MaxRetries+1)),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("database ping (attempt %d): %s", n+1, err)
		}))

	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}
