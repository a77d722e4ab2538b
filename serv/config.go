package serv

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/navql/navql/core"
	"github.com/navql/navql/internal/util"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

type Core = core.Config

// Config struct holds the navql service config values
type Config struct {
	// Core holds config values for the navql engine
	Core `mapstructure:",squash"`

	// Serv holds config values for the navql service
	Serv `mapstructure:",squash"`
}

// Serv struct contains config values used by the navql service
type Serv struct {
	// AppName is the name of your application used in log messages
	AppName string `mapstructure:"app_name"`

	// Production disables the debug endpoints
	Production bool `mapstructure:"production"`

	// LogLevel can be debug, error, warn, info
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogFormat can be json or simple
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json simple"`

	// HostPort to run the service on. Example localhost:8080
	HostPort string `mapstructure:"host_port"`

	// HTTPGZip enables HTTP compression
	HTTPGZip bool `mapstructure:"http_compress"`

	// WatchAndReload reloads the model when the model file changes
	WatchAndReload bool `mapstructure:"reload_on_model_change"`

	// EnableTracing wraps the handlers with OpenTelemetry
	EnableTracing bool `mapstructure:"enable_tracing"`

	// AllowedOrigins sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// AllowedHeaders sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// DebugCORS enables debug logs for cors
	DebugCORS bool `mapstructure:"cors_debug"`

	// CacheControl sets the HTTP Cache-Control header of compile responses
	CacheControl string `mapstructure:"cache_control"`

	// DB struct contains the SQL Server connection settings
	DB struct {
		// ConnString is used as is when set, the other values are ignored
		ConnString  string        `mapstructure:"connection_string"`
		Host        string        `mapstructure:"host"`
		Port        uint16        `mapstructure:"port"`
		DBName      string        `mapstructure:"dbname"`
		User        string        `mapstructure:"user"`
		Password    string        `mapstructure:"password"`
		PoolSize    int           `mapstructure:"pool_size" validate:"gte=0"`
		MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
		Encrypt     string        `mapstructure:"encrypt" validate:"omitempty,oneof=disable false true"`
	} `mapstructure:"database"`

	RateLimiter struct {
		// Rate is the number of requests allowed per second and ip
		Rate     float64 `mapstructure:"rate" validate:"gte=0"`
		Bucket   int     `mapstructure:"bucket" validate:"gte=0"`
		IPHeader string  `mapstructure:"ip_header"`
	} `mapstructure:"rate_limiter"`
}

const (
	defaultHP  = "0.0.0.0:8080"
	envPrefix  = "NAVQL_"
	configName = "dev"
)

var servValidator = validator.New()

// ReadInConfig reads in the config file for the environment specified
// in the GO_ENV environment variable.
func ReadInConfig(configFile string) (*Config, error) {
	return ReadInConfigFS(configFile, afero.NewOsFs())
}

func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)

	vi := newViper(cp, filepath.Base(configFile))
	vi.SetFs(fs)

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", configFile)
	}

	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, envPrefix) {
			continue
		}
		if v := strings.SplitN(e, "=", 2); len(v) == 2 {
			util.SetKeyValue(vi, v[0], v[1])
		}
	}

	c := &Config{}
	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", configFile)
	}

	if c.ModelFile != "" && !filepath.IsAbs(c.ModelFile) {
		c.ModelFile = filepath.Join(cp, c.ModelFile)
	}

	if err := servValidator.Struct(c.Serv); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := viper.New()

	vi.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	ext := filepath.Ext(configFile)
	vi.SetConfigName(strings.TrimSuffix(configFile, ext))
	if ext != "" {
		vi.SetConfigType(strings.TrimPrefix(ext, "."))
	}
	vi.AddConfigPath(configPath)
	vi.AddConfigPath("./config")

	vi.SetDefault("host_port", defaultHP)
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "simple")
	vi.SetDefault("schema", "dbo")
	vi.SetDefault("max_selects", 64)
	vi.SetDefault("cache_size", 500)

	vi.SetDefault("database.host", "localhost")
	vi.SetDefault("database.port", 1433)
	vi.SetDefault("database.user", "sa")
	vi.SetDefault("database.max_retries", 5)
	vi.SetDefault("database.ping_timeout", time.Minute)

	vi.SetDefault("rate_limiter.bucket", 20)
	return vi
}

// GetConfigName returns the name of the config file for the GO_ENV
// environment.
func GetConfigName() string {
	ge := strings.ToLower(os.Getenv("GO_ENV"))

	switch {
	case strings.HasPrefix(ge, "pro"):
		return "prod"

	case strings.HasPrefix(ge, "sta"):
		return "stage"

	case strings.HasPrefix(ge, "tes"):
		return "test"
	}

	return configName
}

func (c *Config) rateLimiterEnable() bool {
	return c.RateLimiter.Rate > 0 && c.RateLimiter.Bucket > 0
}
