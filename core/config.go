package core

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Configuration for the navql engine
type Config struct {
	// Schema the model lives in. Tables in this schema are written without
	// a schema prefix. Defaults to dbo
	Schema string `mapstructure:"schema" json:"schema" yaml:"schema"`

	// Entities declared by hand. When empty the model is read from the
	// model file or introspected from the database
	Entities []EntityInfo `mapstructure:"entities" json:"entities" yaml:"entities" validate:"dive"`

	// YAML or JSON file holding the model, read when no entities are
	// declared
	ModelFile string `mapstructure:"model_file" json:"model_file" yaml:"model_file"`

	// Tables and columns left out of introspection
	Blocklist []string `mapstructure:"blocklist" json:"blocklist" yaml:"blocklist"`

	// Compare with null the SQL way instead of treating null as equal to null
	UseRelationalNulls bool `mapstructure:"use_relational_nulls" json:"use_relational_nulls" yaml:"use_relational_nulls"`

	// Maximum number of select nodes in one query. Defaults to 64
	MaxSelects int `mapstructure:"max_selects" json:"max_selects" yaml:"max_selects" validate:"gte=0,lte=1024"`

	// Number of split statements run at the same time. Split statements
	// run one after the other on a single connection when not above 1
	SplitConcurrency int `mapstructure:"split_concurrency" json:"split_concurrency" yaml:"split_concurrency" validate:"gte=0,lte=64"`

	// Number of compiled queries kept. Defaults to 500
	CacheSize int `mapstructure:"cache_size" json:"cache_size" yaml:"cache_size" validate:"gte=0"`

	// Log every command at info level instead of debug
	Debug bool `mapstructure:"debug" json:"debug" yaml:"debug"`
}

var configValidator = validator.New()

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// ReadInConfig reads the config file, environment variables prefixed
// with NAVQL_ override its values.
func ReadInConfig(configFile string) (*Config, error) {
	return ReadInConfigFS(configFile, afero.NewOsFs())
}

func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	vi := newViper(filepath.Dir(configFile), filepath.Base(configFile))
	vi.SetFs(fs)

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", configFile)
	}

	c := &Config{}
	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", configFile)
	}

	if c.ModelFile != "" && !filepath.IsAbs(c.ModelFile) {
		c.ModelFile = filepath.Join(filepath.Dir(configFile), c.ModelFile)
	}
	return c, c.validate()
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := viper.New()

	vi.SetEnvPrefix("NAVQL")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))
	if ext := filepath.Ext(configFile); ext != "" {
		vi.SetConfigType(strings.TrimPrefix(ext, "."))
	}
	vi.AddConfigPath(configPath)

	vi.SetDefault("schema", "dbo")
	vi.SetDefault("max_selects", 64)
	vi.SetDefault("cache_size", 500)
	return vi
}

// readModelFile reads a model written as YAML or JSON.
func readModelFile(fs afero.Fs, path string) (*ModelInfo, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", path)
	}

	info := &ModelInfo{}
	if err := yaml.Unmarshal(b, info); err != nil {
		return nil, errors.Wrapf(err, "decoding model %s", path)
	}

	if len(info.Entities) == 0 {
		return nil, errors.Wrapf(ErrNoModel, "model %s has no entities", path)
	}
	return info, nil
}
