package sdata

// ModelInfo is the declarative description of a model, either written by
// hand in the config or produced by database introspection.
type ModelInfo struct {
	Schema   string       `mapstructure:"schema" json:"schema,omitempty" yaml:"schema,omitempty"`
	Entities []EntityInfo `mapstructure:"entities" json:"entities" yaml:"entities"`
}

type EntityInfo struct {
	Name            string           `mapstructure:"name" json:"name" yaml:"name"`
	Table           string           `mapstructure:"table" json:"table,omitempty" yaml:"table,omitempty"`
	Schema          string           `mapstructure:"schema" json:"schema,omitempty" yaml:"schema,omitempty"`
	Columns         []ColumnInfo     `mapstructure:"columns" json:"columns" yaml:"columns"`
	ForeignKeys     []ForeignKeyInfo `mapstructure:"foreign_keys" json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	SkipNavigations []SkipInfo       `mapstructure:"skip_navigations" json:"skip_navigations,omitempty" yaml:"skip_navigations,omitempty"`
}

type ColumnInfo struct {
	Name     string `mapstructure:"name" json:"name" yaml:"name"`
	Type     string `mapstructure:"type" json:"type,omitempty" yaml:"type,omitempty"`
	Nullable bool   `mapstructure:"nullable" json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Key      bool   `mapstructure:"key" json:"key,omitempty" yaml:"key,omitempty"`
}

// ForeignKeyInfo is declared on the dependent entity. Navigation names the
// reference on the dependent side and Inverse the navigation on the principal
// side. An empty name asks for the naming convention, "-" for no navigation.
type ForeignKeyInfo struct {
	Name       string   `mapstructure:"name" json:"name,omitempty" yaml:"name,omitempty"`
	Columns    []string `mapstructure:"columns" json:"columns" yaml:"columns"`
	References string   `mapstructure:"references" json:"references" yaml:"references"`
	RefColumns []string `mapstructure:"ref_columns" json:"ref_columns,omitempty" yaml:"ref_columns,omitempty"`
	Navigation string   `mapstructure:"navigation" json:"navigation,omitempty" yaml:"navigation,omitempty"`
	Inverse    string   `mapstructure:"inverse" json:"inverse,omitempty" yaml:"inverse,omitempty"`
	Unique     bool     `mapstructure:"unique" json:"unique,omitempty" yaml:"unique,omitempty"`
	Required   *bool    `mapstructure:"required" json:"required,omitempty" yaml:"required,omitempty"`
}

// SkipInfo declares a many-to-many navigation through a join entity.
// Columns picks the join entity foreign key pointing back at the declaring
// entity when the join entity has more than one candidate.
type SkipInfo struct {
	Name    string   `mapstructure:"name" json:"name" yaml:"name"`
	Target  string   `mapstructure:"target" json:"target" yaml:"target"`
	Through string   `mapstructure:"through" json:"through" yaml:"through"`
	Inverse string   `mapstructure:"inverse" json:"inverse,omitempty" yaml:"inverse,omitempty"`
	Columns []string `mapstructure:"columns" json:"columns,omitempty" yaml:"columns,omitempty"`
}

const noNavigation = "-"
