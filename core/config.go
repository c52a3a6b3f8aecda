package core

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SupportedDBTypes lists the database types a connection can use
var SupportedDBTypes = []string{"postgres", "mysql", "mariadb", "sqlite"}

// ValidateDBType checks if the given database type is supported
func ValidateDBType(dbType string) error {
	if dbType == "" {
		return nil // Empty defaults to postgres, which is valid
	}
	for _, t := range SupportedDBTypes {
		if strings.EqualFold(dbType, t) {
			return nil
		}
	}
	return fmt.Errorf("unsupported database type %q: supported types are %s",
		dbType, strings.Join(SupportedDBTypes, ", "))
}

// Configuration for the engine core
type Config struct {
	// Number of rows a listing returns when no limit is given
	DefaultLimit int `mapstructure:"default_limit" json:"default_limit" yaml:"default_limit" validate:"min=0"`

	// Upper bound on the limit a caller can ask for. Zero means no bound
	MaxLimit int `mapstructure:"max_limit" json:"max_limit" yaml:"max_limit" validate:"min=0"`

	// Number of compiled statements kept for reuse. Defaults to 5000
	StatementCacheSize int `mapstructure:"statement_cache_size" json:"statement_cache_size" yaml:"statement_cache_size" validate:"min=0"`

	// Connections opened at startup
	Connections []ConnectionConfig `mapstructure:"connections" json:"connections" yaml:"connections" validate:"dive"`
}

// ConnectionConfig describes one named database connection. A local
// connection keeps its rows in memory and needs a schema file instead of a
// connection string.
type ConnectionConfig struct {
	Name string `mapstructure:"name" json:"name" yaml:"name" validate:"required"`

	// Database type name. Defaults to 'postgres' (options: postgres, mysql, mariadb, sqlite)
	Type string `mapstructure:"type" json:"type" yaml:"type"`

	Local      bool   `mapstructure:"local" json:"local" yaml:"local"`
	ConnString string `mapstructure:"connection_string" json:"connection_string" yaml:"connection_string" validate:"required_without=Local"`
	SchemaFile string `mapstructure:"schema_file" json:"schema_file" yaml:"schema_file" validate:"required_if=Local true"`

	// Number of fake rows generated per table for a local connection
	Seed int `mapstructure:"seed" json:"seed" yaml:"seed" validate:"min=0"`
}

var validate = validator.New()

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(c.Connections))
	for _, cc := range c.Connections {
		if err := ValidateDBType(cc.Type); err != nil {
			return fmt.Errorf("connection %q: %w", cc.Name, err)
		}
		if _, ok := names[cc.Name]; ok {
			return fmt.Errorf("duplicate connection: %s", cc.Name)
		}
		names[cc.Name] = struct{}{}
	}
	return nil
}

// limit applies the default and the maximum to a requested limit
func (c *Config) limit(n *int) *int {
	switch {
	case n == nil && c.DefaultLimit != 0:
		l := c.DefaultLimit
		n = &l
	case n == nil:
		return nil
	}
	if c.MaxLimit != 0 && *n > c.MaxLimit {
		l := c.MaxLimit
		n = &l
	}
	return n
}

func normalizeDBType(t string) string {
	if t == "" {
		return "postgres"
	}
	return strings.ToLower(t)
}
