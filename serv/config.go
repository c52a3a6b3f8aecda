package serv

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dosco/restjin/core"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Core = core.Config

// Configuration for the restjin service
type Config struct {
	// Configuration for the engine core
	Core `mapstructure:",squash"`

	// Configuration for the HTTP service
	Serv `mapstructure:",squash"`

	hostPort string
	viper    *viper.Viper
}

// Configuration for the HTTP service
type Serv struct {
	// Application name is used in log and debug messages
	AppName string `mapstructure:"app_name"`

	// When enabled the service logs in JSON and hides error details
	Production bool

	// The default path to find all configuration files and schema files
	ConfigPath string `mapstructure:"config_path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug error warn info"`

	// Logging Format: "auto" (default, colored console in dev, JSON in production),
	// "json" (always JSON), or "simple" (always colored console)
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=auto json simple"`

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port"`

	// Host to run the service on
	Host string

	// Port to run the service on
	Port string

	// Enables HTTP compression
	HTTPGZip bool `mapstructure:"http_compress"`

	// Sets the API rate limits
	RateLimiter RateLimiter `mapstructure:"rate_limiter"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers"`

	// Enables debug logs for CORS
	DebugCORS bool `mapstructure:"cors_debug"`

	// Sets the HTTP Cache-Control header on read responses
	CacheControl string `mapstructure:"cache_control"`

	// Database pool settings shared by every SQL connection
	DB Database `mapstructure:"database"`
}

// Database pool settings
type Database struct {
	// Size of database connection pool
	PoolSize int `mapstructure:"pool_size" validate:"min=0"`

	// Max number of active database connections allowed
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// Max time after which idle database connections are closed
	MaxConnIdleTime time.Duration `mapstructure:"max_connection_idle_time"`

	// Max time after which database connections are not reused
	MaxConnLifeTime time.Duration `mapstructure:"max_connection_life_time"`

	// Database ping timeout is used for db health checking
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

// RateLimiter sets the API rate limits
type RateLimiter struct {
	// The number of events per second
	Rate float64 `validate:"min=0"`

	// Bucket a burst of at most 'bucket' number of events
	Bucket int `validate:"min=0"`

	// The header that contains the client ip
	IPHeader string `mapstructure:"ip_header"`
}

var validate = validator.New()

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable. This is the best way to create a new restjin config.
func ReadInConfig(configFile string) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)

		if err := vi.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read inherited config '%s'", pcf)
		}

		if value := vi.GetString("inherits"); value != "" {
			return nil, errors.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	c, err := decodeConfig(vi)
	if err != nil {
		return nil, err
	}
	if c.ConfigPath == "" {
		c.ConfigPath = cp
	}
	return c, nil
}

// NewConfig function creates a new restjin configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	vi := newViperWithDefaults()
	vi.SetConfigType(format)

	if err := vi.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	return decodeConfig(vi)
}

func decodeConfig(vi *viper.Viper) (*Config, error) {
	c := &Config{viper: vi}

	if err := vi.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the service settings and the engine settings
func (c *Config) Validate() error {
	if err := validate.Struct(c.Serv); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return c.Core.Validate()
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("host_port", defaultHP)
	vi.SetDefault("http_compress", true)

	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")

	vi.SetDefault("default_limit", 20)
	vi.SetDefault("max_limit", 1000)

	vi.SetDefault("database.pool_size", 10)
	vi.SetDefault("database.ping_timeout", "5s")

	vi.SetDefault("env", "development")

	vi.BindEnv("env", "GO_ENV") //nolint:errcheck
	vi.BindEnv("host", "HOST")  //nolint:errcheck
	vi.BindEnv("port", "PORT")  //nolint:errcheck

	// RJ_LOG_LEVEL overrides log_level, RJ_DATABASE_POOL_SIZE overrides
	// database.pool_size
	vi.SetEnvPrefix("RJ")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// AbsolutePath returns the absolute path of the file
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// rateLimiterEnable returns true if the rate limiter is enabled
func (c *Config) rateLimiterEnable() bool {
	return c.RateLimiter.Rate > 0 && c.RateLimiter.Bucket > 0
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
// Returns true if log_format is "json" OR if log_format is "auto" and production mode is enabled.
// Returns false otherwise (colored console output for dev mode).
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	if c.LogFormat == "auto" && c.Serv.Production {
		return true
	}
	return false
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
