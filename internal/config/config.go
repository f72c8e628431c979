// Package config loads and validates the gateway configuration: server
// settings plus one IndexConfig per public index handle.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Engine kinds accepted in IndexConfig.Engine.
const (
	EngineElasticsearch = "elasticsearch"
	EngineOpenSearch    = "opensearch"
	EngineMeilisearch   = "meilisearch"
	EngineTypesense     = "typesense"
)

// FieldConfig describes one public field of an index.
type FieldConfig struct {
	Weight     float64 `yaml:"weight" mapstructure:"weight"`
	Searchable bool    `yaml:"searchable" mapstructure:"searchable"`
	Alias      string  `yaml:"alias" mapstructure:"alias"` // backend field name
	Nested     string  `yaml:"nested" mapstructure:"nested"`
	Type       string  `yaml:"type" mapstructure:"type"` // "date" marks epoch-second fields (Typesense)
}

// Defaults are per-index request defaults applied when a parameter is absent.
type Defaults struct {
	PerPage      int      `yaml:"perPage" mapstructure:"perPage"`
	Facets       []string `yaml:"facets" mapstructure:"facets"`
	Highlight    []string `yaml:"highlight" mapstructure:"highlight"` // ["*"] highlights everything
	SuggestField string   `yaml:"suggestField" mapstructure:"suggestField"`
}

// IndexConfig describes one backend index behind a public handle.
type IndexConfig struct {
	Engine   string                 `yaml:"engine" mapstructure:"engine"`
	Host     string                 `yaml:"host" mapstructure:"host"`
	APIKey   string                 `yaml:"apiKey" mapstructure:"apiKey"`
	Username string                 `yaml:"username" mapstructure:"username"`
	Password string                 `yaml:"password" mapstructure:"password"`
	Insecure bool                   `yaml:"insecure" mapstructure:"insecure"`
	Indexes  []string               `yaml:"indexes" mapstructure:"indexes"`
	Defaults Defaults               `yaml:"defaults" mapstructure:"defaults"`
	Fields   map[string]FieldConfig `yaml:"fields" mapstructure:"fields"`
}

// IndexName collapses the backing index list to the comma-separated form the
// elastic-like engines accept for cross-index search.
func (c *IndexConfig) IndexName() string {
	return strings.Join(c.Indexes, ",")
}

// MultiIndex reports whether more than one backing index is configured.
func (c *IndexConfig) MultiIndex() bool {
	return len(c.Indexes) > 1
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Config is the full gateway configuration.
type Config struct {
	Port        int                     `yaml:"port" mapstructure:"port"`
	APIKey      string                  `yaml:"apiKey" mapstructure:"apiKey"`
	CORSOrigins []string                `yaml:"corsOrigins" mapstructure:"corsOrigins"`
	RedisURL    string                  `yaml:"redisUrl" mapstructure:"redisUrl"`
	Server      ServerConfig            `yaml:"server" mapstructure:"server"`
	Logging     LoggingConfig           `yaml:"logging" mapstructure:"logging"`
	Indexes     map[string]*IndexConfig `yaml:"indexes" mapstructure:"indexes"`
}

var (
	envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	handlePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ExpandEnv replaces every ${VAR} sequence with the process environment
// value. A missing variable is a startup error, never an empty string.
func ExpandEnv(raw []byte) ([]byte, error) {
	var missing []string
	out := envVarPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := string(envVarPattern.FindSubmatch(m)[1])
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return []byte(val)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Load reads configuration from the provided path and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded, err := ExpandEnv(raw)
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment variables override
	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Process-environment fallbacks for deployments that skip the YAML keys.
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the schema constraints the gateway cannot serve without.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.Indexes) == 0 {
		return errors.New("no indexes configured")
	}
	for handle, idx := range c.Indexes {
		if err := idx.validate(handle); err != nil {
			return err
		}
	}
	return nil
}

func (c *IndexConfig) validate(handle string) error {
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("index handle %q is not URL-safe", handle)
	}
	switch c.Engine {
	case EngineElasticsearch, EngineOpenSearch, EngineMeilisearch, EngineTypesense:
	default:
		return fmt.Errorf("index %q: unknown engine %q", handle, c.Engine)
	}
	if c.Host == "" {
		return fmt.Errorf("index %q: host is required", handle)
	}
	if len(c.Indexes) == 0 {
		return fmt.Errorf("index %q: at least one backing index name is required", handle)
	}
	if c.MultiIndex() && (c.Engine == EngineMeilisearch || c.Engine == EngineTypesense) {
		return fmt.Errorf("index %q: engine %q does not support multiple backing indexes", handle, c.Engine)
	}
	if d := c.Defaults.PerPage; d < 0 || d > 100 {
		return fmt.Errorf("index %q: defaults.perPage must be within 1..100, or 0 to leave it unset", handle)
	}
	seen := make(map[string]string)
	for name, f := range c.Fields {
		if f.Alias == "" {
			continue
		}
		if prev, ok := seen[f.Alias]; ok {
			return fmt.Errorf("index %q: fields %q and %q both map to backend field %q", handle, prev, name, f.Alias)
		}
		seen[f.Alias] = name
	}
	return nil
}
