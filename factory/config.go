package factory

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

// Cache kinds
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Scorer names
const (
	ScorerLexical = "lexical"
	ScorerBM25    = "bm25"
)

// Config of a toolset
type Config struct {
	Selector     SelectorConfig     `json:"selector" yaml:"selector"`
	Sandbox      SandboxConfig      `json:"sandbox" yaml:"sandbox"`
	Cache        CacheConfig        `json:"cache" yaml:"cache"`
	Capabilities CapabilitiesConfig `json:"capabilities" yaml:"capabilities"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	// Tools overrides the descriptors by tool name
	Tools map[string]*ToolConfig `json:"tools,omitempty" yaml:"tools,omitempty" validate:"dive"`
}

// SelectorConfig specifies the selection of deferred tools
type SelectorConfig struct {
	// TopK is the number of deferred tools exposed per request, 3 by default
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty" validate:"gte=0"`
	// Scorer is lexical or bm25, lexical by default
	Scorer string     `json:"scorer,omitempty" yaml:"scorer,omitempty" validate:"omitempty,oneof=lexical bm25"`
	BM25   BM25Config `json:"bm25" yaml:"bm25"`
}

// BM25Config specifies the BM25 parameters.
// K1 uses the default when zero, B when not set.
type BM25Config struct {
	K1 float64  `json:"k1,omitempty" yaml:"k1,omitempty" validate:"gte=0"`
	B  *float64 `json:"b,omitempty" yaml:"b,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SandboxConfig specifies the limits of orchestration scripts
type SandboxConfig struct {
	// Disabled removes run_orchestration from the catalog
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Timeout of a script run, for example 30s
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxSteps  int    `json:"max_steps,omitempty" yaml:"max_steps,omitempty" validate:"gte=0"`
	MaxOutput int    `json:"max_output,omitempty" yaml:"max_output,omitempty" validate:"gte=0"`
}

// CacheConfig specifies the score cache
type CacheConfig struct {
	// Kind is none, memory or redis
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=none memory redis"`
	MaxEntries int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty" validate:"gte=0"`
	// URL of the Redis server, for example redis://localhost:6379/0
	URL    string `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Kind redis"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// TTL of Redis entries, for example 1h
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// ToolConfig overrides a descriptor
type ToolConfig struct {
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Eager    *bool    `json:"eager,omitempty" yaml:"eager,omitempty"`
	Examples []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// CapabilitiesConfig specifies the credentials and endpoints of the built-in tools
type CapabilitiesConfig struct {
	// Timeout of HTTP requests, 10s by default
	Timeout   string          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Tavily    TavilyConfig    `json:"tavily" yaml:"tavily"`
	Wikipedia EndpointConfig  `json:"wikipedia" yaml:"wikipedia"`
	GitHub    GitHubConfig    `json:"github" yaml:"github"`
	FX        FXConfig        `json:"fx" yaml:"fx"`
	OpenMeteo OpenMeteoConfig `json:"open_meteo" yaml:"open_meteo"`
}

// EndpointConfig specifies the base URL of an API
type EndpointConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

type TavilyConfig struct {
	// APIKey is expanded from the environment, for example ${TAVILY_API_KEY}
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

type GitHubConfig struct {
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

type FXConfig struct {
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
}

type OpenMeteoConfig struct {
	GeocodingURL string `json:"geocoding_url,omitempty" yaml:"geocoding_url,omitempty" validate:"omitempty,url"`
	ForecastURL  string `json:"forecast_url,omitempty" yaml:"forecast_url,omitempty" validate:"omitempty,url"`
}

// LoggingConfig specifies the log level: debug, info, notice, warning or error
type LoggingConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=debug info notice warning warn error"`
}

// LoadConfig from file, empty file returns the default config
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values and the durations
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	for _, d := range []struct{ name, value string }{
		{"sandbox.timeout", c.Sandbox.Timeout},
		{"cache.ttl", c.Cache.TTL},
		{"capabilities.timeout", c.Capabilities.Timeout},
	} {
		if _, err := parseDuration(d.value); err != nil {
			return errors.Wrapf(err, "invalid configuration: %s", d.name)
		}
	}
	return nil
}

// LogLevel returns the configured level, INFO by default
func (c *LoggingConfig) LogLevel() xlog.LogLevel {
	switch strings.ToLower(c.Level) {
	case "debug":
		return xlog.DEBUG
	case "notice":
		return xlog.NOTICE
	case "warning", "warn":
		return xlog.WARNING
	case "error":
		return xlog.ERROR
	default:
		return xlog.INFO
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if d < 0 {
		return 0, errors.Newf("negative duration: %s", s)
	}
	return d, nil
}
