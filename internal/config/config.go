// Package config loads the settings shared by every clara command.
//
// Values come, in increasing precedence, from built-in defaults, a YAML file
// (clara.yaml in the working directory or ./.clara, or --config), CLARA_*
// environment variables (CLARA_STORE_BACKEND, CLARA_PROVIDERS_ATLAS, ...) and
// command-line flags bound with BindFlags.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLARA"

// Simulated selects the built-in simulated provider instead of an MCP endpoint.
const Simulated = "simulated"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete clara configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Providers struct {
		// Atlas and Common are "simulated" or an MCP endpoint understood by mcp.Dial.
		Atlas  string `mapstructure:"atlas"`
		Common string `mapstructure:"common"`
		// Score overrides the recommended solution score of the simulated COMMON provider.
		Score int `mapstructure:"score"`
	} `mapstructure:"providers"`

	Engine struct {
		CallTimeout  time.Duration `mapstructure:"call_timeout"`
		HaltDegraded bool          `mapstructure:"halt_degraded"`
		Planner      string        `mapstructure:"planner"`
		Catalog      string        `mapstructure:"catalog"`
	} `mapstructure:"engine"`

	Store struct {
		Backend string        `mapstructure:"backend"`
		Dir     string        `mapstructure:"dir"`
		LockTTL time.Duration `mapstructure:"lock_ttl"`
		Redis   struct {
			Addr     string        `mapstructure:"addr"`
			Password string        `mapstructure:"password"`
			DB       int           `mapstructure:"db"`
			Prefix   string        `mapstructure:"prefix"`
			TTL      time.Duration `mapstructure:"ttl"`
		} `mapstructure:"redis"`
	} `mapstructure:"store"`

	Security struct {
		PII           bool     `mapstructure:"pii"`
		PIIPatterns   []string `mapstructure:"pii_patterns"`
		EncryptionKey string   `mapstructure:"encryption_key"`
		FallbackKeys  []string `mapstructure:"fallback_keys"`
	} `mapstructure:"security"`

	HTTP struct {
		Addr    string `mapstructure:"addr"`
		Metrics bool   `mapstructure:"metrics"`
	} `mapstructure:"http"`

	MCP struct {
		Transport string `mapstructure:"transport"`
		Addr      string `mapstructure:"addr"`
		BaseURL   string `mapstructure:"base_url"`
	} `mapstructure:"mcp"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("providers.atlas", Simulated)
	v.SetDefault("providers.common", Simulated)
	v.SetDefault("providers.score", 0)

	v.SetDefault("engine.call_timeout", 30*time.Second)
	v.SetDefault("engine.halt_degraded", false)
	v.SetDefault("engine.planner", "declared")
	v.SetDefault("engine.catalog", "")

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", ".clara/workflows")
	v.SetDefault("store.lock_ttl", 30*time.Second)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "clara:workflow:")
	v.SetDefault("store.redis.ttl", time.Duration(0))

	v.SetDefault("security.pii", false)
	v.SetDefault("security.pii_patterns", []string{})
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.fallback_keys", []string{})

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics", true)

	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.addr", ":8081")
	v.SetDefault("mcp.base_url", "http://localhost:8081")
}

// Loader reads the configuration.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment overrides set up.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlags binds command-line flags to configuration keys (key -> flag name).
// A flag only overrides the key when set explicitly.
func (l *Loader) BindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("bind %s: unknown flag --%s", key, name)
		}
		if err := l.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads path, or looks for clara.yaml when path is empty. A missing
// default file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("clara")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath(".clara")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file used by the last Load, if any.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Load is a shortcut for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Validate checks the values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	switch c.Engine.Planner {
	case "declared", "provider":
	default:
		errs = append(errs, fmt.Errorf("engine.planner: unknown planner %q", c.Engine.Planner))
	}
	switch c.MCP.Transport {
	case "stdio", "sse":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport: unknown transport %q", c.MCP.Transport))
	}
	if c.Engine.CallTimeout < 0 {
		errs = append(errs, errors.New("engine.call_timeout: must not be negative"))
	}
	if c.Providers.Score < 0 || c.Providers.Score > 100 {
		errs = append(errs, fmt.Errorf("providers.score: %d outside 0..100", c.Providers.Score))
	}
	if c.Providers.Atlas == "" || c.Providers.Common == "" {
		errs = append(errs, errors.New("providers: atlas and common are required"))
	}
	if c.Security.EncryptionKey != "" {
		if _, err := DecodeKey(c.Security.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("security.encryption_key: %w", err))
		}
	}
	for i, k := range c.Security.FallbackKeys {
		if _, err := DecodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("security.fallback_keys[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// DecodeKey decodes a 32-byte key given as 64 hex characters or base64.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, errors.New("key must be 32 bytes, hex or base64 encoded")
}
