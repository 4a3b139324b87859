// Package config loads process configuration from the environment, .env
// files and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/kiosk-proxy/pkg/logging"
)

// Defaults.
const (
	DefaultPort            = "8888"
	DefaultDocRoot         = "."
	DefaultPCEndpoint      = "http://192.168.0.118:8085/data.json"
	DefaultStocksAPIBase   = "https://api.polygon.io"
	DefaultRateLimitPerMin = 120
)

// EnvConfigFile names the YAML file to load, if any.
const EnvConfigFile = "BTCT_CONFIG"

// Config holds all application configuration.
type Config struct {
	Port    string `yaml:"port"`
	DocRoot string `yaml:"doc_root"`
	PC      struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"pc"`
	Stocks struct {
		APIKey        string `yaml:"api_key"`
		APIBase       string `yaml:"api_base"`
		AllowQueryKey bool   `yaml:"allow_query_key"`
	} `yaml:"stocks"`
	// RateLimitPerMin is requests per client IP per bucket per minute; 0 disables.
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	RedisURL        string   `yaml:"redis_url"`
	CORSOrigins     []string `yaml:"cors_origins"`
	Log             struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Port:            DefaultPort,
		DocRoot:         DefaultDocRoot,
		RateLimitPerMin: DefaultRateLimitPerMin,
	}
	cfg.PC.Endpoint = DefaultPCEndpoint
	cfg.Stocks.APIBase = DefaultStocksAPIBase
	cfg.Log.Level = string(logging.LevelInfo)
	return cfg
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
// With no arguments it loads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load starts from Default, applies the YAML file at path (skipped when path
// is empty or the file does not exist), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Stocks.APIBase = strings.TrimRight(strings.TrimSpace(cfg.Stocks.APIBase), "/")
	cfg.PC.Endpoint = strings.TrimSpace(cfg.PC.Endpoint)
	cfg.Stocks.APIKey = strings.TrimSpace(cfg.Stocks.APIKey)
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.DocRoot == "" {
		cfg.DocRoot = DefaultDocRoot
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("BTCT_DOC_ROOT"); v != "" {
		c.DocRoot = v
	}
	if v := os.Getenv("BTCT_PC_ENDPOINT"); v != "" {
		c.PC.Endpoint = v
	}
	if v := os.Getenv("BTCT_STOCKS_API_KEY"); v != "" {
		c.Stocks.APIKey = v
	}
	if v := os.Getenv("BTCT_STOCKS_API_BASE"); v != "" {
		c.Stocks.APIBase = v
	}
	if v := os.Getenv("BTCT_ALLOW_STOCKS_KEY_QUERY"); v != "" {
		c.Stocks.AllowQueryKey = envBool(v)
	}
	if v := os.Getenv("BTCT_RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BTCT_RATE_LIMIT_PER_MIN: %w", err)
		}
		c.RateLimitPerMin = n
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("BTCT_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		c.Log.Pretty = envBool(v)
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be 1-65535 (got %q)", c.Port)
	}
	if err := validateHTTPURL("pc.endpoint", c.PC.Endpoint); err != nil {
		return err
	}
	if err := validateHTTPURL("stocks.api_base", c.Stocks.APIBase); err != nil {
		return err
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("rate_limit_per_min must not be negative (got %d)", c.RateLimitPerMin)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// HasStocksKey reports whether a server-side market-data key is configured.
func (c *Config) HasStocksKey() bool {
	return c.Stocks.APIKey != ""
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", field, raw)
	}
	return nil
}

// envBool accepts "1" and the strconv.ParseBool spellings of true.
func envBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
