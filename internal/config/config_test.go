package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var configEnvKeys = []string{
	"PORT", "BTCT_DOC_ROOT", "BTCT_PC_ENDPOINT", "BTCT_STOCKS_API_KEY",
	"BTCT_STOCKS_API_BASE", "BTCT_ALLOW_STOCKS_KEY_QUERY", "BTCT_RATE_LIMIT_PER_MIN",
	"REDIS_URL", "BTCT_CORS_ORIGINS", "LOG_LEVEL", "LOG_PRETTY",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8888" {
		t.Errorf("Port = %q, want 8888", cfg.Port)
	}
	if cfg.PC.Endpoint != DefaultPCEndpoint {
		t.Errorf("PC.Endpoint = %q, want %q", cfg.PC.Endpoint, DefaultPCEndpoint)
	}
	if cfg.Stocks.APIBase != "https://api.polygon.io" {
		t.Errorf("Stocks.APIBase = %q", cfg.Stocks.APIBase)
	}
	if cfg.Stocks.AllowQueryKey {
		t.Error("AllowQueryKey should default to false")
	}
	if cfg.RateLimitPerMin != 120 {
		t.Errorf("RateLimitPerMin = %d, want 120", cfg.RateLimitPerMin)
	}
	if cfg.HasStocksKey() {
		t.Error("HasStocksKey() = true with no key configured")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("BTCT_PC_ENDPOINT", "http://10.0.0.5:8085/data.json")
	t.Setenv("BTCT_STOCKS_API_KEY", " secret ")
	t.Setenv("BTCT_STOCKS_API_BASE", "https://example.test///")
	t.Setenv("BTCT_ALLOW_STOCKS_KEY_QUERY", "1")
	t.Setenv("BTCT_RATE_LIMIT_PER_MIN", "0")
	t.Setenv("BTCT_CORS_ORIGINS", "https://a.test, https://b.test,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr() != ":9000" {
		t.Errorf("Addr() = %q, want :9000", cfg.Addr())
	}
	if cfg.PC.Endpoint != "http://10.0.0.5:8085/data.json" {
		t.Errorf("PC.Endpoint = %q", cfg.PC.Endpoint)
	}
	if cfg.Stocks.APIKey != "secret" {
		t.Errorf("Stocks.APIKey = %q, want trimmed", cfg.Stocks.APIKey)
	}
	if cfg.Stocks.APIBase != "https://example.test" {
		t.Errorf("Stocks.APIBase = %q, want trailing slashes trimmed", cfg.Stocks.APIBase)
	}
	if !cfg.Stocks.AllowQueryKey {
		t.Error("AllowQueryKey = false, want true")
	}
	if cfg.RateLimitPerMin != 0 {
		t.Errorf("RateLimitPerMin = %d, want 0", cfg.RateLimitPerMin)
	}
	if want := []string{"https://a.test", "https://b.test"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_AllowQueryKeyValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"0", false},
		{"yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("BTCT_ALLOW_STOCKS_KEY_QUERY", tt.value)

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.Stocks.AllowQueryKey != tt.want {
				t.Errorf("AllowQueryKey = %v, want %v", cfg.Stocks.AllowQueryKey, tt.want)
			}
		})
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "kiosk.yaml", `
port: "7000"
doc_root: /srv/kiosk
pc:
  endpoint: http://collector.local/data.json
stocks:
  api_key: from-yaml
  allow_query_key: true
rate_limit_per_min: 30
log:
  level: warn
`)
	t.Setenv("BTCT_STOCKS_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "7000" || cfg.DocRoot != "/srv/kiosk" {
		t.Errorf("Port/DocRoot = %q/%q", cfg.Port, cfg.DocRoot)
	}
	if cfg.PC.Endpoint != "http://collector.local/data.json" {
		t.Errorf("PC.Endpoint = %q", cfg.PC.Endpoint)
	}
	if cfg.Stocks.APIKey != "from-env" {
		t.Errorf("Stocks.APIKey = %q, env should win over YAML", cfg.Stocks.APIKey)
	}
	if cfg.Stocks.APIBase != DefaultStocksAPIBase {
		t.Errorf("Stocks.APIBase = %q, want default kept", cfg.Stocks.APIBase)
	}
	if !cfg.Stocks.AllowQueryKey || cfg.RateLimitPerMin != 30 || cfg.Log.Level != "warn" {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing yaml file is ignored", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
			t.Errorf("Load() error: %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "bad.yaml", "port: [unclosed")
		if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Errorf("Load() error = %v, want parse config error", err)
		}
	})

	t.Run("non-numeric rate limit", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BTCT_RATE_LIMIT_PER_MIN", "lots")
		if _, err := Load(""); err == nil {
			t.Error("Load() should fail on non-numeric rate limit")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "ftp collector", mutate: func(c *Config) { c.PC.Endpoint = "ftp://x/data.json" }, wantErr: "pc.endpoint"},
		{name: "relative api base", mutate: func(c *Config) { c.Stocks.APIBase = "api.polygon.io" }, wantErr: "stocks.api_base"},
		{name: "negative rate limit", mutate: func(c *Config) { c.RateLimitPerMin = -1 }, wantErr: "rate_limit_per_min"},
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, wantErr: "port"},
		{name: "port out of range", mutate: func(c *Config) { c.Port = "70000" }, wantErr: "port"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never replaces a variable that exists, even when empty.
	os.Unsetenv("BTCT_STOCKS_API_KEY")
	t.Setenv("PORT", "9100")
	path := writeFile(t, ".env", "PORT=9200\nBTCT_STOCKS_API_KEY=dotenv-key\n")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %q, .env must not override the environment", cfg.Port)
	}
	if cfg.Stocks.APIKey != "dotenv-key" {
		t.Errorf("Stocks.APIKey = %q, want value from .env", cfg.Stocks.APIKey)
	}
}
