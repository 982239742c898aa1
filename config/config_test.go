package config

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yoockh/veriview/internal/utils"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "VERIVIEW_") {
			key := kv[:strings.Index(kv, "=")]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.FrameCap != 30 {
		t.Errorf("expected frame cap 30, got %d", cfg.FrameCap)
	}
	if cfg.TurnDeadline != 300*time.Second {
		t.Errorf("expected turn deadline 300s, got %s", cfg.TurnDeadline)
	}
	if cfg.CacheExpiry != 24*time.Hour {
		t.Errorf("expected cache expiry 24h, got %s", cfg.CacheExpiry)
	}
	if cfg.AnalyzerPolicy != PolicyAuto {
		t.Errorf("expected auto policy, got %s", cfg.AnalyzerPolicy)
	}
	if cfg.Language != "ko" {
		t.Errorf("expected language ko, got %s", cfg.Language)
	}
	if cfg.Avatar.ProGender != "male" {
		t.Errorf("expected PRO gender male, got %s", cfg.Avatar.ProGender)
	}
	if cfg.Avatar.BaseURL != "https://api.d-id.com" {
		t.Errorf("unexpected base url %s", cfg.Avatar.BaseURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERIVIEW_AVATAR_API_KEY", "user:pass")
	t.Setenv("VERIVIEW_AVATAR_BASE_URL", "http://localhost:9000/")
	t.Setenv("VERIVIEW_FRAME_CAP", "12")
	t.Setenv("VERIVIEW_TURN_DEADLINE_SECONDS", "60")
	t.Setenv("VERIVIEW_ANALYZER_POLICY", "STUB")
	t.Setenv("VERIVIEW_AVATAR_PRO_GENDER", "female")
	t.Setenv("VERIVIEW_LANGUAGE", "en")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Avatar.APIKey != "user:pass" {
		t.Errorf("expected api key, got %q", cfg.Avatar.APIKey)
	}
	if cfg.Avatar.BaseURL != "http://localhost:9000" {
		t.Errorf("expected trimmed base url, got %s", cfg.Avatar.BaseURL)
	}
	if cfg.FrameCap != 12 {
		t.Errorf("expected frame cap 12, got %d", cfg.FrameCap)
	}
	if cfg.TurnDeadline != time.Minute {
		t.Errorf("expected 1m deadline, got %s", cfg.TurnDeadline)
	}
	if cfg.AnalyzerPolicy != PolicyStub {
		t.Errorf("expected stub policy, got %s", cfg.AnalyzerPolicy)
	}
	if cfg.Avatar.ProGender != "female" {
		t.Errorf("expected female, got %s", cfg.Avatar.ProGender)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "veriview.yaml")
	body := "frame_cap: 9\nlanguage: ja\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VERIVIEW_CONFIG", path)
	t.Setenv("VERIVIEW_LANGUAGE", "ko")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FrameCap != 9 {
		t.Errorf("expected frame cap from file, got %d", cfg.FrameCap)
	}
	if cfg.Language != "ko" {
		t.Errorf("expected env to win over file, got %s", cfg.Language)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"missing api key", func(c *Config) {}, true},
		{"avatar disabled", func(c *Config) { c.Avatar.Disabled = true }, false},
		{"with key", func(c *Config) { c.Avatar.APIKey = "k" }, false},
		{"bad policy", func(c *Config) { c.Avatar.APIKey = "k"; c.AnalyzerPolicy = "gpu" }, true},
		{"zero frames", func(c *Config) { c.Avatar.APIKey = "k"; c.FrameCap = 0 }, true},
		{"bad gender", func(c *Config) { c.Avatar.APIKey = "k"; c.Avatar.ProGender = "robot" }, true},
		{"insecure tls alone", func(c *Config) { c.Avatar.APIKey = "k"; c.MongoInsecureTLS = true }, true},
		{"insecure tls12", func(c *Config) { c.Avatar.APIKey = "k"; c.MongoInsecureTLS = true; c.MongoForceTLS12 = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, utils.ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestMongoOptions_FromConfig(t *testing.T) {
	clearEnv(t)
	// the legacy unprefixed variable has no effect
	t.Setenv("MONGO_FORCE_TLS_CONFIG", "true")
	t.Setenv("VERIVIEW_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("VERIVIEW_MONGO_MAX_POOL", "25")
	t.Setenv("VERIVIEW_MONGO_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.MongoOptions().clientOptions()
	if opts.MaxPoolSize == nil || *opts.MaxPoolSize != 25 {
		t.Errorf("unexpected max pool %v", opts.MaxPoolSize)
	}
	if opts.ConnectTimeout == nil || *opts.ConnectTimeout != 3*time.Second {
		t.Errorf("unexpected connect timeout %v", opts.ConnectTimeout)
	}
	if opts.TLSConfig != nil {
		t.Error("tls must stay with the driver unless forced")
	}

	t.Setenv("VERIVIEW_MONGO_FORCE_TLS12", "true")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	opts = cfg.MongoOptions().clientOptions()
	if opts.TLSConfig == nil || opts.TLSConfig.MaxVersion != tls.VersionTLS12 {
		t.Fatalf("expected tls 1.2 pin, got %+v", opts.TLSConfig)
	}
	if opts.TLSConfig.InsecureSkipVerify {
		t.Error("verification must stay on by default")
	}
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		in       RedisOptions
		wantAddr string
		wantDB   int
		wantPool int
		wantErr  bool
	}{
		{"url", RedisOptions{URL: "redis://:pw@cache:6380/2", PoolSize: 7, Timeout: 3 * time.Second}, "cache:6380", 2, 7, false},
		{"host port", RedisOptions{URL: "cache:6379"}, "cache:6379", 0, 0, false},
		{"empty", RedisOptions{}, "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := tt.in.clientOptions()
			if (err != nil) != tt.wantErr {
				t.Fatalf("clientOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if opt.Addr != tt.wantAddr || opt.DB != tt.wantDB || opt.PoolSize != tt.wantPool {
				t.Errorf("unexpected options addr=%s db=%d pool=%d", opt.Addr, opt.DB, opt.PoolSize)
			}
			if tt.in.Timeout > 0 && opt.ReadTimeout != tt.in.Timeout {
				t.Errorf("read timeout %s, want %s", opt.ReadTimeout, tt.in.Timeout)
			}
		})
	}
}
