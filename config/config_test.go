package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grantsnap/statekit/logger"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug log level in development, got %q", cfg.Logging.Level)
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info log level, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	valid := logger.Config{Level: "info", Format: "json"}
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
		errMsg  string
	}{
		{"valid development", ServiceConfig{Name: "svc", Environment: "development", Logging: valid}, false, ""},
		{"valid production", ServiceConfig{Name: "svc", Environment: "production", Logging: valid}, false, ""},
		{"missing name", ServiceConfig{Environment: "production", Logging: valid}, true, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "invalid", Logging: valid}, true, "config.environment must be one of"},
		{"invalid logging", ServiceConfig{Name: "svc", Environment: "staging", Logging: logger.Config{Level: "loud", Format: "json"}}, true, "config.logging"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Persist       struct {
		Debounce time.Duration `mapstructure:"debounce"`
		Version  int           `mapstructure:"version"`
	} `mapstructure:"persist"`
	Auth struct {
		JWT struct {
			Secret string `mapstructure:"secret"`
		} `mapstructure:"jwt"`
	} `mapstructure:"auth"`
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	yamlContent := `
name: statekitd
environment: staging
version: "1.0.0"
persist:
  debounce: 750ms
  version: 2
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testConfig
	err := LoadConfig("statekitd", &cfg,
		WithConfigFile(configPath),
		WithEnvPrefix("STATEKIT_TEST_YAML"),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "statekitd" {
		t.Errorf("expected name 'statekitd', got %q", cfg.Name)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Persist.Debounce != 750*time.Millisecond {
		t.Errorf("expected debounce 750ms, got %v", cfg.Persist.Debounce)
	}
	if cfg.Persist.Version != 2 {
		t.Errorf("expected version 2, got %d", cfg.Persist.Version)
	}
}

func TestLoadConfigEnvPrefixOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("name: statekitd\nauth:\n  jwt:\n    secret: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STATEKIT_AUTH_JWT_SECRET", "from-env")
	t.Setenv("OTHER_PERSIST_VERSION", "9")

	var cfg testConfig
	err := LoadConfig("statekitd", &cfg,
		WithConfigFile(configPath),
		WithEnvPrefix("statekit"),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Auth.JWT.Secret != "from-env" {
		t.Errorf("expected env override, got %q", cfg.Auth.JWT.Secret)
	}
	if cfg.Persist.Version != 0 {
		t.Errorf("unprefixed variable must be ignored, got version %d", cfg.Persist.Version)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("STATEKIT_TEST_ENVFILE_PERSIST_VERSION=5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("STATEKIT_TEST_ENVFILE_PERSIST_VERSION") })

	var cfg testConfig
	err := LoadConfig("statekitd", &cfg,
		WithConfigFile(filepath.Join(dir, "missing.yml")),
		WithEnvFile(envPath),
		WithEnvPrefix("STATEKIT_TEST_ENVFILE"),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Persist.Version != 5 {
		t.Errorf("expected version 5 from .env, got %d", cfg.Persist.Version)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/statekitd/config.yml": true,
		"./config/.env":              true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("statekitd", LoaderConfig{})
	if files.ConfigFile != "./cmd/statekitd/config.yml" {
		t.Errorf("expected config file at ./cmd/statekitd/config.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./config/.env" {
		t.Errorf("expected env file at ./config/.env, got %q", files.EnvFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }
func (m *mockFS) Getwd() (string, error)    { return "/mock", nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	variants := generateEnvKeyVariants("STORAGE_SQLITE_MAX_OPEN_CONNS")
	want := "storage.sqlite.max_open_conns"
	for _, v := range variants {
		if v == want {
			return
		}
	}
	t.Errorf("variants %v missing %q", variants, want)
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithEnvPrefix("statekit_")(&lc)

	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("file overrides not applied: %+v", lc)
	}
	if lc.EnvPrefix != "STATEKIT" {
		t.Errorf("expected normalized prefix STATEKIT, got %q", lc.EnvPrefix)
	}
}
