package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
	if cfg.MCP.CallTimeoutSeconds != 30 {
		t.Errorf("expected call timeout 30, got %d", cfg.MCP.CallTimeoutSeconds)
	}
	if !cfg.MCP.WarmupBeforeCall {
		t.Error("expected warm-up enabled by default")
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
	if cfg.HistorySize != 10 || cfg.Sync.MaxAttempts != 1 {
		t.Errorf("unexpected defaults: history=%d attempts=%d", cfg.HistorySize, cfg.Sync.MaxAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	cfg := Default()
	cfg.MCP.URL = "http://file/mcp"
	writeTestConfig(t, path, cfg)

	t.Setenv("HEALTHCHAT_MCP_URL", "http://env/mcp")
	t.Setenv("HEALTHCHAT_SUBJECT", "p-42")
	t.Setenv("HEALTHCHAT_REDIS_ADDR", "redis:6379")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.MCP.URL != "http://env/mcp" {
		t.Errorf("MCP.URL = %q", loaded.MCP.URL)
	}
	if loaded.Subject != "p-42" {
		t.Errorf("Subject = %q", loaded.Subject)
	}
	if loaded.Store.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q", loaded.Store.RedisAddr)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := tempConfigPath(t)
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := Default()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.Subject = "p1"
	original.Store.Backend = "redis"
	original.Store.RedisPassword = "pw-1234"
	original.Sync.Schedule = "@every 6h"
	original.Sync.Subjects = []string{"p1", "p2"}

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.Store.Backend != "redis" || loaded.Store.RedisPassword != "pw-1234" {
		t.Errorf("store mismatch: %+v", loaded.Store)
	}
	if loaded.Sync.Schedule != "@every 6h" || len(loaded.Sync.Subjects) != 2 {
		t.Errorf("sync mismatch: %+v", loaded.Sync)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")

	if err := Save(path, &Config{LogLevel: "warn"}); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}

func TestStorePath(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if got := cfg.StorePath(); got != filepath.Join("/data", "records.db") {
		t.Errorf("StorePath = %q", got)
	}
	cfg.Store.Path = "/elsewhere/x.db"
	if got := cfg.StorePath(); got != "/elsewhere/x.db" {
		t.Errorf("StorePath = %q", got)
	}
}

func TestListValues(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.Store.RedisPassword = "redis-pass-5678"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["store.redis_password"] != "redis-pass-5678" {
		t.Errorf("expected unmasked password, got %v", flat["store.redis_password"])
	}

	flat, err = ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["store.redis_password"] != "***5678" {
		t.Errorf("expected masked password, got %v", flat["store.redis_password"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)

	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.MaxConcurrent = 8
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "mcp.tool")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "fhir_request" {
		t.Errorf("expected mcp.tool=fhir_request, got %v", v)
	}

	// JSON numbers are float64
	v, _ = GetValue(path, "max_concurrent")
	if v != float64(8) {
		t.Errorf("expected max_concurrent=8, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, &Config{LogLevel: "info"})

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if err.Error() != "unknown config key: nonexistent.key" {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestGetValue_NewFileUsesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	// Load creates the file with defaults on first access.
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Default())

	tests := []struct {
		key, value string
		want       any
	}{
		{"log_level", "debug", "debug"},
		{"max_concurrent", "16", float64(16)},
		{"mcp.warmup_before_call", "false", false},
		{"store.backend", "redis", "redis"},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		if err := SetValue(path, tt.key, tt.value); err != nil {
			t.Fatalf("SetValue(%s) failed: %v", tt.key, err)
		}
		v, err := GetValue(path, tt.key)
		if err != nil {
			t.Fatalf("GetValue(%s) failed: %v", tt.key, err)
		}
		if v != tt.want {
			t.Errorf("%s = %v (%T), want %v", tt.key, v, v, tt.want)
		}
	}

	// Other values are preserved.
	v, _ := GetValue(path, "mcp.tool")
	if v != "fhir_request" {
		t.Errorf("expected mcp.tool preserved, got %v", v)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after SetValue failed: %v", err)
	}
	if cfg.MCP.WarmupBeforeCall || cfg.Store.Backend != "redis" {
		t.Errorf("typed config not updated: %+v %+v", cfg.MCP, cfg.Store)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}
