package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Subject       string `json:"subject"`
	HistorySize   int    `json:"history_size"`
	GlossaryPath  string `json:"glossary_path"`
	MCP           struct {
		URL                string `json:"url"`
		Tool               string `json:"tool"`
		CallTimeoutSeconds int    `json:"call_timeout_seconds"`
		WarmupBeforeCall   bool   `json:"warmup_before_call"`
	} `json:"mcp"`
	Store struct {
		Backend       string `json:"backend"`
		Path          string `json:"path"`
		RedisAddr     string `json:"redis_addr"`
		RedisPassword string `json:"redis_password" secret:"true"`
		RedisPrefix   string `json:"redis_prefix"`
	} `json:"store"`
	Sync struct {
		Schedule    string   `json:"schedule"`
		Subjects    []string `json:"subjects"`
		MaxAttempts int      `json:"max_attempts"`
	} `json:"sync"`
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".healthchat"),
		MaxConcurrent: 2,
	}
	cfg.LogLevel = "info"
	cfg.HistorySize = 10
	cfg.MCP.URL = "http://localhost:8080/mcp"
	cfg.MCP.Tool = "fhir_request"
	cfg.MCP.CallTimeoutSeconds = 30
	cfg.MCP.WarmupBeforeCall = true
	cfg.Store.Backend = "sqlite"
	cfg.Store.RedisPrefix = "healthchat:"
	cfg.Sync.MaxAttempts = 1
	cfg.Server.Addr = "127.0.0.1:8787"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if url := os.Getenv("HEALTHCHAT_MCP_URL"); url != "" {
		cfg.MCP.URL = url
	}
	if subject := os.Getenv("HEALTHCHAT_SUBJECT"); subject != "" {
		cfg.Subject = subject
	}
	if addr := os.Getenv("HEALTHCHAT_REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}

	return cfg, nil
}

// StorePath is the SQLite database location, defaulting into DataDir.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "records.db")
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its JSON object form. Numbers come back as float64.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting as a flat dotted-key map.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dotted key from the config file at path.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets one dotted key in the config file at path. The value is
// parsed as JSON when possible (numbers, booleans, lists) and kept as a
// string otherwise. The file must already exist.
func SetValue(path, key, value string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[strings.TrimSpace(key)] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(m), nil
}
