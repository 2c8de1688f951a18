package config

import (
	"encoding/json"
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"mcp": map[string]any{
			"url":  "http://localhost:8080/mcp",
			"tool": "fhir_request",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["mcp.url"] != "http://localhost:8080/mcp" {
		t.Errorf("expected mcp.url, got %v", got["mcp.url"])
	}
	if got["mcp.tool"] != "fhir_request" {
		t.Errorf("expected mcp.tool=fhir_request, got %v", got["mcp.tool"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"store": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected 0 keys (empty nested map produces nothing), got %d", len(got))
	}
}

func TestFlatten_ListsStayWhole(t *testing.T) {
	m := map[string]any{
		"sync": map[string]any{
			"subjects": []any{"p1", "p2"},
		},
	}
	got := Flatten(m)
	list, ok := got["sync.subjects"].([]any)
	if !ok || len(list) != 2 {
		t.Errorf("expected sync.subjects list, got %v", got["sync.subjects"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.healthchat",
		"log_level": "debug",
		"store": map[string]any{
			"backend":        "redis",
			"redis_addr":     "localhost:6379",
			"redis_password": "hunter2hunter2",
		},
		"server": map[string]any{
			"addr": "127.0.0.1:8787",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	store := restored["store"].(map[string]any)
	origStore := original["store"].(map[string]any)
	for _, k := range []string{"backend", "redis_addr", "redis_password"} {
		if store[k] != origStore[k] {
			t.Errorf("store.%s mismatch: %v != %v", k, store[k], origStore[k])
		}
	}
	server := restored["server"].(map[string]any)
	if server["addr"] != "127.0.0.1:8787" {
		t.Errorf("server.addr mismatch: %v", server["addr"])
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"store.backend":        "redis",
		"store.redis_password": "s3cret-pass-9876",
		"log_level":            "info",
	}
	got := MaskSecrets(flat)

	if got["store.backend"] != "redis" {
		t.Errorf("expected store.backend=redis, got %v", got["store.backend"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if got["store.redis_password"] != "***9876" {
		t.Errorf("expected store.redis_password=***9876, got %v", got["store.redis_password"])
	}
}

func TestMaskSecrets_EdgeLengths(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"ab", "***ab"},
		{"abcd", "***abcd"},
		{"abcde", "***bcde"},
	}
	for _, tt := range tests {
		got := MaskSecrets(map[string]any{"store.redis_password": tt.in})
		if got["store.redis_password"] != tt.want {
			t.Errorf("mask(%q) = %v, want %q", tt.in, got["store.redis_password"], tt.want)
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("store.redis_password") {
		t.Error("store.redis_password should be secret")
	}
	if IsSecretKey("store.redis_addr") {
		t.Error("store.redis_addr should not be secret")
	}
	if IsSecretKey("mcp.url") {
		t.Error("mcp.url should not be secret")
	}
}

func TestSecretKeysMatchConfigKeys(t *testing.T) {
	data, err := json.Marshal(Default())
	if err != nil {
		t.Fatal(err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		t.Fatal(err)
	}
	flat := Flatten(nested)
	if len(secretKeys) == 0 {
		t.Fatal("no secret keys found on Config")
	}
	for k := range secretKeys {
		if _, ok := flat[k]; !ok {
			t.Errorf("secret key %q is not a config key", k)
		}
	}
}
