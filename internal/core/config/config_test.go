package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	testSecretID = "0123456789abcdef0123456789abcdef"
	testSecret   = testSecretID + ":dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	otherSecret  = "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("single secret", func(t *testing.T) {
		t.Setenv("MP_HMAC_SECRET", testSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets[testSecretID]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("MP_HMAC_SECRET_1", testSecret)
		t.Setenv("MP_HMAC_SECRET_2", otherSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("numbering stops at gap", func(t *testing.T) {
		t.Setenv("MP_HMAC_SECRET_1", testSecret)
		t.Setenv("MP_HMAC_SECRET_3", otherSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
	})

	t.Run("none configured", func(t *testing.T) {
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected no secrets, got %d", len(secrets))
		}
	})

	errTests := []struct {
		name string
		env  map[string]string
	}{
		{name: "invalid format", env: map[string]string{"MP_HMAC_SECRET": "invalid_format"}},
		{name: "duplicate in numbered", env: map[string]string{"MP_HMAC_SECRET_1": testSecret, "MP_HMAC_SECRET_2": testSecretID + ":YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"}},
		{name: "duplicate between single and numbered", env: map[string]string{"MP_HMAC_SECRET": testSecret, "MP_HMAC_SECRET_1": testSecret}},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := HMACSecrets(); err == nil {
				t.Error("HMACSecrets() error = nil, want error")
			}
		})
	}
}

func TestParseHMACSecretWithID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{name: "valid", input: testSecret, wantID: testSecretID},
		{name: "surrounding whitespace", input: "  " + testSecret + "\n", wantID: testSecretID},
		{name: "missing colon", input: testSecretID, wantErr: true},
		{name: "short id", input: "tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", wantErr: true},
		{name: "non-hex id", input: "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", wantErr: true},
		{name: "invalid base64", input: testSecretID + ":not-valid-base64!!!", wantErr: true},
		{name: "secret too short", input: testSecretID + ":c2hvcnQ=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHMACSecretWithID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if id != tt.wantID {
				t.Errorf("ParseHMACSecretWithID() id = %v, want %v", id, tt.wantID)
			}
			if len(secret) < 32 {
				t.Errorf("ParseHMACSecretWithID() secret length = %d, want >= 32", len(secret))
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if cfg.Server != want.Server {
		t.Errorf("Load().Server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Storage != want.Storage {
		t.Errorf("Load().Storage = %+v, want %+v", cfg.Storage, want.Storage)
	}
	if cfg.System != want.System {
		t.Errorf("Load().System = %+v, want %+v", cfg.System, want.System)
	}
	if cfg.Server.BroadcastInterval != 67*time.Millisecond {
		t.Errorf("BroadcastInterval = %v, want 67ms", cfg.Server.BroadcastInterval)
	}
	if got := cfg.Server.GRPCAddr(); got != "0.0.0.0:50051" {
		t.Errorf("GRPCAddr() = %v, want 0.0.0.0:50051", got)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("MP_SERVER_HTTP_PORT", "9999")
	t.Setenv("MP_SERVER_HOST", "127.0.0.1")
	t.Setenv("MP_SYSTEM_DEBOUNCE_WINDOW", "250ms")
	t.Setenv("MP_STORAGE_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Errorf("HTTPPort = %d, want 9999", cfg.Server.HTTPPort)
	}
	if got := cfg.Server.HTTPAddr(); got != "127.0.0.1:9999" {
		t.Errorf("HTTPAddr() = %v, want 127.0.0.1:9999", got)
	}
	if cfg.System.DebounceWindow != 250*time.Millisecond {
		t.Errorf("DebounceWindow = %v, want 250ms", cfg.System.DebounceWindow)
	}
	if cfg.Storage.URL != "redis://localhost:6379/0" {
		t.Errorf("Storage.URL = %v, want redis://localhost:6379/0", cfg.Storage.URL)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `server:
  grpc_port: 6000
  max_clients: 2
storage:
  url: "badger:///var/lib/microproto"
  blob_url: "sqlite:///var/lib/microproto/blobs.db"
system:
  loop_interval: 5ms
log:
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.GRPCPort != 6000 {
		t.Errorf("GRPCPort = %d, want 6000", cfg.Server.GRPCPort)
	}
	if cfg.Server.MaxClients != 2 {
		t.Errorf("MaxClients = %d, want 2", cfg.Server.MaxClients)
	}
	if cfg.Storage.BlobURL != "sqlite:///var/lib/microproto/blobs.db" {
		t.Errorf("BlobURL = %v", cfg.Storage.BlobURL)
	}
	if cfg.System.LoopInterval != 5*time.Millisecond {
		t.Errorf("LoopInterval = %v, want 5ms", cfg.System.LoopInterval)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %v, want text", cfg.Log.Format)
	}
	// untouched sections keep defaults
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9090\n")
	t.Setenv("MP_SERVER_HTTP_PORT", "8081")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPPort != 8081 {
		t.Errorf("HTTPPort = %d, want 8081", cfg.Server.HTTPPort)
	}
}

func TestSecretsRejectedInFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "top level", content: "hmac_secret: should_be_rejected\n"},
		{name: "server section", content: "server:\n  host: localhost\n  hmac_secret: should_be_rejected\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			want := "HMAC secrets not allowed in config files (use MP_HMAC_SECRET environment variable)"
			if err.Error() != want {
				t.Errorf("Load() error = %v, want %v", err, want)
			}
		})
	}

	t.Run("environment secret accepted", func(t *testing.T) {
		t.Setenv("MP_HMAC_SECRET", testSecret)
		if _, err := Load(""); err != nil {
			t.Errorf("Load() error = %v, want nil", err)
		}
	})
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port out of range", key: "MP_SERVER_GRPC_PORT", val: "70000"},
		{name: "zero http port", key: "MP_SERVER_HTTP_PORT", val: "0"},
		{name: "negative max clients", key: "MP_SERVER_MAX_CLIENTS", val: "-1"},
		{name: "tiny packet", key: "MP_SERVER_MAX_PACKET_SIZE", val: "16"},
		{name: "zero broadcast interval", key: "MP_SERVER_BROADCAST_INTERVAL", val: "0s"},
		{name: "negative debounce", key: "MP_SYSTEM_DEBOUNCE_WINDOW", val: "-1s"},
		{name: "storage url without scheme", key: "MP_STORAGE_URL", val: "just-a-path"},
		{name: "empty namespace", key: "MP_STORAGE_NAMESPACE", val: " "},
		{name: "unknown log format", key: "MP_LOG_FORMAT", val: "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Errorf("Load() with %s=%s error = nil, want error", tt.key, tt.val)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Load() error = nil, want error")
		}
	})
}
