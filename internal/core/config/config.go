// Package config provides configuration management for the MicroProto device
// service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by the service.
const EnvPrefix = "MP"

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	System  SystemConfig
	Log     LogConfig
}

// ServerConfig holds the network surfaces.
type ServerConfig struct {
	Host              string
	GRPCPort          int
	HTTPPort          int
	MaxClients        int
	MaxPacketSize     int
	BroadcastInterval time.Duration
}

// StorageConfig selects the property and blob backends. An empty BlobURL
// shares the property backend.
type StorageConfig struct {
	URL       string
	BlobURL   string
	Namespace string
}

// SystemConfig tunes the property system loop.
type SystemConfig struct {
	DebounceWindow time.Duration
	LoopInterval   time.Duration
}

// LogConfig selects the log level and output format (json or text).
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			GRPCPort:          50051,
			HTTPPort:          8080,
			MaxClients:        8,
			MaxPacketSize:     4096,
			BroadcastInterval: 67 * time.Millisecond,
		},
		Storage: StorageConfig{
			URL:       "sqlite://./microproto.db",
			Namespace: "microproto",
		},
		System: SystemConfig{
			DebounceWindow: time.Second,
			LoopInterval:   10 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// GRPCAddr returns the gRPC listen address.
func (c ServerConfig) GRPCAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

// HTTPAddr returns the HTTP listen address.
func (c ServerConfig) HTTPAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports MP_HMAC_SECRET (single) and MP_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)
	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' in %s (check %s_HMAC_SECRET and %s_HMAC_SECRET_*)", secretID, key, EnvPrefix, EnvPrefix)
		}
		secrets[secretID] = decoded
		return nil
	}

	single := EnvPrefix + "_HMAC_SECRET"
	if val := os.Getenv(single); val != "" {
		if err := add(single, val); err != nil {
			return nil, err
		}
	}
	// numbered secrets stop at the first gap
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", single, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}
	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	secretID, encoded, ok := strings.Cut(strings.TrimSpace(envValue), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}
	return secretID, secret, nil
}
