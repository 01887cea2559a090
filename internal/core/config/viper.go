package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration with precedence environment > config file >
// defaults. CLI flags are applied by the caller on top of the result.
func Load(configPath string) (*Config, error) {
	d := Default()
	v := viper.New()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.max_clients", d.Server.MaxClients)
	v.SetDefault("server.max_packet_size", d.Server.MaxPacketSize)
	v.SetDefault("server.broadcast_interval", d.Server.BroadcastInterval.String())
	v.SetDefault("storage.url", d.Storage.URL)
	v.SetDefault("storage.blob_url", d.Storage.BlobURL)
	v.SetDefault("storage.namespace", d.Storage.Namespace)
	v.SetDefault("system.debounce_window", d.System.DebounceWindow.String())
	v.SetDefault("system.loop_interval", d.System.LoopInterval.String())
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:              v.GetString("server.host"),
			GRPCPort:          v.GetInt("server.grpc_port"),
			HTTPPort:          v.GetInt("server.http_port"),
			MaxClients:        v.GetInt("server.max_clients"),
			MaxPacketSize:     v.GetInt("server.max_packet_size"),
			BroadcastInterval: v.GetDuration("server.broadcast_interval"),
		},
		Storage: StorageConfig{
			URL:       v.GetString("storage.url"),
			BlobURL:   v.GetString("storage.blob_url"),
			Namespace: v.GetString("storage.namespace"),
		},
		System: SystemConfig{
			DebounceWindow: v.GetDuration("system.debounce_window"),
			LoopInterval:   v.GetDuration("system.loop_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ports, limits, intervals and the storage URLs.
func Validate(cfg *Config) error {
	for name, port := range map[string]int{"grpc_port": cfg.Server.GRPCPort, "http_port": cfg.Server.HTTPPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if cfg.Server.MaxClients <= 0 {
		return fmt.Errorf("max_clients must be positive, got %d", cfg.Server.MaxClients)
	}
	if cfg.Server.MaxPacketSize < 64 || cfg.Server.MaxPacketSize > 65535 {
		return fmt.Errorf("max_packet_size must be between 64 and 65535, got %d", cfg.Server.MaxPacketSize)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast_interval must be positive, got %v", cfg.Server.BroadcastInterval)
	}
	if cfg.System.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative, got %v", cfg.System.DebounceWindow)
	}
	if cfg.System.LoopInterval <= 0 {
		return fmt.Errorf("loop_interval must be positive, got %v", cfg.System.LoopInterval)
	}
	if strings.TrimSpace(cfg.Storage.Namespace) == "" {
		return fmt.Errorf("storage namespace must not be empty")
	}
	for name, raw := range map[string]string{"url": cfg.Storage.URL, "blob_url": cfg.Storage.BlobURL} {
		if raw == "" && name == "blob_url" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" {
			return fmt.Errorf("storage %s %q is not a URL", name, raw)
		}
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. Only the file
// is inspected so that MP_HMAC_SECRET itself is not mistaken for one.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s_HMAC_SECRET environment variable)", EnvPrefix)
	}
	return nil
}
