package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/microproto/internal/core/config"
	"github.com/solatis/microproto/internal/core/logging"
)

const Version = "0.1.0"

var (
	configFile string
	storageURL string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "microproto",
	Short:        "MicroProto LED controller property service",
	Long:         `MicroProto serves a reactive property set over a binary protocol, WebSockets, REST and gRPC, persisting values to SQL, Redis or Badger.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&storageURL, "storage-url", "", "storage URL (sqlite://, postgres://, redis://, badger://, memory://)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads file and environment configuration and applies the
// persistent flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("storage-url") {
		cfg.Storage.URL = storageURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}
