package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/travelrouter/config"
	"github.com/scttfrdmn/travelrouter/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	noLLM      bool
)

var rootCmd = &cobra.Command{
	Use:           "travelrouter",
	Short:         "Smart travel assistant for flight status and flight history",
	Long:          `travelrouter classifies travel questions, looks up live flight status or historical flight data, and answers in plain text.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noLLM, "no-llm", false, "classify with rules only")

	rootCmd.AddCommand(chatCmd, askCmd, serveCmd)
}

// loadConfig reads --config when given and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if noLLM {
		cfg.Classifier.UseLLM = false
	}
	return cfg, nil
}

// newLogger writes to stderr so chat output on stdout stays clean.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := observability.ConfigureLogging(os.Stderr, level, cfg.Logging.Format, cfg.Logging.TraceContext)
	slog.SetDefault(logger)
	return logger, nil
}
