package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/config"
	"github.com/fakeyudi/promptwatch/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the process logger, configured from cfg.
var logger = slog.Default()

var (
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "promptwatch",
	Short:        "Capture AI assistant conversations from host terminal sessions",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		l, err := logging.Init(cmd.ErrOrStderr(), loaded.LogFormat, loaded.LogLevel)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		cfg = loaded
		logger = l
		return nil
	},
}

// loadConfig merges the global and project files and applies environment
// overrides.
func loadConfig() (config.Config, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading global config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	project, err := config.LoadProject(cwd)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading project config: %w", err)
	}
	merged := config.Merge(global, project)
	if err := config.ApplyEnv(&merged, envFile); err != nil {
		return config.Config{}, fmt.Errorf("applying environment: %w", err)
	}
	return merged, nil
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with PROMPTWATCH_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}
