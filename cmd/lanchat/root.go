package main

import (
	"github.com/spf13/cobra"

	"lan-chat/internal/config"
	"lan-chat/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "lanchat",
	Short:         "Serverless-feeling chat for a local network",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file. Defaults to $"+config.ConfigPathEnvVar+".")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// loadConfig reads configuration and applies the logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	return cfg, nil
}
