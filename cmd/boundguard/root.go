package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/boundguard/config"
	"github.com/kbukum/boundguard/logger"
)

const serviceName = "boundguard"

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Bounded execution and resource protection for long-running workers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: search ./cmd/boundguard, ./config, .)")
	rootCmd.PersistentFlags().String("env-file", "", ".env file loaded before environment overrides")
}

// loadConfig loads the Guard named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Guard, error) {
	var opts []config.LoaderOption
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	return config.Load(serviceName, opts...)
}

// newLogger builds the process logger and installs it globally.
func newLogger(cfg *config.Guard) *logger.Logger {
	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)
	logger.RegisterDefaults()
	return log
}
