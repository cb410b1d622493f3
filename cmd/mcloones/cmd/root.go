// Package cmd provides the CLI commands for mcloones.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcloones/mcloones/internal/appconfig"
)

var (
	cfgFile string
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "mcloones",
	Short: "McLoone's terminal session server",
	Long: `mcloones serves the session, rewards and manager screens of the
McLoone's app for one terminal, plus a token API for other clients.

Configuration is read from mcloones.yaml in the current directory or
/etc/mcloones/. Environment variables override file values with the
MCLOONES_ prefix, e.g. MCLOONES_REDIS_ADDR=localhost:6379.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcloones.yaml)")
}

func initConfig() {
	v = appconfig.New(cfgFile)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
