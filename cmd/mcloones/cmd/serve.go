package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcloones/mcloones/internal/appconfig"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if devMode {
			v.Set("dev_mode", true)
		}
		cfg, err := appconfig.Load(v)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Server.LogLevel)
		if used := v.ConfigFileUsed(); used != "" {
			logger.Info("config loaded", "file", used)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "run with an in-process redis and a generated signing key")
	rootCmd.AddCommand(serveCmd)
}
