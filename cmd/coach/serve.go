package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-coach/internal/log"
	"github.com/teslashibe/go-coach/pkg/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard and start sessions from the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Web.Enabled = true
		if serveAddr != "" {
			cfg.Web.Address = serveAddr
		}

		a, err := app.New(cfg, app.WithLogger(log.L()))
		if err != nil {
			return err
		}
		if err := a.Init(); err != nil {
			return err
		}
		defer a.Shutdown()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}
