package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SignalForge/internal/di"
	"SignalForge/pkg/config"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the signal engine until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			for _, name := range cfg.MissingCredentials() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s credentials missing, adapter disabled\n", name)
			}

			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			defer cleanup()

			return app.Run()
		},
	}
}
