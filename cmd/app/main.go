package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "signalforge",
	Short: "Real-time market signal engine",
	Long: `SignalForge streams equity and crypto trades, runs technical and
institutional analysis on each symbol, and emits at most a handful of
high-conviction trading tips per day.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(newRunCmd(), newPingCmd(), newWatchCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
