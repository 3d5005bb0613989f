package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"SignalForge/internal/di"
	"SignalForge/pkg/config"
)

func newPingCmd() *cobra.Command {
	var (
		timeout time.Duration
		format  string
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping every upstream REST API once and report its status",
		Long: `Ping calls the cheap liveness endpoint of each upstream (news, insider,
fundamentals, OHLCV, crypto OHLCV) through its circuit breaker.

Example usage:
  signalforge ping
  signalforge ping --format=json --timeout=10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			monitor, cleanup, err := di.InitializePinger(cfg)
			if err != nil {
				return fmt.Errorf("pinger initialization failed: %w", err)
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results := monitor.Ping(ctx)

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			names := make([]string, 0, len(results))
			for n := range results {
				names = append(names, n)
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UPSTREAM\tSTATUS")
			failed := 0
			for _, n := range names {
				fmt.Fprintf(w, "%s\t%s\n", n, results[n])
				if results[n] != "ok" {
					failed++
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d upstreams failed", failed, len(names))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall ping timeout")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}
