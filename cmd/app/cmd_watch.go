package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SignalForge/internal/di"
	"SignalForge/internal/usecase"
	"SignalForge/pkg/config"
	"SignalForge/pkg/logger"
)

func newWatchCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Consume the tips topic and log every tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			log, err := di.ProvideConsoleLogger(cfg)
			if err != nil {
				return err
			}
			consumer, err := di.ProvideKafkaConsumer(cfg, log)
			if err != nil {
				return err
			}
			if topic == "" {
				topic = cfg.Kafka.Topic
			}
			consumer.RegisterHandler(usecase.NewTipWatchHandler(topic, di.ProvideMetrics(), log, nil))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := consumer.Start(); err != nil {
				return fmt.Errorf("start consumer: %w", err)
			}
			log.Info("watching", logger.String("topic", topic), logger.Strings("brokers", cfg.Kafka.Brokers))
			<-ctx.Done()

			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return consumer.Stop(sctx)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic to consume (defaults to kafka.topic)")
	return cmd
}
