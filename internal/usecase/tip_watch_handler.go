package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	pkgkafka "SignalForge/pkg/kafka"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

// TipWatchHandler consumes broadcast notifications and logs each tip.
type TipWatchHandler struct {
	topic   string
	metrics domrepo.Metrics
	log     *logger.Logger
	onTip   func(models.Notification)
}

// NewTipWatchHandler builds the handler. onTip may be nil.
func NewTipWatchHandler(topic string, metrics domrepo.Metrics, log *logger.Logger, onTip func(models.Notification)) *TipWatchHandler {
	if topic == "" {
		topic = TipsTopic
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TipWatchHandler{topic: topic, metrics: metrics, log: log.Component("watch"), onTip: onTip}
}

func (h *TipWatchHandler) Topic() string { return h.topic }

func (h *TipWatchHandler) Handle(_ context.Context, b []byte) error {
	var n models.Notification
	if err := json.Unmarshal(b, &n); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode notification: %w", domrepo.ErrMalformedMessage)
	}
	if n.Data["symbol"] == "" {
		h.metrics.RecordDrop("watch_no_symbol")
		return fmt.Errorf("notification without symbol: %w", domrepo.ErrMalformedMessage)
	}

	if created, ok := util.ParseTime(n.Data["created_at"]); ok {
		h.metrics.RecordLatency("tip_delivery", time.Since(created).Seconds())
	}
	h.log.Info("tip received",
		logger.String("symbol", n.Data["symbol"]),
		logger.String("sentiment", n.Data["sentiment"]),
		logger.String("horizon", n.Data["target_timeframe"]),
		logger.String("entry", n.Data["entry_price"]),
		logger.String("stop", n.Data["stop_loss"]),
		logger.String("tp1", n.Data["take_profit_1"]),
		logger.String("rr", n.Data["risk_reward_ratio"]),
		logger.String("tracking_id", n.Data["trackingId"]))
	if h.onTip != nil {
		h.onTip(n)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*TipWatchHandler)(nil)
