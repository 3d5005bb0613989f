package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/services/pricecache"
	"SignalForge/internal/services/symbols"
	"SignalForge/internal/services/technical"
)

var (
	ErrInvalidHorizon = errors.New("invalid horizon")
	ErrUnknownSymbol  = errors.New("unknown symbol")
)

// TipsUseCase serves the latest tip per horizon slot.
type TipsUseCase struct {
	store   domrepo.TipStore
	timeout time.Duration
}

func NewTipsUseCase(store domrepo.TipStore) *TipsUseCase {
	return &TipsUseCase{store: store, timeout: 5 * time.Second}
}

// LatestTip accepts full slot names and the short/mid/long aliases.
func (uc *TipsUseCase) LatestTip(ctx context.Context, raw string) (*models.StoredTip, error) {
	h, ok := domrepo.NormalizeHorizon(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return nil, fmt.Errorf("%q: %w", raw, ErrInvalidHorizon)
	}
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	tip, err := uc.store.LatestTip(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("latest %s tip: %w", h, err)
	}
	return tip, nil
}

// Stats returns the app-level counters.
func (uc *TipsUseCase) Stats(ctx context.Context) (models.AppStats, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	return uc.store.Stats(ctx)
}

// SymbolView is the cached state of one instrument with bars for one timeframe.
type SymbolView struct {
	Symbol             string             `json:"symbol"`
	Company            models.CompanyMeta `json:"company"`
	CurrentPrice       float64            `json:"currentPrice"`
	PriceChangePercent float64            `json:"priceChangePercent"`
	Points             int                `json:"points"`
	LastUpdate         time.Time          `json:"lastUpdate"`
	LastAnalysis       time.Time          `json:"lastAnalysis,omitempty"`
	CooldownUntil      time.Time          `json:"cooldownUntil,omitempty"`
	Timeframe          string             `json:"timeframe"`
	Bars               []models.Candle    `json:"bars"`
}

// SymbolsUseCase exposes the price cache read side.
type SymbolsUseCase struct {
	cache *pricecache.Cache
}

func NewSymbolsUseCase(cache *pricecache.Cache) *SymbolsUseCase {
	return &SymbolsUseCase{cache: cache}
}

// Symbol returns the view for sym, bucketing its history at tf.
func (uc *SymbolsUseCase) Symbol(sym, tf string) (*SymbolView, error) {
	inst := models.Instrument(strings.ToUpper(strings.TrimSpace(sym)))
	snap, ok := uc.cache.Snapshot(inst)
	if !ok {
		return nil, fmt.Errorf("%s: %w", inst, ErrUnknownSymbol)
	}
	timeframe := domrepo.NormalizeTimeframe(tf)
	bars := technical.Bucket(inst, snap.History, timeframe.Duration())
	if bars == nil {
		bars = []models.Candle{}
	}
	return &SymbolView{
		Symbol:             inst.String(),
		Company:            symbols.Lookup(inst),
		CurrentPrice:       snap.CurrentPrice,
		PriceChangePercent: snap.PriceChangePercent(),
		Points:             len(snap.History),
		LastUpdate:         snap.LastUpdate,
		LastAnalysis:       snap.LastAnalysis,
		CooldownUntil:      snap.CooldownUntil,
		Timeframe:          string(timeframe),
		Bars:               bars,
	}, nil
}

// Symbols lists tracked instruments.
func (uc *SymbolsUseCase) Symbols() []string {
	syms := uc.cache.Symbols()
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.String()
	}
	sort.Strings(out)
	return out
}
