package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

const NameBinance = "binance"

type binanceCodec struct {
	websocketURL string
	instruments  []models.Instrument
}

// NewBinance returns the crypto 24h ticker feed over a combined stream.
func NewBinance(websocketURL string, instruments []models.Instrument, opts Options) drepo.MarketStream {
	return newStream(NameBinance, &binanceCodec{websocketURL: websocketURL, instruments: instruments}, opts)
}

func (c *binanceCodec) url() (string, error) {
	if len(c.instruments) == 0 {
		return "", fmt.Errorf("binance: no instruments: %w", drepo.ErrConfigMissing)
	}
	names := make([]string, len(c.instruments))
	for i, inst := range c.instruments {
		names[i] = strings.ToLower(ExchangePair(inst)) + "@ticker"
	}
	return c.websocketURL + "?streams=" + strings.Join(names, "/"), nil
}

// handshake is empty: the combined stream URL carries the subscriptions.
func (c *binanceCodec) handshake(*websocket.Conn) error { return nil }

type binanceTicker struct {
	Event  string `json:"e"`
	Time   int64  `json:"E"`
	Symbol string `json:"s"`
	Last   string `json:"c"`
	Volume string `json:"v"`
}

type binanceEnvelope struct {
	Stream string        `json:"stream"`
	Data   binanceTicker `json:"data"`
}

func (c *binanceCodec) decode(b []byte) ([]models.PriceEvent, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("binance frame: %w", drepo.ErrMalformedMessage)
	}
	if env.Data.Event != "24hrTicker" {
		return nil, nil
	}
	inst, ok := CryptoInstrument(env.Data.Symbol)
	if !ok {
		return nil, fmt.Errorf("binance symbol %q: %w", env.Data.Symbol, drepo.ErrMalformedMessage)
	}
	price, err := parseDecimal(env.Data.Last)
	if err != nil {
		return nil, err
	}
	vol, err := parseDecimal(env.Data.Volume)
	if err != nil {
		return nil, err
	}
	return []models.PriceEvent{{
		Instrument: inst,
		Price:      price,
		Volume:     vol,
		Timestamp:  fromMillis(env.Data.Time),
		Source:     models.SourceCrypto,
	}}, nil
}
