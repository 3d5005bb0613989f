package feed

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

const NameFinnhub = "finnhub"

type finnhubCodec struct {
	apiKey       string
	websocketURL string
	symbols      []string
}

// NewFinnhub returns the primary equities trade feed.
func NewFinnhub(apiKey, websocketURL string, symbols []string, opts Options) drepo.MarketStream {
	return newStream(NameFinnhub, &finnhubCodec{apiKey: apiKey, websocketURL: websocketURL, symbols: symbols}, opts)
}

func (c *finnhubCodec) url() (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("finnhub api key: %w", drepo.ErrConfigMissing)
	}
	return fmt.Sprintf("%s?token=%s", c.websocketURL, url.QueryEscape(c.apiKey)), nil
}

func (c *finnhubCodec) handshake(conn *websocket.Conn) error {
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Msg  string    `json:"msg"`
	Data []fhTrade `json:"data"`
}

func (c *finnhubCodec) decode(b []byte) ([]models.PriceEvent, error) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("finnhub frame: %w", drepo.ErrMalformedMessage)
	}
	switch m.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("finnhub error %q: %w", m.Msg, drepo.ErrMalformedMessage)
	default:
		// ping and status frames
		return nil, nil
	}
	out := make([]models.PriceEvent, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, models.PriceEvent{
			Instrument: models.Instrument(d.S),
			Price:      d.P,
			Volume:     d.V,
			Timestamp:  fromMillis(d.T),
			Source:     models.SourceEquityA,
		})
	}
	return out, nil
}
