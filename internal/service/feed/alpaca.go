package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

const NameAlpaca = "alpaca"

type alpacaCodec struct {
	key, secret  string
	websocketURL string
	symbols      []string
	book         *OrderBook
}

// NewAlpaca returns the secondary equities feed (trades and quotes). Quotes
// update book when it is non-nil.
func NewAlpaca(key, secret, websocketURL string, symbols []string, book *OrderBook, opts Options) drepo.MarketStream {
	return newStream(NameAlpaca, &alpacaCodec{key: key, secret: secret, websocketURL: websocketURL, symbols: symbols, book: book}, opts)
}

func (c *alpacaCodec) url() (string, error) {
	if c.key == "" || c.secret == "" {
		return "", fmt.Errorf("alpaca credentials: %w", drepo.ErrConfigMissing)
	}
	return c.websocketURL, nil
}

func (c *alpacaCodec) handshake(conn *websocket.Conn) error {
	auth := map[string]string{"action": "auth", "key": c.key, "secret": c.secret}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	sub := map[string]any{"action": "subscribe", "trades": c.symbols, "quotes": c.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// sessionFatal reports whether an error code leaves the socket unusable:
// not authenticated, auth failed, auth timeout or connection limit.
func sessionFatal(code int) bool {
	switch code {
	case 401, 402, 404, 406:
		return true
	}
	return false
}

type alpacaMessage struct {
	T    string    `json:"T"`
	S    string    `json:"S"`
	P    float64   `json:"p"`
	Size float64   `json:"s"`
	BP   float64   `json:"bp"`
	BS   float64   `json:"bs"`
	AP   float64   `json:"ap"`
	AS   float64   `json:"as"`
	TS   time.Time `json:"t"`
	Code int       `json:"code"`
	Msg  string    `json:"msg"`
}

func (c *alpacaCodec) decode(b []byte) ([]models.PriceEvent, error) {
	var msgs []alpacaMessage
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("alpaca frame: %w", drepo.ErrMalformedMessage)
	}
	var out []models.PriceEvent
	var firstErr error
	for _, m := range msgs {
		switch m.T {
		case "t":
			out = append(out, models.PriceEvent{
				Instrument: models.Instrument(m.S),
				Price:      m.P,
				Volume:     m.Size,
				Timestamp:  m.TS.UTC(),
				Source:     models.SourceEquityB,
			})
		case "q":
			if c.book != nil {
				c.book.Apply(models.Quote{
					Instrument: models.Instrument(m.S),
					BidPrice:   m.BP,
					BidSize:    m.BS,
					AskPrice:   m.AP,
					AskSize:    m.AS,
					Timestamp:  m.TS.UTC(),
				})
			}
		case "error":
			if sessionFatal(m.Code) {
				return nil, fmt.Errorf("alpaca error %d %q: %w", m.Code, m.Msg, ErrSessionRejected)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("alpaca error %d %q: %w", m.Code, m.Msg, drepo.ErrMalformedMessage)
			}
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
