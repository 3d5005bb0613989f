package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"SignalForge/internal/domain/models"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		inst     models.Instrument
		name     string
		sector   string
		isCrypto bool
		logo     string
	}{
		{"AAPL", "Apple Inc.", "Technology", false, "/logos/aapl.png"},
		{"BTC/USD", "Bitcoin", "Cryptocurrency", true, "/logos/btc.png"},
		{"XYZ", "XYZ", "Equity", false, "/logos/xyz.png"},
		{"PEPE/USD", "PEPE", "Cryptocurrency", true, "/logos/pepe.png"},
	}
	for _, tt := range tests {
		t.Run(string(tt.inst), func(t *testing.T) {
			m := Lookup(tt.inst)
			assert.Equal(t, tt.name, m.Name)
			assert.Equal(t, tt.sector, m.Sector)
			assert.Equal(t, tt.isCrypto, m.IsCrypto)
			assert.Equal(t, tt.logo, m.LogoPath)
			assert.NotEmpty(t, m.BusinessDescription)
		})
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, MegaCap, CategoryOf("NVDA"))
	assert.Equal(t, Meme, CategoryOf("GME"))
	assert.Equal(t, ETF, CategoryOf("QQQ"))
	assert.Equal(t, Crypto, CategoryOf("ADA/USD"))
	assert.Equal(t, Standard, CategoryOf("IBM"))
}

func TestWatchlistsDropMisplacedSymbols(t *testing.T) {
	eq, cr := Watchlists([]string{"aapl", "BTC/USD", " "}, []string{"eth/usd", "MSFT"})
	assert.Equal(t, []models.Instrument{"AAPL"}, eq)
	assert.Equal(t, []models.Instrument{"ETH/USD"}, cr)
}
