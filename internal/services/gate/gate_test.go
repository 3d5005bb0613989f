package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/services/pricecache"
	"SignalForge/pkg/util"
)

func fill(c *pricecache.Cache, sym string, n int, at time.Time) {
	for i := 0; i < n; i++ {
		c.Update(models.PriceEvent{Instrument: models.Instrument(sym), Price: 100 + float64(i), Timestamp: at.Add(time.Duration(i) * time.Second)})
	}
}

func TestGateDecisions(t *testing.T) {
	ny := util.NewYork()
	session := time.Date(2024, 6, 10, 14, 0, 0, 0, ny)

	c := pricecache.New(pricecache.Options{})
	g := New(c, Config{})

	assert.Equal(t, UnknownSymbol, g.Check("AAPL", session))

	fill(c, "AAPL", 19, session)
	assert.Equal(t, InsufficientHistory, g.Check("AAPL", session))

	fill(c, "AAPL", 1, session)
	assert.Equal(t, Analyze, g.Check("AAPL", session))
	assert.Equal(t, Throttled, g.Check("AAPL", session.Add(29*time.Second)))
	assert.Equal(t, Analyze, g.Check("AAPL", session.Add(30*time.Second)))

	c.SetCooldown("AAPL", session.Add(2*time.Hour))
	assert.Equal(t, Cooldown, g.Check("AAPL", session.Add(time.Hour)))
	assert.Equal(t, Analyze, g.Check("AAPL", session.Add(2*time.Hour)))
}

func TestCryptoBlockedDuringSession(t *testing.T) {
	ny := util.NewYork()
	c := pricecache.New(pricecache.Options{})
	g := New(c, Config{})
	fill(c, "BTC/USD", 25, time.Date(2024, 6, 10, 13, 0, 0, 0, ny))

	assert.Equal(t, CryptoBlackout, g.Check("BTC/USD", time.Date(2024, 6, 10, 14, 0, 0, 0, ny)))

	snap, _ := c.Snapshot("BTC/USD")
	assert.True(t, snap.LastAnalysis.IsZero(), "blocked checks must not mark analysis")

	assert.Equal(t, Analyze, g.Check("BTC/USD", time.Date(2024, 6, 10, 22, 0, 0, 0, ny)))
}

func TestMarketHoursOverride(t *testing.T) {
	c := pricecache.New(pricecache.Options{})
	g := New(c, Config{MinHistory: 2}).WithMarketHours(func(time.Time) bool { return true })
	fill(c, "ETH/USD", 2, time.Now())

	assert.Equal(t, CryptoBlackout, g.Check("ETH/USD", time.Now()))
}
