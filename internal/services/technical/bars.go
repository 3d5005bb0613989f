package technical

import (
	"time"

	"SignalForge/internal/domain/models"
)

// Bucket groups price points into OHLCV bars of the given width. Points must be
// timestamp ordered, which the price cache guarantees.
func Bucket(inst models.Instrument, points []models.PricePoint, width time.Duration) []models.Candle {
	if len(points) == 0 || width <= 0 {
		return nil
	}
	var out []models.Candle
	var cur *models.Candle
	for _, p := range points {
		start := p.Timestamp.Truncate(width)
		if cur == nil || !start.Equal(cur.Bucket) {
			out = append(out, models.Candle{
				Bucket: start,
				Symbol: inst.String(),
				Open:   p.Price,
				High:   p.Price,
				Low:    p.Price,
				Close:  p.Price,
			})
			cur = &out[len(out)-1]
		}
		if p.Price > cur.High {
			cur.High = p.Price
		}
		if p.Price < cur.Low {
			cur.Low = p.Price
		}
		cur.Close = p.Price
		cur.Volume += p.Volume
	}
	return out
}

// TickBars turns every price point into its own bar.
func TickBars(inst models.Instrument, points []models.PricePoint) []models.Candle {
	out := make([]models.Candle, len(points))
	for i, p := range points {
		open := p.Price
		if i > 0 {
			open = points[i-1].Price
		}
		high, low := p.Price, p.Price
		if open > high {
			high = open
		}
		if open < low {
			low = open
		}
		out[i] = models.Candle{
			Bucket: p.Timestamp,
			Symbol: inst.String(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  p.Price,
			Volume: p.Volume,
		}
	}
	return out
}
