package repository

import "SignalForge/internal/domain/models"

// IsValidTimeframe returns true if tf is a supported analyzer timeframe.
func IsValidTimeframe(tf models.Timeframe) bool {
	switch tf {
	case models.TF1m, models.TF5m, models.TF15m, models.TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() models.Timeframe { return models.TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) models.Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := models.Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// NormalizeHorizon parses a horizon slot name, accepting the short aliases.
func NormalizeHorizon(s string) (models.Horizon, bool) {
	switch s {
	case "short", string(models.HorizonShort):
		return models.HorizonShort, true
	case "mid", string(models.HorizonMid):
		return models.HorizonMid, true
	case "long", string(models.HorizonLong):
		return models.HorizonLong, true
	default:
		return "", false
	}
}
