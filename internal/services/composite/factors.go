package composite

import (
	"context"
	"errors"
	"math"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/services/features"
	"SignalForge/pkg/util"
)

const (
	reasonNoNews     = "no_news"
	reasonNoInsider  = "no_insider_activity"
	reasonNoFlow     = "no_flow_data"
	reasonNoSource   = "source_not_configured"
	minMomentumPoint = 6
)

// fallbackFor maps an upstream error to a zero-confidence factor.
func fallbackFor(err error) models.FactorResult {
	reason := models.ReasonFallback
	if errors.Is(err, repository.ErrUpstreamUnavailable) {
		reason = models.ReasonAPIDownFallback
	}
	return models.FactorResult{Fallback: true, Reason: reason}
}

func clampScore(v float64) float64 { return util.Clamp(util.Finite(v), -2, 2) }

func clampConfidence(v float64) float64 { return util.Clamp(util.Finite(v), 0, 95) }

// momentumFactor scores rate of change over 5 and 20 points plus acceleration.
func momentumFactor(snap models.SymbolSnapshot) models.FactorResult {
	if len(snap.History) < minMomentumPoint {
		return models.FactorResult{Reason: models.ReasonInsufficientData}
	}
	roc5 := features.RateOfChange(snap.History, 5)
	roc20 := features.RateOfChange(snap.History, 20)
	if roc20 == 0 {
		roc20 = features.RateOfChange(snap.History, len(snap.History)-1)
	}
	accel := roc5 - roc20/4

	score := 0.6*roc5 + 0.4*roc20
	if accel > 0 {
		score += 0.25
	} else if accel < 0 {
		score -= 0.25
	}
	if roc5 == 0 && roc20 == 0 {
		score = 0
	}
	return models.FactorResult{
		Score:      clampScore(score),
		Confidence: clampConfidence(40 + float64(len(snap.History))/2),
		Diagnostics: map[string]float64{
			"roc5":         roc5,
			"roc20":        roc20,
			"acceleration": accel,
		},
	}
}

// technicalFactor folds the timeframe analyses into one weighted vote.
func technicalFactor(tfs []models.TimeframeAnalysis) models.FactorResult {
	var num, den float64
	var live, simulated int
	for _, a := range tfs {
		if hasReason(a.Reasoning, models.ReasonInsufficientData) {
			continue
		}
		w := a.Timeframe.Weight()
		num += a.Sentiment.Sign() * a.Strength * w
		den += w
		if a.Simulated {
			simulated++
		} else {
			live++
		}
	}
	if den == 0 {
		return models.FactorResult{Reason: models.ReasonInsufficientData}
	}
	vote := num / den
	return models.FactorResult{
		Score:      clampScore(vote / 2.5),
		Confidence: clampConfidence(30 + 15*float64(live) + 5*float64(simulated)),
		Diagnostics: map[string]float64{
			"weightedVote": vote,
			"live":         float64(live),
			"simulated":    float64(simulated),
		},
	}
}

// insiderScore nets purchases against sales.
func insiderScore(txs []models.InsiderTransaction) models.FactorResult {
	var buys, sells float64
	n := 0
	for _, tx := range txs {
		switch {
		case tx.Change > 0:
			buys += tx.Change
			n++
		case tx.Change < 0:
			sells -= tx.Change
			n++
		}
	}
	if buys+sells == 0 {
		return models.FactorResult{Confidence: 10, Reason: reasonNoInsider}
	}
	ratio := (buys - sells) / (buys + sells)
	return models.FactorResult{
		Score:      clampScore(2 * ratio),
		Confidence: clampConfidence(30 + 5*float64(n)),
		Diagnostics: map[string]float64{
			"sharesBought": buys,
			"sharesSold":   sells,
			"transactions": float64(n),
		},
	}
}

// fundamentalScore rates valuation, growth, profitability and leverage.
func fundamentalScore(f models.Fundamentals) models.FactorResult {
	var pts float64
	known := 0
	switch {
	case f.PERatio < 0:
		pts--
		known++
	case f.PERatio > 0 && f.PERatio < 15:
		pts++
		known++
	case f.PERatio >= 15 && f.PERatio <= 25:
		pts += 0.5
		known++
	case f.PERatio > 40:
		pts -= 0.5
		known++
	case f.PERatio > 0:
		known++
	}
	if f.RevenueGrowth != 0 {
		known++
		switch {
		case f.RevenueGrowth > 10:
			pts++
		case f.RevenueGrowth > 0:
			pts += 0.5
		default:
			pts--
		}
	}
	if f.ROE != 0 {
		known++
		if f.ROE > 15 {
			pts += 0.5
		} else if f.ROE < 0 {
			pts -= 0.5
		}
	}
	if f.DebtToEquity != 0 {
		known++
		if f.DebtToEquity > 2 {
			pts -= 0.5
		} else if f.DebtToEquity < 0.5 {
			pts += 0.25
		}
	}
	if known == 0 {
		return models.FactorResult{Reason: models.ReasonInsufficientData}
	}
	return models.FactorResult{
		Score:      clampScore(0.6 * pts),
		Confidence: clampConfidence(math.Min(80, 20+15*float64(known))),
		Diagnostics: map[string]float64{
			"peRatio":       f.PERatio,
			"revenueGrowth": f.RevenueGrowth,
			"roe":           f.ROE,
			"debtToEquity":  f.DebtToEquity,
		},
	}
}

// flowScore combines book imbalance with the recent volume trend.
func flowScore(imbalance float64, haveBook bool, snap models.SymbolSnapshot) models.FactorResult {
	var score, confidence float64
	diag := map[string]float64{}

	if haveBook {
		imbalance = util.Clamp(util.Finite(imbalance), -1, 1)
		score += 1.2 * imbalance
		confidence += 40
		diag["imbalance"] = imbalance
	}
	if h := snap.History; len(h) >= 20 && !snap.Instrument.IsCrypto() {
		recent := avgVolume(h[len(h)-5:])
		prior := avgVolume(h[len(h)-20 : len(h)-5])
		if prior > 0 {
			trend := util.Clamp(recent/prior-1, -1, 1)
			var dir float64
			if roc := features.RateOfChange(h, 5); roc > 0 {
				dir = 1
			} else if roc < 0 {
				dir = -1
			}
			score += 0.8 * trend * dir
			confidence += 20
			diag["volumeTrend"] = trend
		}
	}
	if confidence == 0 {
		return models.FactorResult{Reason: reasonNoFlow}
	}
	return models.FactorResult{Score: clampScore(score), Confidence: clampConfidence(confidence), Diagnostics: diag}
}

func avgVolume(pts []models.PricePoint) float64 {
	if len(pts) == 0 {
		return 0
	}
	var s float64
	for _, p := range pts {
		s += p.Volume
	}
	return s / float64(len(pts))
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func sentimentFactor(ctx context.Context, scorer service.SentimentScorer, items []models.NewsItem) models.FactorResult {
	if len(items) == 0 {
		return models.FactorResult{Confidence: 20, Reason: reasonNoNews}
	}
	score, conf, err := scorer.Score(ctx, items)
	if err != nil {
		return fallbackFor(err)
	}
	return models.FactorResult{
		Score:       clampScore(score),
		Confidence:  clampConfidence(conf),
		Diagnostics: map[string]float64{"articles": float64(len(items))},
	}
}
