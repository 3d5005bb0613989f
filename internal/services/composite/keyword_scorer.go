package composite

import (
	"context"
	"math"
	"strings"
	"unicode"

	"SignalForge/internal/domain/models"
)

var (
	bullishWords = []string{
		"beat", "beats", "surge", "surges", "soar", "soars", "upgrade", "upgraded", "record",
		"growth", "strong", "outperform", "raise", "raises", "raised", "profit", "gain", "gains",
		"rally", "rallies", "bullish", "buyback", "approval", "approved", "expands", "partnership",
	}
	bearishWords = []string{
		"miss", "misses", "plunge", "plunges", "downgrade", "downgraded", "lawsuit", "weak",
		"underperform", "cut", "cuts", "loss", "losses", "decline", "declines", "fall", "falls",
		"bearish", "investigation", "recall", "subpoena", "layoffs", "bankruptcy", "fraud", "slump",
	}
)

// KeywordScorer is the default SentimentScorer: it counts bullish and bearish
// words across headlines and summaries.
type KeywordScorer struct {
	bull map[string]struct{}
	bear map[string]struct{}
}

func NewKeywordScorer() *KeywordScorer {
	k := &KeywordScorer{bull: make(map[string]struct{}), bear: make(map[string]struct{})}
	for _, w := range bullishWords {
		k.bull[w] = struct{}{}
	}
	for _, w := range bearishWords {
		k.bear[w] = struct{}{}
	}
	return k
}

// Score returns a score in [-2,2] and a confidence in [0,95].
func (k *KeywordScorer) Score(_ context.Context, items []models.NewsItem) (float64, float64, error) {
	var bull, bear, matched int
	for _, it := range items {
		b, r := k.count(it.Headline + " " + it.Summary)
		if b+r > 0 {
			matched++
		}
		bull += b
		bear += r
	}
	if bull+bear == 0 {
		return 0, 20, nil
	}
	ratio := float64(bull-bear) / float64(bull+bear)
	confidence := math.Min(95, 30+5*float64(matched))
	return 2 * ratio, confidence, nil
}

func (k *KeywordScorer) count(text string) (bull, bear int) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := k.bull[w]; ok {
			bull++
		}
		if _, ok := k.bear[w]; ok {
			bear++
		}
	}
	return bull, bear
}
