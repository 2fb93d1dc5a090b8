package sentiment

import (
	"strings"
	"sync"

	"github.com/jonreiter/govader"
)

// Vader scores English text with the VADER compound polarity
type Vader struct {
	once sync.Once
	sia  *govader.SentimentIntensityAnalyzer
}

// NewVader creates a VADER analyzer. The lexicon loads on first use.
func NewVader() *Vader {
	return &Vader{}
}

// Polarity returns the compound score of text in [-1, 1]
func (v *Vader) Polarity(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	v.once.Do(func() {
		v.sia = govader.NewSentimentIntensityAnalyzer()
	})
	return v.sia.PolarityScores(text).Compound
}
