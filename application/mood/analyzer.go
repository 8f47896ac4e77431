// Package mood scores the emotional tone of a journal conversation from Polish keywords.
package mood

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	LabelPositive = "pozytywny"
	LabelNeutral  = "neutralny"
	LabelNegative = "negatywny"
)

var (
	positiveKeywords = []string{"szczęśliwy", "zadowolony", "dumny", "spokojny", "wdzięczny", "dobrze", "super", "świetnie"}
	negativeKeywords = []string{"smutny", "zły", "zmartwiony", "zmęczony", "źle", "fatalnie", "przygnębiony", "lęk"}
)

// Result is the mood of a conversation. Score is the number of positive keywords
// present minus the number of negative ones.
type Result struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

// Analyzer scores user messages and caches results by text
type Analyzer struct {
	cache *lru.Cache[string, Result]
}

// NewAnalyzer creates an analyzer keeping up to cacheSize results
func NewAnalyzer(cacheSize int) (*Analyzer, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create mood cache: %w", err)
	}
	return &Analyzer{cache: cache}, nil
}

// Analyze scores the concatenation of the given user messages. Each keyword counts
// once however often it appears.
func (a *Analyzer) Analyze(userTexts []string) Result {
	text := strings.ToLower(strings.Join(userTexts, " "))

	key := cacheKey(text)
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	score := 0
	for _, w := range positiveKeywords {
		if strings.Contains(text, w) {
			score++
		}
	}
	for _, w := range negativeKeywords {
		if strings.Contains(text, w) {
			score--
		}
	}

	result := Result{Label: labelFor(score), Score: score}
	a.cache.Add(key, result)
	return result
}

// Score implements the persistence mood scorer
func (a *Analyzer) Score(userTexts []string) (string, int) {
	r := a.Analyze(userTexts)
	return r.Label, r.Score
}

// CacheLen reports how many results are cached
func (a *Analyzer) CacheLen() int {
	return a.cache.Len()
}

func labelFor(score int) string {
	switch {
	case score > 0:
		return LabelPositive
	case score < 0:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:16])
}
