// Package flags scans collected text for risk lexicon terms and scores the result.
package flags

import (
	"math"
	"strings"

	"github.com/myrjola/whistleblower/internal/lexicon"
	"github.com/myrjola/whistleblower/internal/models"
)

const (
	baseRisk    = 0.30
	riskPerHit  = 0.20
	maxRisk     = 0.95
	problematic = 0.5
)

// Detect joins the snippets, lower-cases them and records every lexicon term that appears as a whole word.
//
// Hits counts distinct terms, not occurrences. A single hit already reaches the Problematic threshold.
func Detect(snippets []string) models.FlagResult {
	text := strings.ToLower(strings.Join(snippets, "\n"))
	matched := []string{}
	for _, term := range lexicon.Compiled() {
		if term.Pattern.MatchString(text) {
			matched = append(matched, term.Text)
		}
	}
	return models.FlagResult{
		Hits:    len(matched),
		Matched: matched,
		Risk:    Risk(len(matched)),
	}
}

// Risk returns min(0.95, 0.30 + 0.20*hits) without rounding. Presentation layers format it to two decimals.
func Risk(hits int) float64 {
	// The explicit conversion keeps the compiler from fusing the multiply-add.
	return math.Min(maxRisk, baseRisk+float64(riskPerHit*float64(hits)))
}

// Verdict maps a risk score to a verdict.
func Verdict(risk float64) models.Verdict {
	if risk >= problematic {
		return models.VerdictProblematic
	}
	return models.VerdictClean
}
