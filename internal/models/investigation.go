package models

import (
	"time"
)

type TargetType string

const (
	TargetTypeIndividual   TargetType = "individual"
	TargetTypeOrganisation TargetType = "organisation"
)

// DefaultDeepLimit is the number of deep candidates fetched when the request doesn't say otherwise.
const DefaultDeepLimit = 20

// InvestigationRequest describes the individual or organisation being assessed.
type InvestigationRequest struct {
	TargetType   TargetType `json:"target_type"`
	Name         string     `json:"name"`
	Organisation string     `json:"organisation,omitempty"`
	Timeframe    string     `json:"timeframe,omitempty"`
	Context      string     `json:"context,omitempty"`
	DeepSearch   bool       `json:"deep_search,omitempty"`
	// DeepLimit caps the number of fetched deep candidates. Zero or negative means DefaultDeepLimit.
	DeepLimit int `json:"deep_limit,omitempty"`
}

// EffectiveDeepLimit returns DeepLimit with the default applied.
func (r InvestigationRequest) EffectiveDeepLimit() int {
	if r.DeepLimit <= 0 {
		return DefaultDeepLimit
	}
	return r.DeepLimit
}

// SourceRecord is a public-source reference with a title-derived snippet and a heuristic credibility weight.
type SourceRecord struct {
	URL              string  `json:"url"`
	Snippet          string  `json:"snippet"`
	CredibilityScore float64 `json:"credibility_score"`
}

// FlagResult summarises which risk lexicon terms were found in the collected text.
type FlagResult struct {
	Hits    int      `json:"hits"`
	Matched []string `json:"matched"`
	Risk    float64  `json:"risk"`
}

type Verdict string

const (
	VerdictClean       Verdict = "Clean"
	VerdictProblematic Verdict = "Problematic"
)

// InvestigationResult is the assessment returned to the caller.
type InvestigationResult struct {
	Verdict   Verdict        `json:"verdict"`
	Comments  string         `json:"comments"`
	Sources   []SourceRecord `json:"sources"`
	RiskScore float64        `json:"risk_score"`
	Flags     FlagResult     `json:"flags"`
	// NarrativeTier names the strategy that produced Comments.
	NarrativeTier string `json:"narrative_tier"`
}

// InvestigationRecord is a stored investigation.
type InvestigationRecord struct {
	ID      string               `json:"id"`
	Request InvestigationRequest `json:"request"`
	Result  InvestigationResult  `json:"result"`
	Created time.Time            `json:"created"`
}

// InvestigationSummary is the listing view of an InvestigationRecord.
type InvestigationSummary struct {
	ID         string     `json:"id"`
	TargetType TargetType `json:"target_type"`
	Name       string     `json:"name"`
	Verdict    Verdict    `json:"verdict"`
	RiskScore  float64    `json:"risk_score"`
	Created    time.Time  `json:"created"`
}
