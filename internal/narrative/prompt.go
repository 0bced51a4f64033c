package narrative

import (
	"fmt"
	"strings"

	"github.com/myrjola/whistleblower/internal/models"
)

const systemInstruction = "You assess public-source signals for ethical risk. Use cautious language.\n" +
	"Only reference the matched signals provided; do not invent facts.\n" +
	"Summarize concerns and rationale in 4-6 sentences, then advise next steps."

// CautiousText is returned when no lexicon term matched. No strategy is consulted for it.
const CautiousText = "Cautious assessment\n" +
	"No adverse signals found in the consulted public sources. Matched signals: none.\n" +
	"This tool does not publish allegations and avoids definitive claims without attributed evidence.\n" +
	"Next steps: continue low-intensity monitoring for new litigation or regulatory actions; " +
	"perform routine due diligence if needed."

// Prompt is the instruction pair handed to every remote strategy.
type Prompt struct {
	System string
	User   string
}

// Input is everything the narrative is allowed to draw on.
type Input struct {
	TargetType   models.TargetType
	Name         string
	Organisation string
	Timeframe    string
	Sources      []models.SourceRecord
	Flags        models.FlagResult
	RiskScore    float64
}

func matchedSignals(matched []string) string {
	if len(matched) == 0 {
		return "none"
	}
	return strings.Join(matched, ", ")
}

// BuildPrompt renders the system instruction and the user content for in.
func BuildPrompt(in Input) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s | Name: %s | Org: %s | Timeframe: %s\n\n",
		in.TargetType, in.Name, in.Organisation, in.Timeframe)
	b.WriteString("Sources:\n")
	for i, s := range in.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", s.URL, s.Snippet)
	}
	fmt.Fprintf(&b, "\n\nMatched signals: %s\n", matchedSignals(in.Flags.Matched))
	fmt.Fprintf(&b, "Risk score: %.2f", in.RiskScore)
	return Prompt{System: systemInstruction, User: b.String()}
}

// TemplateText is the deterministic narrative used when every remote strategy is unavailable.
func TemplateText(matched []string) string {
	return "Public-source review indicates possible concerns. Matched signals: " + matchedSignals(matched) + "."
}
