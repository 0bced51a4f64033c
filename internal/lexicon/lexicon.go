// Package lexicon holds the risk-indicator terms that flag potential ethical or legal concerns.
package lexicon

import "regexp"

var terms = []string{
	"corruption",
	"fraud",
	"scam",
	"money laundering",
	"conflict of interest",
	"kickback",
	"procurement",
	"shell company",
	"misrepresentation",
	"sanction",
	"ban",
	"investigation",
	"charged",
	"convicted",
}

// Term is a lexicon entry with its whole-word pattern.
type Term struct {
	Text    string
	Pattern *regexp.Regexp
}

// Unicode word boundaries. RE2's \b is ASCII-only.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var compiled = compile(terms)

func compile(ts []string) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		out[i] = Term{Text: t, Pattern: regexp.MustCompile(wordStart + regexp.QuoteMeta(t) + wordEnd)}
	}
	return out
}

// Terms returns the lexicon in definition order.
func Terms() []string {
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}

// Compiled returns the lexicon terms with their patterns in definition order. Patterns expect lower-cased input.
func Compiled() []Term {
	out := make([]Term, len(compiled))
	copy(out, compiled)
	return out
}
