// Package sources builds candidate public-source URLs for an investigation target.
//
// URLs are templated, never deduplicated, and not fetched here. Duplicates between the baseline and the deep lists
// are expected.
package sources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/myrjola/whistleblower/internal/models"
)

// Region qualifies news and professional-network searches.
const Region = "Malaysia"

// escape percent-encodes s for use in a path segment or query value. Spaces become %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func wikipedia(q string) string {
	return "https://en.wikipedia.org/wiki/" + escape(strings.ReplaceAll(q, " ", "_"))
}

func googleSiteSearch(site, q string) string {
	return "https://www.google.com/search?q=" + escape(fmt.Sprintf("site:%s \"%s\" %s", site, q, Region))
}

func query(name, organisation string) string {
	q := strings.TrimSpace(name)
	if org := strings.TrimSpace(organisation); org != "" {
		q += " " + org
	}
	return q
}

// Baseline returns the fixed set of references generated for every investigation.
func Baseline(name, organisation string) []models.SourceRecord {
	q := query(name, organisation)
	return []models.SourceRecord{
		{
			URL:              wikipedia(q),
			Snippet:          fmt.Sprintf("General profile of %s.", q),
			CredibilityScore: 0.6, //nolint:mnd // fixed heuristic
		},
		{
			URL:              "https://news.google.com/search?q=" + escape(q+" "+Region),
			Snippet:          fmt.Sprintf("Recent news about %s in %s.", q, Region),
			CredibilityScore: 0.5, //nolint:mnd // fixed heuristic
		},
		{
			URL:              googleSiteSearch("linkedin.com/in", q),
			Snippet:          fmt.Sprintf("LinkedIn people profiles matching %s (Google site search).", q),
			CredibilityScore: 0.4, //nolint:mnd // fixed heuristic
		},
		{
			URL:              googleSiteSearch("linkedin.com/company", q),
			Snippet:          fmt.Sprintf("LinkedIn company pages matching %s (Google site search).", q),
			CredibilityScore: 0.4, //nolint:mnd // fixed heuristic
		},
		{
			URL:              "https://www.facebook.com/search/top/?q=" + escape(q),
			Snippet:          fmt.Sprintf("Facebook public search results for %s.", q),
			CredibilityScore: 0.3, //nolint:mnd // fixed heuristic
		},
		{
			URL:              "https://www.tiktok.com/search?q=" + escape(q),
			Snippet:          fmt.Sprintf("TikTok public search results for %s.", q),
			CredibilityScore: 0.25, //nolint:mnd // fixed heuristic
		},
	}
}

// DeepCandidates returns the extended ordered candidate list for query.
func DeepCandidates(query string) []string {
	q := strings.TrimSpace(query)
	e := escape(q)
	candidates := []string{
		wikipedia(q),
		"https://www.thestar.com.my/search?q=" + e,
		"https://www.nst.com.my/search?keywords=" + e,
		"https://www.astroawani.com/search?q=" + e,
		"https://www.freemalaysiatoday.com/?s=" + e,
		"https://www.theedgemarkets.com/search-results?keywords=" + e,
		"https://news.google.com/search?q=" + escape(q+" "+Region),
		"https://duckduckgo.com/html/?q=" + escape(q+" "+Region),
		"https://www.facebook.com/search/top/?q=" + e,
		"https://www.tiktok.com/search?q=" + e,
		googleSiteSearch("linkedin.com/in", q),
		googleSiteSearch("linkedin.com/company", q),
	}
	// Second tranche: more regional outlets and risk-qualified queries.
	candidates = append(candidates,
		"https://malaysiakini.com/search?q="+e,
		"https://www.bharian.com.my/search?query="+e,
		"https://www.sinarharian.com.my/search?query="+e,
		"https://www.utusan.com.my/?s="+e,
		"https://www.malaymail.com/search?keywords="+e,
		"https://www.freemalaysiatoday.com/?s="+escape(q+" corruption"),
		"https://www.thestar.com.my/search?q="+escape(q+" fraud"),
		"https://news.google.com/search?q="+escape(q+" procurement"),
	)
	if len(candidates) > models.DefaultDeepLimit {
		candidates = candidates[:models.DefaultDeepLimit]
	}
	return candidates
}

// Deep returns at most limit deep candidates for query. A limit of zero or less means models.DefaultDeepLimit.
func Deep(query string, limit int) []string {
	if limit <= 0 {
		limit = models.DefaultDeepLimit
	}
	candidates := DeepCandidates(query)
	return candidates[:min(limit, len(candidates))]
}
