package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// titleExpansions maps common title abbreviations to their long form.
// Applied token-by-token after lowercasing, so "Sr. Software Engineer"
// and "Senior SWE" normalize to the same string.
var titleExpansions = map[string]string{
	"sr":   "senior",
	"snr":  "senior",
	"jr":   "junior",
	"swe":  "software engineer",
	"sde":  "software engineer",
	"eng":  "engineer",
	"engr": "engineer",
	"dev":  "developer",
	"mgr":  "manager",
	"dir":  "director",
	"vp":   "vice president",
	"fe":   "frontend",
	"be":   "backend",
	"fs":   "full stack",
	"ml":   "machine learning",
	"qa":   "quality assurance",
}

// stateExpansions maps US state abbreviations that show up in location
// strings to their full names. Only states common in job postings are
// listed; unknown tokens pass through unchanged.
var stateExpansions = map[string]string{
	"ny": "new york",
	"nyc": "new york",
	"ca": "california",
	"sf": "san francisco",
	"tx": "texas",
	"wa": "washington",
	"ma": "massachusetts",
	"il": "illinois",
	"co": "colorado",
	"ga": "georgia",
	"fl": "florida",
	"nc": "north carolina",
	"va": "virginia",
	"pa": "pennsylvania",
	"or": "oregon",
	"az": "arizona",
	"uk": "united kingdom",
	"usa": "united states",
	"us": "united states",
}

// trackingParams are query parameters stripped when normalizing
// application URLs. Two postings that differ only in campaign tags share
// one normalized URL.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gh_src":       true,
	"lever-origin": true,
	"ref":          true,
	"source":       true,
	"src":          true,
	"fbclid":       true,
	"gclid":        true,
}

func normalizeTokens(s string, expansions map[string]string) string {
	s = strings.ToLower(s)
	// Treat punctuation as token separators so "Sr." splits cleanly.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '/', '(', ')', '-', '–', '|', ':':
			return ' '
		}
		return r
	}, s)

	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if exp, ok := expansions[tok]; ok {
			out = append(out, exp)
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// NormalizeTitle lowercases a job title, expands common abbreviations and
// collapses whitespace and punctuation.
func NormalizeTitle(title string) string {
	return normalizeTokens(title, titleExpansions)
}

// NormalizeCompany lowercases a company name and strips corporate
// suffixes ("Acme, Inc." → "acme").
func NormalizeCompany(name string) string {
	n := normalizeTokens(name, nil)
	for _, suffix := range []string{" inc", " llc", " ltd", " gmbh", " corp", " co"} {
		n = strings.TrimSuffix(n, suffix)
	}
	return strings.TrimSpace(n)
}

// NormalizeLocation flattens a Location into a comparable lowercase
// string with state abbreviations expanded.
func NormalizeLocation(loc Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.State, loc.Country} {
		if p == "" {
			continue
		}
		parts = append(parts, normalizeTokens(p, stateExpansions))
	}
	// Duplicate tokens appear when city and state expand to the same
	// value ("NYC, NY"); keep first occurrence only.
	seen := make(map[string]bool, len(parts))
	out := parts[:0]
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

// NormalizeURL strips tracking query parameters and fragments from an
// application URL and lowercases the host. Returns the input unchanged
// if it does not parse.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// DedupHash computes the content hash used for exact duplicate
// detection: sha256 over the normalized (company, title, location)
// tuple. Pure function of its inputs.
func DedupHash(company, title string, loc Location) string {
	key := NormalizeCompany(company) + "|" + NormalizeTitle(title) + "|" + NormalizeLocation(loc)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
