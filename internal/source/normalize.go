package source

import (
	"html"
	"regexp"
	"strings"

	"github.com/jobsift/jobsift/internal/model"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles double-encoded board
// descriptions; no-op on already-real HTML), strips all tags, then
// collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, "")
	return strings.Join(strings.Fields(plain), " ")
}

// parseLocation splits a free-text location ("New York, NY, USA") into
// the structured form. Best effort: one part is a city, two adds a
// state, three adds a country.
func parseLocation(raw string) model.Location {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 0:
		return model.Location{}
	case 1:
		return model.Location{City: parts[0]}
	case 2:
		return model.Location{City: parts[0], State: parts[1]}
	default:
		return model.Location{City: parts[0], State: parts[1], Country: parts[2]}
	}
}

// detectRemote infers the remote arrangement from title and location
// text.
func detectRemote(title, location string) model.RemoteOption {
	t := strings.ToLower(title + " " + location)
	switch {
	case strings.Contains(t, "hybrid"):
		return model.RemoteHybrid
	case strings.Contains(t, "flexible"):
		return model.RemoteFlexible
	case strings.Contains(t, "remote") || strings.Contains(t, "anywhere") || strings.Contains(t, "worldwide"):
		return model.RemoteFull
	default:
		return model.RemoteOnSite
	}
}

// inferLevel buckets a title into an experience level.
func inferLevel(title string) model.ExperienceLevel {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "intern"):
		return model.LevelIntern
	case strings.Contains(t, "principal"), strings.Contains(t, "staff"),
		strings.Contains(t, "lead"), strings.Contains(t, "head of"):
		return model.LevelLead
	case strings.Contains(t, "vp"), strings.Contains(t, "vice president"),
		strings.Contains(t, "chief"), strings.Contains(t, "director"):
		return model.LevelExecutive
	case strings.Contains(t, "senior"), strings.Contains(t, "sr."), strings.Contains(t, "sr "):
		return model.LevelSenior
	case strings.Contains(t, "junior"), strings.Contains(t, "jr."), strings.Contains(t, "jr "):
		return model.LevelJunior
	case strings.Contains(t, "entry"), strings.Contains(t, "graduate"), strings.Contains(t, "associate"):
		return model.LevelEntry
	default:
		return model.LevelMid
	}
}

// knownSkills is the vocabulary scanned for when a board does not list
// skills explicitly. Matching is whole-word, case-insensitive.
var knownSkills = []string{
	"go", "golang", "python", "java", "javascript", "typescript", "rust",
	"c++", "c#", "ruby", "php", "swift", "kotlin", "scala", "sql",
	"react", "vue", "angular", "node", "django", "rails", "spring",
	"kubernetes", "docker", "terraform", "aws", "gcp", "azure",
	"postgres", "postgresql", "mysql", "redis", "mongodb", "kafka",
	"graphql", "grpc", "rest", "ci/cd", "linux", "git",
	"machine learning", "data engineering", "distributed systems",
}

// extractSkills scans a description for known skill keywords.
func extractSkills(description string) []string {
	text := strings.ToLower(description)
	var found []string
	for _, skill := range knownSkills {
		if containsWord(text, skill) {
			found = append(found, skill)
		}
	}
	return found
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// matchesFilters applies client-side filtering for boards whose APIs do
// not support server-side search parameters.
func matchesFilters(p model.UnifiedJobPosting, f model.SearchFilters) bool {
	if f.Keywords != "" {
		kw := strings.ToLower(f.Keywords)
		haystack := strings.ToLower(p.Title + " " + p.Description)
		matched := false
		for _, word := range strings.Fields(kw) {
			if strings.Contains(haystack, word) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.Location != "" {
		loc := strings.ToLower(f.Location)
		have := strings.ToLower(model.NormalizeLocation(p.Location))
		want := strings.ToLower(model.NormalizeLocation(parseLocation(f.Location)))
		if !strings.Contains(have, want) && !strings.Contains(have, loc) {
			return false
		}
	}
	if f.Remote && p.RemoteOption == model.RemoteOnSite {
		return false
	}
	if f.SalaryFloor > 0 && p.Salary != nil && p.Salary.Max < f.SalaryFloor {
		return false
	}
	if !f.PostedSince.IsZero() && !p.PostedAt.IsZero() && p.PostedAt.Before(f.PostedSince) {
		return false
	}
	return true
}
