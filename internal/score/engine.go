// Package score ranks postings against a user's preference profile.
// Scoring is a pure function of (posting, profile, weights, now): no
// hidden state, no global clock reads, identical inputs produce
// identical output.
package score

import (
	"fmt"
	"strings"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

// neutralScore is used when a dimension has no data to judge: absence
// of information is never treated as a bad match.
const neutralScore = 70

// experienceBand is the years range considered a fit for a level.
type experienceBand struct {
	min, max int
}

var experienceBands = map[model.ExperienceLevel]experienceBand{
	model.LevelIntern:    {0, 1},
	model.LevelEntry:     {0, 2},
	model.LevelJunior:    {1, 3},
	model.LevelMid:       {3, 6},
	model.LevelSenior:    {5, 10},
	model.LevelLead:      {8, 15},
	model.LevelExecutive: {12, 40},
}

// Engine computes job scores with a fixed weight set.
type Engine struct {
	weights model.ScoreWeights
}

// NewEngine validates the weights and returns an engine.
func NewEngine(weights model.ScoreWeights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights}, nil
}

// Score produces the eight component scores, the weighted overall, and
// the explanation. now is injected so freshness is reproducible in
// tests and batch rescoring.
func (e *Engine) Score(p model.UnifiedJobPosting, prof model.UserPreferenceProfile, now time.Time) model.JobScore {
	var explanation []string

	title, titleMatches := scoreTitle(p, prof)
	skills, matched, missing := scoreSkills(p, prof)
	experience := scoreExperience(p, prof)
	salary := scoreSalary(p, prof)
	location := scoreLocation(p, prof)
	company := scoreCompany(p)
	quality := scoreQuality(p)
	freshness := scoreFreshness(p, now)

	components := model.ScoreComponents{
		Title:      title,
		Skills:     skills,
		Experience: experience,
		Salary:     salary,
		Location:   location,
		Company:    company,
		Quality:    quality,
		Freshness:  freshness,
	}

	overall := title*e.weights.Title +
		skills*e.weights.Skills +
		experience*e.weights.Experience +
		salary*e.weights.Salary +
		location*e.weights.Location +
		company*e.weights.Company +
		quality*e.weights.Quality +
		freshness*e.weights.Freshness

	if len(titleMatches) > 0 {
		explanation = append(explanation, fmt.Sprintf("title matches %s", strings.Join(titleMatches, ", ")))
	}
	if len(matched) > 0 {
		explanation = append(explanation, fmt.Sprintf("%d of %d preferred skills present", len(matched), len(prof.Skills)))
	}
	if len(missing) > 0 {
		explanation = append(explanation, fmt.Sprintf("missing skills: %s", strings.Join(missing, ", ")))
	}
	if experience < 100 && experience > 0 {
		explanation = append(explanation, fmt.Sprintf("experience fit %.0f/100 for %s level", experience, p.ExperienceLevel))
	}
	if p.Salary == nil {
		explanation = append(explanation, "no salary information disclosed")
	}

	// Hard keyword gates come last so their caps land on the final
	// number.
	haystack := strings.ToLower(p.Title + " " + p.Description)
	for _, kw := range prof.ExcludeKeywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			overall = 0
			explanation = append(explanation, fmt.Sprintf("contains excluded keyword %q", kw))
			break
		}
	}
	if overall > 0 {
		for _, kw := range prof.RequireKeywords {
			if kw != "" && !strings.Contains(haystack, strings.ToLower(kw)) {
				if overall > 40 {
					overall = 40
				}
				explanation = append(explanation, fmt.Sprintf("required keyword %q not found", kw))
			}
		}
	}

	overall = clamp(overall)
	return model.JobScore{
		Overall:         overall,
		Components:      components,
		MatchedKeywords: append(titleMatches, matched...),
		MissingSkills:   missing,
		Explanation:     explanation,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// scoreTitle compares the normalized posting title against each desired
// title, taking the best of containment and edit-distance similarity.
func scoreTitle(p model.UnifiedJobPosting, prof model.UserPreferenceProfile) (float64, []string) {
	if len(prof.DesiredTitles) == 0 {
		return neutralScore, nil
	}
	have := model.NormalizeTitle(p.Title)

	best := 0.0
	var matches []string
	for _, want := range prof.DesiredTitles {
		w := model.NormalizeTitle(want)
		if w == "" {
			continue
		}
		var s float64
		switch {
		case have == w:
			s = 1
		case strings.Contains(have, w) || strings.Contains(w, have):
			s = 0.9
		default:
			s = titleSimilarity(have, w)
		}
		if s >= 0.6 {
			matches = append(matches, want)
		}
		if s > best {
			best = s
		}
	}
	return clamp(best * 100), matches
}

// titleSimilarity is a 0–1 edit-distance ratio.
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(a, b))/float64(longest)
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d := prev[j] + 1
			if c := curr[j-1] + 1; c < d {
				d = c
			}
			if c := prev[j-1] + cost; c < d {
				d = c
			}
			curr[j] = d
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// scoreSkills measures coverage of the profile's skills in the
// posting's skill lists and description.
func scoreSkills(p model.UnifiedJobPosting, prof model.UserPreferenceProfile) (float64, []string, []string) {
	if len(prof.Skills) == 0 {
		return neutralScore, nil, nil
	}

	haystack := strings.ToLower(p.Description)
	listed := make(map[string]bool, len(p.RequiredSkills)+len(p.PreferredSkills))
	for _, s := range p.RequiredSkills {
		listed[strings.ToLower(s)] = true
	}
	for _, s := range p.PreferredSkills {
		listed[strings.ToLower(s)] = true
	}

	var matched, missing []string
	for _, skill := range prof.Skills {
		lower := strings.ToLower(skill)
		if listed[lower] || strings.Contains(haystack, lower) {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	score := 100 * float64(len(matched)) / float64(len(prof.Skills))
	return score, matched, missing
}

// scoreExperience compares the candidate's years against the banded
// range for the posting's level. Under-qualification is penalized
// steeper (20/yr) than over-qualification (10/yr).
func scoreExperience(p model.UnifiedJobPosting, prof model.UserPreferenceProfile) float64 {
	band, ok := experienceBands[p.ExperienceLevel]
	if !ok {
		return neutralScore
	}
	years := prof.YearsExperience
	switch {
	case years < band.min:
		return clamp(100 - float64(band.min-years)*20)
	case years > band.max:
		return clamp(100 - float64(years-band.max)*10)
	default:
		return 100
	}
}

// scoreSalary computes the overlap fraction between the posting's range
// and the profile's band. Missing data on either side is neutral, never
// zero.
func scoreSalary(p model.UnifiedJobPosting, prof model.UserPreferenceProfile) float64 {
	if p.Salary == nil || p.Salary.Max <= 0 || prof.SalaryMax <= 0 {
		return neutralScore
	}
	lo := p.Salary.Min
	if prof.SalaryMin > lo {
		lo = prof.SalaryMin
	}
	hi := p.Salary.Max
	if prof.SalaryMax < hi {
		hi = prof.SalaryMax
	}
	if hi <= lo {
		return 0
	}
	span := prof.SalaryMax - prof.SalaryMin
	if span <= 0 {
		// Degenerate single-point preference inside the range.
		return 100
	}
	return clamp(100 * (hi - lo) / span)
}

// scoreLocation matches location preferences with remote handling.
func scoreLocation(p model.UnifiedJobPosting, prof model.UserPreferenceProfile) float64 {
	wantsRemote := prof.RemotePreference == model.RemoteFull
	isRemote := p.RemoteOption == model.RemoteFull || p.RemoteOption == model.RemoteFlexible

	if wantsRemote {
		switch p.RemoteOption {
		case model.RemoteFull, model.RemoteFlexible:
			return 100
		case model.RemoteHybrid:
			return 60
		default:
			return 20
		}
	}

	if len(prof.Locations) == 0 {
		return neutralScore
	}
	have := model.NormalizeLocation(p.Location)
	for _, want := range prof.Locations {
		w := strings.ToLower(strings.TrimSpace(want))
		if w != "" && strings.Contains(have, w) {
			return 100
		}
	}
	if isRemote {
		// Remote works from anywhere even when a city was preferred.
		return 80
	}
	return 20
}

// scoreCompany is driven by the employer rating when known.
func scoreCompany(p model.UnifiedJobPosting) float64 {
	if p.Company.Rating <= 0 {
		return neutralScore
	}
	return clamp(p.Company.Rating / 5 * 100)
}

// scoreQuality rewards complete, transparent postings.
func scoreQuality(p model.UnifiedJobPosting) float64 {
	score := 40.0
	if len(p.Description) > 300 {
		score += 15
	}
	if len(p.Description) > 1200 {
		score += 10
	}
	if p.Salary != nil {
		score += 15
	}
	if p.Company.Website != "" {
		score += 5
	}
	if p.Company.Logo != "" {
		score += 5
	}
	if p.Application.EasyApply {
		score += 10
	}
	return clamp(score)
}

// scoreFreshness decays in discrete steps by posting age.
func scoreFreshness(p model.UnifiedJobPosting, now time.Time) float64 {
	if p.PostedAt.IsZero() {
		return 50
	}
	age := now.Sub(p.PostedAt)
	switch {
	case age <= 24*time.Hour:
		return 100
	case age <= 3*24*time.Hour:
		return 90
	case age <= 7*24*time.Hour:
		return 75
	case age <= 14*24*time.Hour:
		return 60
	case age <= 30*24*time.Hour:
		return 40
	case age <= 60*24*time.Hour:
		return 25
	default:
		return 10
	}
}
