package model

import "fmt"

// UserPreferenceProfile is the read-only input to scoring.
type UserPreferenceProfile struct {
	DesiredTitles    []string
	Skills           []string
	YearsExperience  int
	SalaryMin        float64
	SalaryMax        float64
	Locations        []string
	RemotePreference RemoteOption
	ExcludeKeywords  []string
	RequireKeywords  []string
}

// ScoreComponents holds the eight per-dimension scores, each 0–100.
type ScoreComponents struct {
	Title      float64
	Skills     float64
	Experience float64
	Salary     float64
	Location   float64
	Company    float64
	Quality    float64
	Freshness  float64
}

// ScoreWeights combines components into the overall score. Weights must
// sum to 1.
type ScoreWeights struct {
	Title      float64 `yaml:"title"`
	Skills     float64 `yaml:"skills"`
	Experience float64 `yaml:"experience"`
	Salary     float64 `yaml:"salary"`
	Location   float64 `yaml:"location"`
	Company    float64 `yaml:"company"`
	Quality    float64 `yaml:"quality"`
	Freshness  float64 `yaml:"freshness"`
}

// DefaultScoreWeights returns the standard weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Title:      0.25,
		Skills:     0.25,
		Experience: 0.15,
		Salary:     0.10,
		Location:   0.10,
		Company:    0.05,
		Quality:    0.05,
		Freshness:  0.05,
	}
}

// Validate checks the weights sum to 1 within a small tolerance.
func (w ScoreWeights) Validate() error {
	sum := w.Title + w.Skills + w.Experience + w.Salary + w.Location + w.Company + w.Quality + w.Freshness
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

// JobScore is the scoring engine's output: a pure function of
// (posting, profile, weights, now) with no hidden state.
type JobScore struct {
	Overall         float64 // 0–100
	Components      ScoreComponents
	MatchedKeywords []string
	MissingSkills   []string
	Explanation     []string
}
