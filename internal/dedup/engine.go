// Package dedup decides whether an incoming posting duplicates one
// already stored. Five independent strategies vote with weighted
// confidences; the engine is deterministic and order-independent for a
// fixed candidate set.
package dedup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

// Strategy weights and nominal confidences per the detection design.
const (
	weightHash  = 1.0
	weightExact = 0.9
	weightTitle = 0.8
	weightDesc  = 0.7
	weightURL   = 0.6

	totalWeight = weightHash + weightExact + weightTitle + weightDesc + weightURL
)

var strategyOrder = []string{
	"exact-hash", "exact-fields", "fuzzy-title", "description-shingles", "application-url",
}

// Config tunes the engine.
type Config struct {
	// Threshold is the weighted confidence at or above which a posting
	// is declared a duplicate.
	Threshold float64
	// OverrideConfidence short-circuits the diluted average: when a
	// single strategy fires at or above this confidence, its value
	// becomes the overall confidence.
	OverrideConfidence float64
	// TitleSimilarity is the fuzzy-title strategy's floor (exclusive).
	TitleSimilarity float64
	// DescriptionSimilarity is the shingled-description strategy's
	// floor (inclusive).
	DescriptionSimilarity float64
	// Lookback bounds the candidate window the store is asked for.
	Lookback time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:             85,
		OverrideConfidence:    95,
		TitleSimilarity:       0.9,
		DescriptionSimilarity: 0.85,
		Lookback:              30 * 24 * time.Hour,
	}
}

// match is one strategy's vote for one candidate.
type match struct {
	strategy   string
	confidence float64
	weight     float64
	parentID   string
}

// Decision is the engine's verdict on one incoming posting.
type Decision struct {
	IsDuplicate bool
	Confidence  float64
	ParentID    string
	MatchReason string
}

// Engine runs the detection strategies.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an engine; zero-valued config fields fall back to
// the defaults.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.OverrideConfidence <= 0 {
		cfg.OverrideConfidence = def.OverrideConfidence
	}
	if cfg.TitleSimilarity <= 0 {
		cfg.TitleSimilarity = def.TitleSimilarity
	}
	if cfg.DescriptionSimilarity <= 0 {
		cfg.DescriptionSimilarity = def.DescriptionSimilarity
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Lookback exposes the candidate-window bound for callers querying the
// store.
func (e *Engine) Lookback() time.Duration {
	return e.cfg.Lookback
}

// Evaluate runs all strategies for the incoming posting against the
// candidate set and combines their votes. Candidates are existing
// stored postings; the incoming record only ever links to one of them,
// never the other way around.
func (e *Engine) Evaluate(incoming model.UnifiedJobPosting, candidates []model.UnifiedJobPosting) Decision {
	best := make(map[string]match) // strategy name → strongest vote

	consider := func(m match) {
		cur, ok := best[m.strategy]
		if !ok || m.confidence > cur.confidence ||
			(m.confidence == cur.confidence && m.parentID < cur.parentID) {
			best[m.strategy] = m
		}
	}

	inTitle := model.NormalizeTitle(incoming.Title)
	inCompany := model.NormalizeCompany(incoming.Company.Name)
	inLocation := model.NormalizeLocation(incoming.Location)
	inURL := model.NormalizeURL(incoming.Application.URL)

	for _, cand := range candidates {
		if cand.ID == incoming.ID {
			continue
		}
		candTitle := model.NormalizeTitle(cand.Title)
		candCompany := model.NormalizeCompany(cand.Company.Name)
		sameCompany := candCompany == inCompany

		// 1. Exact content hash.
		if incoming.DeduplicationHash != "" && cand.DeduplicationHash == incoming.DeduplicationHash {
			consider(match{"exact-hash", 100, weightHash, cand.ID})
		}

		// 2. Exact normalized (title, company, location).
		if sameCompany && candTitle == inTitle &&
			model.NormalizeLocation(cand.Location) == inLocation {
			consider(match{"exact-fields", 95, weightExact, cand.ID})
		}

		// 3. Fuzzy title within the same company.
		if sameCompany {
			if sim := stringSimilarity(inTitle, candTitle); sim > e.cfg.TitleSimilarity {
				consider(match{"fuzzy-title", 100 * sim, weightTitle, cand.ID})
			}
		}

		// 4. Shingled description similarity, gated to same-company or
		// similar-title candidates to keep comparisons meaningful.
		if incoming.Description != "" && cand.Description != "" {
			if sameCompany || stringSimilarity(inTitle, candTitle) > 0.7 {
				if sim := jaccardSimilarity(incoming.Description, cand.Description); sim >= e.cfg.DescriptionSimilarity {
					consider(match{"description-shingles", 100 * sim, weightDesc, cand.ID})
				}
			}
		}

		// 5. Exact normalized application URL.
		if inURL != "" && model.NormalizeURL(cand.Application.URL) == inURL {
			consider(match{"application-url", 90, weightURL, cand.ID})
		}
	}

	if len(best) == 0 {
		return Decision{}
	}

	// Weighted average over ALL strategy weights: strategies that did
	// not fire contribute zero confidence at full weight. Fixed
	// iteration order keeps the float accumulation bit-stable.
	var weightedSum float64
	top := match{parentID: "\xff"}
	for _, name := range strategyOrder {
		m, ok := best[name]
		if !ok {
			continue
		}
		weightedSum += m.confidence * m.weight
		if m.confidence > top.confidence ||
			(m.confidence == top.confidence && m.parentID < top.parentID) {
			top = m
		}
	}
	overall := weightedSum / totalWeight

	// A single near-certain strategy should not be drowned out by the
	// ones that stayed silent.
	if top.confidence >= e.cfg.OverrideConfidence && top.confidence > overall {
		overall = top.confidence
	}
	if overall > 100 {
		overall = 100
	}

	d := Decision{
		Confidence:  overall,
		ParentID:    top.parentID,
		MatchReason: top.strategy,
	}
	if overall >= e.cfg.Threshold {
		d.IsDuplicate = true
	}
	return d
}

// Process evaluates the incoming posting and emits the store
// instruction: link it under the detected parent, update the existing
// record for the same source posting, or create it.
func (e *Engine) Process(incoming model.UnifiedJobPosting, candidates []model.UnifiedJobPosting, now time.Time) model.StoreInstruction {
	for _, cand := range candidates {
		if cand.ID == incoming.ID {
			return model.StoreInstruction{Action: model.ActionUpdate, Posting: incoming}
		}
	}

	d := e.Evaluate(incoming, candidates)
	if !d.IsDuplicate {
		return model.StoreInstruction{Action: model.ActionCreate, Posting: incoming}
	}

	e.logger.Debug("duplicate detected",
		"incoming", incoming.ID,
		"parent", d.ParentID,
		"confidence", fmt.Sprintf("%.1f", d.Confidence),
		"reason", d.MatchReason,
	)
	return model.StoreInstruction{
		Action:  model.ActionLink,
		Posting: incoming,
		Link: &model.DuplicateLink{
			DuplicateJobID: incoming.ID,
			ParentJobID:    d.ParentID,
			Confidence:     d.Confidence,
			MatchReason:    d.MatchReason,
			DetectedAt:     now,
		},
	}
}
