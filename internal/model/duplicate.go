package model

import "time"

// DuplicateLink records that an incoming posting duplicates an existing
// stored one. Links only ever point from a new record to an existing
// record, so the relation stays acyclic: a parent is never itself marked
// duplicate.
type DuplicateLink struct {
	DuplicateJobID string
	ParentJobID    string
	Confidence     float64 // 0–100
	MatchReason    string
	DetectedAt     time.Time
}

// StoreAction tells the persistent store what to do with a posting.
type StoreAction string

const (
	ActionCreate StoreAction = "create"
	ActionUpdate StoreAction = "update"
	ActionLink   StoreAction = "link"
)

// StoreInstruction is the dedup engine's output: the core never embeds
// persistence logic, it only instructs the store.
type StoreInstruction struct {
	Action  StoreAction
	Posting UnifiedJobPosting
	// Link is set when Action is ActionLink.
	Link *DuplicateLink
}

// PostingStore is the boundary to the external persistent store. It
// supplies the candidate window the dedup engine compares against and
// executes the instructions the pipeline emits.
type PostingStore interface {
	// RecentByCompany returns active postings for the company seen since
	// the given time, newest first.
	RecentByCompany(company string, since time.Time) ([]UnifiedJobPosting, error)
	GetPosting(id string) (*UnifiedJobPosting, error)
	Apply(instr StoreInstruction) error
	MarkInactive(id string) error
}
