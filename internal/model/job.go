package model

import (
	"context"
	"time"
)

// Source identifies a job-board provider.
type Source string

const (
	SourceGreenhouse Source = "greenhouse"
	SourceLever      Source = "lever"
	SourceRemotive   Source = "remotive"
)

// RemoteOption describes a posting's remote-work arrangement.
type RemoteOption string

const (
	RemoteOnSite   RemoteOption = "on-site"
	RemoteHybrid   RemoteOption = "hybrid"
	RemoteFull     RemoteOption = "remote"
	RemoteFlexible RemoteOption = "flexible"
)

// ExperienceLevel buckets a posting's seniority.
type ExperienceLevel string

const (
	LevelIntern    ExperienceLevel = "intern"
	LevelEntry     ExperienceLevel = "entry"
	LevelJunior    ExperienceLevel = "junior"
	LevelMid       ExperienceLevel = "mid"
	LevelSenior    ExperienceLevel = "senior"
	LevelLead      ExperienceLevel = "lead"
	LevelExecutive ExperienceLevel = "executive"
)

// Company holds employer metadata attached to a posting.
type Company struct {
	Name     string
	Website  string
	Logo     string
	Size     string
	Industry string
	Rating   float64 // 0 when unknown, otherwise 1–5
}

// Coordinates is an optional lat/lng pair for a location.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Location is the posting's place of work.
type Location struct {
	City        string
	State       string
	Country     string
	Coordinates *Coordinates
}

// Salary is an optional compensation range.
type Salary struct {
	Min      float64
	Max      float64
	Currency string
	Period   string // "year", "month", "hour"
}

// Application describes how to apply.
type Application struct {
	URL       string
	Email     string
	Deadline  *time.Time
	EasyApply bool
}

// UnifiedJobPosting is the canonical record every source adapter produces.
// ID is source-prefixed ("greenhouse:12345") so IDs never collide across
// providers.
type UnifiedJobPosting struct {
	ID              string
	SourceID        string
	Source          Source
	Title           string
	NormalizedTitle string
	Description     string
	Company         Company
	Location        Location
	RemoteOption    RemoteOption
	EmploymentType  string
	ExperienceLevel ExperienceLevel
	Salary          *Salary
	RequiredSkills  []string
	PreferredSkills []string
	Application     Application
	PostedAt        time.Time
	UpdatedAt       time.Time
	ExpiresAt       *time.Time
	IsActive        bool
	IsFeatured      bool
	// DeduplicationHash is a pure function of the normalized
	// (company, title, location) tuple. Anything that mutates one of
	// those three fields must call Finalize again.
	DeduplicationHash string
	ApplicantCount    *int
}

// Finalize recomputes the derived fields (NormalizedTitle,
// DeduplicationHash) from the posting's current state. Adapters call it
// once after mapping a raw record into the unified schema.
func (p *UnifiedJobPosting) Finalize() {
	p.NormalizedTitle = NormalizeTitle(p.Title)
	p.DeduplicationHash = DedupHash(p.Company.Name, p.Title, p.Location)
}

// SearchFilters narrows a source search.
type SearchFilters struct {
	Keywords    string
	Location    string
	Remote      bool
	SalaryFloor float64
	Category    string
	PostedSince time.Time
}

// SourceClient is the per-board adapter contract. Search applies rate
// limiting and retries internally and returns an empty slice on
// unrecoverable failure so one dead source never aborts aggregation.
type SourceClient interface {
	Source() Source
	Search(ctx context.Context, filters SearchFilters) ([]UnifiedJobPosting, error)
	GetJob(ctx context.Context, id string) (*UnifiedJobPosting, error)
	// IsAvailable is a lightweight health probe. It must complete within
	// a short timeout and never panic; false covers every failure mode.
	IsAvailable(ctx context.Context) bool
}
