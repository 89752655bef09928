package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func posting(id, company string, postedAt time.Time) model.UnifiedJobPosting {
	p := model.UnifiedJobPosting{
		ID:       id,
		Source:   model.SourceGreenhouse,
		Title:    "Backend Engineer",
		Company:  model.Company{Name: company},
		Location: model.Location{City: "New York", State: "NY"},
		PostedAt: postedAt,
		IsActive: true,
	}
	p.Finalize()
	return p
}

func TestCreateThenGet(t *testing.T) {
	s := newTestStore(t)
	p := posting("greenhouse:1", "Acme", time.Now().UTC())

	if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: p}); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	got, err := s.GetPosting("greenhouse:1")
	if err != nil {
		t.Fatalf("GetPosting: %v", err)
	}
	if got == nil || got.Title != p.Title || got.DeduplicationHash != p.DeduplicationHash {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetPosting("greenhouse:missing")
	if err != nil {
		t.Fatalf("GetPosting: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown ID, got %+v", got)
	}
}

func TestUpdateOverwrites(t *testing.T) {
	s := newTestStore(t)
	p := posting("greenhouse:1", "Acme", time.Now().UTC())
	if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: p}); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	p.Title = "Senior Backend Engineer"
	p.Finalize()
	if err := s.Apply(model.StoreInstruction{Action: model.ActionUpdate, Posting: p}); err != nil {
		t.Fatalf("Apply update: %v", err)
	}

	got, err := s.GetPosting("greenhouse:1")
	if err != nil {
		t.Fatalf("GetPosting: %v", err)
	}
	if got.Title != "Senior Backend Engineer" {
		t.Fatalf("update not applied: %q", got.Title)
	}
}

func TestRecentByCompany_FiltersWindowAndDuplicates(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	fresh := posting("greenhouse:1", "Acme Inc", now.Add(-24*time.Hour))
	stale := posting("greenhouse:2", "Acme Inc", now.Add(-60*24*time.Hour))
	other := posting("lever:1", "Globex", now.Add(-24*time.Hour))
	for _, p := range []model.UnifiedJobPosting{fresh, stale, other} {
		if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: p}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	// A linked duplicate must not reappear as a candidate.
	dup := posting("remotive:1", "Acme Inc", now.Add(-12*time.Hour))
	err := s.Apply(model.StoreInstruction{
		Action:  model.ActionLink,
		Posting: dup,
		Link: &model.DuplicateLink{
			DuplicateJobID: dup.ID,
			ParentJobID:    fresh.ID,
			Confidence:     96,
			MatchReason:    "exact-hash",
			DetectedAt:     now,
		},
	})
	if err != nil {
		t.Fatalf("Apply link: %v", err)
	}

	// The query normalizes the company, so "Acme" matches "Acme Inc".
	got, err := s.RecentByCompany("Acme", now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("RecentByCompany: %v", err)
	}
	if len(got) != 1 || got[0].ID != "greenhouse:1" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestLinksForParent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	parent := posting("greenhouse:1", "Acme", now)
	dup := posting("lever:1", "Acme", now)
	if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: parent}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Apply(model.StoreInstruction{
		Action:  model.ActionLink,
		Posting: dup,
		Link: &model.DuplicateLink{
			DuplicateJobID: dup.ID,
			ParentJobID:    parent.ID,
			Confidence:     91.5,
			MatchReason:    "fuzzy-title",
			DetectedAt:     now,
		},
	}); err != nil {
		t.Fatalf("Apply link: %v", err)
	}

	links, err := s.LinksForParent(parent.ID)
	if err != nil {
		t.Fatalf("LinksForParent: %v", err)
	}
	if len(links) != 1 || links[0].DuplicateJobID != dup.ID || links[0].MatchReason != "fuzzy-title" {
		t.Fatalf("unexpected links: %+v", links)
	}
}

func TestMarkInactiveExcludesFromCandidates(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	p := posting("greenhouse:1", "Acme", now)
	if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: p}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := s.MarkInactive(p.ID); err != nil {
		t.Fatalf("MarkInactive: %v", err)
	}

	got, err := s.RecentByCompany("Acme", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentByCompany: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("inactive posting still a candidate: %+v", got)
	}
	// The record itself is retained.
	stored, err := s.GetPosting(p.ID)
	if err != nil || stored == nil {
		t.Fatalf("inactive posting must remain fetchable: %v %v", stored, err)
	}
}

func TestCleanupRemovesOldInactive(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	p := posting("greenhouse:1", "Acme", now)
	if err := s.Apply(model.StoreInstruction{Action: model.ActionCreate, Posting: p}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.MarkInactive(p.ID); err != nil {
		t.Fatalf("MarkInactive: %v", err)
	}

	// Age the record past the cutoff by rewriting updated_at directly.
	if _, err := s.db.Exec("UPDATE postings SET updated_at = ? WHERE id = ?",
		now.Add(-48*time.Hour), p.ID); err != nil {
		t.Fatalf("aging record: %v", err)
	}

	if err := s.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	got, err := s.GetPosting(p.ID)
	if err != nil {
		t.Fatalf("GetPosting: %v", err)
	}
	if got != nil {
		t.Fatal("expected old inactive posting to be removed")
	}
}
