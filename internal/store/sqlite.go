// Package store persists unified postings and duplicate links in
// SQLite. Indexed columns cover the dedup candidate queries; the full
// record travels as a JSON payload so schema churn in the unified
// model does not require migrations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jobsift/jobsift/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS postings (
	id                 TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	company_normalized TEXT NOT NULL,
	dedup_hash         TEXT NOT NULL,
	posted_at          DATETIME NOT NULL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	is_duplicate       INTEGER NOT NULL DEFAULT 0,
	payload            TEXT NOT NULL,
	updated_at         DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_postings_company ON postings (company_normalized, posted_at);
CREATE INDEX IF NOT EXISTS idx_postings_hash ON postings (dedup_hash);

CREATE TABLE IF NOT EXISTS duplicate_links (
	duplicate_id TEXT PRIMARY KEY,
	parent_id    TEXT NOT NULL,
	confidence   REAL NOT NULL,
	match_reason TEXT NOT NULL,
	detected_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_parent ON duplicate_links (parent_id);
`

// SQLiteStore implements model.PostingStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures
// the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// RecentByCompany returns active, non-duplicate postings for the
// company seen since the given time, newest first. These are the
// candidates the dedup engine compares an incoming posting against.
func (s *SQLiteStore) RecentByCompany(company string, since time.Time) ([]model.UnifiedJobPosting, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM postings
		 WHERE company_normalized = ? AND posted_at >= ?
		   AND is_active = 1 AND is_duplicate = 0
		 ORDER BY posted_at DESC`,
		model.NormalizeCompany(company), since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying postings for %s: %w", company, err)
	}
	defer rows.Close()

	var out []model.UnifiedJobPosting
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		var p model.UnifiedJobPosting
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding posting payload: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosting fetches one posting by its source-prefixed ID. A missing
// posting returns (nil, nil).
func (s *SQLiteStore) GetPosting(id string) (*model.UnifiedJobPosting, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM postings WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching posting %s: %w", id, err)
	}
	var p model.UnifiedJobPosting
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decoding posting %s: %w", id, err)
	}
	return &p, nil
}

// Apply executes one store instruction from the dedup pipeline.
func (s *SQLiteStore) Apply(instr model.StoreInstruction) error {
	switch instr.Action {
	case model.ActionCreate, model.ActionUpdate:
		return s.upsert(instr.Posting, false)
	case model.ActionLink:
		if instr.Link == nil {
			return fmt.Errorf("link instruction for %s has no link", instr.Posting.ID)
		}
		return s.link(instr.Posting, *instr.Link)
	default:
		return fmt.Errorf("unknown store action %q", instr.Action)
	}
}

func (s *SQLiteStore) upsert(p model.UnifiedJobPosting, duplicate bool) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding posting %s: %w", p.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO postings (id, source, company_normalized, dedup_hash, posted_at, is_active, is_duplicate, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
			company_normalized = excluded.company_normalized,
			dedup_hash         = excluded.dedup_hash,
			posted_at          = excluded.posted_at,
			is_active          = excluded.is_active,
			is_duplicate       = excluded.is_duplicate,
			payload            = excluded.payload,
			updated_at         = CURRENT_TIMESTAMP`,
		p.ID, string(p.Source), model.NormalizeCompany(p.Company.Name), p.DeduplicationHash,
		p.PostedAt, boolInt(p.IsActive), boolInt(duplicate), string(payload),
	)
	if err != nil {
		return fmt.Errorf("upserting posting %s: %w", p.ID, err)
	}
	return nil
}

// link stores the duplicate posting flagged out of the candidate set
// and records which parent it resolves to.
func (s *SQLiteStore) link(p model.UnifiedJobPosting, l model.DuplicateLink) error {
	if err := s.upsert(p, true); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO duplicate_links (duplicate_id, parent_id, confidence, match_reason, detected_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(duplicate_id) DO UPDATE SET
			parent_id    = excluded.parent_id,
			confidence   = excluded.confidence,
			match_reason = excluded.match_reason,
			detected_at  = excluded.detected_at`,
		l.DuplicateJobID, l.ParentJobID, l.Confidence, l.MatchReason, l.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("linking %s to %s: %w", l.DuplicateJobID, l.ParentJobID, err)
	}
	return nil
}

// MarkInactive flags a posting closed without deleting its history.
func (s *SQLiteStore) MarkInactive(id string) error {
	_, err := s.db.Exec(
		"UPDATE postings SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking %s inactive: %w", id, err)
	}
	return nil
}

// LinksForParent returns the duplicates resolved to the given parent,
// most recent first.
func (s *SQLiteStore) LinksForParent(parentID string) ([]model.DuplicateLink, error) {
	rows, err := s.db.Query(
		`SELECT duplicate_id, parent_id, confidence, match_reason, detected_at
		 FROM duplicate_links WHERE parent_id = ? ORDER BY detected_at DESC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying links for %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []model.DuplicateLink
	for rows.Next() {
		var l model.DuplicateLink
		if err := rows.Scan(&l.DuplicateJobID, &l.ParentJobID, &l.Confidence, &l.MatchReason, &l.DetectedAt); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Cleanup deletes inactive postings last touched before the cutoff,
// along with their duplicate links.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := s.db.Exec(
		`DELETE FROM duplicate_links WHERE duplicate_id IN
		 (SELECT id FROM postings WHERE is_active = 0 AND updated_at < ?)`, cutoff)
	if err != nil {
		return fmt.Errorf("cleaning up links: %w", err)
	}
	_, err = s.db.Exec("DELETE FROM postings WHERE is_active = 0 AND updated_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("cleaning up postings: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
