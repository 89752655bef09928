package store

import (
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

// NopStore is a no-op store used in dry-run mode. Every posting appears
// new and nothing is persisted.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) RecentByCompany(company string, since time.Time) ([]model.UnifiedJobPosting, error) {
	return nil, nil
}
func (s *NopStore) GetPosting(id string) (*model.UnifiedJobPosting, error) { return nil, nil }
func (s *NopStore) Apply(instr model.StoreInstruction) error               { return nil }
func (s *NopStore) MarkInactive(id string) error                           { return nil }
