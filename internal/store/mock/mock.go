// Package mock provides an in-memory store for tests. It mirrors the
// semantics of the Postgres store — unique identities, dedup-keyed posting
// upserts, idempotent skill links — under a single mutex, so concurrent
// callers exercise the same races the real store sees.
package mock

import (
	"context"
	"sync"

	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/model"
	"github.com/KalebDieterle/job-postings-analysis-app-sub000/internal/store"
)

// Store implements store.Companies and store.Postings in memory.
type Store struct {
	mu        sync.Mutex
	companies map[string]model.Company
	postings  map[string]model.Posting // keyed by external_id|source|country
	skills    map[string]map[string]bool

	// FailInsertCompany, when set, is returned by every InsertCompany call.
	FailInsertCompany error
	// FailUpsertPosting, when set, is returned by every UpsertPosting call.
	FailUpsertPosting error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		companies: make(map[string]model.Company),
		postings:  make(map[string]model.Posting),
		skills:    make(map[string]map[string]bool),
	}
}

func dedupKey(externalID, source, country string) string {
	return externalID + "|" + source + "|" + country
}

// ─── store.Companies ─────────────────────────────────────────────────────────

func (s *Store) SelectCompany(_ context.Context, id string) (*model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) InsertCompany(_ context.Context, c model.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertCompany != nil {
		return s.FailInsertCompany
	}
	if _, exists := s.companies[c.ID]; exists {
		return store.ErrDuplicateID
	}
	s.companies[c.ID] = c
	return nil
}

func (s *Store) BackfillCompany(_ context.Context, c model.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.companies[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Latitude == nil {
		existing.Latitude = c.Latitude
	}
	if existing.Longitude == nil {
		existing.Longitude = c.Longitude
	}
	if existing.Description == nil {
		existing.Description = c.Description
	}
	s.companies[c.ID] = existing
	return nil
}

// ─── store.Postings ──────────────────────────────────────────────────────────

func (s *Store) UpsertPosting(_ context.Context, p model.Posting) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpsertPosting != nil {
		return false, s.FailUpsertPosting
	}
	key := dedupKey(p.ExternalID, p.Source, p.Country)
	_, exists := s.postings[key]
	s.postings[key] = p
	return !exists, nil
}

func (s *Store) LinkSkills(_ context.Context, postingID string, skills []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.skills[postingID]
	if !ok {
		set = make(map[string]bool)
		s.skills[postingID] = set
	}
	for _, sk := range skills {
		set[sk] = true
	}
	return nil
}

// ─── Test inspection helpers ─────────────────────────────────────────────────

// CompanyCount reports how many company rows exist.
func (s *Store) CompanyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.companies)
}

// PostingCount reports how many posting rows exist.
func (s *Store) PostingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.postings)
}

// Company returns a company row by identity, or nil.
func (s *Store) Company(id string) *model.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[id]; ok {
		return &c
	}
	return nil
}

// Posting returns the posting with the given dedup key, or nil.
func (s *Store) Posting(externalID, source, country string) *model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.postings[dedupKey(externalID, source, country)]; ok {
		return &p
	}
	return nil
}

// Skills returns the skills linked to a posting.
func (s *Store) Skills(postingID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for sk := range s.skills[postingID] {
		out = append(out, sk)
	}
	return out
}
