// Package memory provides process-local implementations of every state
// port. It backs tests and single-process deployments without Redis.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bibbank/risk-engine/internal/domain/model"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

type baselineKey struct {
	tenantID  uuid.UUID
	subjectID string
}

type profileKey struct {
	tenantID uuid.UUID
	name     string
}

// Store holds baselines, per-tenant corpora, counterparty profiles and
// analyses.
type Store struct {
	baselines map[baselineKey]model.BehaviorBaseline
	profiles  map[profileKey]model.CounterpartyProfile
	analyses  map[uuid.UUID]*model.Analysis
	corpora   map[uuid.UUID]*model.HistoricalCorpus
	corpusCap int
	mu        sync.RWMutex
}

var (
	_ port.BaselineStore      = (*Store)(nil)
	_ port.CorpusStore        = (*Store)(nil)
	_ port.CounterpartyStore  = (*Store)(nil)
	_ port.AnalysisRepository = (*Store)(nil)
)

// NewStore creates an empty Store whose per-tenant corpora hold at most
// corpusCap entries each.
func NewStore(corpusCap int) *Store {
	return &Store{
		baselines: make(map[baselineKey]model.BehaviorBaseline),
		profiles:  make(map[profileKey]model.CounterpartyProfile),
		analyses:  make(map[uuid.UUID]*model.Analysis),
		corpora:   make(map[uuid.UUID]*model.HistoricalCorpus),
		corpusCap: corpusCap,
	}
}

// GetBaseline returns the stored baseline or a zero baseline.
func (s *Store) GetBaseline(_ context.Context, tenantID uuid.UUID, subjectID string) (model.BehaviorBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[baselineKey{tenantID, subjectID}]
	if !ok {
		return model.BehaviorBaseline{TenantID: tenantID, SubjectID: subjectID}, nil
	}
	return b, nil
}

// SetBaseline stores the baseline.
func (s *Store) SetBaseline(_ context.Context, b model.BehaviorBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[baselineKey{b.TenantID, b.SubjectID}] = b
	return nil
}

// AppendEntry appends to the tenant's bounded corpus.
func (s *Store) AppendEntry(_ context.Context, entry model.CorpusEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corpora[entry.TenantID]
	if !ok {
		c = model.NewHistoricalCorpus(s.corpusCap)
		s.corpora[entry.TenantID] = c
	}
	c.Append(entry)
	return nil
}

// RecentEntries returns up to limit entries of the tenant's corpus, newest first.
func (s *Store) RecentEntries(_ context.Context, tenantID uuid.UUID, limit int) ([]model.CorpusEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[tenantID]
	if !ok {
		return nil, nil
	}
	return c.Recent(limit), nil
}

// CorpusLen returns the number of corpus entries held for the tenant.
func (s *Store) CorpusLen(tenantID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[tenantID]
	if !ok {
		return 0
	}
	return c.Len()
}

// GetProfiles returns the tenant's stored profiles for names.
func (s *Store) GetProfiles(_ context.Context, tenantID uuid.UUID, names []string) (map[string]model.CounterpartyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.CounterpartyProfile, len(names))
	for _, n := range names {
		if p, ok := s.profiles[profileKey{tenantID, n}]; ok {
			out[n] = p
		}
	}
	return out, nil
}

// ApplyDeltas merges each delta into the tenant's profile under one lock.
func (s *Store) ApplyDeltas(_ context.Context, tenantID uuid.UUID, deltas []model.CounterpartyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deltas {
		key := profileKey{tenantID, d.Name}
		merged := s.profiles[key].Merge(d)
		merged.SuspiciousFlags = d.SuspiciousFlags
		s.profiles[key] = merged
	}
	return nil
}

// Save stores the analysis.
func (s *Store) Save(_ context.Context, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.ID()] = a
	return nil
}

// FindByID returns the analysis or port.ErrNotFound.
func (s *Store) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[id]
	if !ok || a.TenantID() != tenantID {
		return nil, port.ErrNotFound
	}
	return a, nil
}

// FindBySubject lists analyses for a subject, newest first.
func (s *Store) FindBySubject(_ context.Context, tenantID uuid.UUID, subjectID string, limit, offset int) ([]*model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*model.Analysis
	for _, a := range s.analyses {
		if a.TenantID() == tenantID && a.SubjectID() == subjectID {
			matches = append(matches, a)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt().After(matches[j].CreatedAt()) })

	if offset >= len(matches) {
		return nil, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}
