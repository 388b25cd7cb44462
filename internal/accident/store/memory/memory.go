// Package memory keeps accidents in process. Execute holds the store lock
// across validate and mutate.
package memory

import (
	"context"
	"fmt"
	"sync"

	"safetyaudit/internal/accident/models"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/platform/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	accidents map[id.AccidentID]*models.Accident
}

func NewInMemory() *InMemory {
	return &InMemory{accidents: make(map[id.AccidentID]*models.Accident)}
}

func (s *InMemory) Create(_ context.Context, accident *models.Accident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accidents[accident.ID]; ok {
		return fmt.Errorf("accident %s: %w", accident.ID, sentinel.ErrConflict)
	}
	s.accidents[accident.ID] = accident.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accidents[accidentID]
	if !ok || a.OwnerID != ownerID {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, accident *models.Accident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accidents[accident.ID]
	if !ok || existing.OwnerID != accident.OwnerID {
		return sentinel.ErrNotFound
	}
	s.accidents[accident.ID] = accident.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, ownerID id.OwnerID, accidentID id.AccidentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accidents[accidentID]
	if !ok || a.OwnerID != ownerID {
		return sentinel.ErrNotFound
	}
	delete(s.accidents, accidentID)
	return nil
}

func (s *InMemory) ListByBranch(_ context.Context, ownerID id.OwnerID, branchID string) ([]*models.Accident, error) {
	return s.list(ownerID, func(a *models.Accident) bool { return a.BranchID == branchID }), nil
}

func (s *InMemory) ListByCompany(_ context.Context, ownerID id.OwnerID, companyID string) ([]*models.Accident, error) {
	return s.list(ownerID, func(a *models.Accident) bool { return a.CompanyID == companyID }), nil
}

// Execute validates and mutates the stored accident under the write lock.
// Nothing is written when validate fails.
func (s *InMemory) Execute(_ context.Context, ownerID id.OwnerID, accidentID id.AccidentID, validate func(*models.Accident) error, mutate func(*models.Accident)) (*models.Accident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accidents[accidentID]
	if !ok || stored.OwnerID != ownerID {
		return nil, sentinel.ErrNotFound
	}
	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.accidents[accidentID] = working.Clone()
	return working, nil
}

func (s *InMemory) list(ownerID id.OwnerID, match func(*models.Accident) bool) []*models.Accident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Accident, 0)
	for _, a := range s.accidents {
		if a.OwnerID == ownerID && match(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}
