// Package memory is an in-process person directory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safetyaudit/internal/directory"
	"safetyaudit/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	persons map[string]directory.PersonRecord
	order   []string
}

func NewInMemory(persons ...directory.PersonRecord) *InMemory {
	d := &InMemory{persons: make(map[string]directory.PersonRecord)}
	for _, p := range persons {
		d.Put(p)
	}
	return d
}

// Put inserts or replaces a person.
func (d *InMemory) Put(p directory.PersonRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.persons[p.ID]; !ok {
		d.order = append(d.order, p.ID)
	}
	if p.Status == "" {
		p.Status = directory.StatusActive
	}
	d.persons[p.ID] = p
}

func (d *InMemory) Get(personID string) (directory.PersonRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.persons[personID]
	return p, ok
}

func (d *InMemory) SetPersonStatus(_ context.Context, personID string, status directory.Status, leaveStart *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.persons[personID]
	if !ok {
		return fmt.Errorf("person %s: %w", personID, sentinel.ErrNotFound)
	}
	p.Status = status
	p.LeaveStart = leaveStart
	d.persons[personID] = p
	return nil
}

func (d *InMemory) ListByBranch(_ context.Context, branchID string, filter directory.Filter) ([]directory.PersonRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]directory.PersonRecord, 0)
	for _, personID := range d.order {
		p := d.persons[personID]
		if p.BranchID == branchID && filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
