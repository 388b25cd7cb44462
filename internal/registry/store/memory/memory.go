// Package memory is an in-process document store for registry entries.
// Documents are kept JSON-encoded so readers never share maps with writers
// and values round-trip exactly as they would through Postgres JSONB.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/platform/sentinel"
)

type record struct {
	owner id.OwnerID
	id    id.EntryID
	data  []byte
}

type InMemory struct {
	mu          sync.RWMutex
	collections map[string][]*record
}

func NewInMemory() *InMemory {
	return &InMemory{collections: make(map[string][]*record)}
}

func (s *InMemory) Insert(_ context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, doc models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.collections[collection] {
		if r.id == entryID {
			return fmt.Errorf("entry %s: %w", entryID, sentinel.ErrConflict)
		}
	}
	s.collections[collection] = append(s.collections[collection], &record{owner: ownerID, id: entryID, data: data})
	return nil
}

// FindByField returns the owner's documents whose field equals value, in
// insertion order.
func (s *InMemory) FindByField(_ context.Context, collection string, ownerID id.OwnerID, field, value string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Document, 0)
	for _, r := range s.collections[collection] {
		if r.owner != ownerID {
			continue
		}
		doc, err := decode(r.data)
		if err != nil {
			return nil, err
		}
		if v, ok := doc[field].(string); ok && v == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.find(collection, ownerID, entryID)
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	return decode(r.data)
}

func (s *InMemory) AppendToArray(_ context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, field string, items []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.find(collection, ownerID, entryID)
	if r == nil {
		return sentinel.ErrNotFound
	}
	doc, err := decode(r.data)
	if err != nil {
		return err
	}
	existing, _ := doc[field].([]any)
	doc[field] = append(existing, items...)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	r.data = data
	return nil
}

// Len reports the number of documents in a collection.
func (s *InMemory) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *InMemory) find(collection string, ownerID id.OwnerID, entryID id.EntryID) *record {
	for _, r := range s.collections[collection] {
		if r.id == entryID && r.owner == ownerID {
			return r
		}
	}
	return nil
}

func decode(data []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
