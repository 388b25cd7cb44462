// Package models holds the registry entry shapes shared by every configured
// registry (accident follow-ups, training attendance, ...).
package models

import (
	"time"

	id "safetyaudit/pkg/domain"
)

// Document is the stored form of an entry. Keys follow the registry's
// configured field names; values are JSON-compatible.
type Document map[string]any

// Person is the canonical involved-person reference every legacy shape
// normalizes to.
type Person struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Evidence is a sanitized pointer to an attachment held by the evidence store.
// Only these fields survive sanitization.
type Evidence struct {
	ID           string     `json:"id"`
	SourceFileID string     `json:"sourceFileId,omitempty"`
	ShareToken   string     `json:"shareToken,omitempty"`
	Name         string     `json:"name,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// Entry is a dated follow-up record attached to exactly one parent entity.
// Entries are immutable after creation except for appended evidence.
type Entry struct {
	ID         id.EntryID     `json:"id"`
	OwnerID    id.OwnerID     `json:"ownerId"`
	ParentID   string         `json:"parentId"`
	RecordedAt time.Time      `json:"recordedAt"`
	Persons    []Person       `json:"persons"`
	Evidence   []Evidence     `json:"evidence"`
	Fields     map[string]any `json:"fields,omitempty"`
	CreatedBy  string         `json:"createdBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PersonIDs returns the entry's person ids in order.
func (e *Entry) PersonIDs() []string {
	ids := make([]string, 0, len(e.Persons))
	for _, p := range e.Persons {
		ids = append(ids, p.ID)
	}
	return ids
}

// EntryEvidence is one flattened evidence item with the context of its entry.
type EntryEvidence struct {
	Evidence
	EntryID         id.EntryID `json:"registroId"`
	EntryRecordedAt time.Time  `json:"registroFecha"`
	Persons         []Person   `json:"persons"`
}

// Stats aggregates the entries of one parent entity.
type Stats struct {
	TotalEntries  int `json:"totalRegistros"`
	TotalPersons  int `json:"totalPersonas"`
	TotalEvidence int `json:"totalEvidencias"`
}

// CreateEntryRequest carries raw, not yet validated, input.
// Persons and Evidence accept every historical shape.
type CreateEntryRequest struct {
	ParentID   string
	RecordedAt time.Time
	Persons    []any
	Evidence   []any
	Fields     map[string]any
}
