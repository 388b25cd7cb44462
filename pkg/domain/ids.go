// Package domain holds typed identifiers shared across modules.
//
// Typed ids keep an accident id from being passed where a registry entry id is
// expected. Person, company and branch identifiers stay plain strings because
// they originate in external directories with historical, non-UUID formats.
package domain

import (
	"github.com/google/uuid"

	dErrors "safetyaudit/pkg/domain-errors"
)

type (
	// OwnerID scopes every document to the account that owns it.
	OwnerID uuid.UUID
	// AccidentID identifies an accident or incident report.
	AccidentID uuid.UUID
	// EntryID identifies a registry entry (dated follow-up record).
	EntryID uuid.UUID
)

func (id OwnerID) String() string    { return uuid.UUID(id).String() }
func (id AccidentID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }

func (id OwnerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AccidentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Ids encode as their canonical UUID string in JSON.
func (id OwnerID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id AccidentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *OwnerID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AccidentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewAccidentID() AccidentID { return AccidentID(uuid.New()) }
func NewEntryID() EntryID       { return EntryID(uuid.New()) }

// ParseOwnerID parses an owner id at a trust boundary.
func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s, "owner ID")
	return OwnerID(u), err
}

// ParseAccidentID parses an accident id at a trust boundary.
func ParseAccidentID(s string) (AccidentID, error) {
	u, err := parseUUID(s, "accident ID")
	return AccidentID(u), err
}

// ParseEntryID parses a registry entry id at a trust boundary.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry ID")
	return EntryID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
