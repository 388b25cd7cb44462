package service

import (
	"errors"
	"strings"
	"time"

	"safetyaudit/internal/registry/models"
	"safetyaudit/internal/registry/policy"
	dErrors "safetyaudit/pkg/domain-errors"
)

// Document keys shared by every registry.
const (
	FieldID         = "id"
	FieldOwnerID    = "ownerId"
	FieldRecordedAt = "recordedAt"
	FieldCreatedBy  = "createdBy"
	FieldCreatedAt  = "createdAt"
)

const defaultEvidenceField = "evidence"

// Config binds one registry engine instance to a parent-entity kind.
type Config struct {
	// Name identifies the registry in routes and logs ("accident", "training").
	Name           string
	CollectionName string
	// EntityIDField is the document key holding the parent id.
	EntityIDField string
	PersonsField  string
	// EvidenceField defaults to "evidence".
	EvidenceField string
	// PersonIDsField holds the derived person id index. Defaults to the
	// persons field singularized plus "Ids" (involvedEmployees -> involvedEmployeeIds).
	PersonIDsField string
	Persons        policy.PersonPolicy
	Evidence       policy.EvidencePolicy
}

func (c Config) withDefaults() Config {
	if c.EvidenceField == "" {
		c.EvidenceField = defaultEvidenceField
	}
	if c.PersonIDsField == "" && c.PersonsField != "" {
		c.PersonIDsField = strings.TrimSuffix(c.PersonsField, "s") + "Ids"
	}
	if c.Evidence == nil {
		c.Evidence = policy.SanitizingEvidencePolicy{}
	}
	return c
}

// Validate reports configuration mistakes at wiring time.
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("registry name is required"))
	}
	if c.CollectionName == "" {
		errs = append(errs, errors.New("collection name is required"))
	}
	if c.EntityIDField == "" {
		errs = append(errs, errors.New("entity id field is required"))
	}
	if c.PersonsField == "" {
		errs = append(errs, errors.New("persons field is required"))
	}
	if c.Persons == nil {
		errs = append(errs, errors.New("person policy is required"))
	}
	fields := map[string]bool{}
	for _, f := range []string{c.EntityIDField, c.PersonsField, c.EvidenceField, c.PersonIDsField} {
		if f == "" {
			continue
		}
		if c.isSharedField(f) || fields[f] {
			errs = append(errs, errors.New("field "+f+" collides with another document field"))
		}
		fields[f] = true
	}
	return errors.Join(errs...)
}

func (c Config) isSharedField(f string) bool {
	switch f {
	case FieldID, FieldOwnerID, FieldRecordedAt, FieldCreatedBy, FieldCreatedAt:
		return true
	}
	return false
}

func (c Config) isReserved(f string) bool {
	return c.isSharedField(f) || f == c.EntityIDField || f == c.PersonsField ||
		f == c.EvidenceField || f == c.PersonIDsField
}

// RequestFromPayload reads a create request keyed by this registry's document
// field names. Keys that are not engine fields become free-form fields.
func (c Config) RequestFromPayload(parentID string, payload map[string]any) (models.CreateEntryRequest, error) {
	req := models.CreateEntryRequest{ParentID: parentID, Fields: map[string]any{}}
	if raw, ok := payload[FieldRecordedAt]; ok && raw != nil {
		s, _ := raw.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return req, dErrors.New(dErrors.CodeValidation, "recordedAt must be an RFC 3339 timestamp")
		}
		req.RecordedAt = t
	}
	req.Persons = asSlice(payload[c.PersonsField])
	req.Evidence = asSlice(payload[c.EvidenceField])
	for k, v := range payload {
		if !c.isReserved(k) {
			req.Fields[k] = v
		}
	}
	return req, nil
}

// AccidentConfig backs accident follow-up entries. Persons carry a name and
// on-leave state; legacy documents key them by employeeId.
func AccidentConfig() Config {
	return Config{
		Name:           "accident",
		CollectionName: "accident_entries",
		EntityIDField:  "accidentId",
		PersonsField:   "involvedEmployees",
		EvidenceField:  "images",
		Persons: policy.AliasPersonPolicy{
			IDAliases:   []string{"employeeId"},
			NameAliases: []string{"employeeName"},
			Attributes:  []string{"onLeave", "leaveStart"},
			MinPersons:  1,
			Label:       "involved employee",
		},
		Evidence: policy.SanitizingEvidencePolicy{},
	}
}

// TrainingConfig backs training attendance records; attendees are ids only.
func TrainingConfig() Config {
	return Config{
		Name:           "training",
		CollectionName: "attendance_records",
		EntityIDField:  "trainingId",
		PersonsField:   "attendees",
		EvidenceField:  "images",
		Persons: policy.AliasPersonPolicy{
			IDAliases:  []string{"employeeId"},
			MinPersons: 1,
			Label:      "attendee",
		},
		Evidence: policy.SanitizingEvidencePolicy{},
	}
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}
