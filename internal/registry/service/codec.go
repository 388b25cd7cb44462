package service

import (
	"time"

	"github.com/google/uuid"

	"safetyaudit/internal/registry/models"
	"safetyaudit/internal/registry/policy"
	id "safetyaudit/pkg/domain"
)

// encode renders an entry under the configured field names.
func (c Config) encode(e *models.Entry) models.Document {
	doc := models.Document{}
	for k, v := range e.Fields {
		if !c.isReserved(k) {
			doc[k] = v
		}
	}

	persons := make([]any, 0, len(e.Persons))
	personIDs := make([]any, 0, len(e.Persons))
	for _, p := range e.Persons {
		m := map[string]any{"id": p.ID}
		if p.Name != "" {
			m["name"] = p.Name
		}
		if len(p.Attributes) > 0 {
			m["attributes"] = p.Attributes
		}
		persons = append(persons, m)
		personIDs = append(personIDs, p.ID)
	}

	evidence := make([]any, 0, len(e.Evidence))
	for _, ev := range e.Evidence {
		evidence = append(evidence, encodeEvidence(ev))
	}

	doc[FieldID] = e.ID.String()
	doc[FieldOwnerID] = e.OwnerID.String()
	doc[c.EntityIDField] = e.ParentID
	doc[FieldRecordedAt] = e.RecordedAt.UTC().Format(time.RFC3339Nano)
	doc[c.PersonsField] = persons
	doc[c.PersonIDsField] = personIDs
	doc[c.EvidenceField] = evidence
	doc[FieldCreatedBy] = e.CreatedBy
	doc[FieldCreatedAt] = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	return doc
}

func encodeEvidence(ev models.Evidence) map[string]any {
	m := map[string]any{"id": ev.ID}
	if ev.SourceFileID != "" {
		m["sourceFileId"] = ev.SourceFileID
	}
	if ev.ShareToken != "" {
		m["shareToken"] = ev.ShareToken
	}
	if ev.Name != "" {
		m["name"] = ev.Name
	}
	if ev.CreatedAt != nil {
		m["createdAt"] = ev.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// decode reads a stored document. Legacy person and evidence shapes are
// normalized; evidence items that would fail sanitization are dropped.
func (c Config) decode(doc models.Document) (*models.Entry, bool) {
	rawID, _ := doc[FieldID].(string)
	entryUUID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, false
	}
	e := &models.Entry{ID: id.EntryID(entryUUID)}
	if rawOwner, ok := doc[FieldOwnerID].(string); ok {
		if ownerUUID, err := uuid.Parse(rawOwner); err == nil {
			e.OwnerID = id.OwnerID(ownerUUID)
		}
	}
	e.ParentID, _ = doc[c.EntityIDField].(string)
	e.RecordedAt = decodeTime(doc[FieldRecordedAt])
	e.CreatedAt = decodeTime(doc[FieldCreatedAt])
	e.CreatedBy, _ = doc[FieldCreatedBy].(string)
	e.Persons = c.Persons.Normalize(asSlice(doc[c.PersonsField]))
	e.Evidence = policy.SanitizeLenient(asSlice(doc[c.EvidenceField]))

	for k, v := range doc {
		if c.isReserved(k) {
			continue
		}
		if e.Fields == nil {
			e.Fields = map[string]any{}
		}
		e.Fields[k] = v
	}
	return e, true
}

func decodeTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}
