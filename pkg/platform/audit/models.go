package audit

import (
	"context"
	"time"

	id "safetyaudit/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Routing and retention differ per category.
type EventCategory string

const (
	// CategoryCompliance covers actions with regulatory significance:
	// reporting, closing and deleting safety events.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers follow-up bookkeeping and collaborator failures.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	OwnerID   id.OwnerID
	// Subject is the affected document id (accident id, registry entry id).
	Subject string
	Action  string
	// Collection names the registry collection for entry events.
	Collection string
	ActorID    string
	RequestID  string
	Reason     string
}

type AuditEvent string

const (
	EventAccidentCreated AuditEvent = "accident_created"
	EventAccidentUpdated AuditEvent = "accident_updated"
	EventAccidentClosed  AuditEvent = "accident_closed"
	EventAccidentDeleted AuditEvent = "accident_deleted"

	EventRegistryEntryCreated AuditEvent = "registry_entry_created"
	EventEvidenceAttached     AuditEvent = "evidence_attached"

	EventPersonStatusFailed AuditEvent = "person_status_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccidentCreated: CategoryCompliance,
	EventAccidentClosed:  CategoryCompliance,
	EventAccidentDeleted: CategoryCompliance,

	EventAccidentUpdated:      CategoryOperations,
	EventRegistryEntryCreated: CategoryOperations,
	EventEvidenceAttached:     CategoryOperations,
	EventPersonStatusFailed:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Appender accepts events. Sinks (Kafka) only need this half.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// Store persists events and lists them back per owner, oldest first.
type Store interface {
	Appender
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]Event, error)
}
