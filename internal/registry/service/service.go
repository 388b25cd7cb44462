// Package service implements the registry association engine: one generic
// service per Config, serving dated follow-up entries for a parent entity.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	registrymetrics "safetyaudit/internal/registry/metrics"
	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/audit"
	"safetyaudit/pkg/platform/sentinel"
	platformstrings "safetyaudit/pkg/platform/strings"
	"safetyaudit/pkg/requestcontext"
)

// DocumentStore persists entry documents per collection. Implementations
// return sentinel.ErrNotFound for unknown entries.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, doc models.Document) error
	FindByField(ctx context.Context, collection string, ownerID id.OwnerID, field, value string) ([]models.Document, error)
	FindByID(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID) (models.Document, error)
	AppendToArray(ctx context.Context, collection string, ownerID id.OwnerID, entryID id.EntryID, field string, items []any) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the registry engine bound to one Config.
type Service struct {
	cfg            Config
	store          DocumentStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *registrymetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds an engine. It fails when the configuration is incomplete.
func New(cfg Config, store DocumentStore, opts ...Option) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("safetyaudit/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Name() string   { return s.cfg.Name }
func (s *Service) Config() Config { return s.cfg }

// Create validates, normalizes and persists one entry. Validation runs before
// any write; a rejected entry is never stored.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, req models.CreateEntryRequest) (*models.Entry, error) {
	ctx, span := s.startSpan(ctx, "registry.Create")
	defer span.End()

	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	if req.ParentID == "" {
		s.incrementValidationFailures()
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", s.cfg.EntityIDField)
	}
	if err := s.cfg.Persons.Validate(req.Persons); err != nil {
		s.incrementValidationFailures()
		return nil, err
	}
	persons := s.cfg.Persons.Normalize(req.Persons)
	evidence, err := s.cfg.Evidence.Sanitize(req.Evidence)
	if err != nil {
		s.incrementValidationFailures()
		return nil, err
	}

	now := requestcontext.Now(ctx)
	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}
	entry := &models.Entry{
		ID:         id.NewEntryID(),
		OwnerID:    ownerID,
		ParentID:   req.ParentID,
		RecordedAt: recordedAt,
		Persons:    persons,
		Evidence:   evidence,
		Fields:     s.freeFormFields(req.Fields),
		CreatedBy:  requestcontext.ActorID(ctx),
		CreatedAt:  now,
	}

	if err := s.store.Insert(ctx, s.cfg.CollectionName, ownerID, entry.ID, s.cfg.encode(entry)); err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registry entry")
	}

	s.logger.InfoContext(ctx, "registry entry created",
		"registry", s.cfg.Name,
		"entry_id", entry.ID.String(),
		"parent_id", entry.ParentID,
		"persons", len(persons),
		"evidence", len(evidence),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitAudit(ctx, ownerID, audit.EventRegistryEntryCreated, entry.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementEntriesCreated(s.cfg.CollectionName)
	}
	return entry, nil
}

// AttachEvidence appends sanitized evidence to an existing entry. An empty
// list is a no-op.
func (s *Service) AttachEvidence(ctx context.Context, ownerID id.OwnerID, entryID id.EntryID, raw []any) ([]models.Evidence, error) {
	ctx, span := s.startSpan(ctx, "registry.AttachEvidence")
	defer span.End()

	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	evidence, err := s.cfg.Evidence.Sanitize(raw)
	if err != nil {
		s.incrementValidationFailures()
		return nil, err
	}
	if len(evidence) == 0 {
		return evidence, nil
	}

	items := make([]any, 0, len(evidence))
	for _, ev := range evidence {
		items = append(items, encodeEvidence(ev))
	}
	err = s.store.AppendToArray(ctx, s.cfg.CollectionName, ownerID, entryID, s.cfg.EvidenceField, items)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registry entry not found")
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach evidence")
	}

	s.emitAudit(ctx, ownerID, audit.EventEvidenceAttached, entryID.String())
	if s.metrics != nil {
		s.metrics.AddEvidenceAttached(s.cfg.CollectionName, len(evidence))
	}
	return evidence, nil
}

// GetEntry loads one entry by id.
func (s *Service) GetEntry(ctx context.Context, ownerID id.OwnerID, entryID id.EntryID) (*models.Entry, error) {
	doc, err := s.store.FindByID(ctx, s.cfg.CollectionName, ownerID, entryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registry entry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry entry")
	}
	entry, ok := s.cfg.decode(doc)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "stored registry entry is malformed")
	}
	return entry, nil
}

// GetRegistriesByEntity lists the parent's entries newest first, ties broken
// by entry id. Missing owner or parent yields an empty list.
func (s *Service) GetRegistriesByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]*models.Entry, error) {
	ctx, span := s.startSpan(ctx, "registry.GetRegistriesByEntity")
	defer span.End()

	if ownerID.IsNil() || parentID == "" {
		return []*models.Entry{}, nil
	}
	start := time.Now()
	docs, err := s.store.FindByField(ctx, s.cfg.CollectionName, ownerID, s.cfg.EntityIDField, parentID)
	if s.metrics != nil {
		s.metrics.ObserveQuery(s.cfg.CollectionName, start)
	}
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registry entries")
	}

	entries := make([]*models.Entry, 0, len(docs))
	for _, doc := range docs {
		entry, ok := s.cfg.decode(doc)
		if !ok {
			s.logger.WarnContext(ctx, "skipping malformed registry document",
				"registry", s.cfg.Name,
				"parent_id", parentID,
			)
			continue
		}
		entries = append(entries, entry)
	}
	slices.SortStableFunc(entries, func(a, b *models.Entry) int {
		if c := b.RecordedAt.Compare(a.RecordedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return entries, nil
}

// GetEvidenciasByEntity flattens evidence across the parent's entries without
// deduplication. Each item carries its entry id, date and persons.
func (s *Service) GetEvidenciasByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]models.EntryEvidence, error) {
	entries, err := s.GetRegistriesByEntity(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	return flattenEvidence(entries), nil
}

// GetPersonasUnicasByEntity returns unique person ids in first-seen order.
func (s *Service) GetPersonasUnicasByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]string, error) {
	entries, err := s.GetRegistriesByEntity(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	return uniquePersons(entries), nil
}

// GetStatsByEntity aggregates entry, unique person and evidence counts from
// one consistent listing.
func (s *Service) GetStatsByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) (models.Stats, error) {
	entries, err := s.GetRegistriesByEntity(ctx, ownerID, parentID)
	if err != nil {
		return models.Stats{}, err
	}
	return models.Stats{
		TotalEntries:  len(entries),
		TotalPersons:  len(uniquePersons(entries)),
		TotalEvidence: len(flattenEvidence(entries)),
	}, nil
}

func flattenEvidence(entries []*models.Entry) []models.EntryEvidence {
	out := make([]models.EntryEvidence, 0)
	for _, e := range entries {
		for _, ev := range e.Evidence {
			out = append(out, models.EntryEvidence{
				Evidence:        ev,
				EntryID:         e.ID,
				EntryRecordedAt: e.RecordedAt,
				Persons:         e.Persons,
			})
		}
	}
	return out
}

func uniquePersons(entries []*models.Entry) []string {
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.PersonIDs()...)
	}
	unique := platformstrings.DedupeAndTrim(ids)
	if unique == nil {
		return []string{}
	}
	return unique
}

func (s *Service) freeFormFields(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if !s.cfg.isReserved(k) {
			out[k] = v
		}
	}
	return out
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("registry.name", s.cfg.Name),
		attribute.String("registry.collection", s.cfg.CollectionName),
	))
}

func (s *Service) incrementValidationFailures() {
	if s.metrics != nil {
		s.metrics.IncrementValidationFailures(s.cfg.CollectionName)
	}
}

// emitAudit records the action. Audit failures are logged, never returned.
func (s *Service) emitAudit(ctx context.Context, ownerID id.OwnerID, action audit.AuditEvent, subject string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		OwnerID:    ownerID,
		Subject:    subject,
		Action:     string(action),
		Collection: s.cfg.CollectionName,
		ActorID:    requestcontext.ActorID(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		Timestamp:  requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"subject", subject,
			"error", err,
		)
	}
}
