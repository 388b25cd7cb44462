// Package service owns the accident lifecycle: reporting, editing, the
// open -> closed transition with lost workday accounting, and the person
// directory side effects around leave.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	accidentmetrics "safetyaudit/internal/accident/metrics"
	"safetyaudit/internal/accident/models"
	"safetyaudit/internal/directory"
	"safetyaudit/internal/registry/policy"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/audit"
	"safetyaudit/pkg/platform/sentinel"
	"safetyaudit/pkg/requestcontext"
)

// Store persists accidents. Unknown ids yield sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, accident *models.Accident) error
	FindByID(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error)
	Update(ctx context.Context, accident *models.Accident) error
	Delete(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) error
	ListByBranch(ctx context.Context, ownerID id.OwnerID, branchID string) ([]*models.Accident, error)
	ListByCompany(ctx context.Context, ownerID id.OwnerID, companyID string) ([]*models.Accident, error)
	// Execute runs validate then mutate atomically and persists the result.
	Execute(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, validate func(*models.Accident) error, mutate func(*models.Accident)) (*models.Accident, error)
}

type PersonDirectory interface {
	SetPersonStatus(ctx context.Context, personID string, status directory.Status, leaveStart *time.Time) error
	ListByBranch(ctx context.Context, branchID string, filter directory.Filter) ([]directory.PersonRecord, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// maxDirectoryConcurrency bounds parallel directory calls per operation.
const maxDirectoryConcurrency = 4

type Service struct {
	store          Store
	directory      PersonDirectory
	evidence       policy.EvidencePolicy
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *accidentmetrics.Metrics
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

func WithMetrics(m *accidentmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, dir PersonDirectory, opts ...Option) *Service {
	s := &Service{
		store:     store,
		directory: dir,
		evidence:  policy.SanitizingEvidencePolicy{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("safetyaudit/accident"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create reports an accident or incident. On-leave persons start their leave
// now and are marked inactive in the directory after the accident is saved.
// Directory failures become warnings on the result.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, req models.CreateAccidentRequest) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "accident.Create")
	defer span.End()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validatorFor(req.Kind).validate(req.InvolvedPersons, req.Witnesses); err != nil {
		return nil, err
	}
	evidence, err := s.evidence.Sanitize(req.Evidence)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	occurredAt := now
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = *req.OccurredAt
	}
	accident := &models.Accident{
		ID:              id.NewAccidentID(),
		OwnerID:         ownerID,
		CompanyID:       req.CompanyID,
		BranchID:        req.BranchID,
		Kind:            req.Kind,
		Description:     req.Description,
		Severity:        req.Severity,
		OccurredAt:      occurredAt,
		Status:          models.StatusOpen,
		InvolvedPersons: freshInvolvement(req.InvolvedPersons),
		Witnesses:       slices.Clone(req.Witnesses),
		EvidenceRefs:    evidence,
		ReportedBy:      actor,
		CreatedAt:       now,
		UpdatedAt:       now,
		UpdatedBy:       actor,
	}
	if accident.Witnesses == nil {
		accident.Witnesses = []models.Witness{}
	}
	onLeave := accident.StartLeave(now)

	var warnings []string
	warnings = append(warnings, s.fillNames(ctx, accident)...)

	if err := s.store.Create(ctx, accident); err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save accident")
	}
	span.SetAttributes(attribute.String("accident.id", accident.ID.String()))

	leaveStart := now
	warnings = append(warnings, s.setStatuses(ctx, accident, onLeave, directory.StatusInactive, &leaveStart)...)

	s.logger.InfoContext(ctx, "accident created",
		"accident_id", accident.ID.String(),
		"kind", string(accident.Kind),
		"branch_id", accident.BranchID,
		"on_leave", len(onLeave),
		"warnings", len(warnings),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitAudit(ctx, ownerID, audit.EventAccidentCreated, accident.ID.String(), "")
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(accident.Kind))
	}
	return &models.Result{Accident: accident, Warnings: warnings}, nil
}

// Update edits an accident in any status without driving transitions. While
// the accident is open, persons newly put on leave start their leave now and
// persons taken off leave are reactivated.
func (s *Service) Update(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, req models.UpdateAccidentRequest) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "accident.Update")
	defer span.End()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var evidence []any
	if req.Evidence != nil {
		evidence = *req.Evidence
	}
	sanitized, err := s.evidence.Sanitize(evidence)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	var started, ended []string
	accident, err := s.store.Execute(ctx, ownerID, accidentID,
		func(a *models.Accident) error {
			persons, witnesses := a.InvolvedPersons, a.Witnesses
			if req.InvolvedPersons != nil {
				persons = *req.InvolvedPersons
			}
			if req.Witnesses != nil {
				witnesses = *req.Witnesses
			}
			return validatorFor(a.Kind).validate(persons, witnesses)
		},
		func(a *models.Accident) {
			if req.Description != nil {
				a.Description = *req.Description
			}
			if req.Severity != nil {
				a.Severity = *req.Severity
			}
			if req.OccurredAt != nil {
				a.OccurredAt = *req.OccurredAt
			}
			if req.Witnesses != nil {
				a.Witnesses = slices.Clone(*req.Witnesses)
			}
			if req.Evidence != nil {
				a.EvidenceRefs = sanitized
			}
			if req.InvolvedPersons != nil {
				started, ended = replaceInvolvement(a, *req.InvolvedPersons, now)
			}
			a.UpdatedAt = now
			a.UpdatedBy = actor
		},
	)
	if err != nil {
		return nil, s.wrapStoreErr(err, "failed to update accident")
	}

	var warnings []string
	leaveStart := now
	warnings = append(warnings, s.setStatuses(ctx, accident, started, directory.StatusInactive, &leaveStart)...)
	warnings = append(warnings, s.setStatuses(ctx, accident, ended, directory.StatusActive, nil)...)

	s.logger.InfoContext(ctx, "accident updated",
		"accident_id", accident.ID.String(),
		"leave_started", len(started),
		"leave_ended", len(ended),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitAudit(ctx, ownerID, audit.EventAccidentUpdated, accident.ID.String(), "")
	return &models.Result{Accident: accident, Warnings: warnings}, nil
}

// Close performs the terminal open -> closed transition. Lost workdays, leave
// ends, status and closedAt are written in one update; the directory is told
// to reactivate persons afterwards and its failures never undo the closure.
// Closing an already closed accident is a conflict.
func (s *Service) Close(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, req models.CloseAccidentRequest) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "accident.Close")
	defer span.End()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	var released []string
	accident, err := s.store.Execute(ctx, ownerID, accidentID,
		func(a *models.Accident) error {
			return a.CanClose()
		},
		func(a *models.Accident) {
			released = a.ApplyClosure(now, actor, req.Notes)
		},
	)
	if err != nil {
		return nil, s.wrapStoreErr(err, "failed to close accident")
	}

	warnings := s.setStatuses(ctx, accident, released, directory.StatusActive, nil)

	daysLost := accident.TotalDaysLost()
	s.logger.InfoContext(ctx, "accident closed",
		"accident_id", accident.ID.String(),
		"released", len(released),
		"days_lost", daysLost,
		"warnings", len(warnings),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitAudit(ctx, ownerID, audit.EventAccidentClosed, accident.ID.String(), req.Notes)
	if s.metrics != nil {
		s.metrics.RecordClosure(daysLost)
	}
	return &models.Result{Accident: accident, Warnings: warnings}, nil
}

// Delete removes the accident unconditionally. Registry entries that point
// at it are left in place.
func (s *Service) Delete(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ownerID, accidentID); err != nil {
		return s.wrapStoreErr(err, "failed to delete accident")
	}
	s.logger.InfoContext(ctx, "accident deleted",
		"accident_id", accidentID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitAudit(ctx, ownerID, audit.EventAccidentDeleted, accidentID.String(), "")
	return nil
}

func (s *Service) GetByID(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	accident, err := s.store.FindByID(ctx, ownerID, accidentID)
	if err != nil {
		return nil, s.wrapStoreErr(err, "failed to load accident")
	}
	return accident, nil
}

// ListByBranch returns the branch's accidents, most recent occurrence first.
func (s *Service) ListByBranch(ctx context.Context, ownerID id.OwnerID, branchID string) ([]*models.Accident, error) {
	if ownerID.IsNil() || branchID == "" {
		return []*models.Accident{}, nil
	}
	accidents, err := s.store.ListByBranch(ctx, ownerID, branchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accidents")
	}
	sortByOccurrence(accidents)
	return accidents, nil
}

// ListByCompany returns the company's accidents, most recent occurrence first.
func (s *Service) ListByCompany(ctx context.Context, ownerID id.OwnerID, companyID string) ([]*models.Accident, error) {
	if ownerID.IsNil() || companyID == "" {
		return []*models.Accident{}, nil
	}
	accidents, err := s.store.ListByCompany(ctx, ownerID, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accidents")
	}
	sortByOccurrence(accidents)
	return accidents, nil
}

// Stats summarizes a company's accidents.
func (s *Service) Stats(ctx context.Context, ownerID id.OwnerID, companyID string) (models.Stats, error) {
	accidents, err := s.ListByCompany(ctx, ownerID, companyID)
	if err != nil {
		return models.Stats{}, err
	}
	return models.Summarize(accidents), nil
}

// setStatuses updates each person in its own task. Every failure is logged,
// audited and returned as a warning; none stops the others.
func (s *Service) setStatuses(ctx context.Context, accident *models.Accident, personIDs []string, status directory.Status, leaveStart *time.Time) []string {
	if len(personIDs) == 0 || s.directory == nil {
		return nil
	}
	var (
		mu       sync.Mutex
		warnings []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDirectoryConcurrency)
	for _, personID := range personIDs {
		g.Go(func() error {
			err := s.directory.SetPersonStatus(gctx, personID, status, leaveStart)
			if err == nil {
				return nil
			}
			s.logger.WarnContext(ctx, "person directory update failed",
				"accident_id", accident.ID.String(),
				"person_id", personID,
				"status", string(status),
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.IncrementDirectoryFailure(string(status))
			}
			s.emitAudit(ctx, accident.OwnerID, audit.EventPersonStatusFailed, personID, dErrors.MessageOf(err))
			mu.Lock()
			warnings = append(warnings, "could not mark person "+personID+" "+string(status)+": "+dErrors.MessageOf(err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(warnings)
	return warnings
}

// fillNames denormalizes missing person names from the branch directory.
// Lookup failures only produce a warning.
func (s *Service) fillNames(ctx context.Context, a *models.Accident) []string {
	if s.directory == nil {
		return nil
	}
	var missing []string
	for _, p := range a.InvolvedPersons {
		if p.PersonName == "" {
			missing = append(missing, p.PersonID)
		}
	}
	for _, w := range a.Witnesses {
		if w.PersonName == "" {
			missing = append(missing, w.PersonID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	records, err := s.directory.ListByBranch(ctx, a.BranchID, directory.Filter{IDs: missing})
	if err != nil {
		s.logger.WarnContext(ctx, "person name lookup failed",
			"branch_id", a.BranchID,
			"error", err,
		)
		return []string{"could not resolve person names: " + dErrors.MessageOf(err)}
	}
	names := make(map[string]string, len(records))
	for _, r := range records {
		names[r.ID] = r.Name
	}
	for i := range a.InvolvedPersons {
		if a.InvolvedPersons[i].PersonName == "" {
			a.InvolvedPersons[i].PersonName = names[a.InvolvedPersons[i].PersonID]
		}
	}
	for i := range a.Witnesses {
		if a.Witnesses[i].PersonName == "" {
			a.Witnesses[i].PersonName = names[a.Witnesses[i].PersonID]
		}
	}
	return nil
}

func (s *Service) wrapStoreErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "accident not found")
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) emitAudit(ctx context.Context, ownerID id.OwnerID, action audit.AuditEvent, subject, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		OwnerID:    ownerID,
		Subject:    subject,
		Action:     string(action),
		Collection: "accidents",
		ActorID:    requestcontext.ActorID(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		Reason:     reason,
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

func requireOwner(ownerID id.OwnerID) error {
	if ownerID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	return nil
}

func sortByOccurrence(accidents []*models.Accident) {
	slices.SortStableFunc(accidents, func(a, b *models.Accident) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
}
