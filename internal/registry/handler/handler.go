// Package handler exposes every configured registry over HTTP under
// /registries/{kind}.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safetyaudit/internal/registry/cache"
	"safetyaudit/internal/registry/models"
	"safetyaudit/internal/registry/service"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

// Registry is the contract one registry engine exposes to callers.
type Registry interface {
	Config() service.Config
	Create(ctx context.Context, ownerID id.OwnerID, req models.CreateEntryRequest) (*models.Entry, error)
	AttachEvidence(ctx context.Context, ownerID id.OwnerID, entryID id.EntryID, raw []any) ([]models.Evidence, error)
	GetEntry(ctx context.Context, ownerID id.OwnerID, entryID id.EntryID) (*models.Entry, error)
	GetRegistriesByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]*models.Entry, error)
	GetEvidenciasByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]models.EntryEvidence, error)
	GetPersonasUnicasByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) ([]string, error)
	GetStatsByEntity(ctx context.Context, ownerID id.OwnerID, parentID string) (models.Stats, error)
}

// WriteListener is told about every parent whose registry changed.
type WriteListener interface {
	RegistryChanged(ctx context.Context, ownerID id.OwnerID, registry, parentID string)
}

type Handler struct {
	registries map[string]Registry
	stats      cache.StatsCache
	listeners  []WriteListener
	logger     *slog.Logger
}

type Option func(*Handler)

// WithStatsCache serves stats through the cache and invalidates it on writes.
func WithStatsCache(c cache.StatsCache) Option {
	return func(h *Handler) {
		h.stats = c
	}
}

func WithWriteListener(l WriteListener) Option {
	return func(h *Handler) {
		h.listeners = append(h.listeners, l)
	}
}

// New indexes the registries by their configured name.
func New(logger *slog.Logger, registries []Registry, opts ...Option) *Handler {
	h := &Handler{registries: make(map[string]Registry, len(registries)), logger: logger}
	for _, r := range registries {
		h.registries[r.Config().Name] = r
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/registries/{kind}", func(r chi.Router) {
		r.Post("/entries/{entryID}/evidence", h.handleAttachEvidence)
		r.Post("/{parentID}/entries", h.handleCreate)
		r.Get("/{parentID}/entries", h.handleList)
		r.Get("/{parentID}/evidence", h.handleEvidence)
		r.Get("/{parentID}/persons", h.handlePersons)
		r.Get("/{parentID}/stats", h.handleStats)
	})
}

type entriesResponse struct {
	Entries []*models.Entry `json:"entries"`
}

type evidenceResponse struct {
	Evidence []models.EntryEvidence `json:"evidence"`
}

type personsResponse struct {
	PersonIDs []string `json:"personIds"`
}

type attachEvidenceRequest struct {
	Evidence []any `json:"evidence"`
}

type attachEvidenceResponse struct {
	Attached []models.Evidence `json:"attached"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	parentID := chi.URLParam(r, "parentID")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WarnContext(ctx, "invalid registry entry payload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req, err := registry.Config().RequestFromPayload(parentID, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ownerID := requestcontext.OwnerID(ctx)
	entry, err := registry.Create(ctx, ownerID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "create registry entry", err)
		return
	}
	h.invalidate(ctx, registry, ownerID, parentID)
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req attachEvidenceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ownerID := requestcontext.OwnerID(ctx)
	attached, err := registry.AttachEvidence(ctx, ownerID, entryID, req.Evidence)
	if err != nil {
		h.writeServiceError(ctx, w, "attach evidence", err)
		return
	}
	if len(attached) > 0 {
		if entry, err := registry.GetEntry(ctx, ownerID, entryID); err == nil {
			h.invalidate(ctx, registry, ownerID, entry.ParentID)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, attachEvidenceResponse{Attached: attached})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	entries, err := registry.GetRegistriesByEntity(ctx, requestcontext.OwnerID(ctx), chi.URLParam(r, "parentID"))
	if err != nil {
		h.writeServiceError(ctx, w, "list registry entries", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

func (h *Handler) handleEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	evidence, err := registry.GetEvidenciasByEntity(ctx, requestcontext.OwnerID(ctx), chi.URLParam(r, "parentID"))
	if err != nil {
		h.writeServiceError(ctx, w, "list registry evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evidenceResponse{Evidence: evidence})
}

func (h *Handler) handlePersons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	persons, err := registry.GetPersonasUnicasByEntity(ctx, requestcontext.OwnerID(ctx), chi.URLParam(r, "parentID"))
	if err != nil {
		h.writeServiceError(ctx, w, "list registry persons", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, personsResponse{PersonIDs: persons})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry, ok := h.registry(w, r)
	if !ok {
		return
	}
	ownerID, parentID := requestcontext.OwnerID(ctx), chi.URLParam(r, "parentID")
	key := cache.Key{OwnerID: ownerID, Registry: registry.Config().Name, ParentID: parentID}
	stats, err := cache.ReadThrough(ctx, h.stats, h.logger, key, func(ctx context.Context) (models.Stats, error) {
		return registry.GetStatsByEntity(ctx, ownerID, parentID)
	})
	if err != nil {
		h.writeServiceError(ctx, w, "compute registry stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) registry(w http.ResponseWriter, r *http.Request) (Registry, bool) {
	kind := chi.URLParam(r, "kind")
	registry, ok := h.registries[kind]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown registry %q", kind))
		return nil, false
	}
	return registry, true
}

func (h *Handler) invalidate(ctx context.Context, registry Registry, ownerID id.OwnerID, parentID string) {
	for _, l := range h.listeners {
		l.RegistryChanged(ctx, ownerID, registry.Config().Name, parentID)
	}
	if h.stats == nil {
		return
	}
	key := cache.Key{OwnerID: ownerID, Registry: registry.Config().Name, ParentID: parentID}
	if err := h.stats.Invalidate(ctx, key); err != nil {
		h.logger.WarnContext(ctx, "stats cache invalidation failed", "key", key.String(), "error", err)
	}
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
