// Package handler serves the accident lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safetyaudit/internal/accident/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

// Service is the accident lifecycle the handler drives.
type Service interface {
	Create(ctx context.Context, ownerID id.OwnerID, req models.CreateAccidentRequest) (*models.Result, error)
	Update(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, req models.UpdateAccidentRequest) (*models.Result, error)
	Close(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID, req models.CloseAccidentRequest) (*models.Result, error)
	Delete(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) error
	GetByID(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*models.Accident, error)
	ListByBranch(ctx context.Context, ownerID id.OwnerID, branchID string) ([]*models.Accident, error)
	ListByCompany(ctx context.Context, ownerID id.OwnerID, companyID string) ([]*models.Accident, error)
	Stats(ctx context.Context, ownerID id.OwnerID, companyID string) (models.Stats, error)
}

// DeleteListener is told about every accident removed through the handler.
type DeleteListener interface {
	AccidentDeleted(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID)
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	subroutes []func(chi.Router)
	deletes   []DeleteListener
}

type Option func(*Handler)

// WithSubroutes mounts extra routes under /accidents/{accidentID}.
func WithSubroutes(register func(chi.Router)) Option {
	return func(h *Handler) {
		h.subroutes = append(h.subroutes, register)
	}
}

func WithDeleteListener(l DeleteListener) Option {
	return func(h *Handler) {
		h.deletes = append(h.deletes, l)
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/accidents", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Route("/{accidentID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/close", h.handleClose)
			for _, register := range h.subroutes {
				register(r)
			}
		})
	})
}

type accidentsResponse struct {
	Accidents []*models.Accident `json:"accidents"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateAccidentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid accident payload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Create(ctx, requestcontext.OwnerID(ctx), req)
	if err != nil {
		h.writeServiceError(ctx, w, "create accident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accidentID, ok := accidentIDParam(w, r)
	if !ok {
		return
	}
	accident, err := h.service.GetByID(ctx, requestcontext.OwnerID(ctx), accidentID)
	if err != nil {
		h.writeServiceError(ctx, w, "load accident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accident)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accidentID, ok := accidentIDParam(w, r)
	if !ok {
		return
	}
	var req models.UpdateAccidentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Update(ctx, requestcontext.OwnerID(ctx), accidentID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "update accident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleClose accepts an empty body; closing notes are optional.
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accidentID, ok := accidentIDParam(w, r)
	if !ok {
		return
	}
	var req models.CloseAccidentRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	result, err := h.service.Close(ctx, requestcontext.OwnerID(ctx), accidentID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "close accident", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accidentID, ok := accidentIDParam(w, r)
	if !ok {
		return
	}
	ownerID := requestcontext.OwnerID(ctx)
	if err := h.service.Delete(ctx, ownerID, accidentID); err != nil {
		h.writeServiceError(ctx, w, "delete accident", err)
		return
	}
	for _, l := range h.deletes {
		l.AccidentDeleted(ctx, ownerID, accidentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleList filters by branch_id, or by company_id when no branch is given.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)
	query := r.URL.Query()

	var (
		accidents []*models.Accident
		err       error
	)
	switch {
	case query.Get("branch_id") != "":
		accidents, err = h.service.ListByBranch(ctx, ownerID, query.Get("branch_id"))
	case query.Get("company_id") != "":
		accidents, err = h.service.ListByCompany(ctx, ownerID, query.Get("company_id"))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "branch_id or company_id is required"))
		return
	}
	if err != nil {
		h.writeServiceError(ctx, w, "list accidents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accidentsResponse{Accidents: accidents})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "company_id is required"))
		return
	}
	stats, err := h.service.Stats(ctx, requestcontext.OwnerID(ctx), companyID)
	if err != nil {
		h.writeServiceError(ctx, w, "compute accident stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func accidentIDParam(w http.ResponseWriter, r *http.Request) (id.AccidentID, bool) {
	accidentID, err := id.ParseAccidentID(chi.URLParam(r, "accidentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AccidentID{}, false
	}
	return accidentID, true
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
