// Package handler exposes the accident detail controller under
// /accidents/{accidentID}/detail.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	accidentmodels "safetyaudit/internal/accident/models"
	"safetyaudit/internal/detail"
	"safetyaudit/internal/registry/models"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

// PayloadParser turns a free-form entry payload into a create request.
type PayloadParser func(parentID string, payload map[string]any) (models.CreateEntryRequest, error)

type Handler struct {
	sessions *detail.Sessions
	parse    PayloadParser
	logger   *slog.Logger
}

func New(sessions *detail.Sessions, parse PayloadParser, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, parse: parse, logger: logger}
}

// Routes registers relative to a router already scoped to {accidentID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/detail", h.handleView)
	r.Post("/detail/register", h.handleBeginRegister)
	r.Post("/detail/entries", h.handleSave)
	r.Post("/detail/cancel", h.handleCancel)
}

type viewResponse struct {
	Mode       detail.Mode              `json:"mode"`
	RefreshKey uint64                   `json:"refreshKey"`
	Accident   *accidentmodels.Accident `json:"accident"`
	Entries    []*models.Entry          `json:"entries"`
	Stats      models.Stats             `json:"stats"`
}

type saveResponse struct {
	Entry      *models.Entry `json:"entry"`
	Mode       detail.Mode   `json:"mode"`
	RefreshKey uint64        `json:"refreshKey"`
}

type modeResponse struct {
	Mode       detail.Mode `json:"mode"`
	RefreshKey uint64      `json:"refreshKey"`
}

// handleView renders the detail without touching the mode, so a
// registration open elsewhere survives. A refresh_key ahead of the server's,
// e.g. after the session expired, is adopted so keys seen by the caller never
// go back.
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var advanceTo uint64
	if raw := r.URL.Query().Get("refresh_key"); raw != "" {
		key, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "refresh_key must be a non-negative integer"))
			return
		}
		advanceTo = key
	}
	controller, err := h.open(r)
	if err != nil {
		h.writeError(r, w, "open detail view", err)
		return
	}
	controller.AdvanceTo(advanceTo)

	entries, err := controller.Entries(ctx)
	if err != nil {
		h.writeError(r, w, "load registry entries", err)
		return
	}
	stats, err := controller.Stats(ctx)
	if err != nil {
		h.writeError(r, w, "load registry stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewResponse{
		Mode:       controller.Mode(),
		RefreshKey: controller.RefreshKey(),
		Accident:   controller.Parent(),
		Entries:    entries,
		Stats:      stats,
	})
}

func (h *Handler) handleBeginRegister(w http.ResponseWriter, r *http.Request) {
	controller, err := h.open(r)
	if err == nil {
		err = controller.BeginRegister()
	}
	if err != nil {
		h.writeError(r, w, "open registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, modeResponse{Mode: controller.Mode(), RefreshKey: controller.RefreshKey()})
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	controller, ok := h.lookup(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "not in register mode"))
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req, err := h.parse(chi.URLParam(r, "accidentID"), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entry, err := controller.Save(ctx, req)
	if err != nil {
		h.writeError(r, w, "save registry entry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, saveResponse{
		Entry:      entry,
		Mode:       controller.Mode(),
		RefreshKey: controller.RefreshKey(),
	})
}

// handleCancel without a live controller reports plain view mode.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.lookup(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, modeResponse{Mode: detail.ModeView})
		return
	}
	controller.Cancel()
	httputil.WriteJSON(w, http.StatusOK, modeResponse{Mode: controller.Mode(), RefreshKey: controller.RefreshKey()})
}

func (h *Handler) open(r *http.Request) (*detail.Controller, error) {
	ctx := r.Context()
	return h.sessions.Open(ctx, requestcontext.OwnerID(ctx), chi.URLParam(r, "accidentID"))
}

func (h *Handler) lookup(r *http.Request) (*detail.Controller, bool) {
	return h.sessions.Lookup(requestcontext.OwnerID(r.Context()), chi.URLParam(r, "accidentID"))
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		ctx := r.Context()
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
