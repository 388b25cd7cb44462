// Package handler serves an owner's audit trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	audit "safetyaudit/pkg/platform/audit"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

type Lister interface {
	List(ctx context.Context, ownerID id.OwnerID) ([]audit.Event, error)
}

type Handler struct {
	events Lister
	logger *slog.Logger
}

func New(events Lister, logger *slog.Logger) *Handler {
	return &Handler{events: events, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleList)
}

type eventResponse struct {
	Category   audit.EventCategory `json:"category"`
	Timestamp  time.Time           `json:"timestamp"`
	Subject    string              `json:"subject"`
	Action     string              `json:"action"`
	Collection string              `json:"collection,omitempty"`
	ActorID    string              `json:"actorId,omitempty"`
	RequestID  string              `json:"requestId,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

type eventsResponse struct {
	Events []eventResponse `json:"events"`
}

// handleList returns the owner's events oldest first, optionally narrowed to
// one subject (an accident or entry id).
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := requestcontext.OwnerID(ctx)
	if ownerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "owner is required"))
		return
	}

	events, err := h.events.List(ctx, ownerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}

	subject := r.URL.Query().Get("subject")
	resp := eventsResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		if subject != "" && e.Subject != subject {
			continue
		}
		resp.Events = append(resp.Events, eventResponse{
			Category:   e.Category,
			Timestamp:  e.Timestamp,
			Subject:    e.Subject,
			Action:     e.Action,
			Collection: e.Collection,
			ActorID:    e.ActorID,
			RequestID:  e.RequestID,
			Reason:     e.Reason,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
