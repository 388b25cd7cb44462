// Package handler accepts multipart evidence uploads and resolves download
// links for stored evidence.
package handler

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safetyaudit/internal/evidence"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

const (
	formFiles      = "files"
	formCollection = "collection"
	formParentID   = "parentId"
)

type BatchUploader interface {
	Upload(ctx context.Context, files []evidence.File, uctx evidence.UploadContext) []evidence.Outcome
}

type URLResolver interface {
	ResolveDownloadURL(ctx context.Context, ownerID id.OwnerID, evidenceID string) (string, error)
}

type Handler struct {
	uploader       BatchUploader
	resolver       URLResolver
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(uploader BatchUploader, resolver URLResolver, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{uploader: uploader, resolver: resolver, logger: logger, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/evidence", h.handleUpload)
	r.Get("/evidence/{evidenceID}/url", h.handleDownloadURL)
}

type failedUpload struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Uploaded []evidence.Ref `json:"uploaded"`
	Failed   []failedUpload `json:"failed"`
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

// handleUpload stores every file it can. Failed files are reported next to
// the successful references; the request fails only when nothing was stored.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.logger.WarnContext(ctx, "invalid evidence upload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[formFiles]
	if len(headers) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "at least one file is required"))
		return
	}
	files, closeAll, err := openFiles(headers)
	defer closeAll()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	uctx := evidence.UploadContext{
		OwnerID:    requestcontext.OwnerID(ctx),
		Collection: r.FormValue(formCollection),
		ParentID:   r.FormValue(formParentID),
	}
	outcomes := h.uploader.Upload(ctx, files, uctx)

	resp := uploadResponse{Uploaded: evidence.Refs(outcomes), Failed: []failedUpload{}}
	var firstErr error
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = o.Err
		}
		resp.Failed = append(resp.Failed, failedUpload{Name: o.Name, Error: dErrors.MessageOf(o.Err)})
	}
	if len(resp.Uploaded) == 0 {
		httputil.WriteError(w, firstErr)
		return
	}
	h.logger.InfoContext(ctx, "evidence uploaded",
		"parent_id", uctx.ParentID,
		"uploaded", len(resp.Uploaded),
		"failed", len(resp.Failed),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	url, err := h.resolver.ResolveDownloadURL(ctx, requestcontext.OwnerID(ctx), chi.URLParam(r, "evidenceID"))
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to resolve evidence url",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, downloadURLResponse{URL: url})
}

func openFiles(headers []*multipart.FileHeader) ([]evidence.File, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]evidence.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to open "+fh.Filename)
		}
		opened = append(opened, f)
		files = append(files, evidence.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return files, closeAll, nil
}
