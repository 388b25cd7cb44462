// Package memory keeps uploaded evidence in process. Used when no bucket is
// configured and in tests.
package memory

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"safetyaudit/internal/evidence"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/requestcontext"
)

type object struct {
	ref  evidence.Ref
	data []byte
}

type InMemory struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// NewInMemory serves download URLs under baseURL.
func NewInMemory(baseURL string) *InMemory {
	return &InMemory{objects: make(map[string]object), baseURL: baseURL}
}

func (s *InMemory) Upload(ctx context.Context, file evidence.File, uctx evidence.UploadContext) (evidence.Ref, error) {
	if err := file.Validate(uctx); err != nil {
		return evidence.Ref{}, err
	}
	data, err := evidence.ReadBody(file)
	if err != nil {
		return evidence.Ref{}, err
	}
	ref := evidence.Ref{
		ID:          uuid.NewString(),
		ShareToken:  uuid.NewString(),
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        int64(len(data)),
		CreatedAt:   requestcontext.Now(ctx),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[evidence.ObjectKey(uctx.OwnerID, ref.ID)] = object{ref: ref, data: data}
	return ref, nil
}

func (s *InMemory) ResolveDownloadURL(_ context.Context, ownerID id.OwnerID, evidenceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[evidence.ObjectKey(ownerID, evidenceID)]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	return s.baseURL + "/" + url.PathEscape(obj.ref.ID) + "?token=" + url.QueryEscape(obj.ref.ShareToken), nil
}

// Content returns the stored bytes.
func (s *InMemory) Content(ownerID id.OwnerID, evidenceID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[evidence.ObjectKey(ownerID, evidenceID)]
	return obj.data, ok
}
