// Package evidence uploads binary attachments and hands back the durable
// reference that registry entries and accidents persist.
package evidence

import (
	"context"
	"io"
	"strings"
	"time"

	registrymodels "safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

// MaxFileBytes caps a single upload.
const MaxFileBytes int64 = 25 << 20

// File is one attachment as received from the caller. Body is read once.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// UploadContext scopes an upload to the record it will be attached to.
type UploadContext struct {
	OwnerID    id.OwnerID
	Collection string
	ParentID   string
}

// Ref is the durable reference returned by a successful upload.
type Ref struct {
	ID          string    `json:"id"`
	ShareToken  string    `json:"shareToken"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Evidence converts the reference into the shape stored on entries.
func (r Ref) Evidence() registrymodels.Evidence {
	createdAt := r.CreatedAt
	return registrymodels.Evidence{
		ID:         r.ID,
		ShareToken: r.ShareToken,
		Name:       r.Name,
		CreatedAt:  &createdAt,
	}
}

// Store never inspects file contents beyond their size.
type Store interface {
	Upload(ctx context.Context, file File, uctx UploadContext) (Ref, error)
	ResolveDownloadURL(ctx context.Context, ownerID id.OwnerID, evidenceID string) (string, error)
}

// Validate checks the upload before any bytes are sent.
func (f File) Validate(uctx UploadContext) error {
	if uctx.OwnerID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "owner id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if f.Body == nil {
		return dErrors.New(dErrors.CodeValidation, "file "+f.Name+" has no content")
	}
	return nil
}

// ReadBody buffers the file, rejecting empty and oversized content.
func ReadBody(f File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f.Body, MaxFileBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file "+f.Name)
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file "+f.Name+" is empty")
	}
	if int64(len(data)) > MaxFileBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "file %s exceeds %d bytes", f.Name, MaxFileBytes)
	}
	return data, nil
}

// ObjectKey is the storage path for an owner's evidence id.
func ObjectKey(ownerID id.OwnerID, evidenceID string) string {
	return "evidence/" + ownerID.String() + "/" + evidenceID
}
