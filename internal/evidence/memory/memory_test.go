package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/evidence"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

func TestUploadAndResolve(t *testing.T) {
	store := NewInMemory("http://files.local/evidence")
	owner := id.OwnerID(uuid.New())
	uctx := evidence.UploadContext{OwnerID: owner, Collection: "accident", ParentID: "acc-1"}

	ref, err := store.Upload(context.Background(), evidence.File{Name: "photo.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpeg")}, uctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.NotEmpty(t, ref.ShareToken)
	assert.Equal(t, int64(4), ref.Size)

	data, ok := store.Content(owner, ref.ID)
	require.True(t, ok)
	assert.Equal(t, "jpeg", string(data))

	url, err := store.ResolveDownloadURL(context.Background(), owner, ref.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://files.local/evidence/"+ref.ID+"?token="))

	_, err = store.ResolveDownloadURL(context.Background(), id.OwnerID(uuid.New()), ref.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "other owners cannot resolve the file")
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	store := NewInMemory("")
	uctx := evidence.UploadContext{OwnerID: id.OwnerID(uuid.New())}

	_, err := store.Upload(context.Background(), evidence.File{Name: "empty.txt", Body: strings.NewReader("")}, uctx)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
