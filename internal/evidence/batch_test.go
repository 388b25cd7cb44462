package evidence_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/evidence"
	"safetyaudit/internal/evidence/memory"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

// flakyStore fails uploads for the named file.
type flakyStore struct {
	evidence.Store
	failName string
	calls    atomic.Int32
}

func (s *flakyStore) Upload(ctx context.Context, file evidence.File, uctx evidence.UploadContext) (evidence.Ref, error) {
	s.calls.Add(1)
	if file.Name == s.failName {
		return evidence.Ref{}, dErrors.Wrap(errors.New("503"), dErrors.CodeDependency, "evidence store unavailable")
	}
	return s.Store.Upload(ctx, file, uctx)
}

func TestUploaderContinuesOnError(t *testing.T) {
	store := &flakyStore{Store: memory.NewInMemory(""), failName: "b.jpg"}
	uploader := evidence.NewUploader(store, evidence.WithConcurrency(2))
	uctx := evidence.UploadContext{OwnerID: id.OwnerID(uuid.New()), ParentID: "acc-1"}

	outcomes := uploader.Upload(context.Background(), []evidence.File{
		{Name: "a.jpg", Body: strings.NewReader("a")},
		{Name: "b.jpg", Body: strings.NewReader("b")},
		{Name: "c.jpg", Body: strings.NewReader("c")},
	}, uctx)

	require.Len(t, outcomes, 3)
	assert.Equal(t, int32(3), store.calls.Load(), "the failure does not cancel siblings")
	assert.Equal(t, "a.jpg", outcomes[0].Name)
	assert.NotNil(t, outcomes[0].Ref)
	assert.Nil(t, outcomes[1].Ref)
	assert.True(t, dErrors.HasCode(outcomes[1].Err, dErrors.CodeDependency))
	assert.NotNil(t, outcomes[2].Ref)

	refs := evidence.Refs(outcomes)
	require.Len(t, refs, 2)
	assert.Equal(t, "a.jpg", refs[0].Name)
	assert.Equal(t, "c.jpg", refs[1].Name)
}

func TestUploaderValidatesBeforeUpload(t *testing.T) {
	store := &flakyStore{Store: memory.NewInMemory("")}
	uploader := evidence.NewUploader(store)

	outcomes := uploader.Upload(context.Background(), []evidence.File{{Name: "a.jpg", Body: strings.NewReader("a")}}, evidence.UploadContext{})
	require.Len(t, outcomes, 1)
	assert.True(t, dErrors.HasCode(outcomes[0].Err, dErrors.CodeBadRequest))
	assert.Zero(t, store.calls.Load())
}

func TestRefEvidence(t *testing.T) {
	ref := evidence.Ref{ID: "ev-1", ShareToken: "tok", Name: "a.jpg"}
	ev := ref.Evidence()
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, "tok", ev.ShareToken)
	require.NotNil(t, ev.CreatedAt)
}
