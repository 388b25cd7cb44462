package evidence

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/requestcontext"
)

const defaultBatchConcurrency = 4

// Outcome is the result for one file of a batch, in input order. Exactly one
// of Ref and Err is set.
type Outcome struct {
	Name string
	Ref  *Ref
	Err  error
}

// Uploader uploads batches with continue-on-error semantics: one failed file
// never cancels its siblings.
type Uploader struct {
	store       Store
	logger      *slog.Logger
	concurrency int
}

type UploaderOption func(*Uploader)

func WithLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

func WithConcurrency(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

func NewUploader(store Store, opts ...UploaderOption) *Uploader {
	u := &Uploader{store: store, logger: slog.Default(), concurrency: defaultBatchConcurrency}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) Upload(ctx context.Context, files []File, uctx UploadContext) []Outcome {
	outcomes := make([]Outcome, len(files))
	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for i, file := range files {
		outcomes[i].Name = file.Name
		g.Go(func() error {
			ref, err := u.uploadOne(ctx, file, uctx)
			if err != nil {
				u.logger.WarnContext(ctx, "evidence upload failed",
					"file", file.Name,
					"parent_id", uctx.ParentID,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Ref = &ref
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (u *Uploader) uploadOne(ctx context.Context, file File, uctx UploadContext) (Ref, error) {
	if err := file.Validate(uctx); err != nil {
		return Ref{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, dErrors.Wrap(err, dErrors.CodeTimeout, "upload cancelled")
	}
	return u.store.Upload(ctx, file, uctx)
}

// Refs returns the successful references in input order.
func Refs(outcomes []Outcome) []Ref {
	refs := make([]Ref, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Ref != nil {
			refs = append(refs, *o.Ref)
		}
	}
	return refs
}
