package transfer

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
)

// Job is one file in a batch upload.
type Job struct {
	LocalPath  string
	RemotePath string
	Options    UploadOptions
}

// Result is the outcome of one Job. Exactly one of Metadata and Err is set.
type Result struct {
	Job      Job
	Metadata *dropbox.Metadata
	Err      error
}

// UploadAll runs jobs through at most workers concurrent uploads. A failed
// file does not stop the others; results come back in job order. Returns
// ctx.Err() if the batch was canceled.
func (u *Uploader) UploadAll(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range jobs {
		job := jobs[i]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Job: job, Err: err}
				return nil
			}

			meta, err := u.UploadFile(gctx, job.LocalPath, job.RemotePath, job.Options)
			results[i] = Result{Job: job, Metadata: meta, Err: err}

			if err != nil {
				u.logger.Warn("batch upload: file failed",
					slog.String("local", job.LocalPath),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	_ = g.Wait()

	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	u.logger.Info("batch upload finished",
		slog.Int("files", len(jobs)),
		slog.Int("failed", failed),
	)

	return results, ctx.Err()
}
