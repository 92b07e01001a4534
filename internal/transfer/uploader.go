package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
)

// LargeUploader runs one chunked upload session. *dropbox.Client satisfies it.
type LargeUploader interface {
	UploadLargeFile(ctx context.Context, req dropbox.LargeUploadRequest) (*dropbox.Metadata, error)
}

// SmallUploader sends a whole file in one request. *dropbox.Client satisfies
// it too; a client that does gets files of at most one chunk this way.
type SmallUploader interface {
	PutFile(ctx context.Context, req dropbox.PutFileRequest) (*dropbox.Metadata, error)
}

// UploadOptions carries the commit parameters for one file.
type UploadOptions struct {
	Overwrite bool
	ParentRev string
}

// Uploader uploads local files with resume across runs.
type Uploader struct {
	client    LargeUploader
	store     *SessionStore // nil disables resume
	limiter   *BandwidthLimiter
	chunkSize int
	logger    *slog.Logger
}

// NewUploader creates an Uploader. store and limiter may be nil.
func NewUploader(
	client LargeUploader, store *SessionStore, limiter *BandwidthLimiter, chunkSize int, logger *slog.Logger,
) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{
		client:    client,
		store:     store,
		limiter:   limiter,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// UploadFile uploads localPath to remotePath. A matching resume record from
// an earlier interrupted run is continued; if the server has forgotten that
// upload id the file restarts from zero, once. On failure the record holds
// the last server-confirmed offset for the next attempt.
func (u *Uploader) UploadFile(
	ctx context.Context, localPath, remotePath string, opts UploadOptions,
) (*dropbox.Metadata, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", localPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("transfer: %s is a directory", localPath)
	}

	logger := u.logger.With(slog.String("local", localPath), slog.String("remote", remotePath))

	if small, ok := u.client.(SmallUploader); ok && info.Size() <= u.singleRequestLimit() {
		// A record left by an earlier, larger version of the file is useless now.
		u.deleteRecord(localPath, remotePath, logger)

		return small.PutFile(ctx, dropbox.PutFileRequest{
			Path:      remotePath,
			Body:      u.limiter.WrapReader(ctx, f),
			Size:      info.Size(),
			Overwrite: opts.Overwrite,
			ParentRev: opts.ParentRev,
		})
	}

	base := &SessionRecord{FileSize: info.Size(), ModTime: info.ModTime()}

	resume := u.loadResume(localPath, remotePath, base, logger)

	meta, err := u.run(ctx, f, localPath, remotePath, opts, base, resume)
	if err != nil && resume != nil && errors.Is(err, dropbox.ErrNotFound) {
		logger.Warn("resumed upload session no longer exists, restarting",
			slog.String("upload_id", resume.UploadID),
			slog.Int64("offset", resume.Offset),
		)

		u.deleteRecord(localPath, remotePath, logger)

		meta, err = u.run(ctx, f, localPath, remotePath, opts, base, nil)
	}

	if err != nil {
		return nil, err
	}

	u.deleteRecord(localPath, remotePath, logger)

	return meta, nil
}

func (u *Uploader) run(
	ctx context.Context, src io.ReaderAt, localPath, remotePath string, opts UploadOptions,
	base, resume *SessionRecord,
) (*dropbox.Metadata, error) {
	req := dropbox.LargeUploadRequest{
		Path:      remotePath,
		Source:    src,
		ChunkSize: u.chunkSize,
		Overwrite: opts.Overwrite,
		ParentRev: opts.ParentRev,
		OnChunk: func(p dropbox.ChunkProgress) {
			u.saveRecord(localPath, remotePath, base, p)
		},
		WrapBody: func(r io.Reader) io.Reader {
			return u.limiter.WrapReader(ctx, r)
		},
	}

	if resume != nil {
		req.StartOffset = resume.Offset
		req.UploadID = resume.UploadID
	}

	return u.client.UploadLargeFile(ctx, req)
}

// singleRequestLimit is the largest file sent without a session: one chunk,
// capped by what files_put accepts.
func (u *Uploader) singleRequestLimit() int64 {
	limit := int64(u.chunkSize)
	if limit <= 0 {
		limit = dropbox.DefaultChunkSize
	}

	return min(limit, dropbox.MaxPutFileSize)
}

// loadResume returns the stored record if it still matches the local file,
// deleting it otherwise.
func (u *Uploader) loadResume(localPath, remotePath string, base *SessionRecord, logger *slog.Logger) *SessionRecord {
	if u.store == nil {
		return nil
	}

	rec, err := u.store.Load(localPath, remotePath)
	if err != nil {
		logger.Warn("ignoring unreadable resume record", slog.String("error", err.Error()))
		return nil
	}

	if rec == nil {
		return nil
	}

	if !rec.matches(base.FileSize, base.ModTime) {
		logger.Info("local file changed since interrupted upload, starting over")
		u.deleteRecord(localPath, remotePath, logger)

		return nil
	}

	logger.Info("resuming interrupted upload",
		slog.String("upload_id", rec.UploadID),
		slog.Int64("offset", rec.Offset),
	)

	return rec
}

// saveRecord persists progress after a chunk. Failure only costs resume
// ability, so it is logged rather than aborting the upload.
func (u *Uploader) saveRecord(localPath, remotePath string, base *SessionRecord, p dropbox.ChunkProgress) {
	if u.store == nil {
		return
	}

	rec := &SessionRecord{
		UploadID: p.UploadID,
		Offset:   p.Offset,
		FileSize: base.FileSize,
		ModTime:  base.ModTime,
	}

	if err := u.store.Save(localPath, remotePath, rec); err != nil {
		u.logger.Warn("failed to save resume record",
			slog.String("local", localPath),
			slog.String("error", err.Error()),
		)
	}
}

func (u *Uploader) deleteRecord(localPath, remotePath string, logger *slog.Logger) {
	if u.store == nil {
		return
	}

	if err := u.store.Delete(localPath, remotePath); err != nil {
		logger.Warn("failed to delete resume record", slog.String("error", err.Error()))
	}
}
