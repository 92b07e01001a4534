package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// DefaultChunkSize is used when LargeUploadRequest.ChunkSize is zero.
const DefaultChunkSize = 4 * 1024 * 1024

// UploadState is the lifecycle position of an UploadSession.
type UploadState int

const (
	UploadPending UploadState = iota
	UploadInProgress
	UploadCommitted
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadPending:
		return "pending"
	case UploadInProgress:
		return "in_progress"
	case UploadCommitted:
		return "committed"
	case UploadFailed:
		return "failed"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// ChunkProgress is reported after every chunk the server accepts.
type ChunkProgress struct {
	UploadID  string
	Offset    int64 // server-confirmed offset of the next chunk
	ChunkSize int   // bytes sent in this chunk
}

// LargeUploadRequest describes one chunked upload.
type LargeUploadRequest struct {
	Path string

	// Source is read at the session offset, never through its own cursor.
	Source io.ReaderAt

	// ChunkSize bounds each request body. Zero uses DefaultChunkSize.
	ChunkSize int

	// StartOffset and UploadID resume an earlier session. Both are zero for a
	// fresh upload.
	StartOffset int64
	UploadID    string

	Overwrite bool
	ParentRev string // optional

	// OnChunk is called after each accepted chunk. May be nil.
	OnChunk func(ChunkProgress)

	// WrapBody lets the caller wrap each chunk body, e.g. for bandwidth
	// limiting. May be nil.
	WrapBody func(io.Reader) io.Reader
}

// UploadSession drives one resumable chunked upload. Offset and upload id are
// server-authoritative: after each chunk the session adopts whatever the
// server reports. A session is single-use and must not be driven from more
// than one goroutine.
type UploadSession struct {
	client *Client
	req    LargeUploadRequest
	buf    []byte

	mu       sync.Mutex
	uploadID string
	offset   int64
	state    UploadState
}

// NewUploadSession validates req and returns a pending session.
func (c *Client) NewUploadSession(req LargeUploadRequest) (*UploadSession, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("dropbox: upload %q: nil source", req.Path)
	}

	if CleanPath(req.Path) == "" {
		return nil, fmt.Errorf("dropbox: upload: empty remote path")
	}

	if req.ChunkSize < 0 {
		return nil, fmt.Errorf("dropbox: upload %q: negative chunk size %d", req.Path, req.ChunkSize)
	}

	if req.ChunkSize == 0 {
		req.ChunkSize = DefaultChunkSize
	}

	if req.StartOffset < 0 {
		return nil, fmt.Errorf("dropbox: upload %q: negative start offset %d", req.Path, req.StartOffset)
	}

	return &UploadSession{
		client:   c,
		req:      req,
		uploadID: req.UploadID,
		offset:   req.StartOffset,
	}, nil
}

// UploadLargeFile runs a fresh session for req and returns the committed
// file's metadata.
func (c *Client) UploadLargeFile(ctx context.Context, req LargeUploadRequest) (*Metadata, error) {
	s, err := c.NewUploadSession(req)
	if err != nil {
		return nil, err
	}

	return s.Run(ctx)
}

// Offset returns the last server-confirmed offset. After a failure this is
// where a resumed session should start.
func (s *UploadSession) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offset
}

// UploadID returns the continuation id, empty until the first chunk is accepted.
func (s *UploadSession) UploadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploadID
}

// State returns the session's lifecycle state.
func (s *UploadSession) State() UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Run sends chunks until the source reads empty at the current offset, then
// commits. Any failure stops the session immediately; nothing is retried and
// nothing is rolled back.
func (s *UploadSession) Run(ctx context.Context) (*Metadata, error) {
	s.mu.Lock()
	if s.state != UploadPending {
		s.mu.Unlock()
		return nil, ErrSessionStarted
	}

	s.state = UploadInProgress
	s.mu.Unlock()

	logger := s.client.logger.With(slog.String("path", s.req.Path))
	logger.Info("starting chunked upload",
		slog.Int("chunk_size", s.req.ChunkSize),
		slog.Int64("start_offset", s.req.StartOffset),
		slog.Bool("resume", s.req.UploadID != ""),
	)

	s.buf = make([]byte, s.req.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(logger, fmt.Errorf("%w: %w", ErrTransport, err))
		}

		n, err := s.readChunk()
		if err != nil {
			return nil, s.fail(logger, err)
		}

		if n == 0 {
			break
		}

		if err := s.sendChunk(ctx, n); err != nil {
			return nil, s.fail(logger, err)
		}
	}

	meta, err := s.commit(ctx)
	if err != nil {
		return nil, s.fail(logger, err)
	}

	s.mu.Lock()
	s.state = UploadCommitted
	s.mu.Unlock()

	logger.Info("chunked upload committed",
		slog.String("rev", meta.Rev),
		slog.Int64("bytes", meta.Bytes),
	)

	return meta, nil
}

// readChunk fills the buffer from the source at the session offset. A short
// read followed by io.EOF is a final partial chunk; zero bytes is end of
// source.
func (s *UploadSession) readChunk() (int, error) {
	n, err := s.req.Source.ReadAt(s.buf, s.Offset())
	if n < 0 {
		return 0, fmt.Errorf("%w: negative read length %d", ErrIO, n)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: reading source at offset %d: %w", ErrIO, s.Offset(), err)
	}

	return n, nil
}

type chunkResponse struct {
	UploadID *string `json:"upload_id"`
	Offset   *int64  `json:"offset"`
}

// sendChunk PUTs buf[:n] at the current offset and adopts the server's state.
func (s *UploadSession) sendChunk(ctx context.Context, n int) error {
	offset := s.Offset()
	uploadID := s.UploadID()

	query := url.Values{"offset": {strconv.FormatInt(offset, 10)}}
	if uploadID != "" {
		query.Set("upload_id", uploadID)
	}

	var body io.Reader = bytes.NewReader(s.buf[:n])
	if s.req.WrapBody != nil {
		body = s.req.WrapBody(body)
	}

	resp, err := s.client.do(ctx, apiRequest{
		method:    http.MethodPut,
		url:       s.client.endpoints.Content + "/1/chunked_upload",
		query:     query,
		body:      body,
		length:    int64(n),
		header:    http.Header{headerContentType: {"application/octet-stream"}},
		streaming: true,
	})
	if err != nil {
		return err
	}

	data, err := readBody(resp)
	if err != nil {
		return err
	}

	var cr chunkResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return fmt.Errorf("%w: decoding chunk response: %w", ErrMalformedResponse, err)
	}

	if cr.UploadID == nil || *cr.UploadID == "" || cr.Offset == nil {
		return fmt.Errorf("%w: chunk response missing upload_id or offset", ErrMalformedResponse)
	}

	// The server offset is trusted over offset+n, but it may never move back.
	if *cr.Offset < offset {
		return fmt.Errorf("%w: server offset %d regressed from %d", ErrMalformedResponse, *cr.Offset, offset)
	}

	// A non-empty chunk that leaves the offset in place would be resent forever.
	if n > 0 && *cr.Offset == offset {
		return fmt.Errorf("%w: no progress: server offset stayed at %d after a %d-byte chunk",
			ErrMalformedResponse, offset, n)
	}

	s.mu.Lock()
	s.uploadID = *cr.UploadID
	s.offset = *cr.Offset
	s.mu.Unlock()

	s.client.logger.Debug("chunk accepted",
		slog.String("path", s.req.Path),
		slog.Int64("offset", *cr.Offset),
		slog.Int("sent", n),
	)

	if s.req.OnChunk != nil {
		s.req.OnChunk(ChunkProgress{UploadID: *cr.UploadID, Offset: *cr.Offset, ChunkSize: n})
	}

	return nil
}

// commit finalizes the upload at its remote path.
func (s *UploadSession) commit(ctx context.Context) (*Metadata, error) {
	uploadID := s.UploadID()
	if uploadID == "" {
		return nil, fmt.Errorf("%w: source was empty at offset %d", ErrNothingToCommit, s.Offset())
	}

	form := url.Values{
		"upload_id": {uploadID},
		"overwrite": {strconv.FormatBool(s.req.Overwrite)},
	}
	if s.req.ParentRev != "" {
		form.Set("parent_rev", s.req.ParentRev)
	}

	resp, err := s.client.do(ctx, apiRequest{
		method: http.MethodPost,
		url:    s.client.rootedURL(s.client.endpoints.Content, "1/commit_chunked_upload", s.req.Path),
		form:   form,
	})
	if err != nil {
		return nil, err
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	return decodeMetadata(data, s.client.logger)
}

func (s *UploadSession) fail(logger *slog.Logger, err error) error {
	s.mu.Lock()
	s.state = UploadFailed
	offset := s.offset
	s.mu.Unlock()

	logger.Warn("chunked upload failed",
		slog.Int64("offset", offset),
		slog.Int("status", StatusCode(err)),
		slog.String("error", err.Error()),
	)

	return err
}
