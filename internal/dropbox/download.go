package dropbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// metadataHeader carries the file's metadata record on content responses.
const metadataHeader = "X-Dropbox-Metadata"

// GetFileRequest selects a file (optionally a past revision) and an optional
// byte range.
type GetFileRequest struct {
	Path   string
	Rev    string
	Offset int64
	Length int64 // 0 means the whole file from Offset
}

func (r GetFileRequest) hasRange() bool {
	return r.Offset > 0 || r.Length > 0
}

// rangeHeader renders the inclusive byte range for r.
func (r GetFileRequest) rangeHeader() string {
	if r.Length > 0 {
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
	}

	return fmt.Sprintf("bytes=%d-", r.Offset)
}

// GetFile streams a file's content to w and returns its metadata and the
// number of bytes written. A ranged request accepts 206 Partial Content.
func (c *Client) GetFile(ctx context.Context, req GetFileRequest, w io.Writer) (*Metadata, int64, error) {
	c.logger.Info("downloading file",
		slog.String("path", req.Path),
		slog.Int64("offset", req.Offset),
		slog.Int64("length", req.Length),
	)

	r := apiRequest{
		method:    http.MethodGet,
		url:       c.rootedURL(c.endpoints.Content, "1/files", req.Path),
		length:    -1,
		partialOK: true,
		streaming: true,
	}

	if req.Rev != "" {
		r.query = url.Values{"rev": {req.Rev}}
	}

	if req.hasRange() {
		r.header = http.Header{"Range": {req.rangeHeader()}}
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var meta *Metadata
	if raw := resp.Header.Get(metadataHeader); raw != "" {
		meta, err = decodeMetadata([]byte(raw), c.logger)
		if err != nil {
			return nil, 0, err
		}
	}

	tw := &trackingWriter{w: w}

	n, err := io.Copy(tw, resp.Body)
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
			slog.Bool("local_write", tw.err != nil),
		)

		if tw.err != nil {
			return meta, n, fmt.Errorf("%w: writing download content: %w", ErrIO, err)
		}

		return meta, n, fmt.Errorf("%w: streaming download content: %w", ErrTransport, err)
	}

	c.logger.Debug("download complete",
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("bytes_written", n),
	)

	return meta, n, nil
}

// trackingWriter remembers whether the destination, rather than the response
// body, failed an io.Copy.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}

	return n, err
}
