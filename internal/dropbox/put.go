package dropbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// MaxPutFileSize is the largest body files_put accepts. Anything bigger goes
// through an UploadSession.
const MaxPutFileSize = 150 * 1024 * 1024

// PutFileRequest describes a single-request upload.
type PutFileRequest struct {
	Path string
	Body io.Reader
	Size int64 // exact byte count of Body, sent as Content-Length

	Overwrite bool
	ParentRev string // optional
}

// PutFile uploads a whole file in one request and returns the stored file's
// metadata. Without Overwrite a name clash makes the server pick a new name,
// reported in the returned path.
func (c *Client) PutFile(ctx context.Context, req PutFileRequest) (*Metadata, error) {
	if req.Body == nil {
		return nil, fmt.Errorf("dropbox: put %q: nil body", req.Path)
	}

	if CleanPath(req.Path) == "" {
		return nil, fmt.Errorf("dropbox: put: empty remote path")
	}

	if req.Size < 0 || req.Size > MaxPutFileSize {
		return nil, fmt.Errorf("dropbox: put %q: size %d outside [0, %d]", req.Path, req.Size, MaxPutFileSize)
	}

	c.logger.Info("uploading file",
		slog.String("path", req.Path),
		slog.Int64("size", req.Size),
		slog.Bool("overwrite", req.Overwrite),
	)

	query := url.Values{"overwrite": {strconv.FormatBool(req.Overwrite)}}
	if req.ParentRev != "" {
		query.Set("parent_rev", req.ParentRev)
	}

	var body io.Reader
	if req.Size > 0 {
		body = io.LimitReader(req.Body, req.Size)
	}

	resp, err := c.do(ctx, apiRequest{
		method:    http.MethodPut,
		url:       c.rootedURL(c.endpoints.Content, "1/files_put", req.Path),
		query:     query,
		body:      body,
		length:    req.Size,
		header:    http.Header{headerContentType: {"application/octet-stream"}},
		streaming: true,
	})
	if err != nil {
		return nil, err
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	meta, err := decodeMetadata(data, c.logger)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("file stored",
		slog.String("path", meta.Path),
		slog.String("rev", meta.Rev),
	)

	return meta, nil
}
