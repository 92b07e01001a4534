package dropbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// timeLayout is the timestamp format used in metadata records.
const timeLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Metadata is a file or folder record as returned by commit, put and download.
type Metadata struct {
	Path        string
	Root        string
	Rev         string
	Revision    int64
	Size        string // human-readable, e.g. "225.4KB"
	Bytes       int64
	IsDir       bool
	IsDeleted   bool
	ThumbExists bool
	Icon        string
	MimeType    string
	Hash        string // folders only
	Modified    time.Time
	ClientMtime time.Time
}

// metadataResponse is the JSON shape of a metadata record.
type metadataResponse struct {
	Path        string `json:"path"`
	Root        string `json:"root"`
	Rev         string `json:"rev"`
	Revision    int64  `json:"revision"`
	Size        string `json:"size"`
	Bytes       int64  `json:"bytes"`
	IsDir       bool   `json:"is_dir"`
	IsDeleted   bool   `json:"is_deleted"`
	ThumbExists bool   `json:"thumb_exists"`
	Icon        string `json:"icon"`
	MimeType    string `json:"mime_type"`
	Hash        string `json:"hash"`
	Modified    string `json:"modified"`
	ClientMtime string `json:"client_mtime"`
}

// decodeMetadata parses a metadata record. A record without a path is
// treated as malformed.
func decodeMetadata(data []byte, logger *slog.Logger) (*Metadata, error) {
	var mr metadataResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %w", ErrMalformedResponse, err)
	}

	if mr.Path == "" {
		return nil, fmt.Errorf("%w: metadata missing path", ErrMalformedResponse)
	}

	return &Metadata{
		Path:        mr.Path,
		Root:        mr.Root,
		Rev:         mr.Rev,
		Revision:    mr.Revision,
		Size:        mr.Size,
		Bytes:       mr.Bytes,
		IsDir:       mr.IsDir,
		IsDeleted:   mr.IsDeleted,
		ThumbExists: mr.ThumbExists,
		Icon:        mr.Icon,
		MimeType:    mr.MimeType,
		Hash:        mr.Hash,
		Modified:    parseTime(mr.Modified, "modified", logger),
		ClientMtime: parseTime(mr.ClientMtime, "client_mtime", logger),
	}, nil
}

// parseTime parses a metadata timestamp, returning the zero time (with a
// warning) when the value is present but unparseable.
func parseTime(raw, field string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		logger.Warn("invalid metadata timestamp, using zero time",
			slog.String("field", field),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}
