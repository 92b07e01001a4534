package dropbox

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const putResponse = `{
	"path": "/notes/a.txt",
	"root": "dropbox",
	"rev": "1f",
	"revision": 31,
	"size": "11 bytes",
	"bytes": 11,
	"is_dir": false,
	"mime_type": "text/plain",
	"modified": "Tue, 19 Jul 2011 21:55:38 +0000"
}`

func TestPutFile_SendsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/1/files_put/dropbox/notes/a.txt", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("overwrite"))
		assert.False(t, r.URL.Query().Has("parent_rev"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(11), r.ContentLength)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))

		w.Write([]byte(putResponse))
	}))
	defer srv.Close()

	meta, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path: "/notes/a.txt",
		Body: strings.NewReader("hello world"),
		Size: 11,
	})
	require.NoError(t, err)

	assert.Equal(t, "/notes/a.txt", meta.Path)
	assert.Equal(t, "1f", meta.Rev)
	assert.Equal(t, int64(11), meta.Bytes)
}

func TestPutFile_OverwriteAndParentRev(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("overwrite"))
		assert.Equal(t, "1e", r.URL.Query().Get("parent_rev"))
		w.Write([]byte(putResponse))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path:      "/notes/a.txt",
		Body:      strings.NewReader("hello world"),
		Size:      11,
		Overwrite: true,
		ParentRev: "1e",
	})
	require.NoError(t, err)
}

func TestPutFile_SendsOnlySizeBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))

		w.Write([]byte(putResponse))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path: "/notes/a.txt",
		Body: strings.NewReader("hello world"),
		Size: 5,
	})
	require.NoError(t, err)
}

func TestPutFile_EmptyFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(0), r.ContentLength)
		w.Write([]byte(`{"path": "/empty.txt", "rev": "20", "bytes": 0}`))
	}))
	defer srv.Close()

	meta, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path: "/empty.txt",
		Body: strings.NewReader(""),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), meta.Bytes)
}

func TestPutFile_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Dropbox-Request-Id", "req-9")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "parent_rev is stale"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path:      "/notes/a.txt",
		Body:      strings.NewReader("hello world"),
		Size:      11,
		ParentRev: "old",
	})
	require.ErrorIs(t, err, ErrHTTPRequestFailed)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
}

func TestPutFile_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"rev": "1f"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PutFile(context.Background(), PutFileRequest{
		Path: "/notes/a.txt",
		Body: strings.NewReader("x"),
		Size: 1,
	})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPutFile_Validation(t *testing.T) {
	c := NewClient(Endpoints{}, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PutFileRequest
	}{
		{"nil body", PutFileRequest{Path: "/a", Size: 1}},
		{"empty path", PutFileRequest{Path: "/", Body: strings.NewReader("x"), Size: 1}},
		{"negative size", PutFileRequest{Path: "/a", Body: strings.NewReader("x"), Size: -1}},
		{"too large", PutFileRequest{Path: "/a", Body: strings.NewReader("x"), Size: MaxPutFileSize + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.PutFile(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}
