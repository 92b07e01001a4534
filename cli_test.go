package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dropbox-go/internal/config"
	"github.com/tonimelisma/dropbox-go/internal/dropbox"
	"github.com/tonimelisma/dropbox-go/internal/tokenfile"
)

const accountJSON = `{
	"account_id": "dbid:AAH4f99",
	"name": {"display_name": "Franz Ferdinand", "given_name": "Franz", "surname": "Ferdinand"},
	"email": "franz@example.com",
	"email_verified": true
}`

const fileMetaHeader = `{"path": "/notes/a.txt", "rev": "1f", "bytes": 11, "modified": "Tue, 19 Jul 2011 21:55:38 +0000"}`

// fakeDropbox serves the handful of endpoints the commands use.
type fakeDropbox struct {
	t *testing.T

	mu          sync.Mutex
	tokenForm   url.Values
	legacyForm  url.Values
	auth        []string
	uploaded    map[string][]byte // upload id -> bytes
	commitPaths []string
	putFiles    map[string]string // remote path -> body
	fileContent string
}

func newFakeDropbox(t *testing.T) *fakeDropbox {
	t.Helper()

	f := &fakeDropbox{
		t:           t,
		uploaded:    make(map[string][]byte),
		putFiles:    make(map[string]string),
		fileContent: "hello world",
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	oldAPI, oldToken, oldLegacy := apiEndpoints, tokenURL, legacyTokenURL
	t.Cleanup(func() {
		apiEndpoints, tokenURL, legacyTokenURL = oldAPI, oldToken, oldLegacy
	})

	apiEndpoints = dropbox.Endpoints{API: srv.URL, Content: srv.URL}
	tokenURL = srv.URL + "/oauth2/token"
	legacyTokenURL = srv.URL + "/1/oauth2/token_from_oauth1"

	return f
}

func (f *fakeDropbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.Header.Get("Authorization"))

	switch {
	case r.URL.Path == "/oauth2/token":
		require.NoError(f.t, r.ParseForm())
		f.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "new-token", "token_type": "bearer", "account_id": "dbid:AAH4f99"}`)

	case r.URL.Path == "/1/oauth2/token_from_oauth1":
		require.NoError(f.t, r.ParseForm())
		f.legacyForm = r.PostForm
		fmt.Fprint(w, `{"oauth2_token": "migrated-token"}`)

	case r.URL.Path == "/1/account/info":
		fmt.Fprint(w, accountJSON)

	case r.Method == http.MethodPut && r.URL.Path == "/1/chunked_upload":
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)

		id := r.URL.Query().Get("upload_id")
		if id == "" {
			id = fmt.Sprintf("u%d", len(f.uploaded)+1)
		}

		offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
		require.NoError(f.t, err)

		f.uploaded[id] = append(f.uploaded[id][:offset], body...)
		fmt.Fprintf(w, `{"upload_id": %q, "offset": %d}`, id, len(f.uploaded[id]))

	case r.Method == http.MethodPost && len(r.URL.Path) > len("/1/commit_chunked_upload/dropbox"):
		require.NoError(f.t, r.ParseForm())

		remote := r.URL.Path[len("/1/commit_chunked_upload/dropbox"):]
		f.commitPaths = append(f.commitPaths, remote)

		fmt.Fprintf(w, `{"path": %q, "rev": "2a", "bytes": %d}`,
			remote, len(f.uploaded[r.PostForm.Get("upload_id")]))

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/1/files_put/dropbox/"):
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)

		remote := strings.TrimPrefix(r.URL.Path, "/1/files_put/dropbox")
		f.putFiles[remote] = string(body)

		fmt.Fprintf(w, `{"path": %q, "rev": "3b", "bytes": %d}`, remote, len(body))

	case r.Method == http.MethodGet && r.URL.Path == "/1/files/dropbox/notes/a.txt":
		w.Header().Set("X-Dropbox-Metadata", fileMetaHeader)
		fmt.Fprint(w, f.fileContent)

	default:
		http.NotFound(w, r)
	}
}

func testCLIContext(t *testing.T) *CLIContext {
	t.Helper()

	dir := t.TempDir()

	return &CLIContext{
		Flags: CLIFlags{Quiet: true},
		Cfg: &config.Resolved{
			AppKey:          "app-key",
			AppSecret:       "app-secret",
			Root:            dropbox.RootDropbox,
			TokenFile:       filepath.Join(dir, "token.json"),
			SessionDir:      filepath.Join(dir, "sessions"),
			ChunkSize:       4,
			ParallelUploads: 2,
			RequestTimeout:  5 * time.Second,
			UserAgent:       "dropbox-go-test",
			LogLevel:        "info",
			LogFormat:       "text",
		},
		Logger: slog.Default(),
	}
}

// loggedIn writes a token file for cc.
func loggedIn(t *testing.T, cc *CLIContext) {
	t.Helper()

	require.NoError(t, tokenfile.SaveCredential(cc.Cfg.TokenFile,
		dropbox.Credential{AccessToken: "saved-token", TokenType: "bearer", OwnerID: "dbid:1"}, nil))
}

func TestNewAPIClient_NotLoggedIn(t *testing.T) {
	_, err := newAPIClient(testCLIContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestNewAPIClient_EnvTokenBypassesFile(t *testing.T) {
	cc := testCLIContext(t)
	cc.Cfg.AccessToken = "env-token"

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	cred, ok := client.Credentials().Get()
	require.True(t, ok)
	assert.Equal(t, "env-token", cred.AccessToken)
	assert.Empty(t, cred.OwnerID)
}

func TestRequireAppKeys(t *testing.T) {
	cc := testCLIContext(t)
	require.NoError(t, requireAppKeys(cc.Cfg))

	cc.Cfg.AppSecret = ""
	assert.Error(t, requireAppKeys(cc.Cfg))
}
