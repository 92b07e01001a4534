package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
	"github.com/tonimelisma/dropbox-go/internal/transfer"
)

func TestBuildJobs(t *testing.T) {
	opts := transfer.UploadOptions{Overwrite: true}

	tests := []struct {
		name    string
		args    []string
		dir     string
		want    []string
		wantErr bool
	}{
		{name: "default remote", args: []string{"/tmp/a.txt"}, want: []string{"/a.txt"}},
		{name: "explicit remote", args: []string{"/tmp/a.txt", "/docs/b.txt"}, want: []string{"/docs/b.txt"}},
		{name: "dir", args: []string{"x/a.txt", "y/b.txt"}, dir: "photos", want: []string{"/photos/a.txt", "/photos/b.txt"}},
		{name: "many without dir", args: []string{"a", "b", "c"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := buildJobs(tt.args, tt.dir, opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)

			got := make([]string, 0, len(jobs))
			for _, j := range jobs {
				got = append(got, j.RemotePath)
				assert.Equal(t, opts, j.Options)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadJobs(t *testing.T) {
	fake := newFakeDropbox(t)
	cc := testCLIContext(t)
	loggedIn(t, cc)

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha beta"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("gamma"), 0o600))

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	jobs, err := buildJobs([]string{a, b}, "up", transfer.UploadOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, uploadJobs(ctx, cc, client, jobs))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	paths := append([]string(nil), fake.commitPaths...)
	sort.Strings(paths)
	assert.Equal(t, []string{"/up/a.txt", "/up/b.txt"}, paths)

	var contents []string
	for _, data := range fake.uploaded {
		contents = append(contents, string(data))
	}

	sort.Strings(contents)
	assert.Equal(t, []string{"alpha beta", "gamma"}, contents)

	entries, err := os.ReadDir(cc.Cfg.SessionDir)
	if err == nil {
		assert.Empty(t, entries, "resume records are removed after commit")
	}
}

func TestUploadJobs_SmallFileSkipsSession(t *testing.T) {
	fake := newFakeDropbox(t)
	cc := testCLIContext(t)
	loggedIn(t, cc)

	local := filepath.Join(t.TempDir(), "tiny.txt")
	require.NoError(t, os.WriteFile(local, []byte("abc"), 0o600))

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	jobs, err := buildJobs([]string{local, "/docs/tiny.txt"}, "", transfer.UploadOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, uploadJobs(ctx, cc, client, jobs))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, map[string]string{"/docs/tiny.txt": "abc"}, fake.putFiles)
	assert.Empty(t, fake.commitPaths)
}

func TestUploadJobs_MissingFileFailsBatch(t *testing.T) {
	newFakeDropbox(t)
	cc := testCLIContext(t)
	loggedIn(t, cc)

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	jobs := []transfer.Job{{LocalPath: filepath.Join(t.TempDir(), "missing"), RemotePath: "/missing"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = uploadJobs(ctx, cc, client, jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 uploads failed")
}

func TestDownload(t *testing.T) {
	newFakeDropbox(t)
	cc := testCLIContext(t)
	loggedIn(t, cc)

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, download(context.Background(), cc, client, dropbox.GetFileRequest{Path: "/notes/a.txt"}, local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	info, err := os.Stat(local)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(downloadPerms), info.Mode().Perm())
}

func TestDownload_NotFoundLeavesNothing(t *testing.T) {
	newFakeDropbox(t)
	cc := testCLIContext(t)
	loggedIn(t, cc)

	client, err := newAPIClient(cc)
	require.NoError(t, err)

	dir := t.TempDir()
	local := filepath.Join(dir, "nope.txt")

	err = download(context.Background(), cc, client, dropbox.GetFileRequest{Path: "/nope.txt"}, local)
	require.ErrorIs(t, err, dropbox.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be cleaned up")
}
