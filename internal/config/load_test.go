package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger so config debug output shows up in
// test output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
app_key = "key123"
app_secret = "secret456"
root = "sandbox"
token_file = "/tmp/tok.json"
chunk_size = "8MiB"
parallel_uploads = 2
bandwidth_limit = "5MB/s"
request_timeout = "30s"
user_agent = "my-agent/1.0"
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "key123", cfg.AppKey)
	assert.Equal(t, "secret456", cfg.AppSecret)
	assert.Equal(t, "sandbox", cfg.Root)
	assert.Equal(t, "/tmp/tok.json", cfg.TokenFile)
	assert.Equal(t, "8MiB", cfg.ChunkSize)
	assert.Equal(t, 2, cfg.ParallelUploads)
	assert.Equal(t, "5MB/s", cfg.BandwidthLimit)
	assert.Equal(t, "30s", cfg.RequestTimeout)
	assert.Equal(t, "my-agent/1.0", cfg.UserAgent)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `app_key = "k"`)

	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.AppKey)
	assert.Equal(t, defaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, defaultParallelUploads, cfg.ParallelUploads)
	assert.Equal(t, defaultRoot, cfg.Root)
}

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	path := writeTestConfig(t, `chunk_sise = "8MiB"`)

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "chunk_sise"`)
	assert.Contains(t, err.Error(), `did you mean "chunk_size"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `app_key = `)

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, `root = "everything"`)

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"), testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layering(t *testing.T) {
	path := writeTestConfig(t, `
app_key = "file-key"
app_secret = "file-secret"
chunk_size = "8MiB"
bandwidth_limit = "1MB/s"
`)

	env := EnvOverrides{
		ConfigPath:  path,
		AppKey:      "env-key",
		AccessToken: "env-token",
	}

	chunk := "16MiB"
	parallel := 6

	resolved, err := Resolve(env, CLIOverrides{
		TokenFile:       "/cli/token.json",
		ChunkSize:       &chunk,
		ParallelUploads: &parallel,
	}, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, path, resolved.ConfigPath)
	assert.Equal(t, "env-key", resolved.AppKey, "env beats file")
	assert.Equal(t, "file-secret", resolved.AppSecret)
	assert.Equal(t, "env-token", resolved.AccessToken)
	assert.Equal(t, "/cli/token.json", resolved.TokenFile)
	assert.Equal(t, 16*1024*1024, resolved.ChunkSize, "CLI beats file")
	assert.Equal(t, 6, resolved.ParallelUploads)
	assert.Equal(t, int64(1_000_000), resolved.BandwidthLimit)
	assert.Equal(t, 60*time.Second, resolved.RequestTimeout)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `app_key = "from-env-path"`)
	cliPath := writeTestConfig(t, `app_key = "from-cli-path"`)

	resolved, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath}, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "from-cli-path", resolved.AppKey)
}

func TestResolve_InvalidCLIOverride(t *testing.T) {
	path := writeTestConfig(t, ``)
	parallel := 0

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{ParallelUploads: &parallel}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel_uploads")
}

func TestResolve_DefaultTokenFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path := writeTestConfig(t, ``)

	resolved, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{}, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenPath(), resolved.TokenFile)
	assert.Equal(t, DefaultSessionDir(), resolved.SessionDir)
}
