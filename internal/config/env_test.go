package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvAppKey, "k")
	t.Setenv(EnvAppSecret, "s")
	t.Setenv(EnvTokenFile, "/custom/token.json")
	t.Setenv(EnvAccessToken, "tok")

	overrides, err := ReadEnvOverrides(testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, EnvOverrides{
		ConfigPath:  "/custom/config.toml",
		AppKey:      "k",
		AppSecret:   "s",
		TokenFile:   "/custom/token.json",
		AccessToken: "tok",
	}, overrides)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	for _, name := range []string{EnvConfig, EnvAppKey, EnvAppSecret, EnvTokenFile, EnvAccessToken} {
		t.Setenv(name, "")
	}

	overrides, err := ReadEnvOverrides(testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, EnvOverrides{}, overrides)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DROPBOX_GO_APP_KEY=from-dotenv\nDROPBOX_GO_APP_SECRET=dotenv-secret\n"), 0o600))

	// Already-set variables are not overridden.
	t.Setenv(EnvAppKey, "from-shell")
	t.Setenv(EnvAppSecret, "")
	require.NoError(t, os.Unsetenv(EnvAppSecret))

	require.NoError(t, LoadDotEnv(path, testLogger(t)))

	assert.Equal(t, "from-shell", os.Getenv(EnvAppKey))
	assert.Equal(t, "dotenv-secret", os.Getenv(EnvAppSecret))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env"), testLogger(t)))
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "DROPBOX_GO_CONFIG", EnvConfig)
	assert.Equal(t, "DROPBOX_GO_ACCESS_TOKEN", EnvAccessToken)
}
