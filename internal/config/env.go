package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig      = "DROPBOX_GO_CONFIG"
	EnvAppKey      = "DROPBOX_GO_APP_KEY"
	EnvAppSecret   = "DROPBOX_GO_APP_SECRET"
	EnvTokenFile   = "DROPBOX_GO_TOKEN_FILE"
	EnvAccessToken = "DROPBOX_GO_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string `env:"DROPBOX_GO_CONFIG"`
	AppKey      string `env:"DROPBOX_GO_APP_KEY"`
	AppSecret   string `env:"DROPBOX_GO_APP_SECRET"`
	TokenFile   string `env:"DROPBOX_GO_TOKEN_FILE"`
	AccessToken string `env:"DROPBOX_GO_ACCESS_TOKEN"` // pre-authenticated token, never persisted
}

// ReadEnvOverrides reads the DROPBOX_GO_* variables. It does not modify any
// Config; Resolve applies the fields.
func ReadEnvOverrides(logger *slog.Logger) (EnvOverrides, error) {
	var eo EnvOverrides
	if err := env.Parse(&eo); err != nil {
		return EnvOverrides{}, fmt.Errorf("parsing environment: %w", err)
	}

	logger.Debug("read environment overrides",
		slog.String("config_path", eo.ConfigPath),
		slog.Bool("app_key_set", eo.AppKey != ""),
		slog.Bool("access_token_set", eo.AccessToken != ""),
		slog.String("token_file", eo.TokenFile),
	)

	return eo, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error. Files readable by group or others are loaded with a warning.
func LoadDotEnv(path string, logger *slog.Logger) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if info.Mode().Perm()&0o077 != 0 {
		logger.Warn("env file has insecure permissions, recommended 0600",
			slog.String("path", path),
			slog.String("mode", fmt.Sprintf("%04o", info.Mode().Perm())),
		)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}
