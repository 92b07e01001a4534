package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the fully merged configuration with every string value parsed
// into the type its consumer needs.
type Resolved struct {
	ConfigPath string

	AppKey      string
	AppSecret   string
	AccessToken string // from DROPBOX_GO_ACCESS_TOKEN; bypasses the token file
	Root        string
	TokenFile   string
	SessionDir  string

	ChunkSize       int
	ParallelUploads int
	BandwidthLimit  int64 // bytes per second, 0 = unlimited

	RequestTimeout time.Duration
	UserAgent      string

	LogLevel  string
	LogFormat string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file loaded", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns defaults.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve applies the override chain defaults -> config file -> environment
// -> CLI flags and returns the parsed result.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	// Flags can introduce invalid values the file check never saw.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath, env.AccessToken)
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.AppKey != "" {
		cfg.AppKey = env.AppKey
	}

	if env.AppSecret != "" {
		cfg.AppSecret = env.AppSecret
	}

	if env.TokenFile != "" {
		cfg.TokenFile = env.TokenFile
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.TokenFile != "" {
		cfg.TokenFile = cli.TokenFile
	}

	if cli.Root != nil {
		cfg.Root = *cli.Root
	}

	if cli.ChunkSize != nil {
		cfg.ChunkSize = *cli.ChunkSize
	}

	if cli.ParallelUploads != nil {
		cfg.ParallelUploads = *cli.ParallelUploads
	}

	if cli.BandwidthLimit != nil {
		cfg.BandwidthLimit = *cli.BandwidthLimit
	}
}

// resolve parses a validated Config. Parse errors here would mean Validate
// and resolve disagree, so they are still reported rather than ignored.
func resolve(cfg *Config, cfgPath, accessToken string) (*Resolved, error) {
	chunk, err := ParseSize(cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	rate, err := ParseRate(cfg.BandwidthLimit)
	if err != nil {
		return nil, fmt.Errorf("bandwidth_limit: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		tokenFile = DefaultTokenPath()
	}

	return &Resolved{
		ConfigPath:      cfgPath,
		AppKey:          cfg.AppKey,
		AppSecret:       cfg.AppSecret,
		AccessToken:     accessToken,
		Root:            cfg.Root,
		TokenFile:       tokenFile,
		SessionDir:      DefaultSessionDir(),
		ChunkSize:       int(chunk),
		ParallelUploads: cfg.ParallelUploads,
		BandwidthLimit:  rate,
		RequestTimeout:  timeout,
		UserAgent:       cfg.UserAgent,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
	}, nil
}
