package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minChunkBytes      = 4 * 1024
	maxChunkBytes      = 150 * 1024 * 1024
	minParallelUploads = 1
	maxParallelUploads = 32
	minRequestTimeout  = time.Second
)

var (
	validRoots      = map[string]bool{"dropbox": true, "sandbox": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks all configuration values and returns every error found,
// so one run reports everything that needs fixing.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateApp(&cfg.AppConfig)...)
	errs = append(errs, validateTransfers(&cfg.TransfersConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

func validateApp(a *AppConfig) []error {
	var errs []error

	if !validRoots[a.Root] {
		errs = append(errs, fmt.Errorf("root: must be \"dropbox\" or \"sandbox\", got %q", a.Root))
	}

	if a.AppSecret != "" && a.AppKey == "" {
		errs = append(errs, errors.New("app_secret: set without app_key"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	chunk, err := ParseSize(t.ChunkSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("chunk_size: %w", err))
	case chunk < minChunkBytes || chunk > maxChunkBytes:
		errs = append(errs, fmt.Errorf("chunk_size: must be between %d and %d bytes, got %d",
			minChunkBytes, maxChunkBytes, chunk))
	}

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.RequestTimeout)
	if err != nil {
		return []error{fmt.Errorf("request_timeout: %w", err)}
	}

	// Zero disables the per-request timeout.
	if d != 0 && d < minRequestTimeout {
		return []error{fmt.Errorf("request_timeout: must be 0 or at least %s, got %s", minRequestTimeout, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}
