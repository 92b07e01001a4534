// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for dropbox-go. Values pass through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

// Config is the top-level configuration parsed from a TOML file. All keys are
// flat; the embedded sections only group related fields in code.
type Config struct {
	AppConfig
	TransfersConfig
	NetworkConfig
	LoggingConfig
}

// AppConfig identifies the registered app and where its credential lives.
type AppConfig struct {
	AppKey    string `toml:"app_key"`
	AppSecret string `toml:"app_secret"`
	Root      string `toml:"root"`       // "dropbox" or "sandbox"
	TokenFile string `toml:"token_file"` // empty = DefaultTokenPath()
}

// TransfersConfig controls chunked uploads.
type TransfersConfig struct {
	ChunkSize       string `toml:"chunk_size"`
	ParallelUploads int    `toml:"parallel_uploads"`
	BandwidthLimit  string `toml:"bandwidth_limit"` // e.g. "5MB/s", "0" = unlimited
}

// NetworkConfig controls the HTTP client.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // auto, text, json
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath      string  // --config
	TokenFile       string  // --token-file
	Root            *string // --root
	ChunkSize       *string // --chunk-size
	ParallelUploads *int    // --parallel
	BandwidthLimit  *string // --bwlimit
}
