package config

// Default values for configuration options, layer 0 of the override chain.
const (
	defaultRoot            = "dropbox"
	defaultChunkSize       = "4MiB"
	defaultParallelUploads = 4
	defaultBandwidthLimit  = "0"
	defaultRequestTimeout  = "60s"
	defaultUserAgent       = "dropbox-go/0.1"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values. TOML is
// decoded on top of it so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		AppConfig: AppConfig{
			Root: defaultRoot,
		},
		TransfersConfig: TransfersConfig{
			ChunkSize:       defaultChunkSize,
			ParallelUploads: defaultParallelUploads,
			BandwidthLimit:  defaultBandwidthLimit,
		},
		NetworkConfig: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
