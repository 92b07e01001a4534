package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-go/internal/config"
	"github.com/tonimelisma/dropbox-go/internal/dropbox"
	"github.com/tonimelisma/dropbox-go/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Server locations. Tests point these at httptest servers.
var (
	apiEndpoints   = dropbox.DefaultEndpoints()
	authorizeURL   = dropbox.DefaultAuthorizeURL
	tokenURL       = dropbox.DefaultTokenURL
	legacyTokenURL = dropbox.DefaultLegacyTokenURL
)

// CLIFlags holds the persistent flags shared by every subcommand.
type CLIFlags struct {
	ConfigPath     string
	TokenFile      string
	Root           string
	ChunkSize      string
	BandwidthLimit string
	Parallel       int
	JSON           bool
	Verbose        bool
	Quiet          bool
}

// CLIContext is built once in PersistentPreRunE and carried to subcommands
// through the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run.
// Panics if missing, which means a command was wired without the root.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "dropbox-go",
		Short:   "Dropbox CLI client",
		Long:    "Upload and download Dropbox files, with resumable chunked uploads.",
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.TokenFile, "token-file", "", "token file path")
	pf.StringVar(&flags.Root, "root", "", `access root ("dropbox" or "sandbox")`)
	pf.StringVar(&flags.ChunkSize, "chunk-size", "", "upload chunk size (e.g. 4MiB)")
	pf.StringVar(&flags.BandwidthLimit, "bwlimit", "", "bandwidth limit (e.g. 5MB/s, 0 = unlimited)")
	pf.IntVar(&flags.Parallel, "parallel", 0, "concurrent file uploads")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newMigrateTokenCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration (defaults, config file,
// .env and environment, then flags) and builds the final logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	logger := bootstrapLogger(flags)

	if err := config.LoadDotEnv(config.DefaultDotEnvPath(), logger); err != nil {
		return nil, err
	}

	env, err := config.ReadEnvOverrides(logger)
	if err != nil {
		return nil, err
	}

	resolved, err := config.Resolve(env, cliOverrides(cmd, flags), logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(resolved, flags),
	}, nil
}

// cliOverrides passes only the flags the user actually set, so an unset
// flag never masks a config-file value.
func cliOverrides(cmd *cobra.Command, flags CLIFlags) config.CLIOverrides {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		TokenFile:  flags.TokenFile,
	}

	changed := cmd.Flags().Changed

	if changed("root") {
		cli.Root = &flags.Root
	}

	if changed("chunk-size") {
		cli.ChunkSize = &flags.ChunkSize
	}

	if changed("bwlimit") {
		cli.BandwidthLimit = &flags.BandwidthLimit
	}

	if changed("parallel") {
		cli.ParallelUploads = &flags.Parallel
	}

	return cli
}

// bootstrapLogger is used until the config is loaded. Only the CLI flags
// affect it.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates the command logger. The config sets the baseline;
// --verbose and --quiet override it.
func buildLogger(cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	return newLogger(os.Stderr, level, cfg.LogFormat, tty)
}

// newLogger picks the handler for format. "auto" means text on a terminal
// and JSON otherwise.
func newLogger(w io.Writer, level slog.Level, format string, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !tty) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// httpClient returns the transport for API calls. The per-request timeout
// is enforced by the dropbox client, not here.
func httpClient() *http.Client {
	return &http.Client{}
}

// newAPIClient builds a client signed with the credential from
// DROPBOX_GO_ACCESS_TOKEN or, failing that, the token file.
func newAPIClient(cc *CLIContext) (*dropbox.Client, error) {
	store := dropbox.NewCredentialStore()

	if cc.Cfg.AccessToken != "" {
		store.SetAccessToken(cc.Cfg.AccessToken)
	} else {
		ok, err := tokenfile.LoadInto(cc.Cfg.TokenFile, store)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, errors.New("not logged in: run 'dropbox-go login' first")
		}
	}

	client := dropbox.NewClient(apiEndpoints, httpClient(), store, cc.Logger)
	client.SetRoot(cc.Cfg.Root)
	client.SetRequestTimeout(cc.Cfg.RequestTimeout)
	client.SetUserAgent(cc.Cfg.UserAgent)

	return client, nil
}

// requireAppKeys fails unless both app credentials are configured.
func requireAppKeys(cfg *config.Resolved) error {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return fmt.Errorf("app_key and app_secret must be set (config file or %s / %s)",
			config.EnvAppKey, config.EnvAppSecret)
	}

	return nil
}
