package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
	"github.com/tonimelisma/dropbox-go/internal/tokenfile"
	"github.com/tonimelisma/dropbox-go/internal/transfer"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload files with resumable chunked uploads",
		Long: `Upload a file, or several files with --dir.

Files larger than one chunk are sent in chunks. If such an upload is
interrupted, re-running the same command continues from the last chunk the
server confirmed. Smaller files go up in a single request.

Examples:
  dropbox-go put backup.tar.gz /archive/backup.tar.gz
  dropbox-go put --dir /photos a.jpg b.jpg c.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("dir", "", "remote folder for every file (allows multiple local paths)")
	cmd.Flags().Bool("overwrite", false, "replace an existing remote file instead of renaming")
	cmd.Flags().String("parent-rev", "", "only replace the remote file if it is at this revision")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().String("rev", "", "download this revision instead of the latest")
	cmd.Flags().Int64("offset", 0, "first byte to download")
	cmd.Flags().Int64("length", 0, "number of bytes to download (0 = to end of file)")

	return cmd
}

// buildJobs maps command arguments to upload jobs. Without dir, args are
// <local> [remote]; the remote defaults to the local base name at the root.
// With dir, every arg is a local file placed inside dir.
func buildJobs(args []string, dir string, opts transfer.UploadOptions) ([]transfer.Job, error) {
	if dir != "" {
		jobs := make([]transfer.Job, 0, len(args))
		for _, local := range args {
			jobs = append(jobs, transfer.Job{
				LocalPath:  local,
				RemotePath: path.Join("/", dir, filepath.Base(local)),
				Options:    opts,
			})
		}

		return jobs, nil
	}

	if len(args) > 2 {
		return nil, errors.New("multiple local files need --dir")
	}

	remote := "/" + filepath.Base(args[0])
	if len(args) == 2 {
		remote = args[1]
	}

	return []transfer.Job{{LocalPath: args[0], RemotePath: remote, Options: opts}}, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	dir, _ := cmd.Flags().GetString("dir")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	parentRev, _ := cmd.Flags().GetString("parent-rev")

	jobs, err := buildJobs(args, dir, transfer.UploadOptions{Overwrite: overwrite, ParentRev: parentRev})
	if err != nil {
		return err
	}

	client, err := newAPIClient(cc)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
	defer cancel()

	return uploadJobs(ctx, cc, client, jobs)
}

func uploadJobs(ctx context.Context, cc *CLIContext, client *dropbox.Client, jobs []transfer.Job) error {
	cfg := cc.Cfg
	logger := cc.Logger

	// A long batch picks up a token rewritten by another login.
	if cfg.AccessToken == "" {
		go func() {
			if err := tokenfile.Watch(ctx, cfg.TokenFile, client.Credentials(), logger); err != nil {
				logger.Warn("token file watch disabled", slog.String("error", err.Error()))
			}
		}()
	}

	store := transfer.NewSessionStore(cfg.SessionDir, logger)
	limiter := transfer.NewBandwidthLimiter(cfg.BandwidthLimit, logger)
	uploader := transfer.NewUploader(client, store, limiter, cfg.ChunkSize, logger)

	results, err := uploader.UploadAll(ctx, jobs, cfg.ParallelUploads)

	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++
			cc.Statusf("Failed %s: %v\n", r.Job.LocalPath, r.Err)

			continue
		}

		cc.Statusf("Uploaded %s (%s, rev %s)\n", r.Metadata.Path, formatSize(r.Metadata.Bytes), r.Metadata.Rev)
	}

	if err != nil {
		cc.Statusf("Interrupted. Re-run the same command to resume.\n")
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(jobs))
	}

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	rev, _ := cmd.Flags().GetString("rev")
	offset, _ := cmd.Flags().GetInt64("offset")
	length, _ := cmd.Flags().GetInt64("length")

	if offset < 0 || length < 0 {
		return errors.New("--offset and --length must not be negative")
	}

	req := dropbox.GetFileRequest{Path: args[0], Rev: rev, Offset: offset, Length: length}

	localPath := path.Base(dropbox.CleanPath(args[0]))
	if len(args) > 1 {
		localPath = args[1]
	}

	client, err := newAPIClient(cc)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
	defer cancel()

	return download(ctx, cc, client, req, localPath)
}

// downloadPerms is applied before the rename; CreateTemp uses 0600.
const downloadPerms = 0o644

// download writes to a temp file beside localPath and renames it into place
// only after the whole body arrived.
func download(ctx context.Context, cc *CLIContext, client *dropbox.Client, req dropbox.GetFileRequest, localPath string) error {
	f, err := os.CreateTemp(filepath.Dir(localPath), ".dropbox-go-*.partial")
	if err != nil {
		return fmt.Errorf("creating local file: %w", err)
	}

	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	limiter := transfer.NewBandwidthLimiter(cc.Cfg.BandwidthLimit, cc.Logger)

	meta, n, err := client.GetFile(ctx, req, limiter.WrapWriter(ctx, f))
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing local file: %w", closeErr)
	}

	if err != nil {
		return fmt.Errorf("downloading %s: %w", req.Path, err)
	}

	if err := os.Chmod(tmp, downloadPerms); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", localPath, err)
	}

	if err := os.Rename(tmp, localPath); err != nil {
		return fmt.Errorf("saving %s: %w", localPath, err)
	}

	cc.Logger.Debug("download complete",
		slog.String("remote", req.Path),
		slog.String("local", localPath),
		slog.Int64("bytes", n),
	)

	// The metadata header is optional.
	if meta == nil {
		cc.Statusf("Downloaded %s (%s)\n", localPath, formatSize(n))
		return nil
	}

	cc.Statusf("Downloaded %s (%s, rev %s, modified %s)\n",
		localPath, formatSize(n), meta.Rev, formatTime(meta.Modified))

	return nil
}
