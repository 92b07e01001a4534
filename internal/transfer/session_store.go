package transfer

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptSession is returned when a record cannot be parsed. The corrupt
// file is deleted.
var ErrCorruptSession = errors.New("transfer: corrupt session file")

const (
	sessionFilePerms = 0o600
	sessionDirPerms  = 0o700
)

// StaleSessionAge is how long a record is kept. Server-side chunked upload
// sessions expire well before this.
const StaleSessionAge = 48 * time.Hour

// cleanThrottle limits how often Save triggers a stale-record scan.
const cleanThrottle = time.Hour

// SessionRecord is the on-disk state of an interrupted upload. FileSize and
// ModTime identify the local file version the offset refers to.
type SessionRecord struct {
	LocalPath  string    `json:"local_path"`
	RemotePath string    `json:"remote_path"`
	UploadID   string    `json:"upload_id"`
	Offset     int64     `json:"offset"`
	FileSize   int64     `json:"file_size"`
	ModTime    time.Time `json:"mod_time"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// matches reports whether rec still describes the local file.
func (rec *SessionRecord) matches(size int64, modTime time.Time) bool {
	return rec.UploadID != "" &&
		rec.FileSize == size &&
		rec.ModTime.Equal(modTime) &&
		rec.Offset >= 0 && rec.Offset <= size
}

// SessionStore keeps one JSON record per (local, remote) pair in a
// directory. Safe for concurrent use across different pairs.
type SessionStore struct {
	dir    string
	logger *slog.Logger

	cleanMu   sync.Mutex
	lastClean time.Time
}

// NewSessionStore creates a store rooted at dir.
func NewSessionStore(dir string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionStore{dir: dir, logger: logger}
}

// Load returns the record for the pair, or (nil, nil) if there is none.
func (s *SessionStore) Load(localPath, remotePath string) (*SessionRecord, error) {
	path := s.filePath(localPath, remotePath)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("transfer: reading session file: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt session file, deleting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove corrupt session file", slog.String("error", rmErr.Error()))
		}

		return nil, fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}

	return &rec, nil
}

// Save writes rec for the pair, replacing any previous record.
func (s *SessionStore) Save(localPath, remotePath string, rec *SessionRecord) error {
	if err := os.MkdirAll(s.dir, sessionDirPerms); err != nil {
		return fmt.Errorf("transfer: creating session dir: %w", err)
	}

	rec.LocalPath = localPath
	rec.RemotePath = remotePath
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("transfer: encoding session record: %w", err)
	}

	path := s.filePath(localPath, remotePath)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, sessionFilePerms); err != nil {
		return fmt.Errorf("transfer: writing session file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("transfer: renaming session file: %w", err)
	}

	s.cleanIfDue()

	return nil
}

// Delete removes the record for the pair. A missing record is not an error.
func (s *SessionStore) Delete(localPath, remotePath string) error {
	if err := os.Remove(s.filePath(localPath, remotePath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("transfer: deleting session file: %w", err)
	}

	return nil
}

// CleanStale removes records not updated within maxAge and returns how many
// were deleted.
func (s *SessionStore) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("transfer: reading session dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to clean stale session",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		deleted++
	}

	return deleted, nil
}

// cleanIfDue runs CleanStale at most once per cleanThrottle.
func (s *SessionStore) cleanIfDue() {
	s.cleanMu.Lock()
	if time.Since(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = time.Now()
	s.cleanMu.Unlock()

	n, err := s.CleanStale(StaleSessionAge)
	if err != nil {
		s.logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int("count", n))
	}
}

// sessionKey hashes the pair into a file name. The local path is length
// prefixed so ("a:", "b") and ("a", ":b") cannot collide.
func sessionKey(localPath, remotePath string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%d:%s:%s", len(localPath), localPath, remotePath))
	return fmt.Sprintf("%x.json", h)
}

func (s *SessionStore) filePath(localPath, remotePath string) string {
	return filepath.Join(s.dir, sessionKey(localPath, remotePath))
}
