// Package tokenfile persists the client credential between runs. The file
// holds the access token in oauth2.Token form plus a small string map of
// cached account metadata (owner id, display name, email).
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Metadata keys written alongside the token.
const (
	MetaOwnerID     = "owner_id"
	MetaDisplayName = "display_name"
	MetaEmail       = "email"
)

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Credential rebuilds the client credential from the file.
func (f *File) Credential() dropbox.Credential {
	return dropbox.Credential{
		AccessToken: f.Token.AccessToken,
		TokenType:   f.Token.TokenType,
		OwnerID:     f.Meta[MetaOwnerID],
	}
}

// Load reads a token file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no access token (login required)", path)
	}

	if tf.Token.TokenType == "" {
		tf.Token.TokenType = "bearer"
	}

	return &tf, nil
}

// LoadInto reads path and, if it holds a token, installs it in store.
// Reports whether a credential was loaded.
func LoadInto(path string, store *dropbox.CredentialStore) (bool, error) {
	tf, err := Load(path)
	if err != nil || tf == nil {
		return false, err
	}

	if err := store.Set(tf.Credential()); err != nil {
		return false, fmt.Errorf("tokenfile: %s: %w", path, err)
	}

	return true, nil
}

// SaveCredential writes cred to path, keeping any extra metadata keys.
func SaveCredential(path string, cred dropbox.Credential, meta map[string]string) error {
	merged := make(map[string]string, len(meta)+1)
	maps.Copy(merged, meta)

	if cred.OwnerID != "" {
		merged[MetaOwnerID] = cred.OwnerID
	}

	return Save(path, &File{
		Token: &oauth2.Token{AccessToken: cred.AccessToken, TokenType: cred.TokenType},
		Meta:  merged,
	})
}

// MergeMeta adds keys to the metadata of an existing token file. New keys
// overwrite existing ones.
func MergeMeta(path string, meta map[string]string) error {
	tf, err := Load(path)
	if err != nil {
		return err
	}

	if tf == nil {
		return fmt.Errorf("tokenfile: no token file at %s", path)
	}

	if tf.Meta == nil {
		tf.Meta = make(map[string]string, len(meta))
	}

	maps.Copy(tf.Meta, meta)

	return Save(path, tf)
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// Save writes tf atomically with 0600 permissions. Token values are never
// logged.
func Save(path string, tf *File) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return writeAtomic(path, data)
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// then renames it over path. Same directory keeps rename(2) on one filesystem.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(FilePerms); err != nil {
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	return nil
}
