package credstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const blobSuffix = ".blob"

// DirStore keeps one file per credential blob under a single directory.
// Writes go through a temp file plus rename so a crash mid-save leaves the
// previous blob intact.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: empty credential dir", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credstore: create dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Load() (Credentials, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read dir: %w", err)
	}
	creds := Credentials{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobSuffix) {
			continue
		}
		key, ok := keyFromFileName(entry.Name())
		if !ok {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("credstore: read blob %q: %w", key, err)
		}
		creds[key] = blob
	}
	return creds, nil
}

// Save writes every blob of the new set first, then removes stale blobs.
// Interrupting the stale sweep can leave extra blobs behind but never a
// partially written one.
func (s *DirStore) Save(creds Credentials) error {
	keep := make(map[string]struct{}, len(creds))
	for key, blob := range creds {
		name := fileName(key)
		keep[name] = struct{}{}
		if err := writeAtomic(filepath.Join(s.dir, name), blob); err != nil {
			return fmt.Errorf("credstore: write blob %q: %w", key, err)
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("credstore: read dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("credstore: remove stale blob: %w", err)
		}
	}
	return nil
}

func (s *DirStore) Invalidate() error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credstore: read dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("credstore: remove blob: %w", err)
		}
	}
	return nil
}

// fileName encodes a blob key into a safe file name. Driver key schemes may
// contain path separators.
func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + blobSuffix
}

func keyFromFileName(name string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, blobSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
