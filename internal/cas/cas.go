// Package cas caches generated rustdoc JSON on disk, zstd compressed and
// addressed by a fingerprint of everything that went into producing it.
package cas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jcdickinson/insertdocs/internal/config"
	"github.com/jcdickinson/insertdocs/internal/fsutil"
	"github.com/klauspost/compress/zstd"
)

// Store is a directory of cached documents.
type Store struct {
	dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Default returns the store in the user cache directory.
func Default() *Store {
	return New(config.CacheDir())
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// path returns the sharded file path for a key: <dir>/<first2>/<rest>.json.zst
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key[:2], key[2:]+".json.zst")
}

// Key hashes the parts into a store key. Parts are length-prefixed so
// ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// HashFiles fingerprints file paths and contents. Order does not matter.
func HashFiles(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", p, err)
		}
		fmt.Fprintf(h, "%s\x00", p)
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", p, err)
		}
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Put stores data under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if len(key) < 3 {
		return fmt.Errorf("invalid cache key %q", key)
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("compressing cache entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing zstd writer: %w", err)
	}

	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := fsutil.WriteAtomic(ctx, p, buf.Bytes()); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Get returns the data stored under key. A missing entry is reported with
// ok == false and no error.
func (s *Store) Get(key string) (data []byte, ok bool, err error) {
	if len(key) < 3 {
		return nil, false, fmt.Errorf("invalid cache key %q", key)
	}

	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err = io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("decompressing cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Clear removes every entry and reports how many were removed.
func (s *Store) Clear() (int, error) {
	entries, err := filepath.Glob(filepath.Join(s.dir, "*", "*.json.zst"))
	if err != nil {
		return 0, fmt.Errorf("listing cache: %w", err)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return 0, fmt.Errorf("removing cache: %w", err)
	}
	return len(entries), nil
}
