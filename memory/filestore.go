package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileMode is applied to every saved value so exported notebooks open in
// other tools without a chmod.
const fileMode = 0o644

type fileStore struct {
	root string
}

// NewFileStore creates a Store rooted at a directory. A key is the slash
// path of its file below root, so notes can be edited by hand and
// notebooks opened directly. Dotfiles are invisible to the store.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) resolve(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func (s *fileStore) List(_ context.Context) ([]string, error) {
	keys := []string{}
	walk := func(path string, d fs.DirEntry, err error) error {
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == s.root:
			return fs.SkipAll
		case err != nil:
			return err
		case path == s.root:
			return nil
		case hidden(d.Name()) && d.IsDir():
			return fs.SkipDir
		case hidden(d.Name()) || d.IsDir():
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	}

	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) Load(_ context.Context, keys ...string) ([]Entry, error) {
	entries := make([]Entry, len(keys))
	for i, key := range keys {
		path, err := s.resolve(key)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		case err != nil:
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
		}
		entries[i] = Entry{Key: key, Value: data}
	}
	return entries, nil
}

func (s *fileStore) Save(_ context.Context, entries ...Entry) error {
	for _, e := range entries {
		path, err := s.resolve(e.Key)
		if err != nil {
			return err
		}
		if err := writeAtomic(path, e.Value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}
	}
	return nil
}

// writeAtomic replaces path through a sibling temp file so a reader never
// sees a partial notebook or transcript.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *fileStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		path, err := s.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		s.prune(filepath.Dir(path))
	}
	return nil
}

// prune removes now-empty directories between dir and the root, so a
// forgotten session leaves no directory behind.
func (s *fileStore) prune(dir string) {
	for {
		rel, err := filepath.Rel(s.root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
