package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// LocalStore keeps artifacts under a directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "create storage directory").
			WithContext("dir", root)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the store directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// URI implements Store.
func (s *LocalStore) URI(key string) string {
	p, err := s.path(key)
	if err != nil {
		return filepath.Join(s.root, key)
	}
	return p
}

// Writer implements Store. Data goes to a temp file renamed on Close.
func (s *LocalStore) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "create directory").WithContext("key", key)
	}
	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "create file").WithContext("key", key)
	}
	return &atomicFile{File: f, target: p}, nil
}

type atomicFile struct {
	*os.File
	target string
}

func (f *atomicFile) Close() error {
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return serrors.Wrap(err, serrors.CodeStorageFailed, "close file").WithContext("path", f.target)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return serrors.Wrap(err, serrors.CodeStorageFailed, "rename file").WithContext("path", f.target)
	}
	return nil
}

// Reader implements Store.
func (s *LocalStore) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.FileNotFound(p)
		}
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "open file").WithContext("key", key)
	}
	return f, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, serrors.Wrap(err, serrors.CodeStorageFailed, "stat file").WithContext("key", key)
}

// List implements Store.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if k := filepath.ToSlash(rel); strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "list directory").WithContext("dir", s.root)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return serrors.Wrap(err, serrors.CodeStorageFailed, "remove file").WithContext("key", key)
	}
	return nil
}
