// Package storage persists run artifacts in a local directory or an S3
// bucket. Keys are slash-separated and relative to the store root.
package storage

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Store reads and writes artifacts by key.
type Store interface {
	// Writer returns a writer for key. The object becomes visible when the
	// writer is closed.
	Writer(ctx context.Context, key string) (io.WriteCloser, error)

	// Reader opens key for reading.
	Reader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URI returns a human-readable location for key.
	URI(key string) string
}

// Config selects and configures a store backend.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
}

// Open returns the store described by cfg. Backend "local" (the default)
// roots the store at Dir.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local", "file":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, serrors.New(serrors.CodeInvalidConfig, "unsupported storage backend").
			WithContext("backend", cfg.Backend)
	}
}

// Put writes data under key.
func Put(ctx context.Context, s Store, key string, data []byte) error {
	w, err := s.Writer(ctx, key)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return serrors.Wrap(err, serrors.CodeStorageFailed, "write artifact").WithContext("key", key)
	}
	return w.Close()
}

// Get reads the whole object under key.
func Get(ctx context.Context, s Store, key string) ([]byte, error) {
	r, err := s.Reader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, serrors.Wrap(err, serrors.CodeStorageFailed, "read artifact").WithContext("key", key)
	}
	return buf.Bytes(), nil
}

// CleanKey normalizes a key and rejects ones escaping the store root.
func CleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", serrors.New(serrors.CodeStorageFailed, "empty storage key")
	}
	return k, nil
}
