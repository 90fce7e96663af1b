// Package util provides file helpers shared by importers.
package util

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// OpenFile opens a file, transparently decompressing .gz files.
// The caller must call the cleanup function when done reading.
func OpenFile(path string) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, serrors.FileNotFound(path)
		}
		return nil, nil, serrors.Wrap(err, serrors.CodeParseFailed, "open input").WithContext("path", path)
	}

	if !IsGzipFile(path) {
		return file, file.Close, nil
	}

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, serrors.Wrap(err, serrors.CodeParseFailed, "open gzip stream").WithContext("path", path)
	}
	cleanup := func() error {
		gzReader.Close()
		return file.Close()
	}
	return gzReader, cleanup, nil
}

// IsGzipFile returns true if the file path indicates gzip compression.
func IsGzipFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripCompression removes a .gz extension from a path.
func StripCompression(path string) string {
	if IsGzipFile(path) {
		return path[:len(path)-3]
	}
	return path
}

// BaseFormat extracts the format extension after stripping compression.
// e.g., "log.xes.gz" -> ".xes"
func BaseFormat(path string) string {
	return strings.ToLower(filepath.Ext(StripCompression(path)))
}

// BaseName returns the file name without directory, compression and
// format extensions. e.g., "logs/hospital.xes.gz" -> "hospital"
func BaseName(path string) string {
	base := filepath.Base(StripCompression(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
