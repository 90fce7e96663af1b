// Package writer exports event logs as XES documents or Parquet files.
package writer

import (
	"context"
	"io"
	"strings"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// LogWriter serializes a complete log to an output stream.
type LogWriter interface {
	WriteLog(ctx context.Context, w io.Writer, log *model.Log) error

	// Extension is the file extension of the format, including the dot.
	Extension() string
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of events per Arrow record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}

// New returns the writer for a format name ("xes" or "parquet").
func New(format string, cfg Config) (LogWriter, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "xes":
		return NewXESWriter(), nil
	case "parquet", "pq":
		return NewParquetWriter(cfg), nil
	default:
		return nil, serrors.New(serrors.CodeWriteFailed, "unsupported output format").
			WithContext("format", format)
	}
}
