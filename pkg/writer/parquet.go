package writer

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// ParquetWriter writes logs as flat event tables using Apache Arrow.
type ParquetWriter struct {
	cfg       Config
	allocator memory.Allocator
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(cfg Config) *ParquetWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &ParquetWriter{cfg: cfg, allocator: memory.NewGoAllocator()}
}

// EventSchema returns the Arrow schema for exported events.
func EventSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "case_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "activity", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "resource", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// Extension implements LogWriter.
func (w *ParquetWriter) Extension() string { return ".parquet" }

func (w *ParquetWriter) codec() compress.Compression {
	switch w.cfg.Compression {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// WriteLog implements LogWriter. Events are written in trace order, one
// record batch per BatchSize events.
func (w *ParquetWriter) WriteLog(ctx context.Context, out io.Writer, log *model.Log) error {
	schema := EventSchema()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.codec()),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024),
	)
	fw, err := pqarrow.NewFileWriter(schema, out, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "create parquet writer")
	}

	b := newEventBuilders(w.allocator, w.cfg.BatchSize)
	defer b.release()

	for _, tr := range log.Traces {
		select {
		case <-ctx.Done():
			fw.Close()
			return serrors.ContextCanceled("write parquet")
		default:
		}
		for _, e := range tr.Events {
			b.append(e)
			if b.rows >= w.cfg.BatchSize {
				if err := b.flush(fw, schema); err != nil {
					fw.Close()
					return err
				}
			}
		}
	}
	if err := b.flush(fw, schema); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "close parquet writer")
	}
	return nil
}

// eventBuilders holds one Arrow builder per column.
type eventBuilders struct {
	caseID    *array.StringBuilder
	activity  *array.StringBuilder
	timestamp *array.Int64Builder
	resource  *array.StringBuilder
	rows      int
}

func newEventBuilders(mem memory.Allocator, capacity int) *eventBuilders {
	b := &eventBuilders{
		caseID:    array.NewStringBuilder(mem),
		activity:  array.NewStringBuilder(mem),
		timestamp: array.NewInt64Builder(mem),
		resource:  array.NewStringBuilder(mem),
	}
	b.caseID.Reserve(capacity)
	b.activity.Reserve(capacity)
	b.timestamp.Reserve(capacity)
	b.resource.Reserve(capacity)
	return b
}

func (b *eventBuilders) append(e *model.Event) {
	b.caseID.Append(string(e.CaseID))
	b.activity.Append(string(e.Activity))
	b.timestamp.Append(e.Timestamp)
	if len(e.Resource) > 0 {
		b.resource.Append(string(e.Resource))
	} else {
		b.resource.AppendNull()
	}
	b.rows++
}

// flush writes the buffered rows as one record batch.
func (b *eventBuilders) flush(fw *pqarrow.FileWriter, schema *arrow.Schema) error {
	if b.rows == 0 {
		return nil
	}

	cols := []arrow.Array{
		b.caseID.NewArray(),
		b.activity.NewArray(),
		b.timestamp.NewArray(),
		b.resource.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecord(schema, cols, int64(b.rows))
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write record batch")
	}
	b.rows = 0
	return nil
}

func (b *eventBuilders) release() {
	b.caseID.Release()
	b.activity.Release()
	b.timestamp.Release()
	b.resource.Release()
}
