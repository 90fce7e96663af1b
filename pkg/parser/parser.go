// Package parser imports event logs. The XES reader streams events through
// a channel so large logs can be consumed without buffering the document.
package parser

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/util"
)

// Sentinel causes wrapped into ParseFailed errors.
var (
	ErrUnsupportedFormat = errors.New("no importer for this file type")
	ErrInvalidXES        = errors.New("nesting does not follow log > trace > event")
	ErrInvalidTimestamp  = errors.New("unrecognized time:timestamp layout")
)

// Parser defines the interface for parsing process mining data.
// Implementations must not retain references to the output channel after
// returning.
type Parser interface {
	// Parse reads from r and sends parsed events to out.
	// It should respect context cancellation.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatXES
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatXES:
		return "xes"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string or file extension.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "xes":
		return FormatXES
	default:
		return FormatUnknown
	}
}

// Config holds common parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// ChannelSize is the capacity of the event channel used by ReadLog.
	ChannelSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:  64 * 1024,
		ChannelSize: 1024,
	}
}

// NewParser creates a parser for the given format.
func NewParser(format Format, cfg Config) (Parser, error) {
	switch format {
	case FormatXES:
		return NewXESParser(cfg), nil
	default:
		return nil, serrors.Wrap(ErrUnsupportedFormat, serrors.CodeParseFailed, "no parser for input").
			WithContext("format", format.String())
	}
}

// ReadLog parses r completely and groups the events into traces.
func ReadLog(ctx context.Context, p Parser, name string, r io.Reader, cfg Config) (*model.Log, error) {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = DefaultConfig().ChannelSize
	}
	out := make(chan *model.Event, cfg.ChannelSize)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		errc <- p.Parse(ctx, r, out)
	}()

	var events []*model.Event
	for e := range out {
		events = append(events, e)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return model.GroupEvents(name, events), nil
}

// ReadFile opens path, picks a parser from its extension and reads the log.
// Gzip-compressed files (.xes.gz) are decompressed on the fly. The log is
// named after the file without extensions.
func ReadFile(ctx context.Context, path string, cfg Config) (*model.Log, error) {
	p, err := NewParser(ParseFormat(util.BaseFormat(path)), cfg)
	if err != nil {
		return nil, err
	}

	r, cleanup, err := util.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log, err := ReadLog(ctx, p, util.BaseName(path), r, cfg)
	if err != nil {
		if se, ok := err.(*serrors.SimlogError); ok {
			return nil, se.WithContext("path", path)
		}
		return nil, serrors.Wrapf(err, serrors.CodeParseFailed, "parse %s", path)
	}
	return log, nil
}
