package parser

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"
	"strconv"
	"time"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// XES attribute keys (as byte slices for zero-alloc comparison)
var (
	xesConceptName = []byte(model.KeyConceptName)
	xesTimeStamp   = []byte(model.KeyTimestamp)
	xesOrgResource = []byte(model.KeyResource)
)

// XML element names
var (
	xmlLog    = []byte("log")
	xmlTrace  = []byte("trace")
	xmlEvent  = []byte("event")
	xmlGlobal = []byte("global")
	xmlString = []byte("string")
	xmlDate   = []byte("date")
	xmlInt    = []byte("int")
	xmlFloat  = []byte("float")
	xmlBool   = []byte("boolean")
	xmlID     = []byte("id")
)

var timestampLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

type xesState uint8

const (
	stateInit xesState = iota
	stateLog
	stateGlobal
	stateTrace
	stateEvent
)

// XESParser implements streaming XES parsing using a state machine over
// tag-sized chunks of input.
//
// Trace-level attributes other than concept:name are copied onto every
// event of the trace with the case: prefix; model.GroupEvents lifts them
// back to the trace. A trace without concept:name gets its 1-based
// position as case ID.
type XESParser struct {
	cfg Config
}

// NewXESParser creates a new XES parser.
func NewXESParser(cfg Config) *XESParser {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &XESParser{cfg: cfg}
}

// Parse implements the Parser interface.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	state := stateInit
	var (
		offset     int
		traces     int
		caseID     []byte
		traceAttrs []model.Attribute
		pending    []*model.Event
		current    *model.Event
	)

	// Events are held until </trace> so that trace attributes declared
	// after the first event still reach every event.
	flush := func() error {
		if caseID == nil {
			caseID = []byte(strconv.Itoa(traces))
		}
		for _, e := range pending {
			e.CaseID = append(e.CaseID[:0], caseID...)
			e.Attributes = append(e.Attributes, traceAttrs...)
			select {
			case out <- e:
			case <-ctx.Done():
				return serrors.ContextCanceled("parse xes")
			}
		}
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return serrors.ContextCanceled("parse xes")
		default:
		}

		chunk, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			return serrors.Wrap(err, serrors.CodeParseFailed, "read xes")
		}
		offset += len(chunk)
		if len(chunk) == 0 && err == io.EOF {
			break
		}

		line := bytes.TrimSpace(chunk)
		if i := bytes.IndexByte(line, '<'); i > 0 {
			line = line[i:]
		}

		switch {
		case len(line) == 0 || line[0] != '<':

		case isOpenTag(line, xmlLog):
			state = stateLog

		case state == stateLog && isOpenTag(line, xmlGlobal) && !isSelfClosing(line):
			state = stateGlobal

		case state == stateGlobal:
			if isCloseTag(line, xmlGlobal) {
				state = stateLog
			}

		case isOpenTag(line, xmlTrace):
			if state != stateLog {
				return serrors.ParseError("xes", offset, ErrInvalidXES).WithContext("element", "trace")
			}
			traces++
			caseID = nil
			traceAttrs = nil
			if !isSelfClosing(line) {
				state = stateTrace
			}

		case isCloseTag(line, xmlTrace):
			if err := flush(); err != nil {
				return err
			}
			state = stateLog

		case isOpenTag(line, xmlEvent):
			if state != stateTrace {
				return serrors.ParseError("xes", offset, ErrInvalidXES).WithContext("element", "event")
			}
			if !isSelfClosing(line) {
				state = stateEvent
				current = &model.Event{}
			}

		case isCloseTag(line, xmlEvent):
			if current != nil {
				pending = append(pending, current)
				current = nil
			}
			state = stateTrace

		case state == stateTrace && isAttributeTag(line):
			key, value := extractAttribute(line)
			if key == nil {
				continue
			}
			if bytes.Equal(key, xesConceptName) {
				caseID = value
				continue
			}
			traceAttrs = append(traceAttrs, model.Attribute{
				Key:   append([]byte(model.CaseAttrPrefix), key...),
				Value: value,
				Type:  detectAttributeType(line),
			})

		case state == stateEvent && isAttributeTag(line):
			processEventAttribute(line, current)
		}

		if err == io.EOF {
			break
		}
	}

	if state == stateTrace || state == stateEvent {
		return serrors.ParseError("xes", offset, ErrInvalidXES).WithContext("reason", "unterminated trace")
	}
	return nil
}

// isOpenTag checks if line is an opening tag for the given element.
func isOpenTag(line, element []byte) bool {
	if len(line) < len(element)+2 || line[0] != '<' {
		return false
	}
	if !bytes.HasPrefix(line[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(line) {
		return true
	}
	c := line[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}

// isCloseTag checks for </element> or a self-closing <element ... />.
func isCloseTag(line, element []byte) bool {
	if len(line) < len(element)+3 {
		return false
	}
	if line[0] == '<' && line[1] == '/' {
		return bytes.HasPrefix(line[2:], element)
	}
	return isOpenTag(line, element) && isSelfClosing(line)
}

func isSelfClosing(line []byte) bool {
	return bytes.HasSuffix(line, []byte("/>"))
}

// isAttributeTag checks if line opens an XES attribute element.
func isAttributeTag(line []byte) bool {
	return isOpenTag(line, xmlString) ||
		isOpenTag(line, xmlDate) ||
		isOpenTag(line, xmlInt) ||
		isOpenTag(line, xmlFloat) ||
		isOpenTag(line, xmlBool) ||
		isOpenTag(line, xmlID)
}

// extractAttribute returns the unescaped key and value of an attribute
// element. The returned slices are owned by the caller.
func extractAttribute(line []byte) (key, value []byte) {
	key = extractAttrValue(line, []byte(`key="`))
	value = extractAttrValue(line, []byte(`value="`))
	return key, value
}

func extractAttrValue(line, prefix []byte) []byte {
	idx := bytes.Index(line, prefix)
	if idx < 0 || (idx > 0 && line[idx-1] != ' ' && line[idx-1] != '\t' && line[idx-1] != '\n') {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(line[start:], '"')
	if end < 0 {
		return nil
	}
	raw := line[start : start+end]
	if bytes.IndexByte(raw, '&') < 0 {
		return append([]byte(nil), raw...)
	}
	return []byte(html.UnescapeString(string(raw)))
}

func processEventAttribute(line []byte, event *model.Event) {
	key, value := extractAttribute(line)
	if key == nil || value == nil || event == nil {
		return
	}

	switch {
	case bytes.Equal(key, xesConceptName):
		event.Activity = value

	case bytes.Equal(key, xesTimeStamp):
		if ts, err := parseXESTimestamp(value); err == nil {
			event.Timestamp = ts
		}

	case bytes.Equal(key, xesOrgResource):
		event.Resource = value

	default:
		event.Attributes = append(event.Attributes, model.Attribute{
			Key:   key,
			Value: value,
			Type:  detectAttributeType(line),
		})
	}
}

func detectAttributeType(line []byte) model.AttrType {
	switch {
	case isOpenTag(line, xmlDate):
		return model.AttrTypeTimestamp
	case isOpenTag(line, xmlInt):
		return model.AttrTypeInt
	case isOpenTag(line, xmlFloat):
		return model.AttrTypeFloat
	case isOpenTag(line, xmlBool):
		return model.AttrTypeBool
	default:
		return model.AttrTypeString
	}
}

// parseXESTimestamp parses an XES date to nanoseconds since epoch.
func parseXESTimestamp(ts []byte) (int64, error) {
	s := string(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, ErrInvalidTimestamp
}
