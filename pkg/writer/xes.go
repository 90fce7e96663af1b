package writer

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"sort"
	"time"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
)

// XESTimeLayout is the timestamp layout used for time:timestamp values
// that fall on a whole millisecond. Finer timestamps get microsecond or
// nanosecond fractions so that distinct instants stay distinct.
const XESTimeLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	xesTimeLayoutMicro = "2006-01-02T15:04:05.000000Z07:00"
	xesTimeLayoutNano  = "2006-01-02T15:04:05.000000000Z07:00"
)

// FormatXESTime renders nanoseconds since epoch with the shortest of
// millisecond, microsecond or nanosecond precision that is exact.
func FormatXESTime(ns int64) string {
	t := time.Unix(0, ns).UTC()
	switch {
	case ns%int64(time.Millisecond) == 0:
		return t.Format(XESTimeLayout)
	case ns%int64(time.Microsecond) == 0:
		return t.Format(xesTimeLayoutMicro)
	default:
		return t.Format(xesTimeLayoutNano)
	}
}

const xesHeader = `<?xml version="1.0" encoding="UTF-8" ?>
<log xes.version="1.0" xes.features="nested-attributes" xmlns="http://www.xes-standard.org/">
	<extension name="Lifecycle" prefix="lifecycle" uri="http://www.xes-standard.org/lifecycle.xesext"/>
	<extension name="Organizational" prefix="org" uri="http://www.xes-standard.org/org.xesext"/>
	<extension name="Time" prefix="time" uri="http://www.xes-standard.org/time.xesext"/>
	<extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
	<global scope="trace">
		<string key="concept:name" value="__INVALID__"/>
	</global>
	<global scope="event">
		<string key="concept:name" value="__INVALID__"/>
		<date key="time:timestamp" value="1970-01-01T00:00:00.000+00:00"/>
	</global>
	<classifier name="Activity" keys="concept:name"/>
`

// XESWriter writes XES 1.0 documents. Trace attributes are written with
// concept:name first and the rest sorted by key.
type XESWriter struct{}

// NewXESWriter creates a new XES writer.
func NewXESWriter() *XESWriter {
	return &XESWriter{}
}

// Extension implements LogWriter.
func (w *XESWriter) Extension() string { return ".xes" }

// WriteLog implements LogWriter.
func (w *XESWriter) WriteLog(ctx context.Context, out io.Writer, log *model.Log) error {
	bw := bufio.NewWriterSize(out, 64*1024)
	x := &xesEncoder{w: bw}

	x.raw(xesHeader)
	if log.Name != "" {
		x.attr(1, "string", model.KeyConceptName, log.Name)
	}

	for _, tr := range log.Traces {
		select {
		case <-ctx.Done():
			return serrors.ContextCanceled("write xes")
		default:
		}

		x.raw("\t<trace>\n")
		name, ok := tr.Attributes[model.KeyConceptName]
		if !ok {
			name = tr.CaseID
		}
		x.attr(2, "string", model.KeyConceptName, name)
		for _, k := range sortedKeys(tr.Attributes) {
			if k != model.KeyConceptName {
				x.attr(2, "string", k, tr.Attributes[k])
			}
		}

		for _, e := range tr.Events {
			x.raw("\t\t<event>\n")
			x.attr(3, "string", model.KeyConceptName, string(e.Activity))
			if len(e.Resource) > 0 {
				x.attr(3, "string", model.KeyResource, string(e.Resource))
			}
			x.attr(3, "date", model.KeyTimestamp, FormatXESTime(e.Timestamp))
			for _, a := range e.Attributes {
				x.attr(3, a.Type.XESTag(), string(a.Key), string(a.Value))
			}
			x.raw("\t\t</event>\n")
		}
		x.raw("\t</trace>\n")
	}
	x.raw("</log>\n")

	if x.err != nil {
		return serrors.Wrap(x.err, serrors.CodeWriteFailed, "write xes")
	}
	if err := bw.Flush(); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "flush xes")
	}
	return nil
}

// xesEncoder remembers the first write error so the document can be
// emitted without checking every call.
type xesEncoder struct {
	w   *bufio.Writer
	err error
}

func (x *xesEncoder) raw(s string) {
	if x.err == nil {
		_, x.err = x.w.WriteString(s)
	}
}

func (x *xesEncoder) escaped(s string) {
	if x.err == nil {
		x.err = xml.EscapeText(x.w, []byte(s))
	}
}

func (x *xesEncoder) attr(depth int, tag, key, value string) {
	for i := 0; i < depth; i++ {
		x.raw("\t")
	}
	x.raw("<" + tag + ` key="`)
	x.escaped(key)
	x.raw(`" value="`)
	x.escaped(value)
	x.raw("\"/>\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
