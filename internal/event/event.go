// Package event renders single Splunk events from raw text or ordered field/value pairs.
package event

import (
	"strings"
	"time"
)

// TimestampLayout is the layout of the timestamp that prefixes every formatted event.
const TimestampLayout = "2006-01-02T15:04:05.000-0700"

// DefaultDelimiter separates field="value" pairs when no delimiter is supplied.
const DefaultDelimiter = "|"

// Field is a single name/value pair of an event.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered set of fields. Rendering preserves slice order.
type Fields []Field

// Format renders ts followed by each field as name="value", every element
// preceded by delim. Values are written verbatim: an embedded double quote is
// not escaped.
func Format(delim string, ts time.Time, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(ts.Format(TimestampLayout))
	for _, f := range fields {
		writeField(&sb, delim, f)
	}
	return sb.String()
}

func writeField(sb *strings.Builder, delim string, f Field) {
	sb.WriteString(delim)
	sb.WriteString(f.Name)
	sb.WriteString(`="`)
	sb.WriteString(f.Value)
	sb.WriteByte('"')
}

// Builder accumulates fields onto a timestamp captured when the builder was created.
type Builder struct {
	delim string
	sb    strings.Builder
}

// NewBuilder starts an event stamped with the current local time.
func NewBuilder(delim string) *Builder {
	return newBuilderAt(delim, time.Now())
}

func newBuilderAt(delim string, ts time.Time) *Builder {
	b := &Builder{delim: delim}
	b.sb.WriteString(ts.Format(TimestampLayout))
	return b
}

// Add appends a single field.
func (b *Builder) Add(name, value string) *Builder {
	writeField(&b.sb, b.delim, Field{Name: name, Value: value})
	return b
}

// AddFields appends fields in order.
func (b *Builder) AddFields(fields Fields) *Builder {
	for _, f := range fields {
		writeField(&b.sb, b.delim, f)
	}
	return b
}

// String returns the event built so far.
func (b *Builder) String() string {
	return b.sb.String()
}

// Join newline-terminates every event so the result can be sent as one request body.
func Join(events []string) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseField splits "name=value" at the first '='. ok is false when no '=' is present
// or the name is empty.
func ParseField(s string) (f Field, ok bool) {
	name, value, found := strings.Cut(s, "=")
	if !found || name == "" {
		return Field{}, false
	}
	return Field{Name: name, Value: value}, true
}
