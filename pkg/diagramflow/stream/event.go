// Package stream implements the progressive generation protocol: tagged
// text events framed as server-sent events.
//
// A frame is "data: [TAG] payload\n\n". Payloads containing line breaks are
// split over several data lines, which SSE readers join back with "\n";
// carriage returns are normalized to "\n" on the way.
package stream

import (
	"fmt"
	"strings"
)

// Tag names an event kind.
type Tag string

// Event tags, in the order a successful stream emits them.
const (
	TagStart      Tag = "START"
	TagCall       Tag = "CALL"
	TagToken      Tag = "TOKEN"
	TagLayoutData Tag = "LAYOUT_DATA"
	TagResult     Tag = "RESULT"
	TagNodeShow   Tag = "NODE_SHOW"
	TagEdgeShow   Tag = "EDGE_SHOW"
	TagEnd        Tag = "END"
	TagError      Tag = "ERROR"
)

// Terminal reports whether no event may follow t.
func (t Tag) Terminal() bool {
	return t == TagEnd || t == TagError
}

// Event is one protocol message.
type Event struct {
	Tag     Tag
	Payload string
}

// String returns the event text without SSE framing.
func (e Event) String() string {
	if e.Payload == "" {
		return "[" + string(e.Tag) + "]"
	}
	return "[" + string(e.Tag) + "] " + e.Payload
}

// lineBreaks maps every SSE line terminator to "\n".
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Frame returns the SSE encoding of e. SSE treats "\r\n", "\r" and "\n" all
// as line ends, so carriage returns in the payload come back as "\n".
func (e Event) Frame() []byte {
	var b strings.Builder
	for _, line := range strings.Split(lineBreaks.Replace(e.String()), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// ParseEvent decodes "[TAG] payload" text.
func ParseEvent(text string) (Event, error) {
	if !strings.HasPrefix(text, "[") {
		return Event{}, fmt.Errorf("event %q: missing tag", truncate(text))
	}
	end := strings.IndexByte(text, ']')
	if end < 2 {
		return Event{}, fmt.Errorf("event %q: malformed tag", truncate(text))
	}
	ev := Event{Tag: Tag(text[1:end])}
	rest := text[end+1:]
	if strings.HasPrefix(rest, " ") {
		rest = rest[1:]
	}
	ev.Payload = rest
	return ev, nil
}

// Convenience constructors for the fixed-format events.

// Start returns a START event.
func Start(msg string) Event { return Event{Tag: TagStart, Payload: msg} }

// Call returns a CALL event.
func Call(msg string) Event { return Event{Tag: TagCall, Payload: msg} }

// Token returns a TOKEN event carrying a raw provider delta.
func Token(delta string) Event { return Event{Tag: TagToken, Payload: delta} }

// Result returns the "nodes=N, edges=M" summary event.
func Result(nodes, edges int) Event {
	return Event{Tag: TagResult, Payload: fmt.Sprintf("nodes=%d, edges=%d", nodes, edges)}
}

// End returns the normal terminator.
func End() Event { return Event{Tag: TagEnd, Payload: "done"} }

// Error returns the failure terminator.
func Error(err error) Event { return Event{Tag: TagError, Payload: err.Error()} }

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
