package env

import (
	"go.uber.org/zap/zapcore"
)

// EventKind enumerates what a Transfer can report on Poll.
type EventKind int

const (
	// WouldBlock means no progress can be made until the socket is ready.
	WouldBlock EventKind = iota
	// HeaderLine carries one response header.
	HeaderLine
	// BodyChunk carries a non-empty block of the response body.
	BodyChunk
	// Done means the response body is complete.
	Done
	// Failed means the transfer broke down; Message says why.
	Failed
)

func (k EventKind) String() string {
	switch k {
	case WouldBlock:
		return "would-block"
	case HeaderLine:
		return "header"
	case BodyChunk:
		return "body"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow.
func (k EventKind) Terminal() bool {
	return k == Done || k == Failed
}

// Event is a single unit of progress of a Transfer.
type Event struct {
	Kind EventKind

	// Name and Value are set for HeaderLine.
	Name  string
	Value string

	// Data is set for BodyChunk.  The receiver owns it.
	Data []byte

	// Message is set for Failed.
	Message string
}

func (e *Event) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("Kind", e.Kind.String())
	switch e.Kind {
	case HeaderLine:
		enc.AddString("Name", e.Name)
		enc.AddString("Value", e.Value)
	case BodyChunk:
		enc.AddInt("Size", len(e.Data))
	case Failed:
		enc.AddString("Message", e.Message)
	}
	return nil
}

func HeaderEvent(name, value string) Event {
	return Event{Kind: HeaderLine, Name: name, Value: value}
}

func BodyEvent(data []byte) Event {
	return Event{Kind: BodyChunk, Data: data}
}

func FailedEvent(message string) Event {
	return Event{Kind: Failed, Message: message}
}
