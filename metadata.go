package httpstream

import (
	"go.uber.org/zap/zapcore"
)

// Metadata is what has been learned about the resource from response headers.
type Metadata struct {
	// Seekable is set once a server announced Accept-Ranges.
	Seekable bool
	// TotalSize is the absolute size of the resource, or -1 when unknown.
	TotalSize int64
	// MIMEType is the last seen Content-Type.
	MIMEType string
	// Title is the station or stream name from Icy-Name and friends.
	Title string
}

func newMetadata() Metadata {
	return Metadata{TotalSize: -1}
}

func (m Metadata) HasSize() bool {
	return m.TotalSize >= 0
}

func (m Metadata) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("Seekable", m.Seekable)
	enc.AddInt64("TotalSize", m.TotalSize)
	enc.AddString("MIMEType", m.MIMEType)
	enc.AddString("Title", m.Title)
	return nil
}
