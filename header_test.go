package httpstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpretHeader(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name, value string
		start       int64
		applied     bool
		want        Metadata
	}{
		{"Accept-Ranges", "bytes", 0, true, Metadata{Seekable: true, TotalSize: -1}},
		{"accept-ranges", "none", 0, true, Metadata{Seekable: true, TotalSize: -1}},
		{"Content-Length", "12345", 0, true, Metadata{TotalSize: 12345}},
		{"Content-Length", "12345", 1000, true, Metadata{TotalSize: 13345}},
		{"CONTENT-LENGTH", " 42 ", 0, true, Metadata{TotalSize: 42}},
		{"Content-Length", "-1", 0, false, Metadata{TotalSize: -1}},
		{"Content-Length", "lots", 0, false, Metadata{TotalSize: -1}},
		{"Content-Length", strings.Repeat("1", 65), 0, false, Metadata{TotalSize: -1}},
		{"Content-Type", "audio/mpeg", 0, true, Metadata{TotalSize: -1, MIMEType: "audio/mpeg"}},
		{"icy-name", "Radio", 0, true, Metadata{TotalSize: -1, Title: "Radio"}},
		{"Ice-Name", "Radio", 0, true, Metadata{TotalSize: -1, Title: "Radio"}},
		{"x-audiocast-name", "Radio", 0, true, Metadata{TotalSize: -1, Title: "Radio"}},
		{"Content-Type", strings.Repeat("a", 1025), 0, false, Metadata{TotalSize: -1}},
		{strings.Repeat("X", 64), "value", 0, false, Metadata{TotalSize: -1}},
		{"Server", "test", 0, false, Metadata{TotalSize: -1}},
		{"", "value", 0, false, Metadata{TotalSize: -1}},
	} {
		meta := newMetadata()
		var st headerState
		applied := interpretHeader(&meta, &st, tc.name, tc.value, tc.start)
		assert.Equal(t, tc.applied, applied, "%s: %s", tc.name, tc.value)
		assert.Equal(t, tc.want, meta, "%s: %s", tc.name, tc.value)
	}
}

func TestInterpretHeaderTitleOnce(t *testing.T) {
	t.Parallel()

	meta := newMetadata()
	var st headerState
	assert.True(t, interpretHeader(&meta, &st, "icy-name", "First", 0))
	assert.False(t, interpretHeader(&meta, &st, "ice-name", "Second", 0))
	assert.Equal(t, "First", meta.Title)

	// a new transfer may set it again
	st = headerState{}
	assert.True(t, interpretHeader(&meta, &st, "x-audiocast-name", "Third", 0))
	assert.Equal(t, "Third", meta.Title)

	// the last content type wins
	interpretHeader(&meta, &st, "Content-Type", "audio/mpeg", 0)
	interpretHeader(&meta, &st, "Content-Type", "audio/aac", 0)
	assert.Equal(t, "audio/aac", meta.MIMEType)
}
