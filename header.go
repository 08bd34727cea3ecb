package httpstream

import (
	"strconv"
	"strings"
)

const (
	// Longer header names can't be anything we are interested in.
	maxHeaderNameLen = 64
	// Values past this are dropped instead of being stored.
	maxHeaderValueLen = 1024
	// Content-Length values never need more than this.
	maxContentLengthLen = 64
)

// headerState is per transfer bookkeeping of the header interpreter.
type headerState struct {
	titleSet bool
}

// interpretHeader applies one response header to meta.
//
// start is the offset the current request started at: a ranged response
// announces only the length of the remainder, the absolute size is start plus that.
// It reports whether the header had any effect.
func interpretHeader(meta *Metadata, st *headerState, name, value string, start int64) bool {
	name = strings.TrimSpace(name)
	if name == "" || len(name) >= maxHeaderNameLen {
		return false
	}
	value = strings.TrimSpace(value)
	if len(value) > maxHeaderValueLen {
		return false
	}

	switch strings.ToLower(name) {
	case "accept-ranges":
		meta.Seekable = true
	case "content-length":
		if len(value) > maxContentLengthLen {
			return false
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return false
		}
		meta.TotalSize = start + n
	case "content-type":
		meta.MIMEType = value
	case "icy-name", "ice-name", "x-audiocast-name":
		if st.titleSet {
			return false
		}
		st.titleSet = true
		meta.Title = value
	default:
		return false
	}
	return true
}
