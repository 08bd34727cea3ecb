package httpstream

// rewindCache keeps fully consumed chunks from the very beginning of the resource,
// so a seek back to offset 0 can be served from memory.
//
// The cache is only useful as a contiguous prefix: once it grows past limit
// everything is dropped and tracking stops until the next transfer from offset 0.
type rewindCache struct {
	chunks []*chunk
	size   int64
	limit  int64

	// tracking is true while every byte consumed so far since offset 0 is either
	// in chunks or in the consumed part of the queue's front chunk.
	tracking bool
}

func newRewindCache(limit int64, tracking bool) *rewindCache {
	return &rewindCache{limit: limit, tracking: tracking && limit > 0}
}

// retain takes ownership of a drained chunk.  It reports whether the chunk was kept.
func (r *rewindCache) retain(c *chunk) bool {
	if !r.tracking {
		return false
	}

	r.chunks = append(r.chunks, c)
	r.size += int64(c.size())
	if r.size > r.limit {
		r.clear()
		r.tracking = false
		return false
	}
	return true
}

// advance drops the window once offset, the number of bytes consumed since offset 0,
// is past the limit.  Bytes still sitting in the front chunk count as well.
func (r *rewindCache) advance(offset int64) {
	if r.tracking && offset > r.limit {
		r.clear()
		r.tracking = false
	}
}

func (r *rewindCache) empty() bool {
	return len(r.chunks) == 0
}

// canReplay reports whether offset 0 can be reached without a new request.
func (r *rewindCache) canReplay(q *bufferQueue, offset, transferStart int64) bool {
	if offset > r.limit {
		return false
	}
	if !r.empty() {
		return true
	}
	if transferStart != 0 {
		return false
	}
	front := q.front()
	return front != nil && int64(front.consumed) == offset
}

// replay resets all cursors and moves the retained chunks back in front of q.
// It returns the number of bytes that were rewound.
func (r *rewindCache) replay(q *bufferQueue) int64 {
	var rewound int64
	for _, c := range r.chunks {
		rewound += int64(c.consumed)
		c.reset()
	}
	if front := q.front(); front != nil {
		rewound += int64(front.consumed)
		front.reset()
	}

	q.prepend(r.chunks)
	r.chunks = nil
	r.size = 0
	r.tracking = r.limit > 0
	return rewound
}

func (r *rewindCache) clear() {
	for i := range r.chunks {
		r.chunks[i] = nil
	}
	r.chunks = nil
	r.size = 0
}

// restart forgets everything and starts tracking only if the next transfer begins at offset 0.
func (r *rewindCache) restart(fromStart bool) {
	r.clear()
	r.tracking = fromStart && r.limit > 0
}
