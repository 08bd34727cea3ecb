package httpstream

// bufferQueue holds chunks which were received but not yet delivered to the reader.
// Every chunk in it has unread bytes left; drained chunks are popped immediately.
type bufferQueue struct {
	chunks []*chunk
	// ready is set whenever a chunk is appended and cleared by whoever waits for it.
	ready bool
}

func (q *bufferQueue) append(payload []byte) {
	c := newChunk(payload)
	if c == nil {
		return
	}
	q.chunks = append(q.chunks, c)
	q.ready = true
}

func (q *bufferQueue) empty() bool {
	return len(q.chunks) == 0
}

func (q *bufferQueue) len() int {
	return len(q.chunks)
}

func (q *bufferQueue) front() *chunk {
	if len(q.chunks) == 0 {
		return nil
	}
	return q.chunks[0]
}

// buffered is the number of bytes that can still be read without touching the network.
func (q *bufferQueue) buffered() int64 {
	var n int64
	for _, c := range q.chunks {
		n += int64(c.remaining())
	}
	return n
}

// consumeFront copies at most up to the end of the front chunk into p.
// If that drains the front chunk it is removed and returned, so the caller
// can decide whether it goes into the rewind cache.
func (q *bufferQueue) consumeFront(p []byte) (int, *chunk) {
	c := q.front()
	if c == nil {
		return 0, nil
	}
	n := c.read(p)
	return n, q.popIfDone()
}

// skipFront is consumeFront without the copy.
func (q *bufferQueue) skipFront(n int64) (int, *chunk) {
	c := q.front()
	if c == nil {
		return 0, nil
	}
	m := c.skip(n)
	return m, q.popIfDone()
}

func (q *bufferQueue) popIfDone() *chunk {
	c := q.chunks[0]
	if !c.done() {
		return nil
	}
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	return c
}

// prepend puts chunks back in front of the queue, keeping their order.
func (q *bufferQueue) prepend(chunks []*chunk) {
	if len(chunks) == 0 {
		return
	}
	merged := make([]*chunk, 0, len(chunks)+len(q.chunks))
	merged = append(merged, chunks...)
	q.chunks = append(merged, q.chunks...)
}

func (q *bufferQueue) clear() {
	q.chunks = nil
	q.ready = false
}
