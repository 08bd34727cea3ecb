package httpstream

// chunk is one block of the response body as it was received from the transfer engine.
// The payload is never modified after construction, only the cursor moves.
type chunk struct {
	payload []byte
	// consumed is how much of payload has been handed out to the reader.
	consumed int
}

func newChunk(payload []byte) *chunk {
	if len(payload) == 0 {
		return nil
	}
	return &chunk{payload: payload}
}

func (c *chunk) size() int {
	return len(c.payload)
}

func (c *chunk) remaining() int {
	return len(c.payload) - c.consumed
}

func (c *chunk) done() bool {
	return c.consumed == len(c.payload)
}

// read copies from the cursor into p and advances the cursor.
// It never goes past the end of this chunk.
func (c *chunk) read(p []byte) int {
	n := copy(p, c.payload[c.consumed:])
	c.consumed += n
	return n
}

// skip advances the cursor by at most n bytes and returns how far it moved.
func (c *chunk) skip(n int64) int {
	if rem := int64(c.remaining()); n > rem {
		n = rem
	}
	c.consumed += int(n)
	return int(n)
}

func (c *chunk) reset() {
	c.consumed = 0
}
