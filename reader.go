package httpstream

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SaveTheRbtz/http-seekable-stream-go/engine"
	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
	"github.com/SaveTheRbtz/http-seekable-stream-go/options"
)

// Reader is a seekable view of a streamed HTTP response.
//
// Reader is not safe for concurrent use.
type Reader interface {
	// Read reads from the current offset, blocking until at least one byte is available,
	// the response ended (io.EOF), or the transfer failed.
	// It may return fewer bytes than requested.
	Read(p []byte) (int, error)

	// Seek moves the offset.  Seeking back to the start is served from memory while
	// the rewind window lasts, seeking forward into received data never touches the network,
	// anything else reconnects with a Range request if the server announced support for it.
	Seek(offset int64, whence int) (int64, error)

	// Close stops the transfer and releases all buffered data.
	Close() error

	// EOF reports whether the response is complete and everything was read.
	EOF() bool

	// Buffer drives the transfer once without blocking.  It reports whether new data was received.
	Buffer() (bool, error)

	// Metadata returns what has been learned from response headers so far.
	Metadata() Metadata

	// Offset is the current absolute offset in the resource.
	Offset() int64
}

var (
	_ io.ReadSeekCloser = (*readerImpl)(nil)
	_ Reader            = (*readerImpl)(nil)
)

type readerImpl struct {
	ctx    context.Context
	url    string
	engine env.Engine
	opts   options.ReaderOptions
	logger *zap.Logger

	session *session
	rewind  *rewindCache
	meta    Metadata

	offset int64
	closed bool
}

// Open starts streaming rawURL.  Only plain http:// URLs are supported.
//
// ctx bounds the lifetime of the whole stream: once it is done, blocked reads
// return its error within one wait slice.
func Open(ctx context.Context, rawURL string, opts ...options.ROption) (Reader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q: only http:// is supported", ErrInvalidURL, rawURL)
	}

	var o options.ReaderOptions
	o.SetDefault()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.Engine == nil {
		o.Engine = engine.New(engine.DefaultConfig(), o.Logger)
	}

	r := &readerImpl{
		ctx:    ctx,
		url:    rawURL,
		engine: o.Engine,
		opts:   o,
		logger: o.Logger,
		rewind: newRewindCache(o.RewindLimit, true),
		meta:   newMetadata(),
	}

	r.session, err = newSession(ctx, r.engine, r.url, 0, r.logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *readerImpl) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	s := r.session
	if s.state == stateFailed {
		return 0, s.err
	}
	if err := s.fill(r.ctx, &r.meta, r.opts.WaitSlice); err != nil {
		return 0, err
	}
	if s.state == stateFailed {
		return 0, s.err
	}
	if s.queue.empty() {
		return 0, io.EOF
	}

	var n int
	for n < len(p) && !s.queue.empty() {
		m, drained := s.queue.consumeFront(p[n:])
		n += m
		r.advance(m, drained)
	}
	return n, nil
}

// advance moves the offset over n consumed bytes and hands a drained chunk
// to the rewind cache, which may drop it.
func (r *readerImpl) advance(n int, drained *chunk) {
	r.offset += int64(n)

	wasTracking := r.rewind.tracking
	if drained != nil {
		r.rewind.retain(drained)
	}
	r.rewind.advance(r.offset)
	if wasTracking && !r.rewind.tracking {
		r.logger.Debug("rewind window exceeded, dropping it",
			zap.Int64("offset", r.offset), zap.Int64("limit", r.rewind.limit))
	}
}

func (r *readerImpl) EOF() bool {
	return r.session.state == stateEOF && r.session.queue.empty()
}

func (r *readerImpl) Buffer() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}

	s := r.session
	s.queue.ready = false
	s.pump(&r.meta)
	if s.state == stateFailed {
		return false, s.err
	}
	return s.queue.ready, nil
}

func (r *readerImpl) Metadata() Metadata {
	return r.meta
}

func (r *readerImpl) Offset() int64 {
	return r.offset
}

func (r *readerImpl) Close() (err error) {
	if r.closed {
		return nil
	}
	r.closed = true

	err = multierr.Append(err, r.session.close())
	r.rewind.restart(false)
	return
}
