package httpstream

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

func (r *readerImpl) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.session.state == stateFailed {
		return 0, r.session.err
	}

	if whence == io.SeekEnd && !r.meta.HasSize() {
		if err := r.awaitHeaders(); err != nil {
			return 0, err
		}
	}
	target, err := r.target(offset, whence)
	if err != nil {
		return 0, err
	}
	return r.seek(target)
}

// awaitHeaders makes sure the response headers of the current transfer were seen.
func (r *readerImpl) awaitHeaders() error {
	s := r.session
	if s.body || s.terminal() {
		return nil
	}
	if err := s.awaitHeaders(r.ctx, &r.meta, r.opts.WaitSlice); err != nil {
		return err
	}
	if s.state == stateFailed {
		return s.err
	}
	return nil
}

func (r *readerImpl) seek(target int64) (int64, error) {
	switch {
	case target == r.offset:
		return r.offset, nil
	case target == 0 && r.rewind.canReplay(&r.session.queue, r.offset, r.session.start):
		r.replay()
		return r.offset, nil
	case target > r.offset && target-r.offset <= r.session.queue.buffered():
		r.fastForward(target)
		return r.offset, nil
	case !r.meta.Seekable && !r.session.body && !r.session.terminal():
		// range support is unknown until the headers are in, and the data
		// received meanwhile may already cover target
		if err := r.awaitHeaders(); err != nil {
			return 0, err
		}
		return r.seek(target)
	default:
		return r.reconnect(target)
	}
}

// target converts offset and whence into an absolute offset.
func (r *readerImpl) target(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.offset + offset
	case io.SeekEnd:
		if !r.meta.HasSize() {
			return 0, fmt.Errorf("%w: size of %s is unknown", ErrUnseekable, r.url)
		}
		target = r.meta.TotalSize + offset
	default:
		return 0, fmt.Errorf("unknown whence: %d", whence)
	}

	if target < 0 {
		return 0, fmt.Errorf("%w: %d (%d + %d)", ErrInvalidOffset, target, r.offset, offset)
	}
	return target, nil
}

func (r *readerImpl) replay() {
	from := r.offset
	rewound := r.rewind.replay(&r.session.queue)
	r.offset = 0
	r.logger.Debug("rewound from memory", zap.Int64("from", from), zap.Int64("rewound", rewound))
}

// fastForward skips already received data up to target.
// The caller checked that enough is buffered.
func (r *readerImpl) fastForward(target int64) {
	from := r.offset
	q := &r.session.queue
	for r.offset < target && !q.empty() {
		n, drained := q.skipFront(target - r.offset)
		r.advance(n, drained)
	}
	r.logger.Debug("fast-forwarded in memory", zap.Int64("from", from), zap.Int64("to", r.offset))
}

// reconnect drops the current transfer and asks for the resource from target on.
func (r *readerImpl) reconnect(target int64) (int64, error) {
	if !r.meta.Seekable {
		return 0, fmt.Errorf("%w: cannot reach offset %d from %d without a range request",
			ErrUnseekable, target, r.offset)
	}

	if err := r.session.close(); err != nil {
		r.logger.Debug("failed to stop transfer", zap.String("url", r.url), zap.Error(err))
	}
	r.rewind.restart(target == 0)
	from := r.offset
	r.offset = target

	if r.meta.HasSize() && target == r.meta.TotalSize {
		r.session = newEOFSession(r.url, target, r.logger)
		r.logger.Debug("seek to the end, skipping the request", zap.Int64("from", from), zap.Int64("to", target))
		return target, nil
	}

	s, err := newSession(r.ctx, r.engine, r.url, target, r.logger)
	if err != nil {
		r.session = newFailedSession(r.url, target, err, r.logger)
		return 0, err
	}
	r.session = s
	// the engine may refuse the range right away, e.g. past the end
	s.pump(&r.meta)
	if s.state == stateFailed {
		return 0, s.err
	}
	r.logger.Debug("reconnected", zap.Int64("from", from), zap.Int64("to", target))
	return target, nil
}
