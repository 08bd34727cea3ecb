package httpstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

type sessionState int

const (
	stateOpening sessionState = iota
	stateActive
	stateEOF
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateOpening:
		return "opening"
	case stateActive:
		return "active"
	case stateEOF:
		return "eof"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// session owns one request to the transfer engine and the data it produced that
// has not been read yet.  A reconnect throws the whole session away.
type session struct {
	transfer   env.Transfer
	url        string
	rangeValue string
	// start is the absolute offset of the first body byte of this response.
	start int64

	queue bufferQueue
	state sessionState
	err   error
	hdr   headerState
	// body is set once the first body byte or the end of the transfer was seen,
	// at that point all response headers are in.
	body bool

	logger *zap.Logger
}

func rangeHeader(start int64) string {
	return fmt.Sprintf("bytes=%d-", start)
}

// newSession submits a request for url starting at absolute offset start.
func newSession(ctx context.Context, eng env.Engine, url string, start int64, logger *zap.Logger) (*session, error) {
	s := &session{
		url:    url,
		start:  start,
		state:  stateOpening,
		logger: logger,
	}

	header := make(http.Header)
	if start > 0 {
		s.rangeValue = rangeHeader(start)
		header.Set("Range", s.rangeValue)
	}

	transfer, err := eng.Start(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d: %w", ErrSubmission, url, start, err)
	}
	s.transfer = transfer

	logger.Debug("transfer started", zap.String("url", url), zap.Int64("start", start),
		zap.String("range", s.rangeValue))
	return s, nil
}

// newEOFSession is a session that has already seen the end of the resource,
// used when seeking exactly to the known size: asking a server for an empty
// range only yields "416 Requested Range Not Satisfiable".
func newEOFSession(url string, start int64, logger *zap.Logger) *session {
	return &session{
		url:    url,
		start:  start,
		state:  stateEOF,
		logger: logger,
	}
}

// newFailedSession keeps a submission error around, so that reads after
// a failed reconnect keep reporting it.
func newFailedSession(url string, start int64, err error, logger *zap.Logger) *session {
	return &session{
		url:    url,
		start:  start,
		state:  stateFailed,
		err:    err,
		logger: logger,
	}
}

func (s *session) terminal() bool {
	return s.state == stateEOF || s.state == stateFailed
}

// pump drains engine events until a body chunk was queued, the transfer ended,
// or the engine would block.  It reports whether anything except blocking happened.
func (s *session) pump(meta *Metadata) bool {
	if s.terminal() {
		return true
	}

	for {
		ev := s.transfer.Poll()
		if ev.Kind != env.WouldBlock && s.state == stateOpening {
			s.state = stateActive
		}

		switch ev.Kind {
		case env.WouldBlock:
			return false
		case env.HeaderLine:
			if interpretHeader(meta, &s.hdr, ev.Name, ev.Value, s.start) {
				s.logger.Debug("header applied", zap.Object("event", &ev), zap.Object("metadata", *meta))
			}
		case env.BodyChunk:
			s.body = true
			if len(ev.Data) == 0 {
				continue
			}
			s.queue.append(ev.Data)
			return true
		case env.Done:
			s.state = stateEOF
			s.logger.Debug("transfer done", zap.String("url", s.url), zap.Int64("start", s.start))
			s.release()
			return true
		case env.Failed:
			s.fail(ev.Message)
			return true
		default:
			s.fail(fmt.Sprintf("unexpected event from transfer engine: %s", ev.Kind))
			return true
		}
	}
}

// awaitHeaders blocks until all response headers were applied to meta.
func (s *session) awaitHeaders(ctx context.Context, meta *Metadata, slice time.Duration) error {
	for !s.body && !s.terminal() {
		if s.pump(meta) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.transfer.Wait(slice)
	}
	return nil
}

// fill blocks until there is data in the queue or the transfer ended.
// Waiting happens in slices, so cancellation of ctx is noticed in time.
func (s *session) fill(ctx context.Context, meta *Metadata, slice time.Duration) error {
	for s.queue.empty() && !s.terminal() {
		if s.pump(meta) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.transfer.Wait(slice)
	}
	return nil
}

func (s *session) fail(message string) {
	s.state = stateFailed
	s.err = &TransferError{URL: s.url, Offset: s.start, Message: message}
	s.queue.clear()
	s.logger.Warn("transfer failed", zap.String("url", s.url), zap.Int64("start", s.start),
		zap.String("message", message))
	s.release()
}

// release stops the underlying transfer, keeping whatever was queued.
func (s *session) release() {
	if s.transfer == nil {
		return
	}
	if err := s.transfer.Stop(); err != nil {
		s.logger.Debug("failed to stop transfer", zap.String("url", s.url), zap.Error(err))
	}
	s.transfer = nil
}

// close stops the transfer and drops all queued data.
func (s *session) close() (err error) {
	if s.transfer != nil {
		err = s.transfer.Stop()
		s.transfer = nil
	}
	s.queue.clear()
	return
}
