package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

var errStopped = errors.New("transfer stopped")

// transfer is the reader side of a running request.  Poll, Wait and Stop
// must not be called concurrently with each other.
type transfer struct {
	cancel context.CancelFunc
	events chan env.Event
	// done is closed once the request goroutine has returned.
	done chan struct{}

	// pending is an event Wait took off the channel, but Poll has not returned yet.
	pending *env.Event
	last    env.Event
	ended   bool

	closeErr error
	stopOnce sync.Once
	stopErr  error
}

var _ env.Transfer = (*transfer)(nil)

func newTransfer(cancel context.CancelFunc, backlog int) *transfer {
	return &transfer{
		cancel: cancel,
		events: make(chan env.Event, backlog),
		done:   make(chan struct{}),
	}
}

func (t *transfer) Poll() env.Event {
	if t.pending != nil {
		ev := *t.pending
		t.pending = nil
		return t.observe(ev)
	}
	if t.ended {
		return t.last
	}

	select {
	case ev, ok := <-t.events:
		if !ok {
			ev = env.FailedEvent(errStopped.Error())
		}
		return t.observe(ev)
	default:
		return env.Event{Kind: env.WouldBlock}
	}
}

func (t *transfer) Wait(timeout time.Duration) bool {
	if t.pending != nil || t.ended {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-t.events:
		if !ok {
			ev = env.FailedEvent(errStopped.Error())
		}
		t.pending = &ev
		return true
	case <-timer.C:
		return false
	}
}

func (t *transfer) observe(ev env.Event) env.Event {
	if ev.Kind.Terminal() {
		t.ended = true
		t.last = ev
	}
	return ev
}

func (t *transfer) Stop() error {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
		t.stopErr = t.closeErr
		t.pending = nil
	})
	return t.stopErr
}

// send blocks until the reader has room for ev or the transfer is stopped.
func (t *transfer) send(ctx context.Context, ev env.Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) run(ctx context.Context, t *transfer, req *http.Request, logger *zap.Logger) {
	defer close(t.done)
	defer close(t.events)

	url := req.URL.String()
	fail := func(message string) {
		e.stats.failed.Inc()
		logger.Debug("transfer failed", zap.String("url", url), zap.String("message", message))
		t.send(ctx, env.FailedEvent(message))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			fail(err.Error())
		}
		return
	}
	defer func() {
		t.closeErr = multierr.Append(t.closeErr, resp.Body.Close())
	}()

	if message := checkStatus(resp, req.Header.Get("Range") != ""); message != "" {
		fail(message)
		return
	}

	for _, ev := range headerEvents(resp) {
		if !t.send(ctx, ev) {
			return
		}
	}

	for {
		buf := make([]byte, e.cfg.ChunkSize)
		n, err := resp.Body.Read(buf)
		if n > 0 {
			e.stats.received.Add(int64(n))
			if !t.send(ctx, env.BodyEvent(buf[:n])) {
				return
			}
		}
		if errors.Is(err, io.EOF) {
			logger.Debug("transfer done", zap.String("url", url), zap.Int("status", resp.StatusCode))
			t.send(ctx, env.Event{Kind: env.Done})
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				fail(err.Error())
			}
			return
		}
	}
}

// checkStatus returns a non-empty message when the response must not be delivered.
func checkStatus(resp *http.Response, ranged bool) string {
	switch {
	case resp.StatusCode >= 400:
		return "server returned " + resp.Status
	case ranged && resp.StatusCode != http.StatusPartialContent:
		// The body would start at offset 0, not at the requested one.
		return "server ignored range request: " + resp.Status
	default:
		return ""
	}
}

// headerEvents turns the response headers into one event per value, sorted by name.
func headerEvents(resp *http.Response) []env.Event {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	events := make([]env.Event, 0, len(names)+1)
	for _, name := range names {
		for _, v := range resp.Header[name] {
			events = append(events, env.HeaderEvent(name, v))
		}
	}
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") == "" {
		events = append(events, env.HeaderEvent("Content-Length", strconv.FormatInt(resp.ContentLength, 10)))
	}
	return events
}
