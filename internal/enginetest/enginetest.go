// Package enginetest provides an in-memory transfer engine serving a fixed resource.
package enginetest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

// Options shapes the simulated responses.
type Options struct {
	// ChunkSize is the size of every body event.  Defaults to 1024.
	ChunkSize int
	// AcceptRanges sends "Accept-Ranges: bytes" and honors Range requests.
	AcceptRanges bool
	// ContentLength sends the length of the (partial) body.
	ContentLength bool
	ContentType   string
	// Title is sent as Icy-Name.
	Title string
	// Headers are sent after the ones above, in order.
	Headers [][2]string
	// Stall is the number of WouldBlock polls before every body event.
	Stall int
	// FailAt makes the transfer fail once the absolute offset reaches it.  Negative disables.
	FailAt int64
	// SubmitErr is returned by Start.
	SubmitErr error
}

// Engine implements env.Engine over a byte slice.
type Engine struct {
	data []byte
	opts Options

	starts atomic.Int64
	active atomic.Int64
	waits  atomic.Int64

	mu     sync.Mutex
	ranges []string
}

var _ env.Engine = (*Engine)(nil)

func New(data []byte, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024
	}
	if opts.FailAt == 0 {
		opts.FailAt = -1
	}
	return &Engine{data: data, opts: opts}
}

// Starts is the number of submitted transfers.
func (e *Engine) Starts() int64 {
	return e.starts.Load()
}

// Active is the number of transfers not stopped yet.
func (e *Engine) Active() int64 {
	return e.active.Load()
}

// Waits is the number of Wait calls over all transfers.
func (e *Engine) Waits() int64 {
	return e.waits.Load()
}

// Ranges returns the Range header of every request so far, empty for none.
func (e *Engine) Ranges() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ranges...)
}

func (e *Engine) Start(ctx context.Context, url string, header http.Header) (env.Transfer, error) {
	if e.opts.SubmitErr != nil {
		return nil, e.opts.SubmitErr
	}

	rng := header.Get("Range")
	start, err := parseRange(rng)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.ranges = append(e.ranges, rng)
	e.mu.Unlock()
	e.starts.Inc()
	e.active.Inc()
	return &transfer{engine: e, events: e.events(start)}, nil
}

func parseRange(rng string) (int64, error) {
	if rng == "" {
		return 0, nil
	}
	v := strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-")
	start, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad range %q: %w", rng, err)
	}
	return start, nil
}

func (e *Engine) events(start int64) []env.Event {
	if start > 0 && !e.opts.AcceptRanges {
		return []env.Event{env.FailedEvent("server ignored range request: 200 OK")}
	}
	if start > int64(len(e.data)) {
		return []env.Event{env.FailedEvent("server returned 416 Requested Range Not Satisfiable")}
	}

	var events []env.Event
	if e.opts.AcceptRanges {
		events = append(events, env.HeaderEvent("Accept-Ranges", "bytes"))
	}
	if e.opts.ContentLength {
		events = append(events, env.HeaderEvent("Content-Length", strconv.FormatInt(int64(len(e.data))-start, 10)))
	}
	if e.opts.ContentType != "" {
		events = append(events, env.HeaderEvent("Content-Type", e.opts.ContentType))
	}
	if e.opts.Title != "" {
		events = append(events, env.HeaderEvent("Icy-Name", e.opts.Title))
	}
	for _, h := range e.opts.Headers {
		events = append(events, env.HeaderEvent(h[0], h[1]))
	}

	end := int64(len(e.data))
	failing := e.opts.FailAt >= 0 && e.opts.FailAt < end
	if failing {
		end = e.opts.FailAt
	}
	for off := start; off < end; off += int64(e.opts.ChunkSize) {
		next := off + int64(e.opts.ChunkSize)
		if next > end {
			next = end
		}
		events = append(events, env.BodyEvent(append([]byte(nil), e.data[off:next]...)))
	}

	if failing {
		return append(events, env.FailedEvent(fmt.Sprintf("connection reset at %d", end)))
	}
	return append(events, env.Event{Kind: env.Done})
}

type transfer struct {
	engine  *Engine
	events  []env.Event
	pos     int
	stalled int
	stopped bool
}

func (t *transfer) Poll() env.Event {
	if t.stopped {
		return env.FailedEvent("transfer stopped")
	}

	ev := t.events[t.pos]
	if ev.Kind.Terminal() {
		return ev
	}
	if ev.Kind == env.BodyChunk && t.stalled < t.engine.opts.Stall {
		t.stalled++
		return env.Event{Kind: env.WouldBlock}
	}
	t.stalled = 0
	t.pos++
	return ev
}

func (t *transfer) Wait(timeout time.Duration) bool {
	t.engine.waits.Inc()
	return true
}

func (t *transfer) Stop() error {
	if !t.stopped {
		t.stopped = true
		t.engine.active.Dec()
	}
	return nil
}
