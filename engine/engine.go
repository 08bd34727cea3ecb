// Package engine is the default transfer engine: plain HTTP/1.x on top of net/http.
//
// Every transfer runs its request in a goroutine which converts the response
// into env.Event values on a bounded channel; the caller pulls them with Poll
// and waits for readiness with Wait, so nothing ever calls back into the reader.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

const (
	DefaultUserAgent = "http-seekable-stream-go/1.0"

	defaultChunkSize    = 16 << 10
	defaultEventBacklog = 64
	defaultDialTimeout  = 30 * time.Second
	maxRedirects        = 10
)

// Config configures the engine.  Zero fields take their defaults.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// HTTP200Aliases are status lines accepted as "HTTP/1.0 200 OK",
	// e.g. "ICY 200 OK" sent by SHOUTcast servers.
	HTTP200Aliases []string

	// ChunkSize bounds the size of a single body event.
	ChunkSize int

	// EventBacklog is how many events a transfer may run ahead of its reader.
	EventBacklog int

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers, zero means no limit.
	ResponseHeaderTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		HTTP200Aliases: []string{"ICY 200 OK"},
		ChunkSize:      defaultChunkSize,
		EventBacklog:   defaultEventBacklog,
		DialTimeout:    defaultDialTimeout,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.EventBacklog <= 0 {
		c.EventBacklog = d.EventBacklog
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Started       int64
	Failed        int64
	BytesReceived int64
}

type stats struct {
	started  atomic.Int64
	failed   atomic.Int64
	received atomic.Int64
}

// Engine implements env.Engine.  It is safe for concurrent use by many readers.
type Engine struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	stats  stats
}

var _ env.Engine = (*Engine)(nil)

func New(cfg Config, logger *zap.Logger) *Engine {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
	aliases := append([]string(nil), cfg.HTTP200Aliases...)
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return newAliasConn(conn, aliases), nil
		},
		// One response per connection: the status line alias only applies to the first line.
		DisableKeepAlives: true,
		// Offsets are counted in raw body bytes.
		DisableCompression:    true,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" {
		return fmt.Errorf("redirect to unsupported scheme: %s", req.URL.Scheme)
	}
	return nil
}

// Start implements env.Engine.
func (e *Engine) Start(ctx context.Context, url string, header http.Header) (env.Transfer, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}

	tctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(tctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	t := newTransfer(cancel, e.cfg.EventBacklog)
	e.stats.started.Inc()
	logger := e.logger.With(zap.String("transfer", uuid.NewString()))
	logger.Debug("starting transfer", zap.String("url", url), zap.String("range", req.Header.Get("Range")))

	go e.run(tctx, t, req, logger)
	return t, nil
}

func (e *Engine) Stats() Stats {
	return Stats{
		Started:       e.stats.started.Load(),
		Failed:        e.stats.failed.Load(),
		BytesReceived: e.stats.received.Load(),
	}
}
