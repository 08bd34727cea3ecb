package engine

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

type collected struct {
	headers http.Header
	body    []byte
	last    env.Event
}

// collect polls t until a terminal event.
func collect(t *testing.T, tr env.Transfer) collected {
	t.Helper()

	c := collected{headers: make(http.Header)}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		ev := tr.Poll()
		switch ev.Kind {
		case env.WouldBlock:
			tr.Wait(100 * time.Millisecond)
		case env.HeaderLine:
			c.headers.Add(ev.Name, ev.Value)
		case env.BodyChunk:
			c.body = append(c.body, ev.Data...)
		default:
			c.last = ev
			return c
		}
	}
	t.Fatal("transfer did not finish in time")
	return c
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	return New(cfg, zaptest.NewLogger(t))
}

func TestEngineBody(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789"), 10_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.ChunkSize = 4096
	e := newTestEngine(t, cfg)

	tr, err := e.Start(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.NoError(t, tr.Stop())

	assert.Equal(t, env.Done, c.last.Kind)
	assert.Equal(t, payload, c.body)
	assert.Equal(t, "bytes", c.headers.Get("Accept-Ranges"))
	assert.Equal(t, "100000", c.headers.Get("Content-Length"))

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Started)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(len(payload)), stats.BytesReceived)
}

func TestEngineRange(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("abcdefgh"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	e := newTestEngine(t, DefaultConfig())
	header := make(http.Header)
	header.Set("Range", "bytes=1000-")

	tr, err := e.Start(context.Background(), srv.URL, header)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.NoError(t, tr.Stop())

	assert.Equal(t, env.Done, c.last.Kind)
	assert.Equal(t, payload[1000:], c.body)
	assert.Equal(t, "7000", c.headers.Get("Content-Length"))
}

func TestEngineFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			// ignores Range
			_, _ = w.Write([]byte("full body"))
		}
	}))
	defer srv.Close()

	e := newTestEngine(t, DefaultConfig())

	tr, err := e.Start(context.Background(), srv.URL+"/missing", nil)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.Equal(t, env.Failed, c.last.Kind)
	assert.Contains(t, c.last.Message, "404")
	assert.Empty(t, c.body)
	assert.NoError(t, tr.Stop())

	header := make(http.Header)
	header.Set("Range", "bytes=5-")
	tr, err = e.Start(context.Background(), srv.URL+"/plain", header)
	require.NoError(t, err)
	c = collect(t, tr)
	assert.Equal(t, env.Failed, c.last.Kind)
	assert.Contains(t, c.last.Message, "ignored range")
	assert.Empty(t, c.body)
	assert.NoError(t, tr.Stop())

	assert.Equal(t, int64(2), e.Stats().Failed)
}

func TestEngineRefused(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	e := newTestEngine(t, DefaultConfig())
	tr, err := e.Start(context.Background(), "http://"+addr+"/", nil)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.Equal(t, env.Failed, c.last.Kind)
	assert.NotEmpty(t, c.last.Message)

	// terminal events repeat
	assert.Equal(t, env.Failed, tr.Poll().Kind)
	assert.NoError(t, tr.Stop())
}

// serveRaw accepts a single connection and answers with response verbatim.
func serveRaw(t *testing.T, response string) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = conn.Write([]byte(response))
	}()
	return "http://" + l.Addr().String() + "/stream"
}

func TestEngineICYStatusLine(t *testing.T) {
	t.Parallel()

	url := serveRaw(t, "ICY 200 OK\r\n"+
		"icy-name: Radio Test\r\n"+
		"Content-Type: audio/mpeg\r\n"+
		"\r\n"+
		"some mp3 frames")

	e := newTestEngine(t, DefaultConfig())
	tr, err := e.Start(context.Background(), url, nil)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.NoError(t, tr.Stop())

	assert.Equal(t, env.Done, c.last.Kind)
	assert.Equal(t, "Radio Test", c.headers.Get("Icy-Name"))
	assert.Equal(t, "audio/mpeg", c.headers.Get("Content-Type"))
	assert.Equal(t, "some mp3 frames", string(c.body))
}

func TestEngineICYWithoutAlias(t *testing.T) {
	t.Parallel()

	url := serveRaw(t, "ICY 200 OK\r\n\r\nsome mp3 frames")

	cfg := DefaultConfig()
	cfg.HTTP200Aliases = nil
	e := newTestEngine(t, cfg)
	tr, err := e.Start(context.Background(), url, nil)
	require.NoError(t, err)
	c := collect(t, tr)
	assert.NoError(t, tr.Stop())

	assert.Equal(t, env.Failed, c.last.Kind)
	assert.Empty(t, c.body)
}

func TestEngineWaitAndStop(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := newTestEngine(t, DefaultConfig())
	tr, err := e.Start(context.Background(), srv.URL, nil)
	require.NoError(t, err)

	var sawHeader bool
	deadline := time.Now().Add(10 * time.Second)
	for !sawHeader && time.Now().Before(deadline) {
		ev := tr.Poll()
		switch ev.Kind {
		case env.WouldBlock:
			tr.Wait(100 * time.Millisecond)
		case env.HeaderLine:
			sawHeader = ev.Name == "Content-Type"
		default:
			t.Fatalf("unexpected event: %s", ev.Kind)
		}
	}
	require.True(t, sawHeader)

	// drain the remaining headers, the body never comes
	for tr.Wait(200 * time.Millisecond) {
		ev := tr.Poll()
		require.Equal(t, env.HeaderLine, ev.Kind)
	}
	assert.Equal(t, env.WouldBlock, tr.Poll().Kind)

	start := time.Now()
	assert.False(t, tr.Wait(50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.NoError(t, tr.Stop())
	assert.NoError(t, tr.Stop())
	assert.Equal(t, env.Failed, tr.Poll().Kind)
}

func TestCheckRedirect(t *testing.T) {
	t.Parallel()

	https, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)
	assert.Error(t, checkRedirect(https, nil))

	plain, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)
	assert.NoError(t, checkRedirect(plain, nil))
	assert.Error(t, checkRedirect(plain, make([]*http.Request, maxRedirects)))
}

func TestIsAlias(t *testing.T) {
	t.Parallel()

	aliases := []string{"ICY 200 OK", ""}
	assert.True(t, isAlias("ICY 200 OK\r\n", aliases))
	assert.True(t, isAlias("icy 200 ok\n", aliases))
	assert.False(t, isAlias("HTTP/1.1 200 OK\r\n", aliases))
	assert.False(t, isAlias("ICY", aliases))
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.setDefaults()
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, defaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, defaultEventBacklog, cfg.EventBacklog)
	assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	assert.Empty(t, cfg.HTTP200Aliases)
	assert.True(t, strings.HasPrefix(DefaultConfig().HTTP200Aliases[0], "ICY"))
}
