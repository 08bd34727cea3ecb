package options

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SaveTheRbtz/http-seekable-stream-go/env"
)

const (
	// DefaultRewindLimit is how much already consumed data from the start of the resource is kept around,
	// so that seeking back to offset 0 does not need a new request.
	DefaultRewindLimit int64 = 64 * 1024

	// DefaultWaitSlice bounds a single wait for socket readiness.
	DefaultWaitSlice = time.Second
)

type ROption func(*ReaderOptions) error

type ReaderOptions struct {
	Logger      *zap.Logger
	Engine      env.Engine
	RewindLimit int64
	WaitSlice   time.Duration
}

func (o *ReaderOptions) SetDefault() {
	*o = ReaderOptions{
		Logger:      zap.NewNop(),
		RewindLimit: DefaultRewindLimit,
		WaitSlice:   DefaultWaitSlice,
	}
}

func WithRLogger(l *zap.Logger) ROption {
	return func(o *ReaderOptions) error { o.Logger = l; return nil }
}

func WithREngine(e env.Engine) ROption {
	return func(o *ReaderOptions) error { o.Engine = e; return nil }
}

// WithRewindLimit sets the size of the rewind window.  Zero disables it.
func WithRewindLimit(limit int64) ROption {
	return func(o *ReaderOptions) error {
		if limit < 0 {
			return fmt.Errorf("rewind limit must not be negative: %d", limit)
		}
		o.RewindLimit = limit
		return nil
	}
}

func WithWaitSlice(d time.Duration) ROption {
	return func(o *ReaderOptions) error {
		if d <= 0 {
			return fmt.Errorf("wait slice must be positive: %s", d)
		}
		o.WaitSlice = d
		return nil
	}
}
