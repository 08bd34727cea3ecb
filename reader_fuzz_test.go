//go:build go1.18
// +build go1.18

package httpstream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaveTheRbtz/http-seekable-stream-go/internal/enginetest"
	"github.com/SaveTheRbtz/http-seekable-stream-go/options"
)

func FuzzReaderSeek(f *testing.F) {
	data := testData(20_000)

	f.Add(uint16(100), int64(0), io.SeekStart, uint16(1), true)
	f.Add(uint16(3000), int64(-1), io.SeekEnd, uint16(2), true)
	f.Add(uint16(0), int64(1), io.SeekCurrent, uint16(5000), false)
	f.Add(uint16(70), int64(500), io.SeekCurrent, uint16(700), true)

	f.Fuzz(func(t *testing.T, first uint16, off int64, whence int, l uint16, ranges bool) {
		opts := seekableOptions()
		opts.ChunkSize = 333
		opts.AcceptRanges = ranges
		e := enginetest.New(data, opts)

		r, err := Open(context.Background(), testURL, options.WithREngine(e), options.WithRewindLimit(4096))
		require.NoError(t, err)
		defer r.Close()
		ri := r.(*readerImpl)

		prefix := make([]byte, int(first)%len(data))
		_, err = io.ReadFull(r, prefix)
		require.NoError(t, err)
		assert.Equal(t, data[:len(prefix)], prefix)

		before := r.Offset()
		i, err := r.Seek(off, whence)
		if err != nil {
			if errors.Is(err, ErrTransfer) {
				// the range past the end was refused by the server
				assert.Greater(t, r.Offset(), int64(len(data)))
				_, err = r.Read(make([]byte, 1))
				assert.ErrorIs(t, err, ErrTransfer)
				return
			}
			assert.Equal(t, before, r.Offset())
			return
		}
		assert.Equal(t, i, r.Offset())
		checkInvariants(t, ri)
		if l == 0 {
			return
		}

		buf := make([]byte, l)
		n, err := io.ReadFull(r, buf)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			assert.Equal(t, int64(len(data)), i+int64(n))
		default:
			require.NoError(t, err)
		}
		assert.Equal(t, data[i:i+int64(n)], buf[:n])
		checkInvariants(t, ri)
	})
}
