package httpstream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned by Open for anything but plain http:// URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrSubmission means the transfer engine could not start a request.
	ErrSubmission = errors.New("failed to submit transfer")
	// ErrTransfer means a running transfer broke down.  See TransferError.
	ErrTransfer = errors.New("transfer failed")
	// ErrUnseekable means the target can't be reached from memory and the server does not support ranges,
	// or the size needed for io.SeekEnd is unknown.  The stream is left as it was.
	ErrUnseekable = errors.New("stream is not seekable")
	// ErrInvalidOffset is returned for seeks before the start of the stream.
	ErrInvalidOffset = errors.New("offset before the start of the stream")
	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("reader is closed")
)

// TransferError is stored once a transfer fails and returned by every following operation.
type TransferError struct {
	URL string
	// Offset is the absolute offset the failed request started at.
	Offset  int64
	Message string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s (offset %d): %s", ErrTransfer, e.URL, e.Offset, e.Message)
}

func (e *TransferError) Unwrap() error {
	return ErrTransfer
}
