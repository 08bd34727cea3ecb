package env

import (
	"context"
	"net/http"
	"time"
)

// Engine can be used to inject a custom transfer engine that is different from the default net/http one.
// This is useful when, for example, the transport is multiplexed or simulated in tests.
type Engine interface {
	// Start issues a GET request for url with the given extra request headers
	// (typically only `Range`) and returns a handle to the pending transfer.
	//
	// An error means the transfer could not be submitted at all.
	Start(ctx context.Context, url string, header http.Header) (Transfer, error)
}

// Transfer is a single in-flight response.  It is driven by pulling events from it,
// it never calls back into the caller.
type Transfer interface {
	// Poll returns the next pending event without blocking.
	// When nothing is pending it returns an event of kind WouldBlock.
	// Once a Done or Failed event was returned, every later call returns it again.
	Poll() Event
	// Wait blocks for at most timeout until Poll has something other than WouldBlock to return.
	// It reports whether an event became available.
	Wait(timeout time.Duration) bool
	// Stop aborts the transfer and releases its resources.  It is safe to call Stop more than once.
	Stop() error
}
