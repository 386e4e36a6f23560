package model

import "errors"

// Error kinds from the error handling design (§7): a closed set of
// sentinel values, wrapped with context via fmt.Errorf("...: %w", ...) at
// the point of failure and matched with errors.Is by callers.
var (
	// ErrTransport covers socket timeouts, connection refusal, and peer
	// close. Recovery: the frame is re-queued and the server enters backoff.
	ErrTransport = errors.New("transport error")

	// ErrProtocol covers malformed messages and protocol version mismatch.
	// Recovery: the server is marked unusable for the remainder of the job.
	ErrProtocol = errors.New("protocol error")

	// ErrLocalEncodeFailed covers encoder library failures. Recovery: the
	// frame is re-queued once; a worker that fails four times in a row
	// exits.
	ErrLocalEncodeFailed = errors.New("local encode failed")

	// ErrWriteIO covers essence/FrameInfo file write failures. Fatal:
	// captured and surfaced by Writer.Finish.
	ErrWriteIO = errors.New("write IO error")

	// ErrFrameCacheMismatch means an existing cache record's hash disagrees
	// with the hash of the newly prepared frame. Recovery: the cache entry
	// is ignored and the frame is re-encoded.
	ErrFrameCacheMismatch = errors.New("frame cache mismatch")

	// ErrCancelled means the terminate flag was observed.
	ErrCancelled = errors.New("cancelled")
)
