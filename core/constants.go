package core

import (
	"errors"
	"time"
)

const (
	// DefaultHost is the interface the server binds when none is configured.
	DefaultHost = "127.0.0.1"

	// lingerTimeout bounds how long a finished connection is drained after
	// its write side is closed, so unread request bytes don't turn the
	// close into a reset that discards the response.
	lingerTimeout = 250 * time.Millisecond

	// maxLingerBytes caps what is discarded while lingering.
	maxLingerBytes = 256 << 10
)

// Error definitions
var (
	ErrAlreadyStarted = errors.New("server already started")
)
