package queue

import "errors"

// ErrClosed is returned by helpers that need an open queue.
var ErrClosed = errors.New("queue closed")
