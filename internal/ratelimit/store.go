// Package ratelimit implements fixed-window counters shared by every
// connection. A window starts on the first hit for a key and lasts for the
// configured duration; hits in the window are counted with one atomic store
// operation. Two full bursts on either side of a window edge are allowed.
package ratelimit

import (
	"context"
	"time"
)

// Store atomically increments the counter for key. The first increment in
// a window creates the counter with an expiry of now+window. It returns the
// count after incrementing and the time the window resets.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}
