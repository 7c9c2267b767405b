// Package counter keeps a running count of detected objects across a stream of frames.
// Every frame is identified by the SHA-256 of its bytes, and a frame that was
// already counted never contributes twice.
package counter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyFrame is returned for frames without any data
var ErrEmptyFrame = errors.New("no data received")

// CountFunc runs detection on a new frame and returns how many objects to add
type CountFunc func(ctx context.Context) (int, error)

// Tally is a cumulative counter deduplicated by frame content.
type Tally interface {
	// Observe records frame and returns the running total. count is only
	// invoked for frames not seen before. When count fails the frame is
	// forgotten again so that a retry is counted.
	Observe(ctx context.Context, frame []byte, count CountFunc) (int64, error)

	// Total returns the running total without recording anything
	Total(ctx context.Context) (int64, error)

	// Reset drops all recorded frames and sets the total back to zero
	Reset(ctx context.Context) error
}

// FrameKey returns the hex encoded SHA-256 of the frame bytes
func FrameKey(frame []byte) string {
	sum := sha256.Sum256(frame)
	return hex.EncodeToString(sum[:])
}
