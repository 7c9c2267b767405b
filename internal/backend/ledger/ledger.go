// Package ledger records pothole addresses on an append-only ledger.
package ledger

import "context"

// Recorder writes an address to the ledger and returns the transaction hash
type Recorder interface {
	Record(ctx context.Context, address string) (string, error)
}

// Noop is used when no ledger is configured
type Noop struct{}

func (Noop) Record(context.Context, string) (string, error) {
	return "", nil
}
