package sequence

import "context"

// Repository allocates numbers from persisted series
type Repository interface {
	// Next increments the series and returns the new value, starting at 1.
	// The series row stays locked until the transaction carried by ctx ends,
	// so a rolled back caller never consumes a number.
	Next(ctx context.Context, key Key) (int64, error)

	// Get returns the current state of a series without locking it
	Get(ctx context.Context, key Key) (*Sequence, error)
}
