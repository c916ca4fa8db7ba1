package core

import "errors"

// Error taxonomy shared by every stage of payload assembly. Callers match with
// errors.Is; producers wrap with fmt.Errorf and %w to add context.
var (
	// ErrConfiguration signals a deployment bug: unknown versions, malformed
	// bucket lists, invalid parallelism or deadlines. Never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrPayloadTooLarge is returned when an assembled payload cannot fit any
	// allowed size.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrDataSizeMismatch is returned when a formatted payload declares more
	// data than the buffer holds.
	ErrDataSizeMismatch = errors.New("data size mismatch")

	// ErrDecode is returned when compressed or serialized input is truncated
	// or corrupt.
	ErrDecode = errors.New("decode failed")
)
