package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrDuplicateSlot surfaces the partial unique index on
	// (provider_id, scheduled_at) over active bookings.
	ErrDuplicateSlot = errors.New("an active booking already occupies this slot")

	// ErrStaleWrite means a conditional update matched no document: the
	// booking moved on (version or status) since it was read.
	ErrStaleWrite = errors.New("booking was modified concurrently")
)
