package bookings

import "errors"

var (
	// ErrStoreUnavailable marks a failure to reach or query the database. The scheduler
	// backs off and retries the pass when ListAll returns it.
	ErrStoreUnavailable = errors.New("bookings.repository: store unavailable")

	ErrBuildQuery = errors.New("bookings.repository: failed to build query")
	ErrScanRow    = errors.New("bookings.repository: failed to scan row")
	ErrNotFound   = errors.New("bookings.repository: booking not found")
)
