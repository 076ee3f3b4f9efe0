package fixture

import "errors"

var (
	// ErrConfiguration is returned when the fixture's configuration lacks
	// the database or collection name an operation needs. It means the test
	// is misconfigured, not that the database rejected anything.
	ErrConfiguration = errors.New("fixture misconfigured")
	// ErrIndexCreation wraps the driver error when a batch of unique
	// indexes could not be built.
	ErrIndexCreation = errors.New("index creation failed")
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("fixture disposed")
)
