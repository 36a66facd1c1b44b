package docstore

import "errors"

var (
	// ErrInvalidKey is returned for keys that cannot be mapped to a file name.
	ErrInvalidKey = errors.New("invalid key")
	// ErrHistoryDisabled is returned by history queries when the store was
	// created without WithHistory.
	ErrHistoryDisabled = errors.New("history is disabled")
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store is closed")
)
