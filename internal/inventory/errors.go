package inventory

import "errors"

// Sentinel errors returned by the repository and transition engine.
// Callers match with errors.Is; anything else coming out of a storage
// call is a persistence failure, not a domain condition.
var (
	// ErrNotFound means the referenced device id or serial does not exist.
	ErrNotFound = errors.New("device not found")

	// ErrDuplicateSerial means a device with the requested serial number
	// already exists.
	ErrDuplicateSerial = errors.New("serial number already exists")

	// ErrIllegalTransition means the requested operation is not valid
	// from the device's current status.
	ErrIllegalTransition = errors.New("illegal status transition")
)
