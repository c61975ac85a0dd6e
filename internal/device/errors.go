package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrIDSpaceExhausted) {
//	    // handle exhausted id space
//	}
var (
	// ErrNotFound is returned when a device id does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrIDSpaceExhausted is returned by GenerateID when every prefix_NN
	// slot from 01 to 98 is already taken.
	ErrIDSpaceExhausted = errors.New("device: id space exhausted")
)
