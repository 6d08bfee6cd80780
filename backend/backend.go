package backend

import "errors"

// Backend names.
const (
	// Software is the host memory reference device.
	Software = "software"
	// Vulkan is the device driving a Vulkan implementation.
	Vulkan = "vulkan"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when no registered backend could
	// create a device.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotRegistered is returned by Get for unknown names.
	ErrNotRegistered = errors.New("backend: not registered")
)
