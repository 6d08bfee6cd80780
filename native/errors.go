package native

import (
	"errors"
	"fmt"
)

// Errors reported by devices.
var (
	// ErrOutOfHostMemory is returned when a host allocation failed.
	ErrOutOfHostMemory = errors.New("native: out of host memory")

	// ErrOutOfDeviceMemory is returned when a device allocation failed.
	ErrOutOfDeviceMemory = errors.New("native: out of device memory")

	// ErrInvalidHandle is returned for unknown or destroyed handles.
	ErrInvalidHandle = errors.New("native: invalid handle")

	// ErrNotHostVisible is returned when mapping device local memory.
	ErrNotHostVisible = errors.New("native: memory is not host visible")

	// ErrDeviceLost is returned once the device can no longer execute work.
	ErrDeviceLost = errors.New("native: device lost")
)

// ResultError carries a raw result code from the underlying API.
type ResultError struct {
	Op   string
	Code int32
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("native: %s failed with result %d", e.Op, e.Code)
}
