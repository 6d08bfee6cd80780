//go:build !novulkan

package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// ErrNoDevice is returned when no physical device offers a queue family
// with graphics and transfer support.
var ErrNoDevice = errors.New("vulkan: no suitable physical device")

// check converts a Vulkan result into an error. Results with a native
// counterpart wrap it so callers can use errors.Is.
func check(op string, ret vk.Result) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.ErrorOutOfHostMemory:
		return fmt.Errorf("vulkan: %s: %w", op, native.ErrOutOfHostMemory)
	case vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("vulkan: %s: %w", op, native.ErrOutOfDeviceMemory)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("vulkan: %s: %w", op, native.ErrDeviceLost)
	case vk.ErrorMemoryMapFailed:
		return fmt.Errorf("vulkan: %s: %w", op, native.ErrNotHostVisible)
	}
	slogger().Debug("vulkan: call failed", "op", op, "result", vk.Error(ret))
	return &native.ResultError{Op: op, Code: int32(ret)}
}
