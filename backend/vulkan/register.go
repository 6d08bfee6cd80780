//go:build !novulkan

package vulkan

import (
	"github.com/gogpu/texvk/backend"
	"github.com/gogpu/texvk/native"
)

func init() {
	backend.Register(backend.Vulkan, func() (native.Device, error) {
		return New(Options{})
	})
}
