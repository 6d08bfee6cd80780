package software

import (
	"github.com/gogpu/texvk/backend"
	"github.com/gogpu/texvk/native"
)

func init() {
	backend.Register(backend.Software, func() (native.Device, error) {
		return New(Options{}), nil
	})
}
