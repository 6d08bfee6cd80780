// Package backend selects the native device a texvk context records for.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Importing a backend package registers it:
//
//	import _ "github.com/gogpu/texvk/backend/software"
//	import _ "github.com/gogpu/texvk/backend/vulkan"
//
// # Backend Selection
//
// Use Default() to get the best available device, or Get() to request
// a specific backend by name:
//
//	dev, name, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx := texvk.NewContext(dev)
//	defer ctx.Close()
//
// # Available Backends
//
//   - "vulkan": a Vulkan device over github.com/vulkan-go/vulkan (cgo)
//   - "software": host memory reference device (always available)
package backend
