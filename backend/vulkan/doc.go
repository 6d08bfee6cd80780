// Package vulkan implements native.Device on a Vulkan 1.1 implementation
// through github.com/vulkan-go/vulkan.
//
// The device opens one queue with graphics and transfer capabilities and
// records every command into primary command buffers allocated from a
// single pool. Native handles are indexes into per-type tables, so the
// Vulkan objects never escape the package. Importing the package registers
// the "vulkan" backend; build with the novulkan tag to leave it out.
package vulkan
