// Package native defines the graphics API surface the texture engine records
// into.
//
// The interfaces mirror a small subset of Vulkan: image, view, buffer and
// framebuffer lifetime, host mapping, command recording and fence based
// submission. Enumerations and copy regions reuse the types of
// github.com/vulkan-go/vulkan so a Vulkan device can forward them unchanged,
// while object handles are opaque integers owned by the device
// implementation. This keeps handles safe to fabricate in tests and lets the
// software device in backend/software stand in for a real GPU.
//
// # Handles
//
// Every handle type uses zero as the null value. Devices never return a zero
// handle together with a nil error.
//
// # Command buffers
//
// A CommandBuffer is obtained from Device.BeginCommandBuffer, recorded in
// order and handed back through Device.Submit, which returns a Fence that
// signals once the GPU has executed every recorded command.
package native
