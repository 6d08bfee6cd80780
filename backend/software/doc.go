// Package software implements native.Device on host memory.
//
// Every command is executed on the CPU against tightly packed per
// subresource storage, so data written through one path can be read back
// through any other. The device also behaves like a validation layer: it
// tracks the real layout of every image subresource and records a
// validation error whenever a command names a layout the image is not in,
// references a destroyed object or copies between incompatible formats.
// Tests use the command log and the validation errors to observe what a
// caller recorded.
//
// By default a submission executes immediately and its fence is signalled
// on return. With Options.ManualCompletion set, submissions stay queued
// until a fence wait, WaitIdle or Complete executes them, which lets tests
// observe deferred destruction.
package software
