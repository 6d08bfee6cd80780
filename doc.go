// Package texvk manages the storage of texture data for a Vulkan based
// Direct3D style renderer.
//
// # Overview
//
// The contents of every texture subresource can live in several places at
// once: host memory, a buffer object, the device image, or only as a pending
// clear value. A [LocationSet] records which of these are current. Reading
// a location that is not current loads it from the best valid one, and
// writing one location invalidates the others.
//
// The package is organised around a few operations:
//
//   - Location synchronization: [Texture.PrepareLocation],
//     [Texture.LoadLocation] and [Texture.UnloadLocation].
//   - Transfers between linear memory and images: [UploadData] and
//     [DownloadData], including staging buffers and planar formats.
//   - Layout tracking: [Texture.Barrier] moves the image into the layout a
//     binding needs and [Texture.MakeGeneric] pins it to the general layout.
//   - Clears and blits through an ordered [Chain] of [Blitter]
//     implementations. The [VulkanBlitter] records device commands and the
//     [CPUBlitter] works on host memory.
//
// # Quick Start
//
//	dev := software.New(software.Options{})
//	c := texvk.NewContext(dev)
//	defer c.Close()
//
//	tex, _ := texvk.NewTexture(texvk.TextureDesc{
//		Dimension: gputypes.TextureDimension2D,
//		Width:     256, Height: 256, Depth: 1, Levels: 1, Layers: 1,
//		Format:    texvk.FormatR8G8B8A8Unorm,
//		Bind:      texvk.BindShaderResource,
//		Access:    texvk.AccessGPU | texvk.AccessCPU,
//	})
//	_ = tex.LoadLocation(c, 0, texvk.LocationTextureRGB)
//
// # Devices
//
// Commands are recorded through the [native.Device] interface. The
// backend/software package executes them on the CPU and is used by the
// tests; backend/vulkan drives a real Vulkan implementation. The backend
// package selects one of them by name or priority.
//
// # Object lifetime
//
// Every command buffer a [Context] submits gets an increasing id. Native
// objects remember the id of the last command buffer that used them and
// their destruction is deferred until that id has retired.
//
// # Logging
//
// Diagnostics go through log/slog. Logging is silent until [SetLogger] is
// called.
package texvk
