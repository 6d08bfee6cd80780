package native

import vk "github.com/vulkan-go/vulkan"

// Image is an opaque handle to a device image.
type Image uint64

// ImageView is an opaque handle to a view of a device image.
type ImageView uint64

// Buffer is an opaque handle to a device buffer and its backing memory.
type Buffer uint64

// Framebuffer is an opaque handle to a framebuffer together with the
// render pass it was created for.
type Framebuffer uint64

// Fence is an opaque handle signalled when a submission completes.
type Fence uint64

// Null is the zero handle value shared by all handle types.
const Null = 0

// Values that stand for "everything from the base onwards".
const (
	RemainingMipLevels   = ^uint32(0)
	RemainingArrayLayers = ^uint32(0)
	WholeSize            = ^uint64(0)
)

// Multi-planar aspects and formats from Vulkan 1.1.
const (
	AspectPlane0 vk.ImageAspectFlags = 0x00000010
	AspectPlane1 vk.ImageAspectFlags = 0x00000020

	// FormatG8B8R82Plane420Unorm is the NV12 layout: a full resolution
	// luma plane followed by a half resolution interleaved chroma plane.
	FormatG8B8R82Plane420Unorm vk.Format = 1000156003
)

// ImageDesc describes an image to create.
type ImageDesc struct {
	Type        vk.ImageType
	Format      vk.Format
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	ArrayLayers uint32
	Samples     vk.SampleCountFlagBits
	Usage       vk.ImageUsageFlags
	Flags       vk.ImageCreateFlags
}

// ImageViewDesc describes a view of an existing image.
type ImageViewDesc struct {
	Image    Image
	ViewType vk.ImageViewType
	Format   vk.Format
	Range    vk.ImageSubresourceRange
}

// BufferDesc describes a buffer and the memory that backs it.
type BufferDesc struct {
	Size   uint64
	Usage  vk.BufferUsageFlags
	Memory vk.MemoryPropertyFlags
}

// Attachment is one framebuffer attachment. Layout is used both as the
// initial and the final layout of the render pass, and the attachment is
// loaded and stored so a pass only touches what it explicitly clears.
type Attachment struct {
	View    ImageView
	Format  vk.Format
	Samples vk.SampleCountFlagBits
	Layout  vk.ImageLayout
	Aspects vk.ImageAspectFlags
}

// FramebufferDesc describes a framebuffer and its implicit render pass.
type FramebufferDesc struct {
	Attachments []Attachment
	Width       uint32
	Height      uint32
	Layers      uint32
}

// ImageBarrier is an image memory barrier with an optional layout change.
type ImageBarrier struct {
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout
	Image     Image
	Range     vk.ImageSubresourceRange
}

// BufferBarrier is a buffer memory barrier over [Offset, Offset+Size).
type BufferBarrier struct {
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	Buffer    Buffer
	Offset    uint64
	Size      uint64
}
