package native

import vk "github.com/vulkan-go/vulkan"

// Device creates and destroys native objects and submits command buffers.
//
// Destroy methods accept Null and ignore it. Destroying an object that is
// still referenced by pending GPU work is undefined; callers gate
// destruction on fence completion.
type Device interface {
	CreateImage(desc *ImageDesc) (Image, error)
	DestroyImage(img Image)
	CreateImageView(desc *ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateBuffer(desc *BufferDesc) (Buffer, error)
	DestroyBuffer(buf Buffer)

	// MapBuffer maps the whole buffer into host memory. The buffer must
	// have been created host visible. The slice stays valid until
	// UnmapBuffer.
	MapBuffer(buf Buffer) ([]byte, error)
	// FlushMappedRange makes host writes in the range visible to the
	// device. It is a no-op for coherent memory.
	FlushMappedRange(buf Buffer, offset, size uint64) error
	// InvalidateMappedRange makes device writes in the range visible to
	// the host.
	InvalidateMappedRange(buf Buffer, offset, size uint64) error
	UnmapBuffer(buf Buffer)

	CreateFramebuffer(desc *FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	// BeginCommandBuffer returns a command buffer in the recording state.
	BeginCommandBuffer() (CommandBuffer, error)
	// Submit ends recording and queues the command buffer for execution.
	// The command buffer must not be used afterwards.
	Submit(cb CommandBuffer) (Fence, error)
	// FenceSignaled reports whether the submission behind f completed.
	FenceSignaled(f Fence) (bool, error)
	// WaitFence blocks until the submission behind f completed.
	WaitFence(f Fence) error
	DestroyFence(f Fence)

	// WaitIdle blocks until all submitted work completed.
	WaitIdle() error
}

// CommandBuffer records commands. All methods only record; they never block
// and never fail. Recording errors surface from Device.Submit.
type CommandBuffer interface {
	PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, buffers []BufferBarrier, images []ImageBarrier)

	CopyBuffer(src, dst Buffer, regions []vk.BufferCopy)
	CopyImage(src Image, srcLayout vk.ImageLayout, dst Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy)
	CopyBufferToImage(src Buffer, dst Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy)
	CopyImageToBuffer(src Image, srcLayout vk.ImageLayout, dst Buffer, regions []vk.BufferImageCopy)
	ResolveImage(src Image, srcLayout vk.ImageLayout, dst Image, dstLayout vk.ImageLayout, regions []vk.ImageResolve)

	ClearColorImage(img Image, layout vk.ImageLayout, color ClearColorValue, ranges []vk.ImageSubresourceRange)
	ClearDepthStencilImage(img Image, layout vk.ImageLayout, value DepthStencilValue, ranges []vk.ImageSubresourceRange)

	// BeginRenderPass starts the render pass fb was created with over area.
	BeginRenderPass(fb Framebuffer, area vk.Rect2D)
	ClearAttachments(attachments []ClearAttachment, rects []vk.ClearRect)
	EndRenderPass()
}
