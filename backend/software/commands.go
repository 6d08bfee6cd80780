package software

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// CommandBuffer records commands for a Device.
type CommandBuffer struct {
	dev       *Device
	cmds      []func()
	fb        native.Framebuffer
	inPass    bool
	submitted bool
}

func (cb *CommandBuffer) record(c Command, run func()) {
	d := cb.dev
	d.mu.Lock()
	if cb.submitted {
		d.invalidf("%s: recording into a submitted command buffer", c.Op)
	}
	d.recorded = append(d.recorded, c)
	d.mu.Unlock()
	cb.cmds = append(cb.cmds, run)
}

func (cb *CommandBuffer) outsidePass(op Op) {
	if cb.inPass {
		cb.dev.mu.Lock()
		cb.dev.invalidf("%s: not allowed inside a render pass", op)
		cb.dev.mu.Unlock()
	}
}

// PipelineBarrier implements native.CommandBuffer.
func (cb *CommandBuffer) PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, buffers []native.BufferBarrier, images []native.ImageBarrier) {
	cb.outsidePass(OpPipelineBarrier)
	buffers = append([]native.BufferBarrier(nil), buffers...)
	images = append([]native.ImageBarrier(nil), images...)
	cb.record(Command{
		Op: OpPipelineBarrier, SrcStages: srcStages, DstStages: dstStages,
		BufferBarriers: buffers, ImageBarriers: images,
	}, func() { cb.dev.execBarrier(buffers, images) })
}

// CopyBuffer implements native.CommandBuffer.
func (cb *CommandBuffer) CopyBuffer(src, dst native.Buffer, regions []vk.BufferCopy) {
	cb.outsidePass(OpCopyBuffer)
	regions = append([]vk.BufferCopy(nil), regions...)
	cb.record(Command{Op: OpCopyBuffer, SrcBuffer: src, DstBuffer: dst, BufferCopies: regions},
		func() { cb.dev.execCopyBuffer(src, dst, regions) })
}

// CopyImage implements native.CommandBuffer.
func (cb *CommandBuffer) CopyImage(src native.Image, srcLayout vk.ImageLayout, dst native.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	cb.outsidePass(OpCopyImage)
	regions = append([]vk.ImageCopy(nil), regions...)
	cb.record(Command{
		Op: OpCopyImage, SrcImage: src, SrcLayout: srcLayout, DstImage: dst, DstLayout: dstLayout,
		ImageCopies: regions,
	}, func() { cb.dev.execCopyImage(src, srcLayout, dst, dstLayout, regions) })
}

// CopyBufferToImage implements native.CommandBuffer.
func (cb *CommandBuffer) CopyBufferToImage(src native.Buffer, dst native.Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	cb.outsidePass(OpCopyBufferToImage)
	regions = append([]vk.BufferImageCopy(nil), regions...)
	cb.record(Command{
		Op: OpCopyBufferToImage, SrcBuffer: src, DstImage: dst, DstLayout: dstLayout,
		BufferImageCopies: regions,
	}, func() { cb.dev.execBufferImage(src, dst, dstLayout, regions, true) })
}

// CopyImageToBuffer implements native.CommandBuffer.
func (cb *CommandBuffer) CopyImageToBuffer(src native.Image, srcLayout vk.ImageLayout, dst native.Buffer, regions []vk.BufferImageCopy) {
	cb.outsidePass(OpCopyImageToBuffer)
	regions = append([]vk.BufferImageCopy(nil), regions...)
	cb.record(Command{
		Op: OpCopyImageToBuffer, SrcImage: src, SrcLayout: srcLayout, DstBuffer: dst,
		BufferImageCopies: regions,
	}, func() { cb.dev.execBufferImage(dst, src, srcLayout, regions, false) })
}

// ResolveImage implements native.CommandBuffer.
func (cb *CommandBuffer) ResolveImage(src native.Image, srcLayout vk.ImageLayout, dst native.Image, dstLayout vk.ImageLayout, regions []vk.ImageResolve) {
	cb.outsidePass(OpResolveImage)
	regions = append([]vk.ImageResolve(nil), regions...)
	cb.record(Command{
		Op: OpResolveImage, SrcImage: src, SrcLayout: srcLayout, DstImage: dst, DstLayout: dstLayout,
		Resolves: regions,
	}, func() { cb.dev.execResolve(src, srcLayout, dst, dstLayout, regions) })
}

// ClearColorImage implements native.CommandBuffer.
func (cb *CommandBuffer) ClearColorImage(img native.Image, layout vk.ImageLayout, color native.ClearColorValue, ranges []vk.ImageSubresourceRange) {
	cb.outsidePass(OpClearColorImage)
	ranges = append([]vk.ImageSubresourceRange(nil), ranges...)
	cb.record(Command{Op: OpClearColorImage, DstImage: img, DstLayout: layout, Color: color, Ranges: ranges},
		func() { cb.dev.execClearImage(img, layout, ranges, &color, nil) })
}

// ClearDepthStencilImage implements native.CommandBuffer.
func (cb *CommandBuffer) ClearDepthStencilImage(img native.Image, layout vk.ImageLayout, value native.DepthStencilValue, ranges []vk.ImageSubresourceRange) {
	cb.outsidePass(OpClearDepthStencilImage)
	ranges = append([]vk.ImageSubresourceRange(nil), ranges...)
	cb.record(Command{Op: OpClearDepthStencilImage, DstImage: img, DstLayout: layout, DepthStencil: value, Ranges: ranges},
		func() { cb.dev.execClearImage(img, layout, ranges, nil, &value) })
}

// BeginRenderPass implements native.CommandBuffer.
func (cb *CommandBuffer) BeginRenderPass(fb native.Framebuffer, area vk.Rect2D) {
	cb.outsidePass(OpBeginRenderPass)
	cb.inPass = true
	cb.fb = fb
	cb.record(Command{Op: OpBeginRenderPass, Framebuffer: fb, Area: area},
		func() { cb.dev.execBeginPass(fb, area) })
}

// ClearAttachments implements native.CommandBuffer.
func (cb *CommandBuffer) ClearAttachments(attachments []native.ClearAttachment, rects []vk.ClearRect) {
	fb := cb.fb
	if !cb.inPass {
		cb.dev.mu.Lock()
		cb.dev.invalidf("ClearAttachments: outside a render pass")
		cb.dev.mu.Unlock()
	}
	attachments = append([]native.ClearAttachment(nil), attachments...)
	rects = append([]vk.ClearRect(nil), rects...)
	cb.record(Command{Op: OpClearAttachments, Framebuffer: fb, Attachments: attachments, Rects: rects},
		func() { cb.dev.execClearAttachments(fb, attachments, rects) })
}

// EndRenderPass implements native.CommandBuffer.
func (cb *CommandBuffer) EndRenderPass() {
	if !cb.inPass {
		cb.dev.mu.Lock()
		cb.dev.invalidf("EndRenderPass: no render pass")
		cb.dev.mu.Unlock()
	}
	cb.inPass = false
	cb.fb = native.Null
	cb.record(Command{Op: OpEndRenderPass}, func() {})
}

var _ native.CommandBuffer = (*CommandBuffer)(nil)
