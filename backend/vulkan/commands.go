//go:build !novulkan

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// commandBuffer records into a primary Vulkan command buffer. The first
// handle lookup failure is kept and returned by Device.Submit; commands
// after it are dropped.
type commandBuffer struct {
	dev *Device
	cb  vk.CommandBuffer
	err error
}

// BeginCommandBuffer implements native.Device.
func (d *Device) BeginCommandBuffer() (native.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)

	d.mu.Lock()
	ret := vk.AllocateCommandBuffers(d.device, &info, cbs)
	d.mu.Unlock()
	if err := check("vkAllocateCommandBuffers", ret); err != nil {
		return nil, err
	}

	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cbs[0], &begin)); err != nil {
		d.freeCommandBuffer(cbs[0])
		return nil, err
	}
	return &commandBuffer{dev: d, cb: cbs[0]}, nil
}

func (c *commandBuffer) fail(what string, h uint64) {
	if c.err == nil {
		c.err = fmt.Errorf("vulkan: record: %s %d: %w", what, h, native.ErrInvalidHandle)
	}
}

func (c *commandBuffer) image(h native.Image) (vk.Image, bool) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	img, ok := c.dev.images[h]
	if !ok {
		c.fail("image", uint64(h))
		var null vk.Image
		return null, false
	}
	return img.handle, true
}

func (c *commandBuffer) buffer(h native.Buffer) (vk.Buffer, bool) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	buf, ok := c.dev.buffers[h]
	if !ok {
		c.fail("buffer", uint64(h))
		var null vk.Buffer
		return null, false
	}
	return buf.handle, true
}

func (c *commandBuffer) PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, buffers []native.BufferBarrier, images []native.ImageBarrier) {
	if c.err != nil {
		return
	}
	bufBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		buf, ok := c.buffer(b.Buffer)
		if !ok {
			return
		}
		bufBarriers = append(bufBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                vk.DeviceSize(b.Size),
		})
	}
	imgBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, b := range images {
		img, ok := c.image(b.Image)
		if !ok {
			return
		}
		imgBarriers = append(imgBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       b.SrcAccess,
			DstAccessMask:       b.DstAccess,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange:    b.Range,
		})
	}
	vk.CmdPipelineBarrier(c.cb, srcStages, dstStages, 0,
		0, nil,
		uint32(len(bufBarriers)), bufBarriers,
		uint32(len(imgBarriers)), imgBarriers)
}

func (c *commandBuffer) CopyBuffer(src, dst native.Buffer, regions []vk.BufferCopy) {
	if c.err != nil {
		return
	}
	s, ok := c.buffer(src)
	if !ok {
		return
	}
	d, ok := c.buffer(dst)
	if !ok {
		return
	}
	vk.CmdCopyBuffer(c.cb, s, d, uint32(len(regions)), regions)
}

func (c *commandBuffer) CopyImage(src native.Image, srcLayout vk.ImageLayout, dst native.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	if c.err != nil {
		return
	}
	s, ok := c.image(src)
	if !ok {
		return
	}
	d, ok := c.image(dst)
	if !ok {
		return
	}
	vk.CmdCopyImage(c.cb, s, srcLayout, d, dstLayout, uint32(len(regions)), regions)
}

func (c *commandBuffer) CopyBufferToImage(src native.Buffer, dst native.Image, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	if c.err != nil {
		return
	}
	s, ok := c.buffer(src)
	if !ok {
		return
	}
	d, ok := c.image(dst)
	if !ok {
		return
	}
	vk.CmdCopyBufferToImage(c.cb, s, d, dstLayout, uint32(len(regions)), regions)
}

func (c *commandBuffer) CopyImageToBuffer(src native.Image, srcLayout vk.ImageLayout, dst native.Buffer, regions []vk.BufferImageCopy) {
	if c.err != nil {
		return
	}
	s, ok := c.image(src)
	if !ok {
		return
	}
	d, ok := c.buffer(dst)
	if !ok {
		return
	}
	vk.CmdCopyImageToBuffer(c.cb, s, srcLayout, d, uint32(len(regions)), regions)
}

func (c *commandBuffer) ResolveImage(src native.Image, srcLayout vk.ImageLayout, dst native.Image, dstLayout vk.ImageLayout, regions []vk.ImageResolve) {
	if c.err != nil {
		return
	}
	s, ok := c.image(src)
	if !ok {
		return
	}
	d, ok := c.image(dst)
	if !ok {
		return
	}
	vk.CmdResolveImage(c.cb, s, srcLayout, d, dstLayout, uint32(len(regions)), regions)
}

func (c *commandBuffer) ClearColorImage(h native.Image, layout vk.ImageLayout, color native.ClearColorValue, ranges []vk.ImageSubresourceRange) {
	if c.err != nil {
		return
	}
	img, ok := c.image(h)
	if !ok {
		return
	}
	var value vk.ClearColorValue
	*(*native.ClearColorValue)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(c.cb, img, layout, &value, uint32(len(ranges)), ranges)
}

func (c *commandBuffer) ClearDepthStencilImage(h native.Image, layout vk.ImageLayout, value native.DepthStencilValue, ranges []vk.ImageSubresourceRange) {
	if c.err != nil {
		return
	}
	img, ok := c.image(h)
	if !ok {
		return
	}
	ds := vk.ClearDepthStencilValue{Depth: value.Depth, Stencil: value.Stencil}
	vk.CmdClearDepthStencilImage(c.cb, img, layout, &ds, uint32(len(ranges)), ranges)
}

func (c *commandBuffer) BeginRenderPass(h native.Framebuffer, area vk.Rect2D) {
	if c.err != nil {
		return
	}
	c.dev.mu.Lock()
	fb, ok := c.dev.fbs[h]
	c.dev.mu.Unlock()
	if !ok {
		c.fail("framebuffer", uint64(h))
		return
	}
	begin := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  fb.pass,
		Framebuffer: fb.handle,
		RenderArea:  area,
	}
	vk.CmdBeginRenderPass(c.cb, &begin, vk.SubpassContentsInline)
}

func (c *commandBuffer) ClearAttachments(attachments []native.ClearAttachment, rects []vk.ClearRect) {
	if c.err != nil {
		return
	}
	clears := make([]vk.ClearAttachment, len(attachments))
	for i, a := range attachments {
		clears[i] = vk.ClearAttachment{
			AspectMask:      a.Aspects,
			ColorAttachment: a.Attachment,
		}
		if a.Aspects&vk.ImageAspectFlags(vk.ImageAspectColorBit) != 0 {
			*(*native.ClearColorValue)(unsafe.Pointer(&clears[i].ClearValue)) = a.Color
		} else {
			clears[i].ClearValue = vk.NewClearDepthStencil(a.DepthStencil.Depth, a.DepthStencil.Stencil)
		}
	}
	vk.CmdClearAttachments(c.cb, uint32(len(clears)), clears, uint32(len(rects)), rects)
}

func (c *commandBuffer) EndRenderPass() {
	if c.err != nil {
		return
	}
	vk.CmdEndRenderPass(c.cb)
}
