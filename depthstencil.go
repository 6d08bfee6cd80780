package texvk

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"
)

const (
	aspectDepth   = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	aspectStencil = vk.ImageAspectFlags(vk.ImageAspectStencilBit)
)

// aspectPlanes splits a copy of a format whose depth and stencil share a
// texel into one tightly packed copy per aspect. Linear data keeps the
// packed texels, so these copies always go through a staging buffer.
func (p *planeCopy) aspectPlanes(f *Format) []planeCopy {
	depth, stencil := *p, *p
	depth.aspects, depth.bb = aspectDepth, f.layout.AspectBytes(aspectDepth)
	stencil.aspects, stencil.bb = aspectStencil, f.layout.AspectBytes(aspectStencil)
	for _, a := range []*planeCopy{&depth, &stencil} {
		a.offset, a.rowPitch, a.slicePitch = 0, 0, 0
	}
	return []planeCopy{depth, stencil}
}

// readPacked gathers the region of p from linear data into tightly packed
// texels. Buffer objects are read through a host mapping.
func (c *Context) readPacked(addr Address, p *planeCopy) ([]byte, error) {
	packed := make([]byte, p.packedSize())
	if addr.Bo == nil {
		copyLinear(packed, 0, 0, addr.Mem[addr.Offset+p.offset:], p.rowPitch, p.slicePitch, p.rowBytes(), p.rows(), p.extent.Depth)
		return packed, nil
	}
	mem, err := c.mapBo(addr.Bo)
	if err != nil {
		return nil, fmt.Errorf("texvk: read depth/stencil data: %w", err)
	}
	copyLinear(packed, 0, 0, mem[addr.Offset+p.offset:], p.rowPitch, p.slicePitch, p.rowBytes(), p.rows(), p.extent.Depth)
	return packed, c.unmapBo(addr.Bo, 0, 0)
}

// writePacked scatters tightly packed texels into the region of p in
// linear data.
func (c *Context) writePacked(addr Address, p *planeCopy, packed []byte) error {
	if addr.Bo == nil {
		copyLinear(addr.Mem[addr.Offset+p.offset:], p.rowPitch, p.slicePitch, packed, 0, 0, p.rowBytes(), p.rows(), p.extent.Depth)
		return nil
	}
	mem, err := c.mapBo(addr.Bo)
	if err != nil {
		return fmt.Errorf("texvk: write depth/stencil data: %w", err)
	}
	copyLinear(mem[addr.Offset+p.offset:], p.rowPitch, p.slicePitch, packed, 0, 0, p.rowBytes(), p.rows(), p.extent.Depth)
	return c.unmapBo(addr.Bo, addr.Offset+p.offset, p.span())
}

// uploadDepthStencil splits packed depth/stencil texels into a staging
// buffer and copies each aspect into the image.
func uploadDepthStencil(c *Context, t *Texture, sub uint32, src Address, p *planeCopy) error {
	packed, err := c.readPacked(src, p)
	if err != nil {
		return err
	}
	planes := p.aspectPlanes(t.format)
	depthSize := planes[0].packedSize()
	staging, release, err := c.stagingBo(planes, gputypes.BufferUsageCopySrc|gputypes.BufferUsageMapWrite)
	if err != nil {
		return err
	}
	defer release()
	data, err := c.mapBo(staging)
	if err != nil {
		return err
	}
	t.format.layout.SplitDepthStencil(data[:depthSize], data[depthSize:], packed)
	if err := c.unmapBo(staging, 0, staging.size); err != nil {
		return err
	}

	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	restore := t.toTransfer(c, cb, t.subRange(sub), true)
	c.reference(&staging.Resource)
	cb.CopyBufferToImage(staging.buffer, t.image.handle, t.transferLayout(true), []vk.BufferImageCopy{
		planes[0].region(0, 0, 0),
		planes[1].region(depthSize, 0, 0),
	})
	restore()
	return nil
}

// downloadDepthStencil copies each aspect into a staging buffer, waits for
// the copy and merges the aspects back into packed texels.
func downloadDepthStencil(c *Context, t *Texture, sub uint32, dst Address, p *planeCopy) error {
	planes := p.aspectPlanes(t.format)
	depthSize := planes[0].packedSize()
	staging, release, err := c.stagingBo(planes, gputypes.BufferUsageCopyDst|gputypes.BufferUsageMapRead)
	if err != nil {
		return err
	}
	defer release()

	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	restore := t.toTransfer(c, cb, t.subRange(sub), false)
	c.reference(&staging.Resource)
	cb.CopyImageToBuffer(t.image.handle, t.transferLayout(false), staging.buffer, []vk.BufferImageCopy{
		planes[0].region(0, 0, 0),
		planes[1].region(depthSize, 0, 0),
	})
	restore()
	c.bufferBarrier(cb, stageTransfer, stageHost, accessTransferWrite, accessHostRead, staging)

	data, err := c.mapBo(staging)
	if err != nil {
		return err
	}
	packed := make([]byte, p.packedSize())
	t.format.layout.MergeDepthStencil(packed, data[:depthSize], data[depthSize:])
	if err := c.unmapBo(staging, 0, 0); err != nil {
		return err
	}
	return c.writePacked(dst, p, packed)
}
