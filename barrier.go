package texvk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

const shaderStages = vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit |
	vk.PipelineStageComputeShaderBit

const (
	stageTopOfPipe    = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	stageBottomOfPipe = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	stageTransfer     = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	stageHost         = vk.PipelineStageFlags(vk.PipelineStageHostBit)

	accessTransferRead  = vk.AccessFlags(vk.AccessTransferReadBit)
	accessTransferWrite = vk.AccessFlags(vk.AccessTransferWriteBit)
	accessHostRead      = vk.AccessFlags(vk.AccessHostReadBit)
)

// accessFromBind returns every access the bindings in b may perform.
func accessFromBind(b BindFlags) vk.AccessFlags {
	var f vk.AccessFlagBits
	if b&BindVertexBuffer != 0 {
		f |= vk.AccessVertexAttributeReadBit
	}
	if b&BindIndexBuffer != 0 {
		f |= vk.AccessIndexReadBit
	}
	if b&BindConstantBuffer != 0 {
		f |= vk.AccessUniformReadBit
	}
	if b&BindShaderResource != 0 {
		f |= vk.AccessShaderReadBit
	}
	if b&BindUnorderedAccess != 0 {
		f |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}
	if b&BindIndirectBuffer != 0 {
		f |= vk.AccessIndirectCommandReadBit
	}
	if b&BindRenderTarget != 0 {
		f |= vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
	}
	if b&BindDepthStencil != 0 {
		f |= vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit
	}
	if b&BindStreamOutput != 0 {
		f |= vk.AccessShaderWriteBit
	}
	return vk.AccessFlags(f)
}

// stagesFromBind returns the pipeline stages the bindings in b run in.
func stagesFromBind(b BindFlags) vk.PipelineStageFlags {
	var f vk.PipelineStageFlagBits
	if b&(BindVertexBuffer|BindIndexBuffer) != 0 {
		f |= vk.PipelineStageVertexInputBit
	}
	if b&(BindConstantBuffer|BindShaderResource|BindUnorderedAccess|BindStreamOutput) != 0 {
		f |= shaderStages
	}
	if b&BindIndirectBuffer != 0 {
		f |= vk.PipelineStageDrawIndirectBit
	}
	if b&BindRenderTarget != 0 {
		f |= vk.PipelineStageColorAttachmentOutputBit
	}
	if b&BindDepthStencil != 0 {
		f |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	return vk.PipelineStageFlags(f)
}

// layoutForBind maps bind usage to its optimal layout. It reports false
// when no usage in b has one.
func layoutForBind(b BindFlags) (vk.ImageLayout, bool) {
	switch {
	case b&BindUnorderedAccess != 0:
		return vk.ImageLayoutGeneral, true
	case b&BindRenderTarget != 0:
		return vk.ImageLayoutColorAttachmentOptimal, true
	case b&BindDepthStencil != 0:
		return vk.ImageLayoutDepthStencilAttachmentOptimal, true
	case b&BindShaderResource != 0:
		return vk.ImageLayoutShaderReadOnlyOptimal, true
	}
	return vk.ImageLayoutGeneral, false
}

// LayoutFromBind returns the layout the image must be in for bind usage b.
// A texture pinned to GENERAL stays there regardless of b.
func (t *Texture) LayoutFromBind(b BindFlags) vk.ImageLayout {
	if t.generic {
		return vk.ImageLayoutGeneral
	}
	l, _ := layoutForBind(b)
	return l
}

// transferLayout is the layout for transfers in direction dst, unless the
// image is pinned to GENERAL.
func (t *Texture) transferLayout(dst bool) vk.ImageLayout {
	if t.layout == vk.ImageLayoutGeneral {
		return vk.ImageLayoutGeneral
	}
	if dst {
		return vk.ImageLayoutTransferDstOptimal
	}
	return vk.ImageLayoutTransferSrcOptimal
}

// Barrier synchronises the image for bind usage b. A barrier is recorded
// only when the access pattern or the layout changes. Requesting unordered
// access pins the image to GENERAL for the rest of its life.
func (t *Texture) Barrier(c *Context, b BindFlags) error {
	if t.destroyed {
		return ErrDestroyed
	}
	if !t.allocated {
		return ErrNotAllocated
	}
	generic := t.generic || b&BindUnorderedAccess != 0
	newLayout := vk.ImageLayoutGeneral
	if !generic {
		var ok bool
		if newLayout, ok = layoutForBind(b); !ok {
			slogger().Error("texvk: no layout for bind flags, using GENERAL",
				"format", t.format.Name, "bind", fmt.Sprintf("%#x", uint32(b)))
		}
	}

	var src, bind BindFlags
	switch {
	case b&^readOnlyBind != 0 || newLayout != t.layout:
		src = t.bind & readOnlyBind
		if src == 0 {
			src = t.bind
		}
		bind = b
	case b&^t.bind != 0:
		src = t.bind &^ readOnlyBind
		bind = t.bind | b
	default:
		t.generic = generic
		return nil
	}
	if src == 0 && newLayout == t.layout {
		t.bind, t.generic = bind, generic
		return nil
	}

	// Tracking state only changes once the barrier can be recorded.
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	srcStages := stagesFromBind(src)
	if srcStages == 0 {
		srcStages = stageTopOfPipe
	}
	c.imageBarrier(cb, barrierDesc{
		srcStages: srcStages,
		dstStages: stagesFromBind(bind),
		srcAccess: accessFromBind(src),
		dstAccess: accessFromBind(bind),
		oldLayout: t.layout,
		newLayout: newLayout,
	}, &t.image, t.fullRange())
	t.bind, t.generic, t.layout = bind, generic, newLayout
	return nil
}

// MakeGeneric moves the image to GENERAL for good. It is used when the
// texture is bound for writing and sampling at once.
func (t *Texture) MakeGeneric(c *Context) error {
	if t.destroyed {
		return ErrDestroyed
	}
	if !t.allocated {
		return ErrNotAllocated
	}
	if t.generic {
		return nil
	}
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	c.imageBarrier(cb, barrierDesc{
		srcStages: t.bindStages(),
		dstStages: t.bindStages(),
		srcAccess: accessFromBind(t.bind),
		dstAccess: accessFromBind(t.bind),
		oldLayout: t.layout,
		newLayout: vk.ImageLayoutGeneral,
	}, &t.image, t.fullRange())
	t.layout = vk.ImageLayoutGeneral
	t.generic = true
	return nil
}

func (t *Texture) bindStages() vk.PipelineStageFlags {
	if s := stagesFromBind(t.bind); s != 0 {
		return s
	}
	return stageTopOfPipe
}

type barrierDesc struct {
	srcStages, dstStages vk.PipelineStageFlags
	srcAccess, dstAccess vk.AccessFlags
	oldLayout, newLayout vk.ImageLayout
}

// imageBarrier records one image barrier and pins img to the command buffer.
func (c *Context) imageBarrier(cb native.CommandBuffer, d barrierDesc, img *Image, r vk.ImageSubresourceRange) {
	c.reference(&img.Resource)
	cb.PipelineBarrier(d.srcStages, d.dstStages, nil, []native.ImageBarrier{{
		SrcAccess: d.srcAccess,
		DstAccess: d.dstAccess,
		OldLayout: d.oldLayout,
		NewLayout: d.newLayout,
		Image:     img.handle,
		Range:     r,
	}})
}

// bufferBarrier records one barrier over the whole of bo.
func (c *Context) bufferBarrier(cb native.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags,
	srcAccess, dstAccess vk.AccessFlags, bo *Bo) {
	c.reference(&bo.Resource)
	cb.PipelineBarrier(srcStages, dstStages, []native.BufferBarrier{{
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
		Buffer:    bo.buffer,
		Offset:    0,
		Size:      native.WholeSize,
	}}, nil)
}

// toTransfer moves subresource range r of the image into the transfer
// layout for direction dst and returns the barrier that undoes it.
func (t *Texture) toTransfer(c *Context, cb native.CommandBuffer, r vk.ImageSubresourceRange, dst bool) func() {
	access := accessTransferRead
	if dst {
		access = accessTransferWrite
	}
	layout := t.transferLayout(dst)
	c.imageBarrier(cb, barrierDesc{
		srcStages: t.bindStages(),
		dstStages: stageTransfer,
		srcAccess: accessFromBind(t.bind),
		dstAccess: access,
		oldLayout: t.layout,
		newLayout: layout,
	}, &t.image, r)
	return func() {
		dstStages := stagesFromBind(t.bind)
		if dstStages == 0 {
			dstStages = stageBottomOfPipe
		}
		c.imageBarrier(cb, barrierDesc{
			srcStages: stageTransfer,
			dstStages: dstStages,
			srcAccess: access,
			dstAccess: accessFromBind(t.bind),
			oldLayout: layout,
			newLayout: t.layout,
		}, &t.image, r)
	}
}
