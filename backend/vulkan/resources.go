//go:build !novulkan

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// CreateImage implements native.Device. Images use optimal tiling and
// device local memory.
func (d *Device) CreateImage(desc *native.ImageDesc) (native.Image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     desc.Flags,
		ImageType: desc.Type,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.Depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Samples:       desc.Samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := check("vkCreateImage", vk.CreateImage(d.device, &info, nil, &img)); err != nil {
		return native.Null, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	req.Deref()
	mem, _, err := d.allocate(&req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return native.Null, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.device, img, mem, 0)); err != nil {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyImage(d.device, img, nil)
		return native.Null, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := native.Image(d.handle())
	d.images[h] = &image{handle: img, memory: mem}
	return h, nil
}

// DestroyImage implements native.Device.
func (d *Device) DestroyImage(h native.Image) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return
	}
	delete(d.images, h)
	vk.DestroyImage(d.device, img.handle, nil)
	vk.FreeMemory(d.device, img.memory, nil)
}

// CreateImageView implements native.Device.
func (d *Device) CreateImageView(desc *native.ImageViewDesc) (native.ImageView, error) {
	d.mu.Lock()
	img, ok := d.images[desc.Image]
	d.mu.Unlock()
	if !ok {
		return native.Null, fmt.Errorf("vulkan: create view: %w", native.ErrInvalidHandle)
	}

	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: desc.ViewType,
		Format:   desc.Format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: desc.Range,
	}
	var v vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.device, &info, nil, &v)); err != nil {
		return native.Null, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := native.ImageView(d.handle())
	d.views[h] = v
	return h, nil
}

// DestroyImageView implements native.Device.
func (d *Device) DestroyImageView(h native.ImageView) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.views[h]
	if !ok {
		return
	}
	delete(d.views, h)
	vk.DestroyImageView(d.device, v, nil)
}

// CreateBuffer implements native.Device.
func (d *Device) CreateBuffer(desc *native.BufferDesc) (native.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       desc.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.device, &info, nil, &buf)); err != nil {
		return native.Null, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &req)
	req.Deref()
	mem, props, err := d.allocate(&req, desc.Memory)
	if err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return native.Null, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.device, buf, mem, 0)); err != nil {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return native.Null, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := native.Buffer(d.handle())
	d.buffers[h] = &buffer{handle: buf, memory: mem, size: desc.Size, props: props}
	return h, nil
}

// DestroyBuffer implements native.Device. A mapped buffer is unmapped
// first.
func (d *Device) DestroyBuffer(h native.Buffer) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok {
		return
	}
	delete(d.buffers, h)
	if buf.mapped != nil {
		vk.UnmapMemory(d.device, buf.memory)
	}
	vk.DestroyBuffer(d.device, buf.handle, nil)
	vk.FreeMemory(d.device, buf.memory, nil)
}

func (d *Device) buffer(h native.Buffer) (*buffer, error) {
	buf, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("vulkan: buffer %d: %w", h, native.ErrInvalidHandle)
	}
	return buf, nil
}

// MapBuffer implements native.Device. Mapping an already mapped buffer
// returns the existing mapping.
func (d *Device) MapBuffer(h native.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.buffer(h)
	if err != nil {
		return nil, err
	}
	if buf.mapped != nil {
		return buf.mapped, nil
	}
	if buf.props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
		return nil, native.ErrNotHostVisible
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(d.device, buf.memory, 0, vk.DeviceSize(buf.size), 0, &ptr)); err != nil {
		return nil, err
	}
	buf.mapped = unsafe.Slice((*byte)(ptr), buf.size)
	return buf.mapped, nil
}

// UnmapBuffer implements native.Device.
func (d *Device) UnmapBuffer(h native.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok || buf.mapped == nil {
		return
	}
	vk.UnmapMemory(d.device, buf.memory)
	buf.mapped = nil
}

// FlushMappedRange implements native.Device.
func (d *Device) FlushMappedRange(h native.Buffer, offset, size uint64) error {
	r, err := d.mappedRange(h, offset, size)
	if err != nil || r == nil {
		return err
	}
	return check("vkFlushMappedMemoryRanges", vk.FlushMappedMemoryRanges(d.device, 1, r))
}

// InvalidateMappedRange implements native.Device.
func (d *Device) InvalidateMappedRange(h native.Buffer, offset, size uint64) error {
	r, err := d.mappedRange(h, offset, size)
	if err != nil || r == nil {
		return err
	}
	return check("vkInvalidateMappedMemoryRanges", vk.InvalidateMappedMemoryRanges(d.device, 1, r))
}

// mappedRange expands [offset, offset+size) to the non-coherent atom size.
// It returns nil for coherent memory, which needs no explicit flush.
func (d *Device) mappedRange(h native.Buffer, offset, size uint64) ([]vk.MappedMemoryRange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.buffer(h)
	if err != nil {
		return nil, err
	}
	if buf.mapped == nil {
		return nil, fmt.Errorf("vulkan: buffer %d is not mapped: %w", h, native.ErrInvalidHandle)
	}
	if buf.props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		return nil, nil
	}

	start := offset / d.atomSize * d.atomSize
	var length vk.DeviceSize
	if size == native.WholeSize || offset+size >= buf.size {
		length = vk.DeviceSize(native.WholeSize)
	} else {
		end := (offset + size + d.atomSize - 1) / d.atomSize * d.atomSize
		length = vk.DeviceSize(end - start)
	}
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: buf.memory,
		Offset: vk.DeviceSize(start),
		Size:   length,
	}}, nil
}

// CreateFramebuffer implements native.Device. Every framebuffer owns a
// render pass with a single subpass using all colour attachments and at
// most one depth/stencil attachment. Attachments are loaded and stored and
// stay in their layout.
func (d *Device) CreateFramebuffer(desc *native.FramebufferDesc) (native.Framebuffer, error) {
	var (
		attachments = make([]vk.AttachmentDescription, len(desc.Attachments))
		views       = make([]vk.ImageView, len(desc.Attachments))
		colorRefs   []vk.AttachmentReference
		depthRef    *vk.AttachmentReference
	)

	d.mu.Lock()
	for i, a := range desc.Attachments {
		v, ok := d.views[a.View]
		if !ok {
			d.mu.Unlock()
			return native.Null, fmt.Errorf("vulkan: framebuffer attachment %d: %w", i, native.ErrInvalidHandle)
		}
		views[i] = v
	}
	d.mu.Unlock()

	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        a.Samples,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  a.Layout,
			FinalLayout:    a.Layout,
		}
		ref := vk.AttachmentReference{Attachment: uint32(i), Layout: a.Layout}
		if a.Aspects&vk.ImageAspectFlags(vk.ImageAspectColorBit) != 0 {
			colorRefs = append(colorRefs, ref)
		} else if depthRef == nil {
			depthRef = &ref
		}
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    uint32(len(colorRefs)),
			PColorAttachments:       colorRefs,
			PDepthStencilAttachment: depthRef,
		}},
	}
	var pass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.device, &passInfo, nil, &pass)); err != nil {
		return native.Null, err
	}

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          max(desc.Layers, 1),
	}
	var fb vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.device, &fbInfo, nil, &fb)); err != nil {
		vk.DestroyRenderPass(d.device, pass, nil)
		return native.Null, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := native.Framebuffer(d.handle())
	d.fbs[h] = &framebuffer{handle: fb, pass: pass}
	return h, nil
}

// DestroyFramebuffer implements native.Device.
func (d *Device) DestroyFramebuffer(h native.Framebuffer) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.fbs[h]
	if !ok {
		return
	}
	delete(d.fbs, h)
	vk.DestroyFramebuffer(d.device, fb.handle, nil)
	vk.DestroyRenderPass(d.device, fb.pass, nil)
}
