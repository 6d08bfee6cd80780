package software

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// The exec methods run with d.mu held.

func (d *Device) lookupImage(op Op, h native.Image) *image {
	img, ok := d.images[h]
	if !ok {
		d.invalidf("%s: image %d does not exist", op, h)
	}
	return img
}

func (d *Device) lookupBuffer(op Op, h native.Buffer) *buffer {
	buf, ok := d.buffers[h]
	if !ok {
		d.invalidf("%s: buffer %d does not exist", op, h)
	}
	return buf
}

// checkLayout validates that a subresource is in the layout a command
// claims, and that the claimed layout is one of allowed.
func (d *Device) checkLayout(op Op, h native.Image, img *image, level, layer uint32, layout vk.ImageLayout, allowed ...vk.ImageLayout) bool {
	ok := false
	for _, a := range allowed {
		if a == layout {
			ok = true
			break
		}
	}
	if !ok {
		d.invalidf("%s: layout %d is not valid for this command", op, layout)
		return false
	}
	if cur := img.layouts[img.index(level, layer)]; cur != layout {
		d.invalidf("%s: image %d level %d layer %d is in layout %d, command uses %d", op, h, level, layer, cur, layout)
		return false
	}
	return true
}

var (
	transferSrcLayouts = []vk.ImageLayout{vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutGeneral}
	transferDstLayouts = []vk.ImageLayout{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutGeneral}
)

const (
	depthAspect   = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	stencilAspect = vk.ImageAspectFlags(vk.ImageAspectStencilBit)
)

func (d *Device) execBarrier(buffers []native.BufferBarrier, images []native.ImageBarrier) {
	for _, b := range buffers {
		d.lookupBuffer(OpPipelineBarrier, b.Buffer)
	}
	for _, b := range images {
		img := d.lookupImage(OpPipelineBarrier, b.Image)
		if img == nil {
			continue
		}
		baseLevel, levels := img.levels(b.Range.BaseMipLevel, b.Range.LevelCount)
		baseLayer, layers := img.layers(b.Range.BaseArrayLayer, b.Range.LayerCount)
		for layer := baseLayer; layer < baseLayer+layers; layer++ {
			for level := baseLevel; level < baseLevel+levels; level++ {
				i := img.index(level, layer)
				if b.OldLayout != vk.ImageLayoutUndefined && img.layouts[i] != b.OldLayout {
					d.invalidf("PipelineBarrier: image %d level %d layer %d is in layout %d, barrier expects %d",
						b.Image, level, layer, img.layouts[i], b.OldLayout)
				}
				img.layouts[i] = b.NewLayout
			}
		}
	}
}

func (d *Device) execCopyBuffer(src, dst native.Buffer, regions []vk.BufferCopy) {
	s := d.lookupBuffer(OpCopyBuffer, src)
	t := d.lookupBuffer(OpCopyBuffer, dst)
	if s == nil || t == nil {
		return
	}
	for _, r := range regions {
		so, do, n := uint64(r.SrcOffset), uint64(r.DstOffset), uint64(r.Size)
		if so+n > uint64(len(s.data)) || do+n > uint64(len(t.data)) {
			d.invalidf("CopyBuffer: region out of bounds")
			continue
		}
		copy(t.data[do:do+n], s.data[so:so+n])
	}
}

// execBufferImage copies between a buffer and an image in either direction.
func (d *Device) execBufferImage(bh native.Buffer, ih native.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy, toImage bool) {
	op, allowed := OpCopyImageToBuffer, transferSrcLayouts
	if toImage {
		op, allowed = OpCopyBufferToImage, transferDstLayouts
	}
	buf := d.lookupBuffer(op, bh)
	img := d.lookupImage(op, ih)
	if buf == nil || img == nil {
		return
	}
	if img.samples > 1 {
		d.invalidf("%s: image %d is multisampled", op, ih)
		return
	}
	// Depth and stencil sharing a texel are copied one aspect at a time,
	// each with its own buffer texel size.
	combined := img.info.CombinedDepthStencil()
	for _, r := range regions {
		sub := r.ImageSubresource
		p := img.plane(sub.MipLevel, sub.AspectMask)
		if !p.contains(r.ImageOffset.X, r.ImageOffset.Y, r.ImageOffset.Z, r.ImageExtent) {
			d.invalidf("%s: region exceeds image %d level %d", op, ih, sub.MipLevel)
			continue
		}
		texel := p.bb
		if combined {
			if sub.AspectMask != depthAspect && sub.AspectMask != stencilAspect {
				d.invalidf("%s: region of image %d selects aspects %#x, want depth or stencil", op, ih, sub.AspectMask)
				continue
			}
			texel = img.info.AspectBytes(sub.AspectMask)
		}
		rowLength, imageHeight := r.BufferRowLength, r.BufferImageHeight
		if rowLength == 0 {
			rowLength = r.ImageExtent.Width
		}
		if imageHeight == 0 {
			imageHeight = r.ImageExtent.Height
		}
		blocks := func(w uint32) uint32 { return (w + p.bw - 1) / p.bw }
		bufRow := blocks(rowLength) * texel
		bufSlice := bufRow * p.blockRows(imageHeight)
		bufRowBytes := blocks(r.ImageExtent.Width) * texel
		imgRowBytes := p.rowBytes(r.ImageExtent.Width)
		rows := p.blockRows(r.ImageExtent.Height)
		layerBytes := bufSlice * r.ImageExtent.Depth

		for l := uint32(0); l < sub.LayerCount; l++ {
			layer := sub.BaseArrayLayer + l
			if layer >= img.desc.ArrayLayers {
				d.invalidf("%s: layer %d out of range", op, layer)
				break
			}
			if !d.checkLayout(op, ih, img, sub.MipLevel, layer, layout, allowed...) {
				continue
			}
			data := img.data[img.index(sub.MipLevel, layer)][0]
			for z := uint32(0); z < r.ImageExtent.Depth; z++ {
				for y := uint32(0); y < rows; y++ {
					bo := uint64(r.BufferOffset) + uint64(l*layerBytes+z*bufSlice+y*bufRow)
					io := p.offset(uint32(r.ImageOffset.X), uint32(r.ImageOffset.Y)+y*p.bh, uint32(r.ImageOffset.Z)+z)
					if bo+uint64(bufRowBytes) > uint64(len(buf.data)) {
						d.invalidf("%s: buffer %d too small for region", op, bh)
						return
					}
					bufRowData := buf.data[bo : bo+uint64(bufRowBytes)]
					imgRowData := data[io : io+imgRowBytes]
					switch {
					case combined:
						for x := uint32(0); x < r.ImageExtent.Width; x++ {
							it := imgRowData[x*p.bb : (x+1)*p.bb]
							bt := bufRowData[x*texel : (x+1)*texel]
							if toImage {
								img.info.InsertAspect(it, bt, sub.AspectMask)
							} else {
								img.info.ExtractAspect(bt, it, sub.AspectMask)
							}
						}
					case toImage:
						copy(imgRowData, bufRowData)
					default:
						copy(bufRowData, imgRowData)
					}
				}
			}
		}
	}
}

func (d *Device) execCopyImage(sh native.Image, srcLayout vk.ImageLayout, dh native.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	src := d.lookupImage(OpCopyImage, sh)
	dst := d.lookupImage(OpCopyImage, dh)
	if src == nil || dst == nil {
		return
	}
	if src.samples != dst.samples {
		d.invalidf("CopyImage: sample counts differ (%d, %d)", src.samples, dst.samples)
		return
	}
	for _, r := range regions {
		sp := src.plane(r.SrcSubresource.MipLevel, r.SrcSubresource.AspectMask)
		dp := dst.plane(r.DstSubresource.MipLevel, r.DstSubresource.AspectMask)
		if sp.bb != dp.bb {
			d.invalidf("CopyImage: incompatible block sizes %d and %d", sp.bb, dp.bb)
			continue
		}
		if !sp.contains(r.SrcOffset.X, r.SrcOffset.Y, r.SrcOffset.Z, r.Extent) ||
			!dp.contains(r.DstOffset.X, r.DstOffset.Y, r.DstOffset.Z, r.Extent) {
			d.invalidf("CopyImage: region out of bounds")
			continue
		}
		rowBytes := sp.rowBytes(r.Extent.Width)
		rows := sp.blockRows(r.Extent.Height)
		for l := uint32(0); l < r.SrcSubresource.LayerCount; l++ {
			sl, dl := r.SrcSubresource.BaseArrayLayer+l, r.DstSubresource.BaseArrayLayer+l
			if sl >= src.desc.ArrayLayers || dl >= dst.desc.ArrayLayers {
				d.invalidf("CopyImage: layer out of range")
				break
			}
			if !d.checkLayout(OpCopyImage, sh, src, r.SrcSubresource.MipLevel, sl, srcLayout, transferSrcLayouts...) ||
				!d.checkLayout(OpCopyImage, dh, dst, r.DstSubresource.MipLevel, dl, dstLayout, transferDstLayouts...) {
				continue
			}
			sdata := src.data[src.index(r.SrcSubresource.MipLevel, sl)]
			ddata := dst.data[dst.index(r.DstSubresource.MipLevel, dl)]
			for s := range sdata {
				for z := uint32(0); z < r.Extent.Depth; z++ {
					for y := uint32(0); y < rows; y++ {
						so := sp.offset(uint32(r.SrcOffset.X), uint32(r.SrcOffset.Y)+y*sp.bh, uint32(r.SrcOffset.Z)+z)
						do := dp.offset(uint32(r.DstOffset.X), uint32(r.DstOffset.Y)+y*dp.bh, uint32(r.DstOffset.Z)+z)
						copy(ddata[s][do:do+rowBytes], sdata[s][so:so+rowBytes])
					}
				}
			}
		}
	}
}

func (d *Device) execResolve(sh native.Image, srcLayout vk.ImageLayout, dh native.Image, dstLayout vk.ImageLayout, regions []vk.ImageResolve) {
	src := d.lookupImage(OpResolveImage, sh)
	dst := d.lookupImage(OpResolveImage, dh)
	if src == nil || dst == nil {
		return
	}
	if src.samples < 2 || dst.samples != 1 {
		d.invalidf("ResolveImage: need a multisampled source and a single sampled destination")
		return
	}
	if src.desc.Format != dst.desc.Format {
		d.invalidf("ResolveImage: formats differ (%d, %d)", src.desc.Format, dst.desc.Format)
		return
	}
	info := src.info
	bb := info.BlockBytes
	for _, r := range regions {
		sp := src.plane(r.SrcSubresource.MipLevel, r.SrcSubresource.AspectMask)
		dp := dst.plane(r.DstSubresource.MipLevel, r.DstSubresource.AspectMask)
		if !sp.contains(r.SrcOffset.X, r.SrcOffset.Y, r.SrcOffset.Z, r.Extent) ||
			!dp.contains(r.DstOffset.X, r.DstOffset.Y, r.DstOffset.Z, r.Extent) {
			d.invalidf("ResolveImage: region out of bounds")
			continue
		}
		for l := uint32(0); l < r.SrcSubresource.LayerCount; l++ {
			sl, dl := r.SrcSubresource.BaseArrayLayer+l, r.DstSubresource.BaseArrayLayer+l
			if !d.checkLayout(OpResolveImage, sh, src, r.SrcSubresource.MipLevel, sl, srcLayout, transferSrcLayouts...) ||
				!d.checkLayout(OpResolveImage, dh, dst, r.DstSubresource.MipLevel, dl, dstLayout, transferDstLayouts...) {
				continue
			}
			sdata := src.data[src.index(r.SrcSubresource.MipLevel, sl)]
			ddata := dst.data[dst.index(r.DstSubresource.MipLevel, dl)][0]
			for z := uint32(0); z < r.Extent.Depth; z++ {
				for y := uint32(0); y < r.Extent.Height; y++ {
					for x := uint32(0); x < r.Extent.Width; x++ {
						so := sp.offset(uint32(r.SrcOffset.X)+x, uint32(r.SrcOffset.Y)+y, uint32(r.SrcOffset.Z)+z)
						do := dp.offset(uint32(r.DstOffset.X)+x, uint32(r.DstOffset.Y)+y, uint32(r.DstOffset.Z)+z)
						resolveTexel(info.UnpackColor, info.PackColor, info.Color[0].Bits != 0,
							ddata[do:do+bb], sdata, so, bb)
					}
				}
			}
		}
	}
}

// resolveTexel averages one texel over all samples. Formats without colour
// channels take the first sample.
func resolveTexel(unpack func([]byte) [4]float64, pack func([4]float64) []byte, color bool, dst []byte, samples [][]byte, off, bb uint32) {
	if !color {
		copy(dst, samples[0][off:off+bb])
		return
	}
	var sum [4]float64
	for _, s := range samples {
		c := unpack(s[off : off+bb])
		for i := range sum {
			sum[i] += c[i]
		}
	}
	n := float64(len(samples))
	for i := range sum {
		sum[i] /= n
	}
	copy(dst, pack(sum))
}

func (d *Device) execClearImage(h native.Image, layout vk.ImageLayout, ranges []vk.ImageSubresourceRange, color *native.ClearColorValue, ds *native.DepthStencilValue) {
	op := OpClearColorImage
	if ds != nil {
		op = OpClearDepthStencilImage
	}
	img := d.lookupImage(op, h)
	if img == nil {
		return
	}
	info := img.info
	if info.Compressed {
		d.invalidf("%s: image %d has a compressed format", op, h)
		return
	}
	if color != nil && info.HasDepthOrStencil() || ds != nil && !info.HasDepthOrStencil() {
		d.invalidf("%s: clear type does not match image %d format", op, h)
		return
	}
	var block []byte
	if color != nil {
		block = info.PackClear(*color)
	}
	for _, r := range ranges {
		baseLevel, levels := img.levels(r.BaseMipLevel, r.LevelCount)
		baseLayer, layers := img.layers(r.BaseArrayLayer, r.LayerCount)
		for layer := baseLayer; layer < baseLayer+layers; layer++ {
			for level := baseLevel; level < baseLevel+levels; level++ {
				if !d.checkLayout(op, h, img, level, layer, layout, transferDstLayouts...) {
					continue
				}
				p := img.plane(level, 0)
				n := p.slice * p.d
				for _, data := range img.data[img.index(level, layer)] {
					for o := uint32(0); o < n; o += p.bb {
						if ds != nil {
							info.WriteDepthStencil(data[o:o+p.bb], r.AspectMask, ds.Depth, ds.Stencil)
						} else {
							copy(data[o:o+p.bb], block)
						}
					}
				}
			}
		}
	}
}

func (d *Device) execBeginPass(h native.Framebuffer, area vk.Rect2D) {
	fb, ok := d.framebuffers[h]
	if !ok {
		d.invalidf("BeginRenderPass: framebuffer %d does not exist", h)
		return
	}
	if area.Offset.X < 0 || area.Offset.Y < 0 ||
		uint32(area.Offset.X)+area.Extent.Width > fb.desc.Width ||
		uint32(area.Offset.Y)+area.Extent.Height > fb.desc.Height {
		d.invalidf("BeginRenderPass: render area exceeds framebuffer %d", h)
	}
	for _, a := range fb.desc.Attachments {
		v, ok := d.views[a.View]
		if !ok {
			d.invalidf("BeginRenderPass: view %d does not exist", a.View)
			continue
		}
		img := d.lookupImage(OpBeginRenderPass, v.image)
		if img == nil {
			continue
		}
		level := v.desc.Range.BaseMipLevel
		base, count := img.layers(v.desc.Range.BaseArrayLayer, v.desc.Range.LayerCount)
		for layer := base; layer < base+count; layer++ {
			if cur := img.layouts[img.index(level, layer)]; cur != a.Layout {
				d.invalidf("BeginRenderPass: attachment image %d is in layout %d, render pass uses %d", v.image, cur, a.Layout)
			}
		}
	}
}

func (d *Device) execClearAttachments(h native.Framebuffer, attachments []native.ClearAttachment, rects []vk.ClearRect) {
	fb, ok := d.framebuffers[h]
	if !ok {
		d.invalidf("ClearAttachments: framebuffer %d does not exist", h)
		return
	}
	for _, ca := range attachments {
		if int(ca.Attachment) >= len(fb.desc.Attachments) {
			d.invalidf("ClearAttachments: attachment %d out of range", ca.Attachment)
			continue
		}
		v, ok := d.views[fb.desc.Attachments[ca.Attachment].View]
		if !ok {
			d.invalidf("ClearAttachments: view does not exist")
			continue
		}
		img := d.lookupImage(OpClearAttachments, v.image)
		if img == nil {
			continue
		}
		info := img.info
		level := v.desc.Range.BaseMipLevel
		p := img.plane(level, 0)
		var block []byte
		colorAspect := ca.Aspects&vk.ImageAspectFlags(vk.ImageAspectColorBit) != 0
		if colorAspect {
			block = info.PackClear(ca.Color)
		}
		for _, r := range rects {
			x0, y0 := uint32(r.Rect.Offset.X), uint32(r.Rect.Offset.Y)
			if r.Rect.Offset.X < 0 || r.Rect.Offset.Y < 0 ||
				x0+r.Rect.Extent.Width > fb.desc.Width || y0+r.Rect.Extent.Height > fb.desc.Height ||
				x0+r.Rect.Extent.Width > p.w || y0+r.Rect.Extent.Height > p.h {
				d.invalidf("ClearAttachments: rect exceeds attachment")
				continue
			}
			for l := uint32(0); l < r.LayerCount; l++ {
				layer := v.desc.Range.BaseArrayLayer + r.BaseArrayLayer + l
				if layer >= img.desc.ArrayLayers {
					break
				}
				for _, data := range img.data[img.index(level, layer)] {
					for y := y0; y < y0+r.Rect.Extent.Height; y++ {
						for x := x0; x < x0+r.Rect.Extent.Width; x++ {
							o := p.offset(x, y, 0)
							if colorAspect {
								copy(data[o:o+p.bb], block)
							} else {
								info.WriteDepthStencil(data[o:o+p.bb], ca.Aspects, ca.DepthStencil.Depth, ca.DepthStencil.Stencil)
							}
						}
					}
				}
			}
		}
	}
}
