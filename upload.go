package texvk

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// UploadRequest copies a region of linear data into one subresource.
type UploadRequest struct {
	// Src addresses the data. SrcBox selects the region relative to it.
	Src        Address
	Format     FormatID
	SrcBox     Box
	RowPitch   uint32
	SlicePitch uint32

	Dst         *Texture
	DstSub      uint32
	DstLocation Location
	DstOrigin   gputypes.Origin3D
}

// DownloadRequest copies a region of one subresource into linear data.
type DownloadRequest struct {
	Src         *Texture
	SrcSub      uint32
	SrcLocation Location
	SrcBox      Box

	// Dst addresses the data. DstOrigin selects where in it the region goes.
	Dst        Address
	Format     FormatID
	DstOrigin  gputypes.Origin3D
	RowPitch   uint32
	SlicePitch uint32
}

const bufferWriteAccess = vk.AccessFlags(vk.AccessTransferWriteBit | vk.AccessShaderWriteBit | vk.AccessHostWriteBit)

// planeCopy is one buffer/image copy of a single aspect plane.
type planeCopy struct {
	aspects vk.ImageAspectFlags
	level   uint32
	layer   uint32
	origin  vk.Offset3D
	extent  vk.Extent3D

	// offset of the region in the linear data.
	offset     uint64
	rowPitch   uint32
	slicePitch uint32

	bw, bh, bb uint32
}

func (p *planeCopy) rowBytes() uint32 { return (p.extent.Width + p.bw - 1) / p.bw * p.bb }

func (p *planeCopy) rows() uint32 { return (p.extent.Height + p.bh - 1) / p.bh }

func (p *planeCopy) packedSize() uint64 {
	return uint64(p.rowBytes()) * uint64(p.rows()) * uint64(p.extent.Depth)
}

// span returns the bytes the region covers in linear data.
func (p *planeCopy) span() uint64 {
	row := uint64(p.rowPitch)
	if row == 0 {
		row = uint64(p.rowBytes())
	}
	slice := uint64(p.slicePitch)
	if slice == 0 {
		slice = row * uint64(p.rows())
	}
	return uint64(p.extent.Depth-1)*slice + uint64(p.rows()-1)*row + uint64(p.rowBytes())
}

func (p *planeCopy) region(bufferOffset uint64, rowPitch, slicePitch uint32) vk.BufferImageCopy {
	r := vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(bufferOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     p.aspects,
			MipLevel:       p.level,
			BaseArrayLayer: p.layer,
			LayerCount:     1,
		},
		ImageOffset: p.origin,
		ImageExtent: p.extent,
	}
	if rowPitch != 0 {
		r.BufferRowLength = rowPitch / p.bb * p.bw
		if slicePitch != 0 {
			r.BufferImageHeight = slicePitch / rowPitch * p.bh
		}
	}
	return r
}

// linearOffset returns the byte offset of texel (x, y, z) in linear data.
func linearOffset(x, y, z, rowPitch, slicePitch, bw, bh, bb uint32) uint64 {
	return uint64(z)*uint64(slicePitch) + uint64(y/bh)*uint64(rowPitch) + uint64(x/bw)*uint64(bb)
}

// zeroPitches drops the pitches the resource type does not use.
func (t *Texture) zeroPitches(row, slice uint32) (uint32, uint32) {
	switch t.desc.Dimension {
	case gputypes.TextureDimension1D:
		return 0, 0
	case gputypes.TextureDimension3D:
		return row, slice
	default:
		return row, 0
	}
}

// planes splits a copy of box at origin into one copy per aspect plane.
// Origins and boxes are texture texel coordinates, linear is the texel
// position in the linear data.
func (t *Texture) planes(sub uint32, imageBox Box, linear gputypes.Origin3D, row, slice uint32) []planeCopy {
	level, layer := t.splitIndex(sub)
	f := t.format
	luma := planeCopy{
		aspects: f.Aspects(),
		level:   level,
		layer:   layer,
		origin:  vk.Offset3D{X: int32(imageBox.Left), Y: int32(imageBox.Top), Z: int32(imageBox.Front)},
		extent:  vk.Extent3D{Width: imageBox.Width(), Height: imageBox.Height(), Depth: imageBox.Depth()},
		bw:      f.BlockWidth,
		bh:      f.BlockHeight,
		bb:      f.BlockBytes,
	}
	zrow, zslice := t.zeroPitches(row, slice)
	luma.rowPitch, luma.slicePitch = zrow, zslice
	luma.offset = linearOffset(linear.X, linear.Y, linear.Z, zrow, zslice, f.BlockWidth, f.BlockHeight, f.BlockBytes)
	if !f.IsPlanar() {
		return []planeCopy{luma}
	}

	uvW, uvH := f.UVWidth, f.UVHeight
	cb := imageBox.subsample(uvW, uvH)
	chroma := planeCopy{
		aspects:  native.AspectPlane1,
		level:    level,
		layer:    layer,
		origin:   vk.Offset3D{X: int32(cb.Left), Y: int32(cb.Top), Z: int32(cb.Front)},
		extent:   vk.Extent3D{Width: cb.Width(), Height: cb.Height(), Depth: cb.Depth()},
		rowPitch: row / uvW * f.chromaBytes() / f.BlockBytes,
		bw:       1,
		bh:       1,
		bb:       f.chromaBytes(),
	}
	// Chroma follows the luma plane in linear data. The slice pitch is the
	// luma plane size; without one the plane ends at the last row of the
	// region.
	planeSize := uint64(slice)
	if planeSize == 0 {
		lumaRow := uint64(row)
		if lumaRow == 0 {
			lumaRow = uint64(luma.rowBytes())
		}
		planeSize = lumaRow * uint64(linear.Y/f.BlockHeight+luma.rows())
	}
	chroma.offset = planeSize + linearOffset(linear.X/uvW, linear.Y/uvH, 0, chroma.rowPitch, 0, 1, 1, chroma.bb)
	luma.aspects = native.AspectPlane0
	return []planeCopy{luma, chroma}
}

// checkLinear validates the linear side of a copy.
func checkLinear(t *Texture, addr Address, planes []planeCopy) error {
	if addr.Bo == nil && addr.Mem == nil {
		return fmt.Errorf("%w: no linear address", ErrInvalidLocation)
	}
	for i := range planes {
		p := &planes[i]
		if p.rowPitch != 0 && p.rowPitch < p.rowBytes() {
			return fmt.Errorf("%w: row pitch %d below row size %d", ErrOutOfRange, p.rowPitch, p.rowBytes())
		}
		size := uint64(len(addr.Mem))
		if addr.Bo != nil {
			size = addr.Bo.size
		}
		if end := addr.Offset + p.offset + p.span(); end > size {
			return fmt.Errorf("%w: region ends at byte %d of %d", ErrOutOfRange, end, size)
		}
		if addr.Bo == nil {
			continue
		}
		if p.rowPitch%p.bb != 0 || p.rowPitch != 0 && p.slicePitch%p.rowPitch != 0 {
			slogger().Warn("texvk: unsupported pitch alignment",
				"format", t.format.Name, "row_pitch", p.rowPitch, "slice_pitch", p.slicePitch)
			return fmt.Errorf("%w: row pitch %d, slice pitch %d, block size %d",
				ErrPitchAlignment, p.rowPitch, p.slicePitch, p.bb)
		}
		if off := addr.Offset + p.offset; off%4 != 0 || off%uint64(p.bb) != 0 {
			slogger().Warn("texvk: unsupported buffer offset alignment", "format", t.format.Name, "offset", off)
			return fmt.Errorf("%w: buffer offset %d", ErrPitchAlignment, off)
		}
	}
	return nil
}

// checkTransfer validates the image side of a copy.
func checkTransfer(t *Texture, sub uint32, loc Location, format FormatID, box Box) error {
	if err := t.checkSub(sub); err != nil {
		return err
	}
	if loc != LocationTextureRGB {
		return fmt.Errorf("%w: transfer to %v", ErrUnsupported, loc)
	}
	if format != FormatUnknown && format != t.format.ID {
		slogger().Warn("texvk: transfer format differs from texture format",
			"format", format, "texture_format", t.format.Name)
		return fmt.Errorf("%w: %v and %s", ErrFormatMismatch, format, t.format.Name)
	}
	if t.Multisampled() {
		slogger().Warn("texvk: transfer of multisampled texture", "samples", t.desc.Samples)
		return ErrMultisample
	}
	if !t.allocated {
		return ErrNotAllocated
	}
	level, _ := t.splitIndex(sub)
	if box.IsEmpty() || box.Right > t.LevelWidth(level) || box.Bottom > t.LevelHeight(level) || box.Back > t.LevelDepth(level) {
		return fmt.Errorf("%w: box %+v of level %d", ErrOutOfRange, box, level)
	}
	if t.format.IsPlanar() && (box.Left%t.format.UVWidth != 0 || box.Top%t.format.UVHeight != 0 ||
		box.Width()%t.format.UVWidth != 0 || box.Height()%t.format.UVHeight != 0) {
		return fmt.Errorf("%w: box %+v is not aligned to chroma subsampling", ErrOutOfRange, box)
	}
	return nil
}

// copyLinear copies rows × depth rows of rowBytes between two linear
// layouts. A zero pitch means the rows or slices are tightly packed.
func copyLinear(dst []byte, dstRow, dstSlice uint32, src []byte, srcRow, srcSlice uint32, rowBytes, rows, depth uint32) {
	if dstRow == 0 {
		dstRow = rowBytes
	}
	if srcRow == 0 {
		srcRow = rowBytes
	}
	if dstSlice == 0 {
		dstSlice = dstRow * rows
	}
	if srcSlice == 0 {
		srcSlice = srcRow * rows
	}
	for z := uint32(0); z < depth; z++ {
		for y := uint32(0); y < rows; y++ {
			so := z*srcSlice + y*srcRow
			do := z*dstSlice + y*dstRow
			copy(dst[do:do+rowBytes], src[so:so+rowBytes])
		}
	}
}

// UploadData records a copy of linear data into the image of a
// subresource, one copy command per plane. Host memory goes through a
// staging buffer, buffer objects are copied from directly.
func UploadData(c *Context, req *UploadRequest) error {
	t := req.Dst
	if t == nil {
		return fmt.Errorf("%w: no destination texture", ErrInvalidDesc)
	}
	box := Box{
		Left: req.DstOrigin.X, Top: req.DstOrigin.Y, Front: req.DstOrigin.Z,
		Right:  req.DstOrigin.X + req.SrcBox.Width(),
		Bottom: req.DstOrigin.Y + req.SrcBox.Height(),
		Back:   req.DstOrigin.Z + req.SrcBox.Depth(),
	}
	if err := checkTransfer(t, req.DstSub, req.DstLocation, req.Format, box); err != nil {
		return err
	}
	linear := gputypes.Origin3D{X: req.SrcBox.Left, Y: req.SrcBox.Top, Z: req.SrcBox.Front}
	planes := t.planes(req.DstSub, box, linear, req.RowPitch, req.SlicePitch)
	if err := checkLinear(t, req.Src, planes); err != nil {
		return err
	}
	if t.format.layout.CombinedDepthStencil() {
		return uploadDepthStencil(c, t, req.DstSub, req.Src, &planes[0])
	}

	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	regions := make([]vk.BufferImageCopy, len(planes))
	src := req.Src.Bo
	if src == nil {
		staging, release, err := c.stagingBo(planes, gputypes.BufferUsageCopySrc|gputypes.BufferUsageMapWrite)
		if err != nil {
			return err
		}
		defer release()
		data, err := c.mapBo(staging)
		if err != nil {
			return err
		}
		var off uint64
		for i := range planes {
			p := &planes[i]
			copyLinear(data[off:], 0, 0, req.Src.Mem[req.Src.Offset+p.offset:], p.rowPitch, p.slicePitch, p.rowBytes(), p.rows(), p.extent.Depth)
			regions[i] = p.region(off, 0, 0)
			off += p.packedSize()
		}
		if err := c.unmapBo(staging, 0, off); err != nil {
			return err
		}
		src = staging
	} else {
		for i := range planes {
			p := &planes[i]
			regions[i] = p.region(req.Src.Offset+p.offset, p.rowPitch, p.slicePitch)
		}
		srcStages := stagesFromBufferUsage(src.usage)
		if srcStages == 0 {
			srcStages = stageTopOfPipe
		}
		c.bufferBarrier(cb, srcStages, stageTransfer,
			accessFromBufferUsage(src.usage)&bufferWriteAccess, accessTransferRead, src)
	}

	restore := t.toTransfer(c, cb, t.subRange(req.DstSub), true)
	c.reference(&src.Resource)
	for i := range regions {
		cb.CopyBufferToImage(src.buffer, t.image.handle, t.transferLayout(true), regions[i:i+1])
	}
	restore()
	return nil
}

// DownloadData records a copy of a region of a subresource into linear
// data. Downloads into host memory submit and wait for the copy.
func DownloadData(c *Context, req *DownloadRequest) error {
	t := req.Src
	if t == nil {
		return fmt.Errorf("%w: no source texture", ErrInvalidDesc)
	}
	if err := checkTransfer(t, req.SrcSub, req.SrcLocation, req.Format, req.SrcBox); err != nil {
		return err
	}
	planes := t.planes(req.SrcSub, req.SrcBox, req.DstOrigin, req.RowPitch, req.SlicePitch)
	if err := checkLinear(t, req.Dst, planes); err != nil {
		return err
	}
	if t.format.layout.CombinedDepthStencil() {
		return downloadDepthStencil(c, t, req.SrcSub, req.Dst, &planes[0])
	}

	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	regions := make([]vk.BufferImageCopy, len(planes))
	dst := req.Dst.Bo
	if dst == nil {
		staging, release, err := c.stagingBo(planes, gputypes.BufferUsageCopyDst|gputypes.BufferUsageMapRead)
		if err != nil {
			return err
		}
		defer release()
		var off uint64
		for i := range planes {
			regions[i] = planes[i].region(off, 0, 0)
			off += planes[i].packedSize()
		}
		restore := t.toTransfer(c, cb, t.subRange(req.SrcSub), false)
		c.reference(&staging.Resource)
		for i := range regions {
			cb.CopyImageToBuffer(t.image.handle, t.transferLayout(false), staging.buffer, regions[i:i+1])
		}
		restore()
		c.bufferBarrier(cb, stageTransfer, stageHost, accessTransferWrite, accessHostRead, staging)

		if err := c.Wait(t.image.LastUse()); err != nil {
			return err
		}
		data, err := c.mapBo(staging)
		if err != nil {
			return err
		}
		off = 0
		for i := range planes {
			p := &planes[i]
			copyLinear(req.Dst.Mem[req.Dst.Offset+p.offset:], p.rowPitch, p.slicePitch, data[off:], 0, 0, p.rowBytes(), p.rows(), p.extent.Depth)
			off += p.packedSize()
		}
		return c.unmapBo(staging, 0, off)
	}

	for i := range planes {
		p := &planes[i]
		regions[i] = p.region(req.Dst.Offset+p.offset, p.rowPitch, p.slicePitch)
	}
	usageStages := stagesFromBufferUsage(dst.usage)
	usageAccess := accessFromBufferUsage(dst.usage)
	if usageStages == 0 {
		usageStages = stageTopOfPipe
	}
	c.bufferBarrier(cb, usageStages, stageTransfer, usageAccess&bufferWriteAccess, accessTransferWrite, dst)
	restore := t.toTransfer(c, cb, t.subRange(req.SrcSub), false)
	c.reference(&dst.Resource)
	for i := range regions {
		cb.CopyImageToBuffer(t.image.handle, t.transferLayout(false), dst.buffer, regions[i:i+1])
	}
	restore()
	postStages, postAccess := usageStages, usageAccess
	if dst.hostSynced {
		postStages |= stageHost
		postAccess |= accessHostRead
	}
	c.bufferBarrier(cb, stageTransfer, postStages, accessTransferWrite, postAccess, dst)
	return nil
}

// stagingBo creates a host visible buffer large enough for planes packed
// back to back. The release function must be called on every exit path.
func (c *Context) stagingBo(planes []planeCopy, usage gputypes.BufferUsage) (*Bo, func(), error) {
	var size uint64
	for i := range planes {
		size += planes[i].packedSize()
	}
	bo, err := c.createBo(size, usage, hostVisible)
	if err != nil {
		return nil, func() {}, err
	}
	return bo, func() { c.destroyBo(bo) }, nil
}
