package texvk

import (
	"fmt"
	"image"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// BlitOp is the kind of blit.
type BlitOp uint8

const (
	// BlitColor copies colour data. Formats must be compatible.
	BlitColor BlitOp = iota
	// BlitDepth copies depth/stencil data.
	BlitDepth
	// BlitRaw copies bytes without any interpretation.
	BlitRaw
)

func (op BlitOp) String() string {
	switch op {
	case BlitColor:
		return "color"
	case BlitDepth:
		return "depth"
	case BlitRaw:
		return "raw"
	}
	return fmt.Sprintf("BlitOp(%d)", uint8(op))
}

// Filter is the filter used when a blit scales.
type Filter uint8

const (
	FilterPoint Filter = iota
	FilterLinear
)

// BlitRequest copies a rectangle of one subresource to another.
type BlitRequest struct {
	Op BlitOp

	Src         *Texture
	SrcSub      uint32
	SrcLocation Location
	SrcRect     image.Rectangle

	Dst         *Texture
	DstSub      uint32
	DstLocation Location
	DstRect     image.Rectangle

	Filter Filter
	// ResolveFormat is the format a multisample resolve between two
	// textures of different native formats runs in.
	ResolveFormat FormatID
}

// Blitter executes clears and blits. Blitters are tried in chain order.
type Blitter interface {
	Name() string
	SupportsClear(req *ClearRequest) bool
	// Clear returns the part of req it did not handle, or nil.
	Clear(c *Context, req *ClearRequest) (*ClearRequest, error)
	SupportsBlit(req *BlitRequest) bool
	// Blit returns the locations of the destination that hold the result.
	Blit(c *Context, req *BlitRequest) (LocationSet, error)
}

// Chain is an ordered list of blitters. A request goes to the first
// blitter supporting it and is forwarded to the next one on failure.
type Chain struct {
	blitters []Blitter
}

// NewChain returns a chain trying blitters in order.
func NewChain(blitters ...Blitter) *Chain {
	return &Chain{blitters: append([]Blitter(nil), blitters...)}
}

// Blitters returns the blitters in chain order.
func (ch *Chain) Blitters() []Blitter { return append([]Blitter(nil), ch.blitters...) }

// Blit runs req on the first blitter that accepts and completes it.
func (ch *Chain) Blit(c *Context, req *BlitRequest) (LocationSet, error) {
	if req.Src == nil || req.Dst == nil {
		return 0, fmt.Errorf("%w: blit without source or destination", ErrInvalidDesc)
	}
	var last error
	for _, b := range ch.blitters {
		if !b.SupportsBlit(req) {
			continue
		}
		locs, err := b.Blit(c, req)
		if err == nil {
			return locs, nil
		}
		last = err
		slogger().Debug("texvk: blitter failed, forwarding blit", "blitter", b.Name(), "err", err)
	}
	if last != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoBlitter, last)
	}
	return 0, ErrNoBlitter
}

// Clear hands req down the chain until every view is cleared.
func (ch *Chain) Clear(c *Context, req *ClearRequest) error {
	for _, b := range ch.blitters {
		if req == nil {
			return nil
		}
		if !b.SupportsClear(req) {
			continue
		}
		rest, err := b.Clear(c, req)
		if err != nil {
			slogger().Debug("texvk: blitter failed, forwarding clear", "blitter", b.Name(), "err", err)
			continue
		}
		req = rest
	}
	if req != nil {
		return ErrNoBlitter
	}
	return nil
}

// Blit runs req on the context's blitter chain.
func (c *Context) Blit(req *BlitRequest) (LocationSet, error) { return c.chain.Blit(c, req) }

// Clear runs req on the context's blitter chain.
func (c *Context) Clear(req *ClearRequest) error { return c.chain.Clear(c, req) }

// VulkanBlitter clears, copies and resolves with GPU commands.
type VulkanBlitter struct{}

// NewVulkanBlitter returns a GPU blitter.
func NewVulkanBlitter() *VulkanBlitter { return &VulkanBlitter{} }

// Name implements Blitter.
func (*VulkanBlitter) Name() string { return "vulkan" }

// SupportsClear implements Blitter.
func (*VulkanBlitter) SupportsClear(req *ClearRequest) bool {
	for _, v := range req.RenderTargets {
		if v != nil && v.texture.GPUAccess() {
			return true
		}
	}
	return req.DepthStencil != nil && req.DepthStencil.texture.GPUAccess()
}

// SupportsBlit implements Blitter.
func (*VulkanBlitter) SupportsBlit(req *BlitRequest) bool {
	src, dst := req.Src, req.Dst
	if !src.GPUAccess() || !dst.GPUAccess() {
		return false
	}
	sf, df := src.format, dst.format
	if sf.ID != df.ID {
		if !sf.IdentityFixup || !df.IdentityFixup || sf.IsPlanar() || df.IsPlanar() {
			return false
		}
		if req.Op != BlitRaw && sf.VkFormat != df.VkFormat &&
			(!sf.IsTypeless() && !df.IsTypeless() || req.ResolveFormat == FormatUnknown) {
			return false
		}
	}
	if dst.Multisampled() {
		return false
	}
	if src.Multisampled() && (sf.HasDepthOrStencil() || req.Op == BlitRaw) {
		return false
	}
	if src == dst && req.SrcSub == req.DstSub {
		return false
	}
	if req.Op == BlitRaw {
		return true
	}
	if req.Op != BlitColor {
		return false
	}
	return req.SrcRect.Size() == req.DstRect.Size()
}

// Blit implements Blitter.
func (b *VulkanBlitter) Blit(c *Context, req *BlitRequest) (LocationSet, error) {
	src, dst := req.Src, req.Dst
	if err := src.LoadLocation(c, req.SrcSub, LocationTextureRGB); err != nil {
		return 0, err
	}
	dstLevel, _ := dst.splitIndex(req.DstSub)
	var err error
	if dst.IsFullRect(dstLevel, req.DstRect) {
		err = dst.PrepareLocation(c, req.DstSub, LocationTextureRGB)
	} else {
		err = dst.LoadLocation(c, req.DstSub, LocationTextureRGB)
	}
	if err != nil {
		return 0, err
	}
	srcLevel, _ := src.splitIndex(req.SrcSub)
	size := req.SrcRect.Size()
	if req.Op == BlitRaw {
		size = image.Pt(min(size.X, req.DstRect.Dx()), min(size.Y, req.DstRect.Dy()))
	}
	if !rectInLevel(src, srcLevel, image.Rectangle{Min: req.SrcRect.Min, Max: req.SrcRect.Min.Add(size)}) ||
		!rectInLevel(dst, dstLevel, image.Rectangle{Min: req.DstRect.Min, Max: req.DstRect.Min.Add(size)}) {
		return 0, fmt.Errorf("%w: blit %v to %v", ErrOutOfRange, req.SrcRect, req.DstRect)
	}

	cb, err := c.CommandBuffer()
	if err != nil {
		return 0, err
	}
	undoSrc := src.toTransfer(c, cb, src.subRange(req.SrcSub), false)
	undoDst := dst.toTransfer(c, cb, dst.subRange(req.DstSub), true)
	if src.Multisampled() {
		err = b.resolve(c, cb, req, size)
	} else {
		b.copy(c, cb, req, size)
	}
	undoDst()
	undoSrc()
	if err != nil {
		return 0, err
	}

	dst.ValidateLocation(req.DstSub, LocationTextureRGB)
	dst.InvalidateLocation(req.DstSub, ^Locations(LocationTextureRGB))
	if err := dst.LoadLocation(c, req.DstSub, req.DstLocation); err != nil {
		return 0, err
	}
	return Locations(req.DstLocation, LocationTextureRGB), nil
}

func rectInLevel(t *Texture, level uint32, r image.Rectangle) bool {
	return !r.Empty() && r.In(image.Rect(0, 0, int(t.LevelWidth(level)), int(t.LevelHeight(level))))
}

func subLayers(t *Texture, sub uint32, aspects vk.ImageAspectFlags) vk.ImageSubresourceLayers {
	level, layer := t.splitIndex(sub)
	return vk.ImageSubresourceLayers{AspectMask: aspects, MipLevel: level, BaseArrayLayer: layer, LayerCount: 1}
}

func offset2D(p image.Point) vk.Offset3D { return vk.Offset3D{X: int32(p.X), Y: int32(p.Y)} }

func extent2D(p image.Point) vk.Extent3D {
	return vk.Extent3D{Width: uint32(p.X), Height: uint32(p.Y), Depth: 1}
}

// copy records one image copy per aspect plane.
func (b *VulkanBlitter) copy(c *Context, cb native.CommandBuffer, req *BlitRequest, size image.Point) {
	src, dst := req.Src, req.Dst
	type plane struct {
		aspects          vk.ImageAspectFlags
		srcOrig, dstOrig image.Point
		size             image.Point
	}
	planes := []plane{{src.format.Aspects(), req.SrcRect.Min, req.DstRect.Min, size}}
	if f := src.format; f.IsPlanar() {
		uv := image.Pt(int(f.UVWidth), int(f.UVHeight))
		div := func(p image.Point) image.Point { return image.Pt(p.X/uv.X, p.Y/uv.Y) }
		planes = []plane{
			{native.AspectPlane0, req.SrcRect.Min, req.DstRect.Min, size},
			{native.AspectPlane1, div(req.SrcRect.Min), div(req.DstRect.Min), div(size)},
		}
	}
	c.reference(&src.image.Resource)
	c.reference(&dst.image.Resource)
	for _, p := range planes {
		cb.CopyImage(src.image.handle, src.transferLayout(false), dst.image.handle, dst.transferLayout(true),
			[]vk.ImageCopy{{
				SrcSubresource: subLayers(src, req.SrcSub, p.aspects),
				SrcOffset:      offset2D(p.srcOrig),
				DstSubresource: subLayers(dst, req.DstSub, p.aspects),
				DstOffset:      offset2D(p.dstOrig),
				Extent:         extent2D(p.size),
			}})
	}
}

// resolveFormat picks the format a resolve runs in: the requested one,
// else whichever side is not typeless, else the destination format.
func resolveFormat(req *BlitRequest) (*Format, error) {
	id := req.ResolveFormat
	switch {
	case id != FormatUnknown:
	case !req.Src.format.IsTypeless():
		id = req.Src.format.ID
	default:
		id = req.Dst.format.ID
	}
	f, ok := LookupFormat(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown resolve format %v", ErrInvalidDesc, id)
	}
	return f, nil
}

// resolve records a resolve of the multisampled source. Sides whose native
// format differs from the resolve format go through an intermediate image.
func (b *VulkanBlitter) resolve(c *Context, cb native.CommandBuffer, req *BlitRequest, size image.Point) error {
	src, dst := req.Src, req.Dst
	rf, err := resolveFormat(req)
	if err != nil {
		return err
	}

	srcImg, srcLayout := &src.image, src.transferLayout(false)
	srcLayers, srcOrig := subLayers(src, req.SrcSub, src.format.Aspects()), req.SrcRect.Min
	dstImg, dstLayout := &dst.image, dst.transferLayout(true)
	dstLayers, dstOrig := subLayers(dst, req.DstSub, dst.format.Aspects()), req.DstRect.Min
	c.reference(&src.image.Resource)
	c.reference(&dst.image.Resource)

	desc := native.ImageDesc{
		Type:        vk.ImageType2d,
		Format:      rf.VkFormat,
		Width:       uint32(size.X),
		Height:      uint32(size.Y),
		Depth:       1,
		MipLevels:   1,
		ArrayLayers: 1,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	}
	tmpLayers := vk.ImageSubresourceLayers{AspectMask: rf.Aspects(), LayerCount: 1}
	tmpRange := vk.ImageSubresourceRange{AspectMask: rf.Aspects(), LevelCount: 1, LayerCount: 1}

	if src.format.VkFormat != rf.VkFormat {
		desc.Samples = vk.SampleCountFlagBits(src.desc.Samples)
		tmp, release, err := c.tempImage(&desc, rf.Aspects())
		if err != nil {
			return err
		}
		defer release()
		c.imageBarrier(cb, barrierDesc{
			srcStages: stageTopOfPipe, dstStages: stageTransfer,
			dstAccess: accessTransferWrite,
			oldLayout: vk.ImageLayoutUndefined, newLayout: vk.ImageLayoutTransferDstOptimal,
		}, tmp, tmpRange)
		cb.CopyImage(srcImg.handle, srcLayout, tmp.handle, vk.ImageLayoutTransferDstOptimal, []vk.ImageCopy{{
			SrcSubresource: srcLayers, SrcOffset: offset2D(srcOrig),
			DstSubresource: tmpLayers, Extent: extent2D(size),
		}})
		c.imageBarrier(cb, barrierDesc{
			srcStages: stageTransfer, dstStages: stageTransfer,
			srcAccess: accessTransferWrite, dstAccess: accessTransferRead,
			oldLayout: vk.ImageLayoutTransferDstOptimal, newLayout: vk.ImageLayoutTransferSrcOptimal,
		}, tmp, tmpRange)
		srcImg, srcLayout, srcLayers, srcOrig = tmp, vk.ImageLayoutTransferSrcOptimal, tmpLayers, image.Point{}
	}

	var resolved *Image
	if dst.format.VkFormat != rf.VkFormat {
		desc.Samples = vk.SampleCount1Bit
		tmp, release, err := c.tempImage(&desc, rf.Aspects())
		if err != nil {
			return err
		}
		defer release()
		c.imageBarrier(cb, barrierDesc{
			srcStages: stageTopOfPipe, dstStages: stageTransfer,
			dstAccess: accessTransferWrite,
			oldLayout: vk.ImageLayoutUndefined, newLayout: vk.ImageLayoutTransferDstOptimal,
		}, tmp, tmpRange)
		resolved = tmp
		dstImg, dstLayout, dstLayers, dstOrig = tmp, vk.ImageLayoutTransferDstOptimal, tmpLayers, image.Point{}
	}

	cb.ResolveImage(srcImg.handle, srcLayout, dstImg.handle, dstLayout, []vk.ImageResolve{{
		SrcSubresource: srcLayers, SrcOffset: offset2D(srcOrig),
		DstSubresource: dstLayers, DstOffset: offset2D(dstOrig),
		Extent: extent2D(size),
	}})

	if resolved != nil {
		c.imageBarrier(cb, barrierDesc{
			srcStages: stageTransfer, dstStages: stageTransfer,
			srcAccess: accessTransferWrite, dstAccess: accessTransferRead,
			oldLayout: vk.ImageLayoutTransferDstOptimal, newLayout: vk.ImageLayoutTransferSrcOptimal,
		}, resolved, tmpRange)
		cb.CopyImage(resolved.handle, vk.ImageLayoutTransferSrcOptimal, dst.image.handle, dst.transferLayout(true), []vk.ImageCopy{{
			SrcSubresource: tmpLayers,
			DstSubresource: subLayers(dst, req.DstSub, dst.format.Aspects()), DstOffset: offset2D(req.DstRect.Min),
			Extent: extent2D(size),
		}})
	}
	return nil
}
