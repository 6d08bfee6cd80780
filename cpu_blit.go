package texvk

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// CPUBlitter clears and blits in host memory. It is the last resort of a
// chain and handles textures the GPU cannot access.
type CPUBlitter struct{}

// NewCPUBlitter returns a host memory blitter.
func NewCPUBlitter() *CPUBlitter { return &CPUBlitter{} }

// Name implements Blitter.
func (*CPUBlitter) Name() string { return "cpu" }

// SupportsClear implements Blitter.
func (*CPUBlitter) SupportsClear(req *ClearRequest) bool {
	for _, v := range req.RenderTargets {
		if v != nil && !v.texture.format.IsPlanar() {
			return true
		}
	}
	return req.DepthStencil != nil
}

// Clear implements Blitter. Compressed formats are filled with zeros.
func (b *CPUBlitter) Clear(c *Context, req *ClearRequest) (*ClearRequest, error) {
	if req.Flags&ClearColor != 0 {
		for _, v := range req.RenderTargets {
			if v == nil {
				continue
			}
			if err := b.clearView(c, req, v); err != nil {
				return nil, err
			}
		}
	}
	if req.Flags&(ClearDepth|ClearStencil) != 0 && req.DepthStencil != nil {
		if err := b.clearView(c, req, req.DepthStencil); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (b *CPUBlitter) clearView(c *Context, req *ClearRequest, v *View) error {
	t, f := v.texture, v.texture.format
	if f.IsPlanar() {
		return fmt.Errorf("%w: host clear of planar format %s", ErrUnsupported, f.Name)
	}
	aspects := req.aspects(v)
	rects := req.rects(v.Width(), v.Height())
	if aspects == 0 || len(rects) == 0 {
		return nil
	}
	var block []byte
	switch {
	case f.IsCompressed():
		if !req.Value.IsZero() {
			slogger().Warn("texvk: FIXME: non-zero clear of compressed format, filling with zeros",
				"format", f.Name, "color", req.Value.Color)
		}
		block = make([]byte, f.BlockBytes)
	case !f.HasDepthOrStencil():
		block = v.format.layout.PackColor(colorArray(req.Value.Color))
	}

	level := v.desc.Level
	row, _ := t.Pitch(level)
	subs := v.Subresources()
	fills := make([]func(), 0, len(subs))
	for _, sub := range subs {
		if err := t.LoadLocation(c, sub, LocationSysmem); err != nil {
			return err
		}
		mem := t.subs[sub].sysmem
		fills = append(fills, func() {
			for _, r := range rects {
				r = blockRect(r, f, t.LevelWidth(level), t.LevelHeight(level))
				for y := r.Min.Y; y < r.Max.Y; y += int(f.BlockHeight) {
					base := uint32(y)/f.BlockHeight*row + uint32(r.Min.X)/f.BlockWidth*f.BlockBytes
					for x := r.Min.X; x < r.Max.X; x += int(f.BlockWidth) {
						texel := mem[base : base+f.BlockBytes]
						if block != nil {
							copy(texel, block)
						} else {
							f.layout.WriteDepthStencil(texel, aspects, req.Value.Depth, req.Value.Stencil)
						}
						base += f.BlockBytes
					}
				}
			}
		})
	}
	c.workers.Run(fills)
	for _, sub := range subs {
		t.ValidateLocation(sub, LocationSysmem)
		t.InvalidateLocation(sub, ^Locations(LocationSysmem))
	}
	return nil
}

// blockRect widens r to whole blocks.
func blockRect(r image.Rectangle, f *Format, w, h uint32) image.Rectangle {
	bw, bh := int(f.BlockWidth), int(f.BlockHeight)
	r.Min.X -= r.Min.X % bw
	r.Min.Y -= r.Min.Y % bh
	r.Max.X = min((r.Max.X+bw-1)/bw*bw, int(w+f.BlockWidth-1)/bw*bw)
	r.Max.Y = min((r.Max.Y+bh-1)/bh*bh, int(h+f.BlockHeight-1)/bh*bh)
	return r
}

// scalable reports whether f can go through the image scalers.
func scalable(f *Format) bool {
	switch f.ID {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB:
		return true
	}
	return false
}

func bgra(f *Format) bool {
	return f.ID == FormatB8G8R8A8Unorm || f.ID == FormatB8G8R8A8UnormSRGB
}

// SupportsBlit implements Blitter.
func (*CPUBlitter) SupportsBlit(req *BlitRequest) bool {
	src, dst := req.Src, req.Dst
	if src.Multisampled() || dst.Multisampled() || src.format.IsPlanar() || dst.format.IsPlanar() {
		return false
	}
	if req.SrcRect.Size() == req.DstRect.Size() &&
		(src.format.ID == dst.format.ID || req.Op == BlitRaw && src.format.BlockBytes == dst.format.BlockBytes &&
			src.format.BlockWidth == dst.format.BlockWidth && src.format.BlockHeight == dst.format.BlockHeight) {
		return true
	}
	return req.Op == BlitColor && scalable(src.format) && scalable(dst.format)
}

// Blit implements Blitter. Equal sized blits between formats of the same
// layout are byte copies. Everything else is scaled and swizzled as RGBA.
func (b *CPUBlitter) Blit(c *Context, req *BlitRequest) (LocationSet, error) {
	src, dst := req.Src, req.Dst
	srcLevel, _ := src.splitIndex(req.SrcSub)
	dstLevel, _ := dst.splitIndex(req.DstSub)
	if !rectInLevel(src, srcLevel, req.SrcRect) || !rectInLevel(dst, dstLevel, req.DstRect) {
		return 0, fmt.Errorf("%w: blit %v to %v", ErrOutOfRange, req.SrcRect, req.DstRect)
	}
	if err := src.LoadLocation(c, req.SrcSub, LocationSysmem); err != nil {
		return 0, err
	}
	var err error
	if dst.IsFullRect(dstLevel, req.DstRect) {
		err = dst.PrepareLocation(c, req.DstSub, LocationSysmem)
	} else {
		err = dst.LoadLocation(c, req.DstSub, LocationSysmem)
	}
	if err != nil {
		return 0, err
	}

	if req.SrcRect.Size() == req.DstRect.Size() && src.format.BlockBytes == dst.format.BlockBytes &&
		(src.format.ID == dst.format.ID || req.Op == BlitRaw) {
		err = b.copyBlocks(req, srcLevel, dstLevel)
	} else {
		err = b.scale(req, srcLevel, dstLevel)
	}
	if err != nil {
		return 0, err
	}

	dst.ValidateLocation(req.DstSub, LocationSysmem)
	dst.InvalidateLocation(req.DstSub, ^Locations(LocationSysmem))
	if err := dst.LoadLocation(c, req.DstSub, req.DstLocation); err != nil {
		return 0, err
	}
	return Locations(req.DstLocation, LocationSysmem), nil
}

func (b *CPUBlitter) copyBlocks(req *BlitRequest, srcLevel, dstLevel uint32) error {
	src, dst := req.Src, req.Dst
	f := src.format
	if !BoxFromRect(req.SrcRect, 0).blockAligned(f, src.LevelWidth(srcLevel), src.LevelHeight(srcLevel)) ||
		!BoxFromRect(req.DstRect, 0).blockAligned(dst.format, dst.LevelWidth(dstLevel), dst.LevelHeight(dstLevel)) {
		return fmt.Errorf("%w: %s blit of unaligned rectangle", ErrUnsupported, f.Name)
	}
	srcRow, _ := src.Pitch(srcLevel)
	dstRow, _ := dst.Pitch(dstLevel)
	// Copy through a scratch buffer since source and destination may be
	// the same memory.
	rowBytes := (uint32(req.SrcRect.Dx()) + f.BlockWidth - 1) / f.BlockWidth * f.BlockBytes
	rows := (uint32(req.SrcRect.Dy()) + f.BlockHeight - 1) / f.BlockHeight
	scratch := make([]byte, rowBytes*rows)
	srcOff := uint32(req.SrcRect.Min.Y)/f.BlockHeight*srcRow + uint32(req.SrcRect.Min.X)/f.BlockWidth*f.BlockBytes
	dstOff := uint32(req.DstRect.Min.Y)/f.BlockHeight*dstRow + uint32(req.DstRect.Min.X)/f.BlockWidth*f.BlockBytes
	copyLinear(scratch, 0, 0, src.subs[req.SrcSub].sysmem[srcOff:], srcRow, 0, rowBytes, rows, 1)
	copyLinear(dst.subs[req.DstSub].sysmem[dstOff:], dstRow, 0, scratch, 0, 0, rowBytes, rows, 1)
	return nil
}

// nrgba wraps the host memory of a 32 bit RGBA level. BGRA data is
// swizzled into a copy.
func nrgba(t *Texture, sub, level uint32, r image.Rectangle) *image.NRGBA {
	row, _ := t.Pitch(level)
	img := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	mem := t.subs[sub].sysmem
	for y := 0; y < r.Dy(); y++ {
		so := (r.Min.Y+y)*int(row) + r.Min.X*4
		copy(img.Pix[y*img.Stride:y*img.Stride+r.Dx()*4], mem[so:so+r.Dx()*4])
	}
	if bgra(t.format) {
		swapRB(img.Pix)
	}
	return img
}

func swapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

func (b *CPUBlitter) scale(req *BlitRequest, srcLevel, dstLevel uint32) error {
	src, dst := req.Src, req.Dst
	if !scalable(src.format) || !scalable(dst.format) {
		return fmt.Errorf("%w: host blit from %s to %s", ErrUnsupported, src.format.Name, dst.format.Name)
	}
	from := nrgba(src, req.SrcSub, srcLevel, req.SrcRect)
	to := image.NewNRGBA(image.Rect(0, 0, req.DstRect.Dx(), req.DstRect.Dy()))
	var scaler draw.Scaler = draw.NearestNeighbor
	if req.Filter == FilterLinear {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(to, to.Bounds(), from, from.Bounds(), draw.Src, nil)
	if bgra(dst.format) {
		swapRB(to.Pix)
	}

	row, _ := dst.Pitch(dstLevel)
	mem := dst.subs[req.DstSub].sysmem
	for y := 0; y < to.Rect.Dy(); y++ {
		do := (req.DstRect.Min.Y+y)*int(row) + req.DstRect.Min.X*4
		copy(mem[do:do+to.Rect.Dx()*4], to.Pix[y*to.Stride:])
	}
	return nil
}
