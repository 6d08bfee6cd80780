package texvk

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/vkformat"
	"github.com/gogpu/texvk/native"
)

var textureBoUsage = gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
	gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite

// PrepareLocation makes sure storage for loc exists without filling it.
func (t *Texture) PrepareLocation(c *Context, sub uint32, loc Location) error {
	if err := t.checkSub(sub); err != nil {
		return err
	}
	switch loc {
	case LocationSysmem:
		t.prepareSysmemSub(sub)
		return nil
	case LocationBuffer:
		return t.prepareBuffer(c, sub)
	case LocationTextureRGB:
		return t.prepareTexture(c)
	case LocationCleared:
		return nil
	}
	slogger().Warn("texvk: unsupported location", "location", loc, "format", t.format.Name)
	return fmt.Errorf("%w: prepare %v", ErrUnsupported, loc)
}

func (t *Texture) prepareBuffer(c *Context, sub uint32) error {
	s := &t.subs[sub]
	if s.bo != nil {
		return nil
	}
	bo, err := c.createBo(uint64(s.size), textureBoUsage, hostVisible)
	if err != nil {
		return err
	}
	bo.hostSynced = true
	s.bo = bo
	return nil
}

// LoadLocation makes loc hold the up to date contents of subresource sub.
// The other valid locations stay valid.
func (t *Texture) LoadLocation(c *Context, sub uint32, loc Location) error {
	if err := t.checkSub(sub); err != nil {
		return err
	}
	s := &t.subs[sub]
	if s.locations.Has(loc) {
		return nil
	}
	if loc == LocationCleared {
		return fmt.Errorf("%w: %v cannot be loaded", ErrInvalidLocation, loc)
	}
	if err := t.PrepareLocation(c, sub, loc); err != nil {
		return err
	}

	if s.locations.Has(LocationCleared) {
		if err := t.loadCleared(c, sub, loc); err != nil {
			return err
		}
		t.ValidateLocation(sub, loc)
		return nil
	}

	src, ok := s.locations.Lowest()
	if !ok {
		slogger().Warn("texvk: no valid location to load from, contents are undefined",
			"format", t.format.Name, "sub", sub, "location", loc)
		t.ValidateLocation(sub, loc)
		return nil
	}
	var err error
	switch loc {
	case LocationTextureRGB:
		err = t.uploadFrom(c, sub, src)
	case LocationSysmem:
		err = t.loadHost(c, sub, src)
	case LocationBuffer:
		err = t.loadBuffer(c, sub, src)
	}
	if err != nil {
		return fmt.Errorf("texvk: load %v from %v: %w", loc, src, err)
	}
	t.ValidateLocation(sub, loc)
	return nil
}

// uploadFrom fills the image from a linear location.
func (t *Texture) uploadFrom(c *Context, sub uint32, src Location) error {
	addr, err := t.BoAddress(sub, src)
	if err != nil {
		return err
	}
	level, _ := t.splitIndex(sub)
	row, slice := t.Pitch(level)
	return UploadData(c, &UploadRequest{
		Src:         addr,
		Format:      t.format.ID,
		SrcBox:      t.LevelBox(level),
		RowPitch:    row,
		SlicePitch:  slice,
		Dst:         t,
		DstSub:      sub,
		DstLocation: LocationTextureRGB,
	})
}

// downloadTo copies the image into a linear location.
func (t *Texture) downloadTo(c *Context, sub uint32, dst Location) error {
	addr, err := t.BoAddress(sub, dst)
	if err != nil {
		return err
	}
	level, _ := t.splitIndex(sub)
	row, slice := t.Pitch(level)
	return DownloadData(c, &DownloadRequest{
		Src:         t,
		SrcSub:      sub,
		SrcLocation: LocationTextureRGB,
		SrcBox:      t.LevelBox(level),
		Dst:         addr,
		Format:      t.format.ID,
		RowPitch:    row,
		SlicePitch:  slice,
	})
}

func (t *Texture) loadHost(c *Context, sub uint32, src Location) error {
	s := &t.subs[sub]
	if src != LocationBuffer {
		return t.downloadTo(c, sub, LocationSysmem)
	}
	data, err := c.mapBo(s.bo)
	if err != nil {
		return err
	}
	copy(s.sysmem, data[:s.size])
	return c.unmapBo(s.bo, 0, 0)
}

func (t *Texture) loadBuffer(c *Context, sub uint32, src Location) error {
	s := &t.subs[sub]
	if src != LocationSysmem {
		return t.downloadTo(c, sub, LocationBuffer)
	}
	data, err := c.mapBo(s.bo)
	if err != nil {
		return err
	}
	copy(data, s.sysmem[:s.size])
	return c.unmapBo(s.bo, 0, uint64(s.size))
}

// loadCleared writes the pending clear value into loc.
func (t *Texture) loadCleared(c *Context, sub uint32, loc Location) error {
	s := &t.subs[sub]
	switch loc {
	case LocationSysmem:
		t.fillClear(sub, s.sysmem)
		return nil
	case LocationBuffer:
		data, err := c.mapBo(s.bo)
		if err != nil {
			return err
		}
		t.fillClear(sub, data[:s.size])
		return c.unmapBo(s.bo, 0, uint64(s.size))
	case LocationTextureRGB:
		if t.format.IsCompressed() || t.format.IsPlanar() {
			if err := t.LoadLocation(c, sub, LocationSysmem); err != nil {
				return err
			}
			return t.uploadFrom(c, sub, LocationSysmem)
		}
		return t.clearImage(c, sub, s.clearValue)
	}
	return fmt.Errorf("%w: clear into %v", ErrUnsupported, loc)
}

// clearImage records a clear of one subresource of the image.
func (t *Texture) clearImage(c *Context, sub uint32, v ClearValue) error {
	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	r := t.subRange(sub)
	restore := t.toTransfer(c, cb, r, true)
	if t.format.HasDepthOrStencil() {
		cb.ClearDepthStencilImage(t.image.handle, t.transferLayout(true),
			native.DepthStencilValue{Depth: v.Depth, Stencil: v.Stencil}, []vk.ImageSubresourceRange{r})
	} else {
		cb.ClearColorImage(t.image.handle, t.transferLayout(true), t.format.clearColor(v.Color), []vk.ImageSubresourceRange{r})
	}
	restore()
	return nil
}

// fillClear writes clear value of sub into host memory. Block compressed
// and planar formats can only be filled with zeros.
func (t *Texture) fillClear(sub uint32, data []byte) {
	v := t.subs[sub].clearValue
	f := t.format
	switch {
	case f.IsCompressed() || f.IsPlanar():
		if !v.IsZero() {
			slogger().Warn("texvk: FIXME: non-zero clear of compressed or planar format, filling with zeros",
				"format", f.Name, "color", v.Color)
		}
		clear(data)
	case f.HasDepthOrStencil():
		for o := uint32(0); o+f.BlockBytes <= uint32(len(data)); o += f.BlockBytes {
			f.layout.WriteDepthStencil(data[o:o+f.BlockBytes], f.Aspects(), v.Depth, v.Stencil)
		}
	default:
		fillBlocks(data, f.layout.PackColor(colorArray(v.Color)))
	}
}

func fillBlocks(data, block []byte) {
	if len(block) == 0 {
		return
	}
	for o := 0; o+len(block) <= len(data); o += len(block) {
		copy(data[o:], block)
	}
}

func colorArray(c gputypes.Color) [4]float64 { return [4]float64{c.R, c.G, c.B, c.A} }

// clearColor converts a colour to the clear value of the format's numeric
// class.
func (f *Format) clearColor(c gputypes.Color) native.ClearColorValue {
	switch f.layout.Class {
	case vkformat.ClassUint:
		return native.ClearColorUint32(uint32(max(c.R, 0)), uint32(max(c.G, 0)), uint32(max(c.B, 0)), uint32(max(c.A, 0)))
	case vkformat.ClassSint:
		return native.ClearColorInt32(int32(c.R), int32(c.G), int32(c.B), int32(c.A))
	}
	return native.ClearColorFloat32(float32(c.R), float32(c.G), float32(c.B), float32(c.A))
}

// UnloadLocation releases the storage of loc in every subresource and marks
// it stale. Unloading a location twice is harmless.
func (t *Texture) UnloadLocation(c *Context, loc Location) error {
	if t.destroyed {
		return nil
	}
	switch loc {
	case LocationSysmem, LocationBuffer, LocationTextureRGB:
		t.unload(c, loc)
		return nil
	}
	return fmt.Errorf("%w: unload %v", ErrUnsupported, loc)
}

func (t *Texture) unload(c *Context, loc Location) {
	for i := range t.subs {
		s := &t.subs[i]
		s.locations.Clear(loc)
		switch loc {
		case LocationBuffer:
			c.destroyBo(s.bo)
			s.bo = nil
		case LocationSysmem:
			s.sysmem = nil
		}
	}
	if loc == LocationTextureRGB && t.allocated {
		c.destroyImage(&t.image)
		t.allocated = false
		t.layout = vk.ImageLayoutUndefined
		t.bind = 0
		t.generic = false
	}
}
