package texvk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/ledger"
	"github.com/gogpu/texvk/native"
)

// ViewDesc selects the part of a texture a render target or depth/stencil
// view covers.
type ViewDesc struct {
	// Format defaults to the texture format. A different format needs a
	// typeless texture with the same block size.
	Format     FormatID
	Level      uint32
	BaseLayer  uint32
	LayerCount uint32
}

// View is a render target or depth/stencil view of one mip level of a
// texture. The native view is created on first use.
type View struct {
	ledger.Resource

	texture *Texture
	desc    ViewDesc
	format  *Format

	handle native.ImageView
	// image is the native image handle was created for.
	image native.Image
}

// NewView returns a view of t.
func NewView(t *Texture, desc ViewDesc) (*View, error) {
	if desc.Format == FormatUnknown {
		desc.Format = t.format.ID
	}
	if desc.LayerCount == 0 {
		desc.LayerCount = t.desc.Layers - min(desc.BaseLayer, t.desc.Layers)
	}
	if desc.Level >= t.desc.Levels || desc.LayerCount == 0 || desc.BaseLayer+desc.LayerCount > t.desc.Layers {
		return nil, fmt.Errorf("%w: view level %d layers %d+%d", ErrOutOfRange, desc.Level, desc.BaseLayer, desc.LayerCount)
	}
	f, ok := LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: unknown view format %v", ErrInvalidDesc, desc.Format)
	}
	if f != t.format && (!t.format.IsTypeless() || f.BlockBytes != t.format.BlockBytes ||
		f.BlockWidth != t.format.BlockWidth || f.HasDepthOrStencil() != t.format.HasDepthOrStencil()) {
		return nil, fmt.Errorf("%w: view %s of %s texture", ErrFormatMismatch, f.Name, t.format.Name)
	}
	return &View{texture: t, desc: desc, format: f}, nil
}

// Texture returns the viewed texture.
func (v *View) Texture() *Texture { return v.texture }

// Format returns the view format.
func (v *View) Format() *Format { return v.format }

// Level returns the viewed mip level.
func (v *View) Level() uint32 { return v.desc.Level }

// Width returns the width of the viewed level.
func (v *View) Width() uint32 { return v.texture.LevelWidth(v.desc.Level) }

// Height returns the height of the viewed level.
func (v *View) Height() uint32 { return v.texture.LevelHeight(v.desc.Level) }

// LayerCount returns the number of viewed layers.
func (v *View) LayerCount() uint32 { return v.desc.LayerCount }

// Subresources returns the indices of every viewed subresource.
func (v *View) Subresources() []uint32 {
	subs := make([]uint32, 0, v.desc.LayerCount)
	for l := v.desc.BaseLayer; l < v.desc.BaseLayer+v.desc.LayerCount; l++ {
		subs = append(subs, v.texture.SubresourceIndex(v.desc.Level, l))
	}
	return subs
}

// nativeView returns the native view, creating it on first use or after
// the texture image was recreated.
func (v *View) nativeView(c *Context) (native.ImageView, error) {
	t := v.texture
	if !t.allocated {
		return native.Null, ErrNotAllocated
	}
	if v.handle != native.Null && v.image == t.image.handle {
		return v.handle, nil
	}
	v.release(c)
	viewType := vk.ImageViewType2d
	if v.desc.LayerCount > 1 {
		viewType = vk.ImageViewType2dArray
	}
	h, err := c.dev.CreateImageView(&native.ImageViewDesc{
		Image:    t.image.handle,
		ViewType: viewType,
		Format:   v.format.VkFormat,
		Range: vk.ImageSubresourceRange{
			AspectMask:     v.format.Aspects(),
			BaseMipLevel:   v.desc.Level,
			LevelCount:     1,
			BaseArrayLayer: v.desc.BaseLayer,
			LayerCount:     v.desc.LayerCount,
		},
	})
	if err != nil {
		return native.Null, fmt.Errorf("texvk: create %s view: %w", v.format.Name, err)
	}
	v.handle, v.image = h, t.image.handle
	v.Resource = ledger.Resource{}
	return h, nil
}

func (v *View) release(c *Context) {
	if v.handle == native.Null {
		return
	}
	h := v.handle
	v.handle, v.image = native.Null, native.Null
	c.ledger.Defer(v.LastUse(), func() { c.dev.DestroyImageView(h) })
}

// Destroy releases the native view once no command buffer uses it.
func (v *View) Destroy(c *Context) { v.release(c) }
