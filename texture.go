package texvk

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// BindFlags are the ways a resource can be bound to the pipeline.
type BindFlags uint32

const (
	BindVertexBuffer BindFlags = 1 << iota
	BindIndexBuffer
	BindConstantBuffer
	BindShaderResource
	BindStreamOutput
	BindRenderTarget
	BindDepthStencil
	BindUnorderedAccess
	BindIndirectBuffer
)

// readOnlyBind are the bindings that never write to a resource.
const readOnlyBind = BindVertexBuffer | BindIndexBuffer | BindConstantBuffer |
	BindShaderResource | BindIndirectBuffer

const textureBind = BindShaderResource | BindRenderTarget | BindDepthStencil | BindUnorderedAccess

// AccessFlags say who may access a resource's contents.
type AccessFlags uint32

const (
	AccessGPU AccessFlags = 1 << iota
	AccessCPU
	AccessMapRead
	AccessMapWrite
)

// TextureDesc describes a texture.
type TextureDesc struct {
	Dimension gputypes.TextureDimension
	Format    FormatID
	Width     uint32
	Height    uint32
	Depth     uint32
	Levels    uint32
	Layers    uint32
	Samples   uint32
	Bind      BindFlags
	Access    AccessFlags
}

// Subresource is the state of one (level, layer) of a texture.
type Subresource struct {
	locations  LocationSet
	clearValue ClearValue
	bo         *Bo
	size       uint32
	sysmem     []byte
}

// Locations returns the locations holding up to date contents.
func (s *Subresource) Locations() LocationSet { return s.locations }

// ClearValue returns the pending clear value while CLEARED is set.
func (s *Subresource) ClearValue() (ClearValue, bool) {
	return s.clearValue, s.locations.Has(LocationCleared)
}

// Bo returns the buffer backing the BUFFER location, or nil.
func (s *Subresource) Bo() *Bo { return s.bo }

// Size returns the tightly packed size of the subresource in bytes.
func (s *Subresource) Size() uint32 { return s.size }

// Texture is a Vulkan backed texture. Each subresource may live in host
// memory, a buffer object, the GPU image, or be pending a clear.
type Texture struct {
	desc   TextureDesc
	format *Format
	subs   []Subresource

	image     Image
	allocated bool

	// layout is the image layout implied by bind, see LayoutFromBind.
	layout  vk.ImageLayout
	bind    BindFlags
	generic bool

	destroyed bool
}

// NewTexture creates a texture. No storage is allocated; every subresource
// starts out cleared to zero.
func NewTexture(desc TextureDesc) (*Texture, error) {
	f, ok := LookupFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: unknown format %v", ErrInvalidDesc, desc.Format)
	}
	if desc.Levels == 0 {
		desc.Levels = 1
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	if desc.Height == 0 {
		desc.Height = 1
	}
	if err := validateDesc(&desc, f); err != nil {
		return nil, err
	}

	t := &Texture{
		desc:   desc,
		format: f,
		subs:   make([]Subresource, desc.Levels*desc.Layers),
		layout: vk.ImageLayoutUndefined,
	}
	for layer := uint32(0); layer < desc.Layers; layer++ {
		for level := uint32(0); level < desc.Levels; level++ {
			s := &t.subs[t.SubresourceIndex(level, layer)]
			s.size = f.Size(t.LevelWidth(level), t.LevelHeight(level), t.LevelDepth(level))
			s.locations = Locations(LocationCleared)
		}
	}
	return t, nil
}

func validateDesc(d *TextureDesc, f *Format) error {
	if d.Width == 0 {
		return fmt.Errorf("%w: zero width", ErrInvalidDesc)
	}
	switch d.Dimension {
	case gputypes.TextureDimension1D:
		if d.Height != 1 || d.Depth != 1 {
			return fmt.Errorf("%w: 1D texture with height %d depth %d", ErrInvalidDesc, d.Height, d.Depth)
		}
	case gputypes.TextureDimension2D:
		if d.Depth != 1 {
			return fmt.Errorf("%w: 2D texture with depth %d", ErrInvalidDesc, d.Depth)
		}
	case gputypes.TextureDimension3D:
		if d.Layers != 1 {
			return fmt.Errorf("%w: 3D texture with %d layers", ErrInvalidDesc, d.Layers)
		}
	default:
		return fmt.Errorf("%w: unknown dimension %v", ErrInvalidDesc, d.Dimension)
	}
	if d.Samples&(d.Samples-1) != 0 || d.Samples > 64 {
		return fmt.Errorf("%w: %d samples", ErrInvalidDesc, d.Samples)
	}
	if d.Samples > 1 && (d.Dimension != gputypes.TextureDimension2D || d.Levels != 1 || f.IsCompressed() || f.IsPlanar()) {
		return fmt.Errorf("%w: multisampled %s texture must be 2D with one level", ErrInvalidDesc, f.Name)
	}
	if f.IsPlanar() && (d.Dimension != gputypes.TextureDimension2D || d.Width%f.UVWidth != 0 || d.Height%f.UVHeight != 0) {
		return fmt.Errorf("%w: planar textures must be 2D with subsampled extents", ErrInvalidDesc)
	}
	if d.Bind&^textureBind != 0 {
		return fmt.Errorf("%w: bind flags %#x are not valid for textures", ErrInvalidDesc, d.Bind&^textureBind)
	}
	if d.Bind&BindDepthStencil != 0 && !f.HasDepthOrStencil() ||
		d.Bind&BindRenderTarget != 0 && (f.HasDepthOrStencil() || f.IsCompressed()) {
		return fmt.Errorf("%w: format %s cannot be bound with %#x", ErrInvalidDesc, f.Name, d.Bind)
	}
	return nil
}

// Desc returns the texture description with defaults filled in.
func (t *Texture) Desc() TextureDesc { return t.desc }

// Format returns the texture format.
func (t *Texture) Format() *Format { return t.format }

// LevelCount returns the number of mip levels.
func (t *Texture) LevelCount() uint32 { return t.desc.Levels }

// LayerCount returns the number of array layers.
func (t *Texture) LayerCount() uint32 { return t.desc.Layers }

// SubresourceCount returns LevelCount × LayerCount.
func (t *Texture) SubresourceCount() uint32 { return uint32(len(t.subs)) }

// SubresourceIndex returns the combined index of (level, layer).
func (t *Texture) SubresourceIndex(level, layer uint32) uint32 {
	return level + layer*t.desc.Levels
}

func (t *Texture) splitIndex(sub uint32) (level, layer uint32) {
	return sub % t.desc.Levels, sub / t.desc.Levels
}

// Subresource returns the state of subresource sub, or nil when out of range.
func (t *Texture) Subresource(sub uint32) *Subresource {
	if sub >= uint32(len(t.subs)) {
		return nil
	}
	return &t.subs[sub]
}

func (t *Texture) checkSub(sub uint32) error {
	if t.destroyed {
		return ErrDestroyed
	}
	if sub >= uint32(len(t.subs)) {
		return fmt.Errorf("%w: subresource %d of %d", ErrOutOfRange, sub, len(t.subs))
	}
	return nil
}

func (t *Texture) trackable(sub uint32) bool {
	if err := t.checkSub(sub); err != nil {
		slogger().Warn("texvk: location update ignored", "format", t.format.Name, "sub", sub, "err", err)
		return false
	}
	return true
}

// LevelWidth returns the width of a mip level.
func (t *Texture) LevelWidth(level uint32) uint32 { return max(1, t.desc.Width>>level) }

// LevelHeight returns the height of a mip level.
func (t *Texture) LevelHeight(level uint32) uint32 { return max(1, t.desc.Height>>level) }

// LevelDepth returns the depth of a mip level.
func (t *Texture) LevelDepth(level uint32) uint32 { return max(1, t.desc.Depth>>level) }

// LevelExtent returns the size of a mip level. DepthOrArrayLayers is the
// level depth for 3D textures and the layer count otherwise.
func (t *Texture) LevelExtent(level uint32) gputypes.Extent3D {
	e := gputypes.Extent3D{Width: t.LevelWidth(level), Height: t.LevelHeight(level)}
	if t.desc.Dimension == gputypes.TextureDimension3D {
		e.DepthOrArrayLayers = t.LevelDepth(level)
	} else {
		e.DepthOrArrayLayers = t.desc.Layers
	}
	return e
}

// LevelBox returns the box covering a whole mip level.
func (t *Texture) LevelBox(level uint32) Box {
	return Box{Right: t.LevelWidth(level), Bottom: t.LevelHeight(level), Back: t.LevelDepth(level)}
}

// Pitch returns the tightly packed row and slice pitch of a mip level.
func (t *Texture) Pitch(level uint32) (row, slice uint32) {
	return t.format.Pitch(t.LevelWidth(level), t.LevelHeight(level))
}

// IsFullRect reports whether r covers mip level exactly.
func (t *Texture) IsFullRect(level uint32, r image.Rectangle) bool {
	return r.Min.X <= 0 && r.Min.Y <= 0 &&
		r.Max.X >= int(t.LevelWidth(level)) && r.Max.Y >= int(t.LevelHeight(level))
}

// Multisampled reports whether the texture has more than one sample.
func (t *Texture) Multisampled() bool { return t.desc.Samples > 1 }

// GPUAccess reports whether the GPU may access the texture.
func (t *Texture) GPUAccess() bool { return t.desc.Access&AccessGPU != 0 }

// Allocated reports whether the GPU image exists.
func (t *Texture) Allocated() bool { return t.allocated }

// Image returns the native image, or native.Null before allocation.
func (t *Texture) Image() native.Image { return t.image.handle }

// Layout returns the tracked image layout.
func (t *Texture) Layout() vk.ImageLayout { return t.layout }

// BindMask returns the bindings the image was last synchronised for.
func (t *Texture) BindMask() BindFlags { return t.bind }

// IsGeneric reports whether the image is pinned to the general layout.
func (t *Texture) IsGeneric() bool { return t.generic }

// PrepareSysmem allocates host memory for every subresource.
func (t *Texture) PrepareSysmem() error {
	if t.destroyed {
		return ErrDestroyed
	}
	for i := range t.subs {
		t.prepareSysmemSub(uint32(i))
	}
	return nil
}

func (t *Texture) prepareSysmemSub(sub uint32) {
	s := &t.subs[sub]
	if s.sysmem == nil {
		s.sysmem = make([]byte, s.size)
	}
}

// Sysmem returns the host memory of subresource sub, or nil before it was
// prepared. The contents are only meaningful while SYSMEM is valid.
func (t *Texture) Sysmem(sub uint32) []byte {
	if sub >= uint32(len(t.subs)) {
		return nil
	}
	return t.subs[sub].sysmem
}

// BoAddress returns where subresource sub is stored in location loc.
func (t *Texture) BoAddress(sub uint32, loc Location) (Address, error) {
	if err := t.checkSub(sub); err != nil {
		return Address{}, err
	}
	s := &t.subs[sub]
	switch loc {
	case LocationSysmem:
		if s.sysmem == nil {
			return Address{}, fmt.Errorf("%w: %v not prepared", ErrInvalidLocation, loc)
		}
		return HostAddress(s.sysmem), nil
	case LocationBuffer:
		if s.bo == nil {
			return Address{}, fmt.Errorf("%w: %v not prepared", ErrInvalidLocation, loc)
		}
		return BoAddressOf(s.bo, 0), nil
	default:
		return Address{}, fmt.Errorf("%w: %v has no linear address", ErrInvalidLocation, loc)
	}
}

// ValidateLocation marks loc as holding up to date contents. Invalid
// subresources are logged and ignored.
func (t *Texture) ValidateLocation(sub uint32, loc Location) {
	if !t.trackable(sub) {
		return
	}
	t.subs[sub].locations.Set(loc)
}

// InvalidateLocation marks the locations in mask as stale. Invalid
// subresources are logged and ignored.
func (t *Texture) InvalidateLocation(sub uint32, mask LocationSet) {
	if !t.trackable(sub) {
		return
	}
	s := &t.subs[sub]
	s.locations = s.locations.Without(mask)
	if s.locations.IsEmpty() {
		slogger().Warn("texvk: subresource has no up to date location",
			"format", t.format.Name, "sub", sub)
	}
}

// Destroy releases all storage. GPU objects are released once the command
// buffers using them retired.
func (t *Texture) Destroy(c *Context) {
	if t.destroyed {
		return
	}
	for _, loc := range []Location{LocationTextureRGB, LocationBuffer, LocationSysmem} {
		t.unload(c, loc)
	}
	t.destroyed = true
}

func (t *Texture) imageType() vk.ImageType {
	switch t.desc.Dimension {
	case gputypes.TextureDimension1D:
		return vk.ImageType1d
	case gputypes.TextureDimension3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func (t *Texture) viewType() vk.ImageViewType {
	switch t.desc.Dimension {
	case gputypes.TextureDimension1D:
		if t.desc.Layers > 1 {
			return vk.ImageViewType1dArray
		}
		return vk.ImageViewType1d
	case gputypes.TextureDimension3D:
		return vk.ImageViewType3d
	default:
		if t.desc.Layers > 1 {
			return vk.ImageViewType2dArray
		}
		return vk.ImageViewType2d
	}
}

// textureUsage returns the usage implied by bind flags. Transfers are
// always allowed since every location change goes through them.
func (t *Texture) textureUsage() gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if t.desc.Bind&BindShaderResource != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if t.desc.Bind&(BindRenderTarget|BindDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

func (t *Texture) vkImageUsage() vk.ImageUsageFlags {
	u := t.textureUsage()
	var f vk.ImageUsageFlagBits
	if u&gputypes.TextureUsageCopySrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u&gputypes.TextureUsageCopyDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	if u&gputypes.TextureUsageTextureBinding != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if u&gputypes.TextureUsageRenderAttachment != 0 {
		if t.format.HasDepthOrStencil() {
			f |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			f |= vk.ImageUsageColorAttachmentBit
		}
	}
	if t.desc.Bind&BindUnorderedAccess != 0 {
		f |= vk.ImageUsageStorageBit
	}
	return vk.ImageUsageFlags(f)
}

// prepareTexture creates the GPU image once and brings it into the layout
// its bind flags call for.
func (t *Texture) prepareTexture(c *Context) error {
	if t.allocated {
		return nil
	}
	desc := native.ImageDesc{
		Type:        t.imageType(),
		Format:      t.format.VkFormat,
		Width:       t.desc.Width,
		Height:      t.desc.Height,
		Depth:       t.desc.Depth,
		MipLevels:   t.desc.Levels,
		ArrayLayers: t.desc.Layers,
		Samples:     vk.SampleCountFlagBits(t.desc.Samples),
		Usage:       t.vkImageUsage(),
	}
	if t.format.IsTypeless() {
		desc.Flags |= vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit)
	}
	img, err := c.createImage(&desc, t.format.Aspects())
	if err != nil {
		return err
	}
	cb, err := c.CommandBuffer()
	if err != nil {
		c.destroyImage(&img)
		return err
	}

	t.image = img
	t.bind = t.desc.Bind
	t.generic = t.bind&BindUnorderedAccess != 0
	t.layout = t.LayoutFromBind(t.bind)
	if _, ok := layoutForBind(t.bind); !ok && !t.generic {
		slogger().Warn("texvk: no layout for bind flags, using GENERAL",
			"format", t.format.Name, "bind", fmt.Sprintf("%#x", uint32(t.bind)))
	}

	c.imageBarrier(cb, barrierDesc{
		srcStages: stageTopOfPipe,
		dstStages: stagesFromBind(t.bind),
		dstAccess: accessFromBind(t.bind),
		oldLayout: vk.ImageLayoutUndefined,
		newLayout: t.layout,
	}, &t.image, t.fullRange())
	t.allocated = true
	return nil
}

// DefaultView returns the cached view of the whole image.
func (t *Texture) DefaultView(c *Context) (native.ImageView, error) {
	if !t.allocated {
		return native.Null, ErrNotAllocated
	}
	return c.defaultView(&t.image, t.viewType())
}

// fullRange covers every level and layer.
func (t *Texture) fullRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     t.format.Aspects(),
		BaseMipLevel:   0,
		LevelCount:     native.RemainingMipLevels,
		BaseArrayLayer: 0,
		LayerCount:     native.RemainingArrayLayers,
	}
}

// subRange covers one subresource.
func (t *Texture) subRange(sub uint32) vk.ImageSubresourceRange {
	level, layer := t.splitIndex(sub)
	return vk.ImageSubresourceRange{
		AspectMask:     t.format.Aspects(),
		BaseMipLevel:   level,
		LevelCount:     1,
		BaseArrayLayer: layer,
		LayerCount:     1,
	}
}
