package texvk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/vkformat"
	"github.com/gogpu/texvk/native"
)

// FormatID names a resource-level pixel format. Several IDs may share one
// native format; typeless IDs fix the byte layout but leave the numeric
// interpretation to the views created on them.
type FormatID uint16

const (
	FormatUnknown FormatID = iota
	FormatR8G8B8A8Typeless
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8UnormSRGB
	FormatR8G8B8A8Snorm
	FormatR8G8B8A8Uint
	FormatR8G8B8A8Sint
	FormatB8G8R8A8Typeless
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8UnormSRGB
	FormatR8Unorm
	FormatL8Unorm
	FormatR8G8Unorm
	FormatR16G16B16A16Float
	FormatR32Float
	FormatR32Uint
	FormatR32G32B32A32Float
	FormatD16Unorm
	FormatD24UnormS8Uint
	FormatD32Float
	FormatBC1Typeless
	FormatBC1Unorm
	FormatBC3Unorm
	FormatNV12
)

// FormatFlags are format attributes.
type FormatFlags uint32

const (
	FormatFlagTypeless FormatFlags = 1 << iota
	FormatFlagCompressed
	FormatFlagPlanar
	FormatFlagDepth
	FormatFlagStencil
	FormatFlagInteger
	FormatFlagSRGB
)

// Format describes a resource-level pixel format.
type Format struct {
	ID       FormatID
	Name     string
	VkFormat vk.Format
	Flags    FormatFlags

	BlockWidth  uint32
	BlockHeight uint32
	BlockBytes  uint32

	// UVWidth and UVHeight divide the luma extent to get the chroma plane
	// extent of planar formats.
	UVWidth  uint32
	UVHeight uint32

	// IdentityFixup is false for formats whose channels are swizzled when
	// sampled, so their bytes cannot be copied to another format verbatim.
	IdentityFixup bool

	layout *vkformat.Info
}

type formatDef struct {
	id    FormatID
	name  string
	vk    vk.Format
	flags FormatFlags
	fixup bool
	uv    uint32
}

var formatDefs = []formatDef{
	{FormatR8G8B8A8Typeless, "R8G8B8A8_TYPELESS", vk.FormatR8g8b8a8Unorm, FormatFlagTypeless, true, 0},
	{FormatR8G8B8A8Unorm, "R8G8B8A8_UNORM", vk.FormatR8g8b8a8Unorm, 0, true, 0},
	{FormatR8G8B8A8UnormSRGB, "R8G8B8A8_UNORM_SRGB", vk.FormatR8g8b8a8Srgb, FormatFlagSRGB, true, 0},
	{FormatR8G8B8A8Snorm, "R8G8B8A8_SNORM", vk.FormatR8g8b8a8Snorm, 0, true, 0},
	{FormatR8G8B8A8Uint, "R8G8B8A8_UINT", vk.FormatR8g8b8a8Uint, FormatFlagInteger, true, 0},
	{FormatR8G8B8A8Sint, "R8G8B8A8_SINT", vk.FormatR8g8b8a8Sint, FormatFlagInteger, true, 0},
	{FormatB8G8R8A8Typeless, "B8G8R8A8_TYPELESS", vk.FormatB8g8r8a8Unorm, FormatFlagTypeless, true, 0},
	{FormatB8G8R8A8Unorm, "B8G8R8A8_UNORM", vk.FormatB8g8r8a8Unorm, 0, true, 0},
	{FormatB8G8R8A8UnormSRGB, "B8G8R8A8_UNORM_SRGB", vk.FormatB8g8r8a8Srgb, FormatFlagSRGB, true, 0},
	{FormatR8Unorm, "R8_UNORM", vk.FormatR8Unorm, 0, true, 0},
	{FormatL8Unorm, "L8_UNORM", vk.FormatR8Unorm, 0, false, 0},
	{FormatR8G8Unorm, "R8G8_UNORM", vk.FormatR8g8Unorm, 0, true, 0},
	{FormatR16G16B16A16Float, "R16G16B16A16_FLOAT", vk.FormatR16g16b16a16Sfloat, 0, true, 0},
	{FormatR32Float, "R32_FLOAT", vk.FormatR32Sfloat, 0, true, 0},
	{FormatR32Uint, "R32_UINT", vk.FormatR32Uint, FormatFlagInteger, true, 0},
	{FormatR32G32B32A32Float, "R32G32B32A32_FLOAT", vk.FormatR32g32b32a32Sfloat, 0, true, 0},
	{FormatD16Unorm, "D16_UNORM", vk.FormatD16Unorm, FormatFlagDepth, true, 0},
	{FormatD24UnormS8Uint, "D24_UNORM_S8_UINT", vk.FormatD24UnormS8Uint, FormatFlagDepth | FormatFlagStencil, true, 0},
	{FormatD32Float, "D32_FLOAT", vk.FormatD32Sfloat, FormatFlagDepth, true, 0},
	{FormatBC1Typeless, "BC1_TYPELESS", vk.FormatBc1RgbaUnormBlock, FormatFlagTypeless | FormatFlagCompressed, true, 0},
	{FormatBC1Unorm, "BC1_UNORM", vk.FormatBc1RgbaUnormBlock, FormatFlagCompressed, true, 0},
	{FormatBC3Unorm, "BC3_UNORM", vk.FormatBc3UnormBlock, FormatFlagCompressed, true, 0},
	{FormatNV12, "NV12", native.FormatG8B8R82Plane420Unorm, FormatFlagPlanar, true, 2},
}

var formats = func() map[FormatID]*Format {
	m := make(map[FormatID]*Format, len(formatDefs))
	for _, d := range formatDefs {
		layout, ok := vkformat.Lookup(d.vk)
		if !ok {
			panic(fmt.Sprintf("texvk: no layout for native format %d of %s", d.vk, d.name))
		}
		f := &Format{
			ID:            d.id,
			Name:          d.name,
			VkFormat:      d.vk,
			Flags:         d.flags,
			BlockWidth:    layout.BlockWidth,
			BlockHeight:   layout.BlockHeight,
			BlockBytes:    layout.BlockBytes,
			UVWidth:       1,
			UVHeight:      1,
			IdentityFixup: d.fixup,
			layout:        layout,
		}
		if d.uv != 0 {
			f.UVWidth, f.UVHeight = d.uv, d.uv
		}
		m[d.id] = f
	}
	return m
}()

// LookupFormat returns the description of id.
func LookupFormat(id FormatID) (*Format, bool) {
	f, ok := formats[id]
	return f, ok
}

func (id FormatID) String() string {
	if f, ok := formats[id]; ok {
		return f.Name
	}
	return fmt.Sprintf("FormatID(%d)", uint16(id))
}

// IsTypeless reports whether the format defers its numeric interpretation.
func (f *Format) IsTypeless() bool { return f.Flags&FormatFlagTypeless != 0 }

// IsCompressed reports whether the format is block compressed.
func (f *Format) IsCompressed() bool { return f.Flags&FormatFlagCompressed != 0 }

// IsPlanar reports whether the format stores chroma in a second plane.
func (f *Format) IsPlanar() bool { return f.Flags&FormatFlagPlanar != 0 }

// HasDepthOrStencil reports whether the format has a depth or stencil
// component.
func (f *Format) HasDepthOrStencil() bool {
	return f.Flags&(FormatFlagDepth|FormatFlagStencil) != 0
}

// Aspects returns the native aspects of the whole format.
func (f *Format) Aspects() vk.ImageAspectFlags {
	var a vk.ImageAspectFlags
	if f.Flags&FormatFlagDepth != 0 {
		a |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if f.Flags&FormatFlagStencil != 0 {
		a |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if a == 0 {
		a = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	return a
}

// Pitch returns the tightly packed row and slice pitch for a width × height
// region. For planar formats these are the pitches of the luma plane.
func (f *Format) Pitch(width, height uint32) (row, slice uint32) {
	return f.layout.Pitch(width, height)
}

// Size returns the tightly packed size of a width × height × depth region,
// including the chroma plane.
func (f *Format) Size(width, height, depth uint32) uint32 {
	return f.layout.Size(width, height, depth)
}

// chromaBytes returns the bytes per chroma texel of a planar format.
func (f *Format) chromaBytes() uint32 {
	if f.layout.Chroma == nil {
		return 0
	}
	return f.layout.Chroma.BlockBytes
}
