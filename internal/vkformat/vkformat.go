// Package vkformat describes the memory layout of native pixel formats.
package vkformat

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// Class is the numeric interpretation of a format's channels.
type Class uint8

const (
	ClassUnorm Class = iota
	ClassSnorm
	ClassUint
	ClassSint
	ClassFloat
	ClassSRGB
)

// Channel locates one component inside a block. Offsets and widths are in
// bits and always byte aligned. A zero width means the channel is absent.
type Channel struct {
	Offset uint8
	Bits   uint8
}

// Plane describes the second plane of a two-plane format.
type Plane struct {
	BlockBytes uint32
	// SubsampleX and SubsampleY divide the luma extent.
	SubsampleX uint32
	SubsampleY uint32
}

// Info is the layout of one native format.
type Info struct {
	Format      vk.Format
	Class       Class
	BlockWidth  uint32
	BlockHeight uint32
	BlockBytes  uint32
	Aspects     vk.ImageAspectFlags
	Color       [4]Channel
	Depth       Channel
	Stencil     Channel
	Compressed  bool
	Chroma      *Plane
}

const (
	colorAspect   = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	depthAspect   = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	stencilAspect = vk.ImageAspectFlags(vk.ImageAspectStencilBit)
)

func rgba8(f vk.Format, c Class) *Info {
	return &Info{
		Format: f, Class: c, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
		Aspects: colorAspect,
		Color:   [4]Channel{{0, 8}, {8, 8}, {16, 8}, {24, 8}},
	}
}

func bgra8(f vk.Format, c Class) *Info {
	return &Info{
		Format: f, Class: c, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
		Aspects: colorAspect,
		Color:   [4]Channel{{16, 8}, {8, 8}, {0, 8}, {24, 8}},
	}
}

func bc(f vk.Format, bytes uint32, c Class) *Info {
	return &Info{
		Format: f, Class: c, BlockWidth: 4, BlockHeight: 4, BlockBytes: bytes,
		Aspects: colorAspect, Compressed: true,
	}
}

var table = func() map[vk.Format]*Info {
	infos := []*Info{
		rgba8(vk.FormatR8g8b8a8Unorm, ClassUnorm),
		rgba8(vk.FormatR8g8b8a8Srgb, ClassSRGB),
		rgba8(vk.FormatR8g8b8a8Snorm, ClassSnorm),
		rgba8(vk.FormatR8g8b8a8Uint, ClassUint),
		rgba8(vk.FormatR8g8b8a8Sint, ClassSint),
		bgra8(vk.FormatB8g8r8a8Unorm, ClassUnorm),
		bgra8(vk.FormatB8g8r8a8Srgb, ClassSRGB),
		{
			Format: vk.FormatR8Unorm, Class: ClassUnorm, BlockWidth: 1, BlockHeight: 1, BlockBytes: 1,
			Aspects: colorAspect, Color: [4]Channel{{0, 8}},
		},
		{
			Format: vk.FormatR8g8Unorm, Class: ClassUnorm, BlockWidth: 1, BlockHeight: 1, BlockBytes: 2,
			Aspects: colorAspect, Color: [4]Channel{{0, 8}, {8, 8}},
		},
		{
			Format: vk.FormatR16g16b16a16Sfloat, Class: ClassFloat, BlockWidth: 1, BlockHeight: 1, BlockBytes: 8,
			Aspects: colorAspect, Color: [4]Channel{{0, 16}, {16, 16}, {32, 16}, {48, 16}},
		},
		{
			Format: vk.FormatR32Sfloat, Class: ClassFloat, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
			Aspects: colorAspect, Color: [4]Channel{{0, 32}},
		},
		{
			Format: vk.FormatR32Uint, Class: ClassUint, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
			Aspects: colorAspect, Color: [4]Channel{{0, 32}},
		},
		{
			Format: vk.FormatR32g32b32a32Sfloat, Class: ClassFloat, BlockWidth: 1, BlockHeight: 1, BlockBytes: 16,
			Aspects: colorAspect, Color: [4]Channel{{0, 32}, {32, 32}, {64, 32}, {96, 32}},
		},
		{
			Format: vk.FormatD16Unorm, Class: ClassUnorm, BlockWidth: 1, BlockHeight: 1, BlockBytes: 2,
			Aspects: depthAspect, Depth: Channel{0, 16},
		},
		{
			Format: vk.FormatD24UnormS8Uint, Class: ClassUnorm, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
			Aspects: depthAspect | stencilAspect, Depth: Channel{0, 24}, Stencil: Channel{24, 8},
		},
		{
			Format: vk.FormatD32Sfloat, Class: ClassFloat, BlockWidth: 1, BlockHeight: 1, BlockBytes: 4,
			Aspects: depthAspect, Depth: Channel{0, 32},
		},
		bc(vk.FormatBc1RgbaUnormBlock, 8, ClassUnorm),
		bc(vk.FormatBc3UnormBlock, 16, ClassUnorm),
		{
			Format: native.FormatG8B8R82Plane420Unorm, Class: ClassUnorm, BlockWidth: 1, BlockHeight: 1, BlockBytes: 1,
			Aspects: colorAspect | native.AspectPlane0 | native.AspectPlane1,
			Color:   [4]Channel{{0, 8}},
			Chroma:  &Plane{BlockBytes: 2, SubsampleX: 2, SubsampleY: 2},
		},
	}
	m := make(map[vk.Format]*Info, len(infos))
	for _, info := range infos {
		m[info.Format] = info
	}
	return m
}()

// Lookup returns the layout of f.
func Lookup(f vk.Format) (*Info, bool) {
	info, ok := table[f]
	return info, ok
}

// Planar reports whether the format has a separate chroma plane.
func (i *Info) Planar() bool { return i.Chroma != nil }

// HasDepthOrStencil reports whether the format has a depth or stencil aspect.
func (i *Info) HasDepthOrStencil() bool {
	return i.Aspects&(depthAspect|stencilAspect) != 0
}

// Pitch returns the tightly packed row and slice pitch of the first plane
// for a width × height region.
func (i *Info) Pitch(width, height uint32) (row, slice uint32) {
	row = divUp(width, i.BlockWidth) * i.BlockBytes
	slice = row * divUp(height, i.BlockHeight)
	return row, slice
}

// ChromaPitch returns the tightly packed pitches of the chroma plane for a
// luma region of width × height. It returns zeros for single plane formats.
func (i *Info) ChromaPitch(width, height uint32) (row, slice uint32) {
	if i.Chroma == nil {
		return 0, 0
	}
	row = divUp(width, i.Chroma.SubsampleX) * i.Chroma.BlockBytes
	slice = row * divUp(height, i.Chroma.SubsampleY)
	return row, slice
}

// Size returns the tightly packed size in bytes of a width × height × depth
// region, including the chroma plane of planar formats.
func (i *Info) Size(width, height, depth uint32) uint32 {
	_, slice := i.Pitch(width, height)
	_, chroma := i.ChromaPitch(width, height)
	return (slice + chroma) * depth
}

func divUp(v, d uint32) uint32 {
	return (v + d - 1) / d
}
