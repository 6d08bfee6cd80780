package software

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/vkformat"
	"github.com/gogpu/texvk/native"
)

// image stores every subresource and sample tightly packed. Planar formats
// keep the chroma plane right after the luma plane of the same subresource.
type image struct {
	desc    native.ImageDesc
	info    *vkformat.Info
	samples uint32
	data    [][][]byte
	layouts []vk.ImageLayout
	size    uint64
}

func newImage(desc *native.ImageDesc, info *vkformat.Info) *image {
	img := &image{desc: *desc, info: info, samples: uint32(desc.Samples)}
	if img.samples == 0 {
		img.samples = 1
	}
	if img.desc.MipLevels == 0 {
		img.desc.MipLevels = 1
	}
	if img.desc.ArrayLayers == 0 {
		img.desc.ArrayLayers = 1
	}
	if img.desc.Depth == 0 {
		img.desc.Depth = 1
	}

	count := int(img.desc.MipLevels * img.desc.ArrayLayers)
	img.data = make([][][]byte, count)
	img.layouts = make([]vk.ImageLayout, count)
	for layer := uint32(0); layer < img.desc.ArrayLayers; layer++ {
		for level := uint32(0); level < img.desc.MipLevels; level++ {
			w, h, d := img.extent(level)
			size := info.Size(w, h, d)
			samples := make([][]byte, img.samples)
			for s := range samples {
				samples[s] = make([]byte, size)
			}
			img.data[img.index(level, layer)] = samples
			img.size += uint64(size) * uint64(img.samples)
		}
	}
	return img
}

func (img *image) index(level, layer uint32) int {
	return int(level + layer*img.desc.MipLevels)
}

func (img *image) extent(level uint32) (w, h, d uint32) {
	w = max(1, img.desc.Width>>level)
	h = max(1, img.desc.Height>>level)
	d = max(1, img.desc.Depth>>level)
	return w, h, d
}

// levels resolves a (base, count) pair that may use RemainingMipLevels.
func (img *image) levels(base, count uint32) (uint32, uint32) {
	if count == native.RemainingMipLevels || base+count > img.desc.MipLevels {
		count = img.desc.MipLevels - min(base, img.desc.MipLevels)
	}
	return base, count
}

func (img *image) layers(base, count uint32) (uint32, uint32) {
	if count == native.RemainingArrayLayers || base+count > img.desc.ArrayLayers {
		count = img.desc.ArrayLayers - min(base, img.desc.ArrayLayers)
	}
	return base, count
}

// plane is the addressing of one plane of one mip level.
type plane struct {
	base, row, slice uint32
	bw, bh, bb       uint32
	w, h, d          uint32
}

func (img *image) plane(level uint32, aspects vk.ImageAspectFlags) plane {
	w, h, d := img.extent(level)
	row, slice := img.info.Pitch(w, h)
	p := plane{
		row: row, slice: slice,
		bw: img.info.BlockWidth, bh: img.info.BlockHeight, bb: img.info.BlockBytes,
		w: w, h: h, d: d,
	}
	if aspects&native.AspectPlane1 != 0 && img.info.Chroma != nil {
		c := img.info.Chroma
		crow, cslice := img.info.ChromaPitch(w, h)
		p = plane{
			base: slice * d, row: crow, slice: cslice,
			bw: 1, bh: 1, bb: c.BlockBytes,
			w: (w + c.SubsampleX - 1) / c.SubsampleX,
			h: (h + c.SubsampleY - 1) / c.SubsampleY,
			d: d,
		}
	}
	return p
}

func (p plane) offset(x, y, z uint32) uint32 {
	return p.base + z*p.slice + (y/p.bh)*p.row + (x/p.bw)*p.bb
}

func (p plane) rowBytes(width uint32) uint32 {
	return (width + p.bw - 1) / p.bw * p.bb
}

func (p plane) blockRows(height uint32) uint32 {
	return (height + p.bh - 1) / p.bh
}

// contains reports whether the box at (x, y, z) of the given extent lies in
// the plane. Extents may end on a partial block at the plane edge.
func (p plane) contains(x, y, z int32, e vk.Extent3D) bool {
	if x < 0 || y < 0 || z < 0 {
		return false
	}
	return uint32(x)+e.Width <= p.w && uint32(y)+e.Height <= p.h && uint32(z)+e.Depth <= p.d
}
