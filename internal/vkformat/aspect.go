package vkformat

import vk "github.com/vulkan-go/vulkan"

// CombinedDepthStencil reports whether depth and stencil share one texel.
// Buffer copies of such formats address one aspect at a time.
func (i *Info) CombinedDepthStencil() bool {
	return i.Aspects&(depthAspect|stencilAspect) == depthAspect|stencilAspect
}

// AspectBytes returns the size of one texel of a single aspect as buffer
// copies lay it out. Depth takes 2 bytes for 16 bit formats and 4 bytes
// otherwise, stencil takes 1 byte.
func (i *Info) AspectBytes(aspect vk.ImageAspectFlags) uint32 {
	switch aspect {
	case depthAspect:
		if i.Depth.Bits == 16 {
			return 2
		}
		return 4
	case stencilAspect:
		return 1
	}
	return i.BlockBytes
}

func (i *Info) aspectChannel(aspect vk.ImageAspectFlags) Channel {
	if aspect == stencilAspect {
		return i.Stencil
	}
	return i.Depth
}

// ExtractAspect copies one aspect of texel src into dst, which holds
// AspectBytes(aspect) bytes. Unused high bits of dst are zeroed.
func (i *Info) ExtractAspect(dst, src []byte, aspect vk.ImageAspectFlags) {
	ch := i.aspectChannel(aspect)
	clear(dst[:i.AspectBytes(aspect)])
	putBits(dst, Channel{Bits: ch.Bits}, getBits(src, ch))
}

// InsertAspect stores the buffer texel src of one aspect into texel dst,
// leaving the other aspect untouched.
func (i *Info) InsertAspect(dst, src []byte, aspect vk.ImageAspectFlags) {
	ch := i.aspectChannel(aspect)
	putBits(dst, ch, getBits(src, Channel{Bits: ch.Bits}))
}

// SplitDepthStencil separates tightly packed texels into a depth plane and
// a stencil plane.
func (i *Info) SplitDepthStencil(depth, stencil, packed []byte) {
	db := i.AspectBytes(depthAspect)
	for n := uint32(0); (n+1)*i.BlockBytes <= uint32(len(packed)); n++ {
		texel := packed[n*i.BlockBytes : (n+1)*i.BlockBytes]
		i.ExtractAspect(depth[n*db:(n+1)*db], texel, depthAspect)
		i.ExtractAspect(stencil[n:n+1], texel, stencilAspect)
	}
}

// MergeDepthStencil is the inverse of SplitDepthStencil.
func (i *Info) MergeDepthStencil(packed, depth, stencil []byte) {
	db := i.AspectBytes(depthAspect)
	for n := uint32(0); (n+1)*i.BlockBytes <= uint32(len(packed)); n++ {
		texel := packed[n*i.BlockBytes : (n+1)*i.BlockBytes]
		i.InsertAspect(texel, depth[n*db:(n+1)*db], depthAspect)
		i.InsertAspect(texel, stencil[n:n+1], stencilAspect)
	}
}
