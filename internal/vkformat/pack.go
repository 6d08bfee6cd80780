package vkformat

import (
	"math"

	vk "github.com/vulkan-go/vulkan"
	"github.com/x448/float16"

	"github.com/gogpu/texvk/native"
)

// PackColor encodes an RGBA colour into one block of an uncompressed colour
// format. Values are clamped to the representable range. Absent channels are
// dropped. It returns nil for compressed and depth formats.
func (i *Info) PackColor(c [4]float64) []byte {
	if i.Compressed || i.Aspects&colorAspect == 0 {
		return nil
	}
	b := make([]byte, i.BlockBytes)
	for n, ch := range i.Color {
		if ch.Bits == 0 {
			continue
		}
		putBits(b, ch, encode(i.Class, ch.Bits, c[n], n == 3))
	}
	return b
}

// UnpackColor decodes one block of an uncompressed colour format. Absent
// colour channels read as zero and absent alpha as one.
func (i *Info) UnpackColor(b []byte) [4]float64 {
	c := [4]float64{0, 0, 0, 1}
	if i.Compressed {
		return c
	}
	for n, ch := range i.Color {
		if ch.Bits == 0 {
			continue
		}
		c[n] = decode(i.Class, ch.Bits, getBits(b, ch), n == 3)
	}
	return c
}

// PackClear encodes a raw clear value, reading its bits according to the
// format's class.
func (i *Info) PackClear(v native.ClearColorValue) []byte {
	switch i.Class {
	case ClassUint, ClassSint:
		b := make([]byte, i.BlockBytes)
		for n, ch := range i.Color {
			if ch.Bits == 0 {
				continue
			}
			var raw uint64
			if i.Class == ClassUint {
				raw = uint64(min(uint64(v[n]), maxUnsigned(ch.Bits)))
			} else {
				lim := int64(maxUnsigned(ch.Bits - 1))
				raw = uint64(max(-lim-1, min(int64(int32(v[n])), lim)))
			}
			putBits(b, ch, raw&maxUnsigned(ch.Bits))
		}
		return b
	default:
		f := v.Float32()
		return i.PackColor([4]float64{float64(f[0]), float64(f[1]), float64(f[2]), float64(f[3])})
	}
}

// WriteDepthStencil stores depth and stencil into block b, touching only the
// aspects selected.
func (i *Info) WriteDepthStencil(b []byte, aspects vk.ImageAspectFlags, depth float32, stencil uint32) {
	if aspects&depthAspect != 0 && i.Depth.Bits != 0 {
		var raw uint64
		if i.Class == ClassFloat {
			raw = uint64(math.Float32bits(depth))
		} else {
			raw = encode(ClassUnorm, i.Depth.Bits, float64(depth), false)
		}
		putBits(b, i.Depth, raw)
	}
	if aspects&stencilAspect != 0 && i.Stencil.Bits != 0 {
		putBits(b, i.Stencil, uint64(stencil)&maxUnsigned(i.Stencil.Bits))
	}
}

func encode(c Class, bits uint8, v float64, alpha bool) uint64 {
	mask := maxUnsigned(bits)
	switch c {
	case ClassUnorm, ClassSRGB:
		if c == ClassSRGB && !alpha {
			v = linearToSRGB(v)
		}
		return uint64(math.Round(clamp(v, 0, 1) * float64(mask)))
	case ClassSnorm:
		lim := float64(maxUnsigned(bits - 1))
		return uint64(int64(math.Round(clamp(v, -1, 1)*lim))) & mask
	case ClassUint:
		return uint64(clamp(math.Round(v), 0, float64(mask)))
	case ClassSint:
		lim := float64(maxUnsigned(bits - 1))
		return uint64(int64(clamp(math.Round(v), -lim-1, lim))) & mask
	case ClassFloat:
		switch bits {
		case 16:
			return uint64(float16.Fromfloat32(float32(v)).Bits())
		case 32:
			return uint64(math.Float32bits(float32(v)))
		}
	}
	return 0
}

func decode(c Class, bits uint8, raw uint64, alpha bool) float64 {
	mask := maxUnsigned(bits)
	switch c {
	case ClassUnorm, ClassSRGB:
		v := float64(raw) / float64(mask)
		if c == ClassSRGB && !alpha {
			v = srgbToLinear(v)
		}
		return v
	case ClassSnorm:
		return clamp(float64(signExtend(raw, bits))/float64(maxUnsigned(bits-1)), -1, 1)
	case ClassUint:
		return float64(raw)
	case ClassSint:
		return float64(signExtend(raw, bits))
	case ClassFloat:
		switch bits {
		case 16:
			return float64(float16.Frombits(uint16(raw)).Float32())
		case 32:
			return float64(math.Float32frombits(uint32(raw)))
		}
	}
	return 0
}

func linearToSRGB(v float64) float64 {
	v = clamp(v, 0, 1)
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func maxUnsigned(bits uint8) uint64 {
	return 1<<bits - 1
}

func signExtend(raw uint64, bits uint8) int64 {
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}

func putBits(b []byte, ch Channel, v uint64) {
	off := int(ch.Offset / 8)
	for n := 0; n < int(ch.Bits/8); n++ {
		b[off+n] = byte(v >> (8 * n))
	}
}

func getBits(b []byte, ch Channel) uint64 {
	off := int(ch.Offset / 8)
	var v uint64
	for n := 0; n < int(ch.Bits/8); n++ {
		v |= uint64(b[off+n]) << (8 * n)
	}
	return v
}
