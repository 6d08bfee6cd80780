package vkformat

import (
	"bytes"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

func mustLookup(t *testing.T, f vk.Format) *Info {
	t.Helper()
	info, ok := Lookup(f)
	if !ok {
		t.Fatalf("Lookup(%d) failed", f)
	}
	return info
}

func TestPitch(t *testing.T) {
	tests := []struct {
		name      string
		format    vk.Format
		w, h      uint32
		row, slic uint32
	}{
		{"rgba8", vk.FormatR8g8b8a8Unorm, 16, 4, 64, 256},
		{"r8", vk.FormatR8Unorm, 3, 3, 3, 9},
		{"bc1 partial block", vk.FormatBc1RgbaUnormBlock, 6, 5, 16, 32},
		{"bc3", vk.FormatBc3UnormBlock, 8, 8, 32, 64},
		{"nv12 luma", native.FormatG8B8R82Plane420Unorm, 8, 4, 8, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mustLookup(t, tt.format)
			row, slice := info.Pitch(tt.w, tt.h)
			if row != tt.row || slice != tt.slic {
				t.Errorf("Pitch(%d, %d) = (%d, %d), want (%d, %d)", tt.w, tt.h, row, slice, tt.row, tt.slic)
			}
		})
	}
}

func TestPlanarSize(t *testing.T) {
	info := mustLookup(t, native.FormatG8B8R82Plane420Unorm)
	if !info.Planar() {
		t.Fatal("Planar() = false for NV12")
	}
	row, slice := info.ChromaPitch(8, 4)
	if row != 8 || slice != 16 {
		t.Errorf("ChromaPitch(8, 4) = (%d, %d), want (8, 16)", row, slice)
	}
	if got := info.Size(8, 4, 1); got != 48 {
		t.Errorf("Size(8, 4, 1) = %d, want 48", got)
	}
}

func TestPackColor(t *testing.T) {
	tests := []struct {
		name   string
		format vk.Format
		color  [4]float64
		want   []byte
	}{
		{"rgba8 unorm", vk.FormatR8g8b8a8Unorm, [4]float64{1, 0, 0.5, 1}, []byte{0xff, 0x00, 0x80, 0xff}},
		{"bgra8 swizzle", vk.FormatB8g8r8a8Unorm, [4]float64{1, 0, 0, 1}, []byte{0x00, 0x00, 0xff, 0xff}},
		{"clamped", vk.FormatR8g8b8a8Unorm, [4]float64{2, -1, 0, 0}, []byte{0xff, 0x00, 0x00, 0x00}},
		{"snorm", vk.FormatR8g8b8a8Snorm, [4]float64{-1, 1, 0, 0}, []byte{0x81, 0x7f, 0x00, 0x00}},
		{"r32 float", vk.FormatR32Sfloat, [4]float64{1, 0, 0, 0}, []byte{0x00, 0x00, 0x80, 0x3f}},
		{"half float", vk.FormatR16g16b16a16Sfloat, [4]float64{1, 0, 0, 0}, []byte{0x00, 0x3c, 0, 0, 0, 0, 0, 0}},
		{"srgb white", vk.FormatR8g8b8a8Srgb, [4]float64{1, 1, 1, 1}, []byte{0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mustLookup(t, tt.format)
			if got := info.PackColor(tt.color); !bytes.Equal(got, tt.want) {
				t.Errorf("PackColor(%v) = %x, want %x", tt.color, got, tt.want)
			}
		})
	}
}

func TestPackColorCompressed(t *testing.T) {
	info := mustLookup(t, vk.FormatBc1RgbaUnormBlock)
	if got := info.PackColor([4]float64{1, 1, 1, 1}); got != nil {
		t.Errorf("PackColor on BC1 = %x, want nil", got)
	}
}

func TestUnpackRoundTrip(t *testing.T) {
	info := mustLookup(t, vk.FormatR8g8b8a8Unorm)
	in := []byte{0x10, 0x20, 0x30, 0x40}
	if got := info.PackColor(info.UnpackColor(in)); !bytes.Equal(got, in) {
		t.Errorf("PackColor(UnpackColor(%x)) = %x", in, got)
	}
}

func TestPackClear(t *testing.T) {
	tests := []struct {
		name   string
		format vk.Format
		value  native.ClearColorValue
		want   []byte
	}{
		{"float bits", vk.FormatR8g8b8a8Unorm, native.ClearColorFloat32(0, 1, 0, 1), []byte{0, 0xff, 0, 0xff}},
		{"uint clamped", vk.FormatR8g8b8a8Uint, native.ClearColorUint32(1, 2, 300, 4), []byte{1, 2, 0xff, 4}},
		{"sint negative", vk.FormatR8g8b8a8Sint, native.ClearColorInt32(-1, -200, 5, 0), []byte{0xff, 0x80, 5, 0}},
		{"r32 uint", vk.FormatR32Uint, native.ClearColorUint32(0xdeadbeef, 0, 0, 0), []byte{0xef, 0xbe, 0xad, 0xde}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mustLookup(t, tt.format)
			if got := info.PackClear(tt.value); !bytes.Equal(got, tt.want) {
				t.Errorf("PackClear(%v) = %x, want %x", tt.value, got, tt.want)
			}
		})
	}
}

func TestWriteDepthStencil(t *testing.T) {
	info := mustLookup(t, vk.FormatD24UnormS8Uint)
	b := []byte{0, 0, 0, 0x11}

	info.WriteDepthStencil(b, vk.ImageAspectFlags(vk.ImageAspectDepthBit), 1, 0xaa)
	if want := []byte{0xff, 0xff, 0xff, 0x11}; !bytes.Equal(b, want) {
		t.Errorf("depth only = %x, want %x", b, want)
	}

	info.WriteDepthStencil(b, vk.ImageAspectFlags(vk.ImageAspectStencilBit), 0, 0xaa)
	if want := []byte{0xff, 0xff, 0xff, 0xaa}; !bytes.Equal(b, want) {
		t.Errorf("stencil only = %x, want %x", b, want)
	}
}

func TestAspectBytes(t *testing.T) {
	depth := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	stencil := vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	tests := []struct {
		name     string
		format   vk.Format
		aspect   vk.ImageAspectFlags
		want     uint32
		combined bool
	}{
		{"d16", vk.FormatD16Unorm, depth, 2, false},
		{"d32", vk.FormatD32Sfloat, depth, 4, false},
		{"d24s8 depth", vk.FormatD24UnormS8Uint, depth, 4, true},
		{"d24s8 stencil", vk.FormatD24UnormS8Uint, stencil, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mustLookup(t, tt.format)
			if got := info.AspectBytes(tt.aspect); got != tt.want {
				t.Errorf("AspectBytes() = %d, want %d", got, tt.want)
			}
			if got := info.CombinedDepthStencil(); got != tt.combined {
				t.Errorf("CombinedDepthStencil() = %v, want %v", got, tt.combined)
			}
		})
	}
}

func TestSplitMergeDepthStencil(t *testing.T) {
	info := mustLookup(t, vk.FormatD24UnormS8Uint)
	packed := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	depth := bytes.Repeat([]byte{0xff}, 8)
	stencil := make([]byte, 2)

	info.SplitDepthStencil(depth, stencil, packed)
	if want := []byte{0x11, 0x22, 0x33, 0, 0x55, 0x66, 0x77, 0}; !bytes.Equal(depth, want) {
		t.Errorf("depth plane = %x, want %x", depth, want)
	}
	if want := []byte{0x44, 0x88}; !bytes.Equal(stencil, want) {
		t.Errorf("stencil plane = %x, want %x", stencil, want)
	}

	got := make([]byte, 8)
	info.MergeDepthStencil(got, depth, stencil)
	if !bytes.Equal(got, packed) {
		t.Errorf("MergeDepthStencil() = %x, want %x", got, packed)
	}
}
