package native

import (
	"math"

	vk "github.com/vulkan-go/vulkan"
)

// ClearColorValue holds the raw 128 bits of a colour clear. Like the Vulkan
// union it carries no type: the bits are read as float32, uint32 or int32
// depending on the numeric class of the cleared format.
type ClearColorValue [4]uint32

// ClearColorFloat32 builds a clear value for float, unorm, snorm and sRGB
// formats.
func ClearColorFloat32(r, g, b, a float32) ClearColorValue {
	return ClearColorValue{
		math.Float32bits(r), math.Float32bits(g),
		math.Float32bits(b), math.Float32bits(a),
	}
}

// ClearColorUint32 builds a clear value for unsigned integer formats.
func ClearColorUint32(r, g, b, a uint32) ClearColorValue {
	return ClearColorValue{r, g, b, a}
}

// ClearColorInt32 builds a clear value for signed integer formats.
func ClearColorInt32(r, g, b, a int32) ClearColorValue {
	return ClearColorValue{uint32(r), uint32(g), uint32(b), uint32(a)}
}

// Float32 reinterprets the value as four floats.
func (c ClearColorValue) Float32() [4]float32 {
	return [4]float32{
		math.Float32frombits(c[0]), math.Float32frombits(c[1]),
		math.Float32frombits(c[2]), math.Float32frombits(c[3]),
	}
}

// Int32 reinterprets the value as four signed integers.
func (c ClearColorValue) Int32() [4]int32 {
	return [4]int32{int32(c[0]), int32(c[1]), int32(c[2]), int32(c[3])}
}

// DepthStencilValue is a depth/stencil clear value.
type DepthStencilValue struct {
	Depth   float32
	Stencil uint32
}

// ClearAttachment selects an attachment of the current render pass and the
// value to clear it to. Color is used for colour aspects, DepthStencil for
// depth and stencil aspects.
type ClearAttachment struct {
	Aspects      vk.ImageAspectFlags
	Attachment   uint32
	Color        ClearColorValue
	DepthStencil DepthStencilValue
}
