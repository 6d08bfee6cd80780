package texvk

import "image"

// Box is a half-open 3D region [Left, Right) × [Top, Bottom) × [Front, Back)
// in texels.
type Box struct {
	Left, Top, Right, Bottom, Front, Back uint32
}

// Width returns the horizontal extent.
func (b Box) Width() uint32 { return b.Right - b.Left }

// Height returns the vertical extent.
func (b Box) Height() uint32 { return b.Bottom - b.Top }

// Depth returns the extent along z.
func (b Box) Depth() uint32 { return b.Back - b.Front }

// IsEmpty reports whether the box contains no texels.
func (b Box) IsEmpty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top || b.Back <= b.Front
}

// Rect returns the 2D footprint of the box.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.Left), int(b.Top), int(b.Right), int(b.Bottom))
}

// BoxFromRect returns the single slice box at depth z covering r.
func BoxFromRect(r image.Rectangle, z uint32) Box {
	return Box{
		Left: uint32(r.Min.X), Top: uint32(r.Min.Y),
		Right: uint32(r.Max.X), Bottom: uint32(r.Max.Y),
		Front: z, Back: z + 1,
	}
}

// subsample divides the horizontal and vertical bounds for a chroma plane.
func (b Box) subsample(uvWidth, uvHeight uint32) Box {
	return Box{
		Left: b.Left / uvWidth, Right: b.Right / uvWidth,
		Top: b.Top / uvHeight, Bottom: b.Bottom / uvHeight,
		Front: b.Front, Back: b.Back,
	}
}

// blockAligned reports whether the box starts on a block boundary and ends
// on one or on the level edge.
func (b Box) blockAligned(f *Format, levelWidth, levelHeight uint32) bool {
	if b.Left%f.BlockWidth != 0 || b.Top%f.BlockHeight != 0 {
		return false
	}
	if b.Right%f.BlockWidth != 0 && b.Right != levelWidth {
		return false
	}
	return b.Bottom%f.BlockHeight == 0 || b.Bottom == levelHeight
}
