package texvk

import (
	"image"
	"slices"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// ClearFlags select what a clear writes.
type ClearFlags uint32

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
	ClearStencil
)

// ClearValue is the value a subresource is cleared to.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// IsZero reports whether every component is zero.
func (v ClearValue) IsZero() bool { return v == ClearValue{} }

// ClearRequest clears rectangles of render target and depth/stencil views.
type ClearRequest struct {
	RenderTargets []*View
	DepthStencil  *View

	// Rects are clipped to DrawRect. No rects clears all of DrawRect.
	Rects    []image.Rectangle
	DrawRect image.Rectangle

	Flags ClearFlags
	Value ClearValue
}

// rects returns the clear rectangles clipped to the draw rectangle and to
// the w × h attachment. Empty rectangles are dropped.
func (r *ClearRequest) rects(w, h uint32) []image.Rectangle {
	bounds := r.DrawRect.Intersect(image.Rect(0, 0, int(w), int(h)))
	if len(r.Rects) == 0 {
		if bounds.Empty() {
			return nil
		}
		return []image.Rectangle{bounds}
	}
	out := make([]image.Rectangle, 0, len(r.Rects))
	for _, rc := range r.Rects {
		if rc = rc.Intersect(bounds); !rc.Empty() {
			out = append(out, rc)
		}
	}
	return out
}

// covers reports whether the union of rects contains full. The plane is
// cut along every rectangle edge and each resulting cell is tested.
func covers(rects []image.Rectangle, full image.Rectangle) bool {
	if full.Empty() {
		return true
	}
	xs := []int{full.Min.X, full.Max.X}
	ys := []int{full.Min.Y, full.Max.Y}
	for _, r := range rects {
		r = r.Intersect(full)
		if r.Empty() {
			continue
		}
		if r == full {
			return true
		}
		xs = append(xs, r.Min.X, r.Max.X)
		ys = append(ys, r.Min.Y, r.Max.Y)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs, ys = slices.Compact(xs), slices.Compact(ys)
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			cell := image.Rect(xs[i], ys[j], xs[i+1], ys[j+1])
			if !slices.ContainsFunc(rects, func(r image.Rectangle) bool { return cell.In(r) }) {
				return false
			}
		}
	}
	return true
}

// aspects returns the aspects of v written by flags.
func (r *ClearRequest) aspects(v *View) vk.ImageAspectFlags {
	if !v.format.HasDepthOrStencil() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	var a vk.ImageAspectFlags
	if r.Flags&ClearDepth != 0 {
		a |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if r.Flags&ClearStencil != 0 {
		a |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return a & v.format.Aspects()
}

// clearTarget is one attachment of a clear.
type clearTarget struct {
	view    *View
	aspects vk.ImageAspectFlags
	rects   []image.Rectangle
	full    bool
}

// Clear clears the views of req that allow GPU access and returns the rest
// for the next blitter, or nil when nothing is left. Full clears are
// deferred by marking the subresources CLEARED. Everything else is cleared
// in a render pass.
func (b *VulkanBlitter) Clear(c *Context, req *ClearRequest) (*ClearRequest, error) {
	var rest ClearRequest
	var targets []clearTarget

	accept := func(v *View) bool {
		t := v.texture
		if !t.GPUAccess() {
			return false
		}
		ct := clearTarget{view: v, aspects: req.aspects(v)}
		if ct.aspects == 0 {
			return true
		}
		ct.rects = req.rects(v.Width(), v.Height())
		if len(ct.rects) == 0 {
			return true
		}
		ct.full = covers(ct.rects, image.Rect(0, 0, int(v.Width()), int(v.Height())))
		if ct.full && ct.aspects == v.format.Aspects() && (!t.format.IsTypeless() || req.Value.IsZero()) {
			deferClear(v, req.Value)
			return true
		}
		// Render passes need an attachment, which compressed images and
		// images created without attachment usage cannot be.
		if t.format.IsCompressed() || t.desc.Bind&attachmentBind(v) == 0 {
			return false
		}
		targets = append(targets, ct)
		return true
	}

	if req.Flags&ClearColor != 0 {
		for _, v := range req.RenderTargets {
			if v != nil && !accept(v) {
				rest.RenderTargets = append(rest.RenderTargets, v)
			}
		}
	}
	if req.Flags&(ClearDepth|ClearStencil) != 0 && req.DepthStencil != nil && !accept(req.DepthStencil) {
		rest.DepthStencil = req.DepthStencil
	}

	if err := b.clearTargets(c, req, targets); err != nil {
		return nil, err
	}

	if len(rest.RenderTargets) == 0 && rest.DepthStencil == nil {
		return nil, nil
	}
	rest.Rects = req.Rects
	rest.DrawRect = req.DrawRect
	rest.Value = req.Value
	if len(rest.RenderTargets) != 0 {
		rest.Flags |= req.Flags & ClearColor
	}
	if rest.DepthStencil != nil {
		rest.Flags |= req.Flags & (ClearDepth | ClearStencil)
	}
	slogger().Debug("texvk: forwarding clear", "render_targets", len(rest.RenderTargets),
		"depth_stencil", rest.DepthStencil != nil)
	return &rest, nil
}

// attachmentBind returns the bind flag v needs to be used as an attachment.
func attachmentBind(v *View) BindFlags {
	if v.format.HasDepthOrStencil() {
		return BindDepthStencil
	}
	return BindRenderTarget
}

// deferClear records value as the contents of every subresource of v.
func deferClear(v *View, value ClearValue) {
	t := v.texture
	for _, sub := range v.Subresources() {
		s := &t.subs[sub]
		s.clearValue = value
		s.locations = Locations(LocationCleared)
	}
	slogger().Debug("texvk: deferred clear", "format", t.format.Name, "level", v.desc.Level)
}

// clearTargets clears targets in as few render passes as possible.
// Attachments of different sizes each get a pass of their own.
func (b *VulkanBlitter) clearTargets(c *Context, req *ClearRequest, targets []clearTarget) error {
	if len(targets) == 0 {
		return nil
	}
	sameSize := true
	for _, ct := range targets[1:] {
		if ct.view.Width() != targets[0].view.Width() || ct.view.Height() != targets[0].view.Height() ||
			ct.view.LayerCount() != targets[0].view.LayerCount() {
			sameSize = false
			break
		}
	}
	if sameSize {
		return b.clearPass(c, req, targets)
	}
	for i := range targets {
		if err := b.clearPass(c, req, targets[i:i+1]); err != nil {
			return err
		}
	}
	return nil
}

// clearPass clears targets, all of the same size, in one render pass.
func (b *VulkanBlitter) clearPass(c *Context, req *ClearRequest, targets []clearTarget) error {
	for _, ct := range targets {
		t := ct.view.texture
		for _, sub := range ct.view.Subresources() {
			var err error
			if ct.full && ct.aspects == ct.view.format.Aspects() {
				err = t.PrepareLocation(c, sub, LocationTextureRGB)
			} else {
				err = t.LoadLocation(c, sub, LocationTextureRGB)
			}
			if err != nil {
				return err
			}
			t.ValidateLocation(sub, LocationTextureRGB)
			t.InvalidateLocation(sub, ^Locations(LocationTextureRGB))
		}
		if err := t.Barrier(c, attachmentBind(ct.view)); err != nil {
			return err
		}
	}

	w, h, layers := targets[0].view.Width(), targets[0].view.Height(), targets[0].view.LayerCount()
	attachments := make([]native.Attachment, len(targets))
	clears := make([]native.ClearAttachment, len(targets))
	var area image.Rectangle
	var rects []vk.ClearRect
	for i, ct := range targets {
		v := ct.view
		handle, err := v.nativeView(c)
		if err != nil {
			return err
		}
		attachments[i] = native.Attachment{
			View:    handle,
			Format:  v.format.VkFormat,
			Samples: vk.SampleCountFlagBits(v.texture.desc.Samples),
			Layout:  v.texture.layout,
			Aspects: v.format.Aspects(),
		}
		clears[i] = native.ClearAttachment{Aspects: ct.aspects, Attachment: uint32(i)}
		if v.format.HasDepthOrStencil() {
			clears[i].DepthStencil = native.DepthStencilValue{Depth: req.Value.Depth, Stencil: req.Value.Stencil}
		} else {
			clears[i].Color = v.format.clearColor(req.Value.Color)
		}
		for _, r := range ct.rects {
			area = area.Union(r)
		}
		if i == 0 {
			for _, r := range ct.rects {
				rects = append(rects, vk.ClearRect{Rect: vkRect(r), BaseArrayLayer: 0, LayerCount: layers})
			}
		}
	}
	if area.Empty() {
		return nil
	}

	fb, err := c.dev.CreateFramebuffer(&native.FramebufferDesc{
		Attachments: attachments,
		Width:       w,
		Height:      h,
		Layers:      layers,
	})
	if err != nil {
		return err
	}
	c.ledger.Defer(c.ledger.Current(), func() { c.dev.DestroyFramebuffer(fb) })

	cb, err := c.CommandBuffer()
	if err != nil {
		return err
	}
	for _, ct := range targets {
		c.reference(&ct.view.Resource)
		c.reference(&ct.view.texture.image.Resource)
	}
	cb.BeginRenderPass(fb, vkRect(area))
	cb.ClearAttachments(clears, rects)
	cb.EndRenderPass()
	return nil
}

func vkRect(r image.Rectangle) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(r.Min.X), Y: int32(r.Min.Y)},
		Extent: vk.Extent2D{Width: uint32(r.Dx()), Height: uint32(r.Dy())},
	}
}
