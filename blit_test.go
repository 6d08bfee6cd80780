package texvk

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/backend/software"
	"github.com/gogpu/texvk/native"
)

func full(w, h int) image.Rectangle { return image.Rect(0, 0, w, h) }

// msTexture returns a 4x multisampled render target whose samples hold v.
func msTexture(t *testing.T, c *Context, format FormatID, v ClearValue) *Texture {
	t.Helper()
	desc := tex2D(format, 4, 4, BindRenderTarget)
	desc.Samples = 4
	tex := mustTexture(t, desc)
	tex.subs[0].clearValue = v
	if err := tex.LoadLocation(c, 0, LocationTextureRGB); err != nil {
		t.Fatal(err)
	}
	return tex
}

func opsOf(dev *software.Device, keep ...software.Op) []software.Op {
	var out []software.Op
	for _, op := range dev.RecordedOps() {
		for _, k := range keep {
			if op == k {
				out = append(out, op)
			}
		}
	}
	return out
}

func TestBlitResolve(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := msTexture(t, c, FormatR8G8B8A8Unorm, red)
	dst := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource))
	if err := c.Finish(); err != nil {
		t.Fatal(err)
	}
	dev.ResetLog()

	locs, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationTextureRGB, SrcRect: full(4, 4),
		Dst: dst, DstLocation: LocationTextureRGB, DstRect: full(4, 4),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	if locs != Locations(LocationTextureRGB) {
		t.Errorf("Blit() = %v, want {TEXTURE_RGB}", locs)
	}
	checkLayout(t, c, dev, src)
	checkLayout(t, c, dev, dst)

	ops := opsOf(dev, software.OpCopyImage, software.OpResolveImage)
	if len(ops) != 1 || ops[0] != software.OpResolveImage {
		t.Errorf("copy ops = %v, want a single ResolveImage", ops)
	}
	if got := dev.Stats().ImagesCreated; got != 2 {
		t.Errorf("ImagesCreated = %d, want 2", got)
	}
	got, _ := dev.ReadImage(dst.Image(), 0, 0)
	if want := bytes.Repeat([]byte{255, 0, 0, 255}, 16); !bytes.Equal(got, want) {
		t.Errorf("resolved = %v, want %v", got, want)
	}
	if dst.Subresource(0).Locations() != Locations(LocationTextureRGB) {
		t.Errorf("dst locations = %v, want {TEXTURE_RGB}", dst.Subresource(0).Locations())
	}
}

func TestBlitResolveThroughIntermediates(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := msTexture(t, c, FormatB8G8R8A8Typeless, red)
	dst := mustTexture(t, tex2D(FormatB8G8R8A8UnormSRGB, 4, 4, BindShaderResource))
	if err := c.Finish(); err != nil {
		t.Fatal(err)
	}
	dev.ResetLog()

	_, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationTextureRGB, SrcRect: full(4, 4),
		Dst: dst, DstLocation: LocationTextureRGB, DstRect: full(4, 4),
		ResolveFormat: FormatR8G8B8A8Unorm,
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	if got := c.PendingDestroys(); got < 2 {
		t.Errorf("PendingDestroys() = %d, want the intermediates pending", got)
	}
	checkLayout(t, c, dev, src)
	checkLayout(t, c, dev, dst)

	ops := opsOf(dev, software.OpCopyImage, software.OpResolveImage)
	want := []software.Op{software.OpCopyImage, software.OpResolveImage, software.OpCopyImage}
	if len(ops) != len(want) || ops[0] != want[0] || ops[1] != want[1] || ops[2] != want[2] {
		t.Errorf("copy ops = %v, want %v", ops, want)
	}
	for _, r := range commands(dev, software.OpResolveImage) {
		if r.SrcImage == src.Image() || r.DstImage == dst.Image() {
			t.Error("resolve did not run between intermediates")
		}
	}
	s := dev.Stats()
	if s.ImagesCreated != 4 || s.ImagesLive != 2 {
		t.Errorf("images created, live = %d, %d, want 4, 2", s.ImagesCreated, s.ImagesLive)
	}
	got, _ := dev.ReadImage(dst.Image(), 0, 0)
	if want := bytes.Repeat([]byte{0, 0, 255, 255}, 16); !bytes.Equal(got, want) {
		t.Errorf("resolved = %v, want %v", got, want)
	}
}

func TestBlitResolveFailureRestoresLayouts(t *testing.T) {
	// Room for both textures but not for the multisampled intermediate.
	c, dev := newTestContext(t, software.Options{MemoryLimit: 336})
	src := msTexture(t, c, FormatB8G8R8A8Typeless, red)
	dst := mustTexture(t, tex2D(FormatB8G8R8A8UnormSRGB, 4, 4, BindShaderResource))

	_, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationTextureRGB, SrcRect: full(4, 4),
		Dst: dst, DstLocation: LocationTextureRGB, DstRect: full(4, 4),
		ResolveFormat: FormatR8G8B8A8Unorm,
	})
	if !errors.Is(err, ErrNoBlitter) || !errors.Is(err, native.ErrOutOfDeviceMemory) {
		t.Fatalf("Blit() error = %v, want %v wrapping %v", err, ErrNoBlitter, native.ErrOutOfDeviceMemory)
	}
	if n := len(commands(dev, software.OpResolveImage)); n != 0 {
		t.Errorf("recorded %d resolves, want 0", n)
	}
	checkLayout(t, c, dev, src)
	checkLayout(t, c, dev, dst)
	if got := dst.Subresource(0).Locations(); got.Has(LocationTextureRGB) {
		t.Errorf("dst locations = %v, want TEXTURE_RGB still stale", got)
	}
}

func TestBlitCopy(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := mustTexture(t, tex2D(FormatR8Unorm, 4, 4, BindShaderResource))
	data := pattern(16)
	fillSysmem(t, c, src, 0, data)
	dst := mustTexture(t, tex2D(FormatR8Unorm, 8, 8, BindShaderResource|BindRenderTarget))

	locs, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationSysmem, SrcRect: image.Rect(1, 1, 3, 4),
		Dst: dst, DstLocation: LocationSysmem, DstRect: image.Rect(5, 4, 7, 7),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	if want := Locations(LocationSysmem, LocationTextureRGB); locs != want {
		t.Errorf("Blit() = %v, want %v", locs, want)
	}
	checkLayout(t, c, dev, src)
	checkLayout(t, c, dev, dst)
	if n := len(commands(dev, software.OpCopyImage)); n != 1 {
		t.Errorf("CopyImage commands = %d, want 1", n)
	}

	got := dst.Sysmem(0)
	for y := range 8 {
		for x := range 8 {
			var want byte
			if x >= 5 && x < 7 && y >= 4 && y < 7 {
				want = data[(y-3)*4+x-4]
			}
			if got[y*8+x] != want {
				t.Errorf("dst (%d, %d) = %d, want %d", x, y, got[y*8+x], want)
			}
		}
	}
}

func TestBlitRawClampsToDestination(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := mustTexture(t, tex2D(FormatR8Unorm, 4, 4, BindShaderResource))
	data := pattern(16)
	fillSysmem(t, c, src, 0, data)
	dst := mustTexture(t, tex2D(FormatR8Unorm, 4, 4, BindShaderResource))

	_, err := c.Blit(&BlitRequest{
		Op: BlitRaw, Src: src, SrcLocation: LocationSysmem, SrcRect: image.Rect(0, 0, 4, 4),
		Dst: dst, DstLocation: LocationSysmem, DstRect: image.Rect(1, 2, 3, 3),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	cmds := commands(dev, software.OpCopyImage)
	if len(cmds) != 1 {
		t.Fatalf("CopyImage commands = %d, want 1", len(cmds))
	}
	if e := cmds[0].ImageCopies[0].Extent; e.Width != 2 || e.Height != 1 || e.Depth != 1 {
		t.Errorf("copy extent = %dx%dx%d, want 2x1x1", e.Width, e.Height, e.Depth)
	}

	got := dst.Sysmem(0)
	for y := range 4 {
		for x := range 4 {
			var want byte
			if x >= 1 && x < 3 && y == 2 {
				want = data[x-1]
			}
			if got[y*4+x] != want {
				t.Errorf("dst (%d, %d) = %d, want %d", x, y, got[y*4+x], want)
			}
		}
	}
}

func TestBlitPlanar(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := mustTexture(t, tex2D(FormatNV12, 8, 4, BindShaderResource))
	data := pattern(48)
	fillSysmem(t, c, src, 0, data)
	dst := mustTexture(t, tex2D(FormatNV12, 8, 4, BindShaderResource))

	_, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationSysmem, SrcRect: full(8, 4),
		Dst: dst, DstLocation: LocationTextureRGB, DstRect: full(8, 4),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	checkLayout(t, c, dev, dst)

	copies := commands(dev, software.OpCopyImage)
	if len(copies) != 2 {
		t.Fatalf("CopyImage commands = %d, want 2", len(copies))
	}
	wantExtents := []vk.Extent3D{{Width: 8, Height: 4, Depth: 1}, {Width: 4, Height: 2, Depth: 1}}
	wantAspects := []vk.ImageAspectFlags{native.AspectPlane0, native.AspectPlane1}
	for i, cmd := range copies {
		r := cmd.ImageCopies[0]
		if r.Extent != wantExtents[i] || r.SrcSubresource.AspectMask != wantAspects[i] {
			t.Errorf("copy %d = extent %+v aspects %#x, want %+v %#x", i, r.Extent, r.SrcSubresource.AspectMask, wantExtents[i], wantAspects[i])
		}
	}

	if err := dst.LoadLocation(c, 0, LocationSysmem); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst.Sysmem(0), data) {
		t.Errorf("planar copy = %v, want %v", dst.Sysmem(0), data)
	}
}

func TestBlitBetweenLevels(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	desc := tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource)
	desc.Levels = 2
	tex := mustTexture(t, desc)
	data := pattern(64)
	fillSysmem(t, c, tex, 0, data)

	_, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: tex, SrcSub: 0, SrcLocation: LocationTextureRGB, SrcRect: image.Rect(2, 2, 4, 4),
		Dst: tex, DstSub: 1, DstLocation: LocationSysmem, DstRect: full(2, 2),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	checkLayout(t, c, dev, tex)
	want := append(append([]byte(nil), data[40:48]...), data[56:64]...)
	if got := tex.Sysmem(1); !bytes.Equal(got, want) {
		t.Errorf("level 1 = %v, want %v", got, want)
	}
}

func TestVulkanSupportsBlit(t *testing.T) {
	mk := func(format FormatID, samples uint32, access AccessFlags) *Texture {
		desc := tex2D(format, 4, 4, 0)
		desc.Samples, desc.Access = samples, access
		return mustTexture(t, desc)
	}
	rgba := mk(FormatR8G8B8A8Unorm, 1, AccessGPU)
	rgba2 := mk(FormatR8G8B8A8Unorm, 1, AccessGPU)
	bgra := mk(FormatB8G8R8A8Unorm, 1, AccessGPU)
	srgb := mk(FormatR8G8B8A8UnormSRGB, 1, AccessGPU)
	typeless := mk(FormatR8G8B8A8Typeless, 1, AccessGPU)
	l8 := mk(FormatL8Unorm, 1, AccessGPU)
	r8 := mk(FormatR8Unorm, 1, AccessGPU)
	ms := mk(FormatR8G8B8A8Unorm, 4, AccessGPU)
	msDepth := mk(FormatD32Float, 4, AccessGPU)
	depth := mk(FormatD32Float, 1, AccessGPU)
	depth2 := mk(FormatD32Float, 1, AccessGPU)
	host := mk(FormatR8G8B8A8Unorm, 1, AccessCPU)
	nv12 := mk(FormatNV12, 1, AccessGPU)
	nv12b := mk(FormatNV12, 1, AccessGPU)
	bc1 := mk(FormatBC1Unorm, 1, AccessGPU)
	bc1t := mk(FormatBC1Typeless, 1, AccessGPU)

	tests := []struct {
		name string
		req  BlitRequest
		want bool
	}{
		{"same format", BlitRequest{Src: rgba, Dst: rgba2}, true},
		{"scaled", BlitRequest{Src: rgba, Dst: rgba2, DstRect: full(2, 2)}, false},
		{"host only", BlitRequest{Src: rgba, Dst: host}, false},
		{"different formats", BlitRequest{Src: rgba, Dst: bgra}, false},
		{"typeless view of srgb", BlitRequest{Src: typeless, Dst: srgb, ResolveFormat: FormatR8G8B8A8Unorm}, true},
		{"typeless without resolve format", BlitRequest{Src: typeless, Dst: srgb}, false},
		{"same native format", BlitRequest{Src: typeless, Dst: rgba}, true},
		{"swizzled format", BlitRequest{Op: BlitRaw, Src: l8, Dst: r8}, false},
		{"raw", BlitRequest{Op: BlitRaw, Src: rgba, Dst: bgra, DstRect: full(2, 2)}, true},
		{"compressed raw", BlitRequest{Op: BlitRaw, Src: bc1t, Dst: bc1}, true},
		{"resolve", BlitRequest{Src: ms, Dst: rgba}, true},
		{"multisampled destination", BlitRequest{Src: rgba, Dst: ms}, false},
		{"depth resolve", BlitRequest{Op: BlitDepth, Src: msDepth, Dst: depth}, false},
		{"raw resolve", BlitRequest{Op: BlitRaw, Src: ms, Dst: rgba}, false},
		{"depth copy", BlitRequest{Op: BlitDepth, Src: depth, Dst: depth2}, false},
		{"same subresource", BlitRequest{Src: rgba, Dst: rgba}, false},
		{"planar", BlitRequest{Src: nv12, Dst: nv12b}, true},
		{"planar to rgba", BlitRequest{Op: BlitRaw, Src: nv12, Dst: rgba}, false},
	}
	b := NewVulkanBlitter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if req.SrcRect.Empty() {
				req.SrcRect = full(4, 4)
			}
			if req.DstRect.Empty() {
				req.DstRect = full(4, 4)
			}
			if got := b.SupportsBlit(&req); got != tt.want {
				t.Errorf("SupportsBlit() = %v, want %v", got, tt.want)
			}
		})
	}
}

type stubBlitter struct {
	name     string
	supports bool
	err      error
	rest     *ClearRequest
	calls    int
}

func (s *stubBlitter) Name() string { return s.name }

func (s *stubBlitter) SupportsClear(*ClearRequest) bool { return s.supports }

func (s *stubBlitter) SupportsBlit(*BlitRequest) bool { return s.supports }

func (s *stubBlitter) Clear(*Context, *ClearRequest) (*ClearRequest, error) {
	s.calls++
	return s.rest, s.err
}

func (s *stubBlitter) Blit(_ *Context, req *BlitRequest) (LocationSet, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return Locations(req.DstLocation), nil
}

func TestChainBlitForwarding(t *testing.T) {
	errStub := errors.New("stub failure")
	tex := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 4, 4, 0))
	req := &BlitRequest{Src: tex, Dst: tex, DstLocation: LocationSysmem}

	skipped := &stubBlitter{name: "skipped"}
	failing := &stubBlitter{name: "failing", supports: true, err: errStub}
	working := &stubBlitter{name: "working", supports: true}

	locs, err := NewChain(skipped, failing, working).Blit(nil, req)
	if err != nil || locs != Locations(LocationSysmem) {
		t.Errorf("Blit() = %v, %v, want {SYSMEM}, nil", locs, err)
	}
	if skipped.calls != 0 || failing.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d, %d, %d, want 0, 1, 1", skipped.calls, failing.calls, working.calls)
	}

	_, err = NewChain(failing).Blit(nil, req)
	if !errors.Is(err, ErrNoBlitter) || !errors.Is(err, errStub) {
		t.Errorf("Blit() with failing chain error = %v, want %v wrapping %v", err, ErrNoBlitter, errStub)
	}
	if _, err := NewChain().Blit(nil, req); !errors.Is(err, ErrNoBlitter) {
		t.Errorf("Blit() with empty chain error = %v, want %v", err, ErrNoBlitter)
	}
	if _, err := NewChain(working).Blit(nil, &BlitRequest{}); !errors.Is(err, ErrInvalidDesc) {
		t.Errorf("Blit() without textures error = %v, want %v", err, ErrInvalidDesc)
	}
}

func TestChainClearForwarding(t *testing.T) {
	rest := &ClearRequest{Flags: ClearColor}
	partial := &stubBlitter{name: "partial", supports: true, rest: rest}
	failing := &stubBlitter{name: "failing", supports: true, err: errors.New("stub failure")}
	finishing := &stubBlitter{name: "finishing", supports: true}

	if err := NewChain(partial, failing, finishing).Clear(nil, &ClearRequest{}); err != nil {
		t.Errorf("Clear() error = %v", err)
	}
	if partial.calls != 1 || failing.calls != 1 || finishing.calls != 1 {
		t.Errorf("calls = %d, %d, %d, want 1 each", partial.calls, failing.calls, finishing.calls)
	}
	if err := NewChain(partial).Clear(nil, &ClearRequest{}); !errors.Is(err, ErrNoBlitter) {
		t.Errorf("Clear() with leftover error = %v, want %v", err, ErrNoBlitter)
	}
}

func hostTexture(t *testing.T, c *Context, format FormatID, w, h uint32, data []byte) *Texture {
	t.Helper()
	desc := tex2D(format, w, h, 0)
	desc.Access = AccessCPU
	tex := mustTexture(t, desc)
	if data != nil {
		fillSysmem(t, c, tex, 0, data)
	}
	return tex
}

func TestCPUBlitScale(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := hostTexture(t, c, FormatR8G8B8A8Unorm, 2, 1, []byte{255, 0, 0, 255, 0, 0, 255, 255})
	dst := hostTexture(t, c, FormatB8G8R8A8Unorm, 4, 2, nil)

	locs, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationSysmem, SrcRect: full(2, 1),
		Dst: dst, DstLocation: LocationSysmem, DstRect: full(4, 2), Filter: FilterPoint,
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	if locs != Locations(LocationSysmem) {
		t.Errorf("Blit() = %v, want {SYSMEM}", locs)
	}
	redBGRA, blueBGRA := []byte{0, 0, 255, 255}, []byte{255, 0, 0, 255}
	row := bytes.Join([][]byte{redBGRA, redBGRA, blueBGRA, blueBGRA}, nil)
	if want := append(append([]byte(nil), row...), row...); !bytes.Equal(dst.Sysmem(0), want) {
		t.Errorf("scaled = %v, want %v", dst.Sysmem(0), want)
	}
	if n := len(dev.Recorded()); n != 0 {
		t.Errorf("host blit recorded %d GPU commands", n)
	}
}

func TestCPUBlitCompressed(t *testing.T) {
	c, _ := newTestContext(t, software.Options{})
	data := pattern(32)
	src := hostTexture(t, c, FormatBC1Unorm, 8, 8, data)
	dst := hostTexture(t, c, FormatBC1Unorm, 8, 8, make([]byte, 32))

	_, err := c.Blit(&BlitRequest{
		Op: BlitRaw, Src: src, SrcLocation: LocationSysmem, SrcRect: image.Rect(4, 0, 8, 4),
		Dst: dst, DstLocation: LocationSysmem, DstRect: image.Rect(0, 4, 4, 8),
	})
	if err != nil {
		t.Fatalf("Blit() error = %v", err)
	}
	want := make([]byte, 32)
	copy(want[16:24], data[8:16])
	if !bytes.Equal(dst.Sysmem(0), want) {
		t.Errorf("block copy = %v, want %v", dst.Sysmem(0), want)
	}

	_, err = c.Blit(&BlitRequest{
		Op: BlitRaw, Src: src, SrcLocation: LocationSysmem, SrcRect: image.Rect(1, 0, 5, 4),
		Dst: dst, DstLocation: LocationSysmem, DstRect: image.Rect(0, 0, 4, 4),
	})
	if !errors.Is(err, ErrNoBlitter) || !errors.Is(err, ErrUnsupported) {
		t.Errorf("unaligned Blit() error = %v, want %v wrapping %v", err, ErrNoBlitter, ErrUnsupported)
	}
}

func TestBlitDownloadsToRequestedLocation(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	src := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 2, 2, BindShaderResource))
	src.subs[0].clearValue = ClearValue{Color: gputypes.Color{G: 1, A: 1}}
	dst := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 2, 2, BindShaderResource))

	locs, err := c.Blit(&BlitRequest{
		Op: BlitColor, Src: src, SrcLocation: LocationTextureRGB, SrcRect: full(2, 2),
		Dst: dst, DstLocation: LocationBuffer, DstRect: full(2, 2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := Locations(LocationBuffer, LocationTextureRGB); locs != want {
		t.Errorf("Blit() = %v, want %v", locs, want)
	}
	if got := dst.Subresource(0).Locations(); got != Locations(LocationBuffer, LocationTextureRGB) {
		t.Errorf("dst locations = %v", got)
	}
	if err := dst.LoadLocation(c, 0, LocationSysmem); err != nil {
		t.Fatal(err)
	}
	if want := bytes.Repeat([]byte{0, 255, 0, 255}, 4); !bytes.Equal(dst.Sysmem(0), want) {
		t.Errorf("dst = %v, want %v", dst.Sysmem(0), want)
	}
	checkLayout(t, c, dev, dst)
}
