package texvk

import (
	"errors"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/backend/software"
	"github.com/gogpu/texvk/native"
)

func preparedTexture(t *testing.T, c *Context, desc TextureDesc) *Texture {
	t.Helper()
	tex := mustTexture(t, desc)
	if err := tex.PrepareLocation(c, 0, LocationTextureRGB); err != nil {
		t.Fatalf("PrepareLocation(TEXTURE_RGB) error = %v", err)
	}
	return tex
}

func imageBarriers(dev *software.Device) []native.ImageBarrier {
	var out []native.ImageBarrier
	for _, cmd := range commands(dev, software.OpPipelineBarrier) {
		out = append(out, cmd.ImageBarriers...)
	}
	return out
}

func TestBarrierRenderTargetToShaderResource(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	tex := preparedTexture(t, c, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindRenderTarget|BindShaderResource))
	if got := tex.Layout(); got != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("Layout() after prepare = %d, want COLOR_ATTACHMENT_OPTIMAL", got)
	}
	if err := tex.Barrier(c, BindRenderTarget); err != nil {
		t.Fatal(err)
	}
	checkLayout(t, c, dev, tex)
	dev.ResetLog()

	if err := tex.Barrier(c, BindShaderResource); err != nil {
		t.Fatal(err)
	}
	checkLayout(t, c, dev, tex)

	got := imageBarriers(dev)
	if len(got) != 1 {
		t.Fatalf("image barriers = %d, want 1", len(got))
	}
	b := got[0]
	if b.OldLayout != vk.ImageLayoutColorAttachmentOptimal || b.NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("barrier layouts = %d -> %d, want COLOR_ATTACHMENT -> SHADER_READ_ONLY", b.OldLayout, b.NewLayout)
	}
	if want := accessFromBind(BindRenderTarget); b.SrcAccess != want {
		t.Errorf("barrier SrcAccess = %#x, want %#x", b.SrcAccess, want)
	}
	if want := vk.AccessFlags(vk.AccessShaderReadBit); b.DstAccess != want {
		t.Errorf("barrier DstAccess = %#x, want %#x", b.DstAccess, want)
	}
	if tex.BindMask() != BindShaderResource {
		t.Errorf("BindMask() = %#x, want %#x", tex.BindMask(), BindShaderResource)
	}
}

func TestBarrierRepeatIsNoop(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	tex := preparedTexture(t, c, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindRenderTarget|BindShaderResource))
	if err := tex.Barrier(c, BindShaderResource); err != nil {
		t.Fatal(err)
	}
	if err := c.Finish(); err != nil {
		t.Fatal(err)
	}
	dev.ResetLog()

	for range 3 {
		if err := tex.Barrier(c, BindShaderResource); err != nil {
			t.Fatal(err)
		}
	}
	checkLayout(t, c, dev, tex)
	if n := len(imageBarriers(dev)); n != 0 {
		t.Errorf("repeated read-only barrier recorded %d barriers, want 0", n)
	}
}

func TestBarrierUnorderedAccessIsSticky(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	tex := preparedTexture(t, c, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource|BindRenderTarget))
	if tex.IsGeneric() {
		t.Fatal("IsGeneric() = true before unordered access")
	}

	steps := []struct {
		bind     BindFlags
		barriers int
	}{
		{BindUnorderedAccess, 1},
		{BindShaderResource, 1},
		{BindShaderResource, 0},
		{BindRenderTarget, 1},
	}
	for _, s := range steps {
		dev.ResetLog()
		if err := tex.Barrier(c, s.bind); err != nil {
			t.Fatalf("Barrier(%#x) error = %v", s.bind, err)
		}
		checkLayout(t, c, dev, tex)
		if got := tex.Layout(); got != vk.ImageLayoutGeneral {
			t.Errorf("Layout() after Barrier(%#x) = %d, want GENERAL", s.bind, got)
		}
		if got := len(imageBarriers(dev)); got != s.barriers {
			t.Errorf("Barrier(%#x) recorded %d barriers, want %d", s.bind, got, s.barriers)
		}
	}
	if !tex.IsGeneric() {
		t.Error("IsGeneric() = false after unordered access")
	}
}

func TestMakeGeneric(t *testing.T) {
	c, dev := newTestContext(t, software.Options{})
	tex := preparedTexture(t, c, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource))
	if err := tex.MakeGeneric(c); err != nil {
		t.Fatal(err)
	}
	checkLayout(t, c, dev, tex)
	dev.ResetLog()

	if err := tex.MakeGeneric(c); err != nil {
		t.Fatal(err)
	}
	if err := tex.Barrier(c, BindShaderResource); err != nil {
		t.Fatal(err)
	}
	checkLayout(t, c, dev, tex)
	if tex.Layout() != vk.ImageLayoutGeneral {
		t.Errorf("Layout() = %d, want GENERAL", tex.Layout())
	}

	// Transfers on a generic image stay in GENERAL.
	if err := tex.LoadLocation(c, 0, LocationTextureRGB); err != nil {
		t.Fatal(err)
	}
	checkLayout(t, c, dev, tex)
	for _, b := range imageBarriers(dev) {
		if b.OldLayout != vk.ImageLayoutGeneral || b.NewLayout != vk.ImageLayoutGeneral {
			t.Errorf("barrier on generic image = %d -> %d, want GENERAL -> GENERAL", b.OldLayout, b.NewLayout)
		}
	}
	if n := len(commands(dev, software.OpClearColorImage)); n != 1 {
		t.Errorf("ClearColorImage commands = %d, want 1", n)
	}
}

func TestBarrierErrors(t *testing.T) {
	c, _ := newTestContext(t, software.Options{})
	tex := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource))
	if err := tex.Barrier(c, BindShaderResource); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Barrier() before prepare error = %v, want %v", err, ErrNotAllocated)
	}
	if err := tex.MakeGeneric(c); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("MakeGeneric() before prepare error = %v, want %v", err, ErrNotAllocated)
	}
	tex.Destroy(c)
	if err := tex.Barrier(c, BindShaderResource); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Barrier() after Destroy error = %v, want %v", err, ErrDestroyed)
	}
}

func TestBarrierFailureKeepsState(t *testing.T) {
	errBegin := errors.New("begin failed")
	dev := &faultyDevice{Device: software.New(software.Options{})}
	c := NewContext(dev)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	tex := preparedTexture(t, c, tex2D(FormatR8G8B8A8Unorm, 4, 4, BindShaderResource|BindRenderTarget))
	if err := c.Finish(); err != nil {
		t.Fatal(err)
	}
	bind, layout := tex.BindMask(), tex.Layout()

	dev.beginErr = errBegin
	for _, b := range []BindFlags{BindRenderTarget, BindUnorderedAccess} {
		if err := tex.Barrier(c, b); !errors.Is(err, errBegin) {
			t.Errorf("Barrier(%#x) error = %v, want %v", uint32(b), err, errBegin)
		}
		if tex.BindMask() != bind || tex.Layout() != layout || tex.IsGeneric() {
			t.Errorf("after failed Barrier(%#x): bind %#x layout %d generic %v, want %#x %d false",
				uint32(b), uint32(tex.BindMask()), tex.Layout(), tex.IsGeneric(), uint32(bind), layout)
		}
	}
	dev.beginErr = nil
}

func TestLayoutFromBind(t *testing.T) {
	tests := []struct {
		bind BindFlags
		want vk.ImageLayout
	}{
		{BindShaderResource, vk.ImageLayoutShaderReadOnlyOptimal},
		{BindRenderTarget, vk.ImageLayoutColorAttachmentOptimal},
		{BindRenderTarget | BindShaderResource, vk.ImageLayoutColorAttachmentOptimal},
		{BindDepthStencil, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{BindUnorderedAccess | BindRenderTarget, vk.ImageLayoutGeneral},
		{0, vk.ImageLayoutGeneral},
	}
	tex := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 4, 4, 0))
	for _, tt := range tests {
		if got := tex.LayoutFromBind(tt.bind); got != tt.want {
			t.Errorf("LayoutFromBind(%#x) = %d, want %d", tt.bind, got, tt.want)
		}
	}
	tex.generic = true
	if got := tex.LayoutFromBind(BindShaderResource); got != vk.ImageLayoutGeneral {
		t.Errorf("generic LayoutFromBind(SRV) = %d, want GENERAL", got)
	}
}
