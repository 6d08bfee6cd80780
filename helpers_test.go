package texvk

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texvk/backend/software"
	"github.com/gogpu/texvk/native"
)

func newTestContext(t *testing.T, opts software.Options) (*Context, *software.Device) {
	t.Helper()
	dev := software.New(opts)
	c := NewContext(dev)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		if errs := dev.ValidationErrors(); len(errs) != 0 {
			t.Errorf("ValidationErrors() = %q, want none", errs)
		}
	})
	return c, dev
}

func tex2D(format FormatID, w, h uint32, bind BindFlags) TextureDesc {
	return TextureDesc{
		Dimension: gputypes.TextureDimension2D,
		Format:    format,
		Width:     w,
		Height:    h,
		Bind:      bind,
		Access:    AccessGPU,
	}
}

func mustTexture(t *testing.T, desc TextureDesc) *Texture {
	t.Helper()
	tex, err := NewTexture(desc)
	if err != nil {
		t.Fatalf("NewTexture(%+v) error = %v", desc, err)
	}
	return tex
}

func mustView(t *testing.T, tex *Texture, desc ViewDesc) *View {
	t.Helper()
	v, err := NewView(tex, desc)
	if err != nil {
		t.Fatalf("NewView() error = %v", err)
	}
	return v
}

func commands(dev *software.Device, op software.Op) []software.Command {
	var out []software.Command
	for _, c := range dev.Recorded() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

// checkLayout verifies the tracked layout against the bind mask and, after
// execution, against the device.
func checkLayout(t *testing.T, c *Context, dev *software.Device, tex *Texture) {
	t.Helper()
	if got, want := tex.Layout(), tex.LayoutFromBind(tex.BindMask()); got != want {
		t.Errorf("Layout() = %d, want LayoutFromBind(%#x) = %d", got, tex.BindMask(), want)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	for sub := uint32(0); sub < tex.SubresourceCount(); sub++ {
		level, layer := tex.splitIndex(sub)
		if got, ok := dev.ImageLayout(tex.Image(), level, layer); !ok || got != tex.Layout() {
			t.Errorf("device layout of sub %d = %d, want %d", sub, got, tex.Layout())
		}
	}
}

// captureLog routes texvk logging into a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

// fillSysmem makes SYSMEM the only valid location of sub, holding data.
func fillSysmem(t *testing.T, c *Context, tex *Texture, sub uint32, data []byte) {
	t.Helper()
	if err := tex.PrepareLocation(c, sub, LocationSysmem); err != nil {
		t.Fatal(err)
	}
	copy(tex.Sysmem(sub), data)
	tex.ValidateLocation(sub, LocationSysmem)
	tex.InvalidateLocation(sub, ^Locations(LocationSysmem))
}

// faultyDevice fails command buffer creation or submission on demand.
type faultyDevice struct {
	*software.Device
	beginErr  error
	submitErr error
}

func (d *faultyDevice) BeginCommandBuffer() (native.CommandBuffer, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.Device.BeginCommandBuffer()
}

func (d *faultyDevice) Submit(cb native.CommandBuffer) (native.Fence, error) {
	if d.submitErr != nil {
		return native.Null, d.submitErr
	}
	return d.Device.Submit(cb)
}
