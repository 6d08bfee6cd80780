package texvk

import (
	"testing"

	"github.com/gogpu/texvk/backend/software"
)

func TestNewContextDefaultBlitters(t *testing.T) {
	c := NewContext(software.New(software.Options{}))
	defer c.Close()

	var names []string
	for _, b := range c.Blitters().Blitters() {
		names = append(names, b.Name())
	}
	if len(names) != 2 || names[0] != "vulkan" || names[1] != "cpu" {
		t.Errorf("default blitters = %v, want [vulkan cpu]", names)
	}
}

func TestWithBlitters(t *testing.T) {
	cpu := NewCPUBlitter()
	list := []Blitter{cpu}
	c := NewContext(software.New(software.Options{}), WithBlitters(list...))
	defer c.Close()
	list[0] = NewVulkanBlitter()

	got := c.Blitters().Blitters()
	if len(got) != 1 || got[0] != Blitter(cpu) {
		t.Errorf("Blitters() = %v, want [cpu]", got)
	}

	// A host only chain leaves GPU textures alone.
	tex := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 2, 2, BindShaderResource))
	src := mustTexture(t, tex2D(FormatR8G8B8A8Unorm, 2, 2, BindShaderResource))
	fillSysmem(t, c, src, 0, pattern(16))
	locs, err := c.Blit(&BlitRequest{
		Src: src, SrcLocation: LocationSysmem, SrcRect: full(2, 2),
		Dst: tex, DstLocation: LocationSysmem, DstRect: full(2, 2),
	})
	if err != nil || locs != Locations(LocationSysmem) {
		t.Errorf("Blit() = %v, %v, want {SYSMEM}, nil", locs, err)
	}
	if tex.Allocated() {
		t.Error("host only chain allocated a GPU image")
	}
}

func TestWithWorkersHostClear(t *testing.T) {
	dev := software.New(software.Options{})
	c := NewContext(dev, WithWorkers(3))
	defer c.Close()

	desc := tex2D(FormatR8G8B8A8Unorm, 4, 4, BindRenderTarget)
	desc.Layers = 6
	desc.Access = AccessCPU
	tex := mustTexture(t, desc)
	v := mustView(t, tex, ViewDesc{LayerCount: 6})

	if err := c.Clear(&ClearRequest{
		RenderTargets: []*View{v},
		DrawRect:      full(4, 4),
		Flags:         ClearColor,
		Value:         red,
	}); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	for layer := uint32(0); layer < 6; layer++ {
		sub := tex.SubresourceIndex(0, layer)
		if got := tex.Subresource(sub).Locations(); got != Locations(LocationSysmem) {
			t.Errorf("layer %d locations = %v, want {SYSMEM}", layer, got)
		}
		mem := tex.Sysmem(sub)
		for i := 0; i < len(mem); i += 4 {
			if mem[i] != 255 || mem[i+1] != 0 || mem[i+3] != 255 {
				t.Fatalf("layer %d texel %d = %v, want red", layer, i/4, mem[i:i+4])
			}
		}
	}
}
