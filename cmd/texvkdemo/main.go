// Command texvkdemo clears a render target through the texvk blitter chain,
// reads it back to host memory and saves it as a PNG.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/texvk"
	"github.com/gogpu/texvk/backend"
	_ "github.com/gogpu/texvk/backend/software"
	_ "github.com/gogpu/texvk/backend/vulkan"
	"github.com/gogpu/texvk/native"
)

func main() {
	var (
		name   = flag.String("backend", "", "backend name (default: best available)")
		width  = flag.Int("width", 256, "image width")
		height = flag.Int("height", 256, "image height")
		output = flag.String("output", "texvk.png", "output file")
	)
	flag.Parse()

	dev, used, err := openDevice(*name)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	log.Printf("using %s backend", used)

	c := texvk.NewContext(dev)
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	w, h := uint32(*width), uint32(*height)
	tex, err := texvk.NewTexture(texvk.TextureDesc{
		Dimension: gputypes.TextureDimension2D,
		Format:    texvk.FormatR8G8B8A8Unorm,
		Width:     w,
		Height:    h,
		Bind:      texvk.BindRenderTarget | texvk.BindShaderResource,
		Access:    texvk.AccessGPU | texvk.AccessCPU,
	})
	if err != nil {
		log.Fatalf("create texture: %v", err)
	}
	defer tex.Destroy(c)

	rt, err := texvk.NewView(tex, texvk.ViewDesc{})
	if err != nil {
		log.Fatalf("create view: %v", err)
	}
	defer rt.Destroy(c)

	if err := drawQuadrants(c, rt, int(w), int(h)); err != nil {
		log.Fatalf("clear: %v", err)
	}
	if err := tex.LoadLocation(c, 0, texvk.LocationSysmem); err != nil {
		log.Fatalf("read back: %v", err)
	}

	if err := save(*output, tex); err != nil {
		log.Fatalf("save: %v", err)
	}
	log.Printf("saved %s (%dx%d)", *output, w, h)
}

func openDevice(name string) (native.Device, string, error) {
	if name == "" {
		return backend.Default()
	}
	dev, err := backend.Get(name)
	return dev, name, err
}

// drawQuadrants clears the whole target, then each quadrant in its own
// colour with a single multi-rectangle clear per colour.
func drawQuadrants(c *texvk.Context, rt *texvk.View, w, h int) error {
	full := image.Rect(0, 0, w, h)
	clears := []struct {
		rects []image.Rectangle
		color gputypes.Color
	}{
		{nil, gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}},
		{[]image.Rectangle{image.Rect(0, 0, w/2, h/2), image.Rect(w/2, h/2, w, h)}, gputypes.Color{R: 0.9, G: 0.3, B: 0.2, A: 1}},
		{[]image.Rectangle{image.Rect(w/2, 0, w, h/2)}, gputypes.Color{R: 0.2, G: 0.6, B: 0.9, A: 1}},
	}
	for _, cl := range clears {
		err := c.Clear(&texvk.ClearRequest{
			RenderTargets: []*texvk.View{rt},
			Rects:         cl.rects,
			DrawRect:      full,
			Flags:         texvk.ClearColor,
			Value:         texvk.ClearValue{Color: cl.color},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func save(path string, tex *texvk.Texture) error {
	w, h := int(tex.LevelWidth(0)), int(tex.LevelHeight(0))
	row, _ := tex.Pitch(0)
	mem := tex.Sysmem(0)

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		copy(img.Pix[y*img.Stride:y*img.Stride+w*4], mem[y*int(row):])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
