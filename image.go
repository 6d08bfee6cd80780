package texvk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/ledger"
	"github.com/gogpu/texvk/native"
)

// Image owns one native image.
type Image struct {
	ledger.Resource

	handle  native.Image
	format  vk.Format
	aspects vk.ImageAspectFlags
	samples vk.SampleCountFlagBits

	// view is the cached default view, created on first use.
	view native.ImageView
}

// Handle returns the native image, or native.Null when not created.
func (img *Image) Handle() native.Image { return img.handle }

// Aspects returns the aspects of the image format.
func (img *Image) Aspects() vk.ImageAspectFlags { return img.aspects }

func (c *Context) createImage(desc *native.ImageDesc, aspects vk.ImageAspectFlags) (Image, error) {
	h, err := c.dev.CreateImage(desc)
	if err != nil {
		return Image{}, fmt.Errorf("texvk: create %dx%dx%d image: %w", desc.Width, desc.Height, desc.Depth, err)
	}
	return Image{handle: h, format: desc.Format, aspects: aspects, samples: desc.Samples}, nil
}

// destroyImage releases img and its default view once every command buffer
// using them retired, and resets img.
func (c *Context) destroyImage(img *Image) {
	h, view := img.handle, img.view
	last := img.LastUse()
	*img = Image{}
	if h == native.Null {
		return
	}
	c.ledger.Defer(last, func() {
		c.dev.DestroyImageView(view)
		c.dev.DestroyImage(h)
	})
}

// tempImage creates a call scoped image. The returned release function
// schedules its destruction and must be called on every exit path,
// typically with defer.
func (c *Context) tempImage(desc *native.ImageDesc, aspects vk.ImageAspectFlags) (*Image, func(), error) {
	img, err := c.createImage(desc, aspects)
	if err != nil {
		return nil, func() {}, err
	}
	return &img, func() { c.destroyImage(&img) }, nil
}

// defaultView returns the cached full view of img.
func (c *Context) defaultView(img *Image, viewType vk.ImageViewType) (native.ImageView, error) {
	if img.view != native.Null {
		return img.view, nil
	}
	v, err := c.dev.CreateImageView(&native.ImageViewDesc{
		Image:    img.handle,
		ViewType: viewType,
		Format:   img.format,
		Range: vk.ImageSubresourceRange{
			AspectMask:     img.aspects,
			LevelCount:     native.RemainingMipLevels,
			LayerCount:     native.RemainingArrayLayers,
			BaseMipLevel:   0,
			BaseArrayLayer: 0,
		},
	})
	if err != nil {
		return native.Null, fmt.Errorf("texvk: create default view: %w", err)
	}
	img.view = v
	return v, nil
}
