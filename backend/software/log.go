package software

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// Op identifies a recorded command.
type Op uint8

const (
	OpPipelineBarrier Op = iota + 1
	OpCopyBuffer
	OpCopyImage
	OpCopyBufferToImage
	OpCopyImageToBuffer
	OpResolveImage
	OpClearColorImage
	OpClearDepthStencilImage
	OpBeginRenderPass
	OpClearAttachments
	OpEndRenderPass
)

var opNames = map[Op]string{
	OpPipelineBarrier:        "PipelineBarrier",
	OpCopyBuffer:             "CopyBuffer",
	OpCopyImage:              "CopyImage",
	OpCopyBufferToImage:      "CopyBufferToImage",
	OpCopyImageToBuffer:      "CopyImageToBuffer",
	OpResolveImage:           "ResolveImage",
	OpClearColorImage:        "ClearColorImage",
	OpClearDepthStencilImage: "ClearDepthStencilImage",
	OpBeginRenderPass:        "BeginRenderPass",
	OpClearAttachments:       "ClearAttachments",
	OpEndRenderPass:          "EndRenderPass",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "Unknown"
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	SrcImage  native.Image
	DstImage  native.Image
	SrcLayout vk.ImageLayout
	DstLayout vk.ImageLayout
	SrcBuffer native.Buffer
	DstBuffer native.Buffer

	SrcStages      vk.PipelineStageFlags
	DstStages      vk.PipelineStageFlags
	ImageBarriers  []native.ImageBarrier
	BufferBarriers []native.BufferBarrier

	BufferCopies      []vk.BufferCopy
	ImageCopies       []vk.ImageCopy
	BufferImageCopies []vk.BufferImageCopy
	Resolves          []vk.ImageResolve

	Color        native.ClearColorValue
	DepthStencil native.DepthStencilValue
	Ranges       []vk.ImageSubresourceRange

	Framebuffer native.Framebuffer
	Area        vk.Rect2D
	Attachments []native.ClearAttachment
	Rects       []vk.ClearRect
}

// Stats counts object creation and queue activity.
type Stats struct {
	ImagesCreated       int
	ImagesLive          int
	BuffersCreated      int
	BuffersLive         int
	ViewsLive           int
	FramebuffersCreated int
	FramebuffersLive    int
	Submits             int
	FenceWaits          int
}
