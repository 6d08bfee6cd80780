package software

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/vkformat"
	"github.com/gogpu/texvk/native"
)

// ErrUnsupportedFormat is returned when creating an image whose format the
// device cannot store.
var ErrUnsupportedFormat = errors.New("software: unsupported format")

// Options configures a Device.
type Options struct {
	// MemoryLimit caps the bytes held by live images and buffers.
	// Zero means unlimited.
	MemoryLimit uint64

	// ManualCompletion keeps submissions queued until a fence wait,
	// WaitIdle or Complete executes them.
	ManualCompletion bool
}

// Device is a native.Device executing on host memory. It is safe for
// concurrent use, although a command buffer must only be recorded from one
// goroutine.
type Device struct {
	mu   sync.Mutex
	opts Options

	nextHandle uint64
	allocated  uint64

	images       map[native.Image]*image
	views        map[native.ImageView]*view
	buffers      map[native.Buffer]*buffer
	framebuffers map[native.Framebuffer]*framebuffer
	fences       map[native.Fence]bool

	queue    []submission
	recorded []Command
	invalid  []string
	stats    Stats
}

type submission struct {
	fence native.Fence
	cmds  []func()
}

type view struct {
	image native.Image
	desc  native.ImageViewDesc
}

type buffer struct {
	data   []byte
	usage  vk.BufferUsageFlags
	memory vk.MemoryPropertyFlags
	mapped bool
}

type framebuffer struct {
	desc native.FramebufferDesc
}

// New returns a device configured by opts.
func New(opts Options) *Device {
	return &Device{
		opts:         opts,
		images:       make(map[native.Image]*image),
		views:        make(map[native.ImageView]*view),
		buffers:      make(map[native.Buffer]*buffer),
		framebuffers: make(map[native.Framebuffer]*framebuffer),
		fences:       make(map[native.Fence]bool),
	}
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) reserve(size uint64) error {
	if d.opts.MemoryLimit != 0 && d.allocated+size > d.opts.MemoryLimit {
		return native.ErrOutOfDeviceMemory
	}
	d.allocated += size
	return nil
}

// CreateImage implements native.Device.
func (d *Device) CreateImage(desc *native.ImageDesc) (native.Image, error) {
	info, ok := vkformat.Lookup(desc.Format)
	if !ok {
		return native.Null, fmt.Errorf("%w: %d", ErrUnsupportedFormat, desc.Format)
	}
	img := newImage(desc, info)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(img.size); err != nil {
		return native.Null, err
	}
	h := native.Image(d.handle())
	d.images[h] = img
	d.stats.ImagesCreated++
	return h, nil
}

// DestroyImage implements native.Device.
func (d *Device) DestroyImage(h native.Image) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		d.invalidf("DestroyImage: unknown image %d", h)
		return
	}
	d.allocated -= img.size
	delete(d.images, h)
}

// CreateImageView implements native.Device.
func (d *Device) CreateImageView(desc *native.ImageViewDesc) (native.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[desc.Image]; !ok {
		return native.Null, fmt.Errorf("software: create view: %w", native.ErrInvalidHandle)
	}
	h := native.ImageView(d.handle())
	d.views[h] = &view{image: desc.Image, desc: *desc}
	return h, nil
}

// DestroyImageView implements native.Device.
func (d *Device) DestroyImageView(h native.ImageView) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views[h]; !ok {
		d.invalidf("DestroyImageView: unknown view %d", h)
		return
	}
	delete(d.views, h)
}

// CreateBuffer implements native.Device.
func (d *Device) CreateBuffer(desc *native.BufferDesc) (native.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(desc.Size); err != nil {
		return native.Null, err
	}
	h := native.Buffer(d.handle())
	d.buffers[h] = &buffer{
		data:   make([]byte, desc.Size),
		usage:  desc.Usage,
		memory: desc.Memory,
	}
	d.stats.BuffersCreated++
	return h, nil
}

// DestroyBuffer implements native.Device.
func (d *Device) DestroyBuffer(h native.Buffer) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok {
		d.invalidf("DestroyBuffer: unknown buffer %d", h)
		return
	}
	d.allocated -= uint64(len(buf.data))
	delete(d.buffers, h)
}

// MapBuffer implements native.Device.
func (d *Device) MapBuffer(h native.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("software: map: %w", native.ErrInvalidHandle)
	}
	if buf.memory&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
		return nil, native.ErrNotHostVisible
	}
	buf.mapped = true
	return buf.data, nil
}

// FlushMappedRange implements native.Device. Host memory is always coherent.
func (d *Device) FlushMappedRange(h native.Buffer, offset, size uint64) error {
	return d.checkRange("FlushMappedRange", h, offset, size)
}

// InvalidateMappedRange implements native.Device.
func (d *Device) InvalidateMappedRange(h native.Buffer, offset, size uint64) error {
	return d.checkRange("InvalidateMappedRange", h, offset, size)
}

func (d *Device) checkRange(op string, h native.Buffer, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[h]
	if !ok {
		return fmt.Errorf("software: %s: %w", op, native.ErrInvalidHandle)
	}
	if !buf.mapped {
		d.invalidf("%s: buffer %d is not mapped", op, h)
	}
	if size != native.WholeSize && offset+size > uint64(len(buf.data)) {
		d.invalidf("%s: range [%d, %d) exceeds buffer %d of size %d", op, offset, offset+size, h, len(buf.data))
	}
	return nil
}

// UnmapBuffer implements native.Device.
func (d *Device) UnmapBuffer(h native.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[h]; ok {
		buf.mapped = false
	}
}

// CreateFramebuffer implements native.Device.
func (d *Device) CreateFramebuffer(desc *native.FramebufferDesc) (native.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range desc.Attachments {
		if _, ok := d.views[a.View]; !ok {
			return native.Null, fmt.Errorf("software: create framebuffer: %w", native.ErrInvalidHandle)
		}
	}
	h := native.Framebuffer(d.handle())
	fb := &framebuffer{desc: *desc}
	fb.desc.Attachments = append([]native.Attachment(nil), desc.Attachments...)
	d.framebuffers[h] = fb
	d.stats.FramebuffersCreated++
	return h, nil
}

// DestroyFramebuffer implements native.Device.
func (d *Device) DestroyFramebuffer(h native.Framebuffer) {
	if h == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers[h]; !ok {
		d.invalidf("DestroyFramebuffer: unknown framebuffer %d", h)
		return
	}
	delete(d.framebuffers, h)
}

// BeginCommandBuffer implements native.Device.
func (d *Device) BeginCommandBuffer() (native.CommandBuffer, error) {
	return &CommandBuffer{dev: d}, nil
}

// Submit implements native.Device.
func (d *Device) Submit(cb native.CommandBuffer) (native.Fence, error) {
	c, ok := cb.(*CommandBuffer)
	if !ok || c.dev != d {
		return native.Null, fmt.Errorf("software: submit: foreign command buffer: %w", native.ErrInvalidHandle)
	}
	if c.submitted {
		return native.Null, errors.New("software: command buffer submitted twice")
	}
	c.submitted = true

	d.mu.Lock()
	defer d.mu.Unlock()
	if c.inPass {
		d.invalidf("Submit: render pass still open")
	}
	f := native.Fence(d.handle())
	d.fences[f] = false
	d.queue = append(d.queue, submission{fence: f, cmds: c.cmds})
	d.stats.Submits++
	if !d.opts.ManualCompletion {
		d.executeLocked(f)
	}
	return f, nil
}

// FenceSignaled implements native.Device.
func (d *Device) FenceSignaled(f native.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	signaled, ok := d.fences[f]
	if !ok {
		return false, fmt.Errorf("software: fence status: %w", native.ErrInvalidHandle)
	}
	return signaled, nil
}

// WaitFence implements native.Device.
func (d *Device) WaitFence(f native.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[f]; !ok {
		return fmt.Errorf("software: wait fence: %w", native.ErrInvalidHandle)
	}
	d.stats.FenceWaits++
	d.executeLocked(f)
	return nil
}

// DestroyFence implements native.Device.
func (d *Device) DestroyFence(f native.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
}

// WaitIdle implements native.Device.
func (d *Device) WaitIdle() error {
	d.Complete()
	return nil
}

// Complete executes every queued submission.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.queue); n > 0 {
		d.executeLocked(d.queue[n-1].fence)
	}
}

// executeLocked runs queued submissions in order up to and including the
// one signalling f.
func (d *Device) executeLocked(f native.Fence) {
	for len(d.queue) > 0 {
		s := d.queue[0]
		d.queue = d.queue[1:]
		for _, run := range s.cmds {
			run()
		}
		if _, ok := d.fences[s.fence]; ok {
			d.fences[s.fence] = true
		}
		if s.fence == f {
			return
		}
	}
}

func (d *Device) invalidf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.invalid = append(d.invalid, msg)
	slogger().Warn("software: validation error", "msg", msg)
}

// Recorded returns a copy of every command recorded so far, in order.
func (d *Device) Recorded() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.recorded...)
}

// RecordedOps returns the ops of Recorded.
func (d *Device) RecordedOps() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]Op, len(d.recorded))
	for i, c := range d.recorded {
		ops[i] = c.Op
	}
	return ops
}

// ResetLog forgets recorded commands and validation errors.
func (d *Device) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorded = nil
	d.invalid = nil
}

// ValidationErrors returns the validation messages collected so far.
func (d *Device) ValidationErrors() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.invalid...)
}

// Stats returns object and queue counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.ImagesLive = len(d.images)
	s.BuffersLive = len(d.buffers)
	s.ViewsLive = len(d.views)
	s.FramebuffersLive = len(d.framebuffers)
	return s
}

// Allocated returns the bytes held by live images and buffers.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// ImageLayout returns the current layout of one subresource of img as seen
// by executed commands.
func (d *Device) ImageLayout(h native.Image, level, layer uint32) (vk.ImageLayout, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok || level >= img.desc.MipLevels || layer >= img.desc.ArrayLayers {
		return vk.ImageLayoutUndefined, false
	}
	return img.layouts[img.index(level, layer)], true
}

// ReadImage returns a copy of the first sample of one subresource, tightly
// packed, including the chroma plane of planar formats.
func (d *Device) ReadImage(h native.Image, level, layer uint32) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok || level >= img.desc.MipLevels || layer >= img.desc.ArrayLayers {
		return nil, false
	}
	return append([]byte(nil), img.data[img.index(level, layer)][0]...), true
}

// ImageDesc returns the description img was created with.
func (d *Device) ImageDesc(h native.Image) (native.ImageDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[h]
	if !ok {
		return native.ImageDesc{}, false
	}
	return img.desc, true
}

var _ native.Device = (*Device)(nil)
