//go:build !novulkan

package vulkan

import (
	"fmt"
	"math"
	"strings"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

// Options configures device creation.
type Options struct {
	// Validation enables the Khronos validation layer.
	Validation bool

	// DeviceName restricts selection to physical devices whose name
	// contains it. Among the candidates the first discrete GPU wins,
	// otherwise the first usable device.
	DeviceName string
}

// Device is a native.Device backed by one Vulkan queue. It is safe for
// concurrent use; a command buffer must only be recorded from one
// goroutine.
type Device struct {
	instance vk.Instance
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	family   uint32
	pool     vk.CommandPool

	memory   vk.PhysicalDeviceMemoryProperties
	atomSize uint64

	mu         sync.Mutex
	nextHandle uint64
	images     map[native.Image]*image
	views      map[native.ImageView]vk.ImageView
	buffers    map[native.Buffer]*buffer
	fbs        map[native.Framebuffer]*framebuffer
	fences     map[native.Fence]*submission
}

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	props  vk.MemoryPropertyFlags
	mapped []byte
}

type framebuffer struct {
	handle vk.Framebuffer
	pass   vk.RenderPass
}

type submission struct {
	fence vk.Fence
	cb    vk.CommandBuffer
}

// New loads the Vulkan library and creates a device.
func New(opts Options) (*Device, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vulkan: load library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan: init: %w", err)
	}

	d := &Device{
		images:  make(map[native.Image]*image),
		views:   make(map[native.ImageView]vk.ImageView),
		buffers: make(map[native.Buffer]*buffer),
		fbs:     make(map[native.Framebuffer]*framebuffer),
		fences:  make(map[native.Fence]*submission),
	}
	if err := d.createInstance(opts); err != nil {
		return nil, err
	}
	if err := d.pickPhysicalDevice(opts); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	return d, nil
}

func (d *Device) createInstance(opts Options) error {
	var layers []string
	if opts.Validation {
		layers = append(layers, "VK_LAYER_KHRONOS_validation\x00")
	}
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: "texvk\x00",
			PEngineName:      "texvk\x00",
			ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
		},
		EnabledLayerCount:   uint32(len(layers)),
		PpEnabledLayerNames: layers,
	}
	var instance vk.Instance
	if err := check("vkCreateInstance", vk.CreateInstance(&info, nil, &instance)); err != nil {
		return err
	}
	vk.InitInstance(instance)
	d.instance = instance
	return nil
}

func (d *Device) pickPhysicalDevice(opts Options) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return err
	}

	chosen := -1
	for i, pd := range devices {
		family, ok := queueFamily(pd)
		if !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		name := vk.ToString(props.DeviceName[:])
		slogger().Debug("vulkan: physical device", "index", i, "name", name, "type", props.DeviceType)
		if !strings.Contains(name, opts.DeviceName) {
			continue
		}
		discrete := props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
		if chosen >= 0 && !discrete {
			continue
		}
		chosen = i
		d.physical = pd
		d.family = family
		props.Limits.Deref()
		d.atomSize = uint64(props.Limits.NonCoherentAtomSize)
		if discrete {
			break
		}
	}
	if chosen < 0 {
		return ErrNoDevice
	}
	if d.atomSize == 0 {
		d.atomSize = 1
	}

	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
	}
	return nil
}

// queueFamily returns the first family supporting graphics, which implies
// transfer.
func queueFamily(pd vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func (d *Device) createDevice() error {
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
	}
	var dev vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(d.physical, &info, nil, &dev)); err != nil {
		return err
	}
	d.device = dev

	var queue vk.Queue
	vk.GetDeviceQueue(dev, d.family, 0, &queue)
	d.queue = queue

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(dev, &poolInfo, nil, &pool)); err != nil {
		vk.DestroyDevice(dev, nil)
		return err
	}
	d.pool = pool
	return nil
}

// memoryType returns the first memory type allowed by typeBits that has all
// of props.
func (d *Device) memoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		if typeBits&(1<<i) != 0 && d.memory.MemoryTypes[i].PropertyFlags&props == props {
			return i, true
		}
	}
	return 0, false
}

// allocate allocates memory for req, which must already be dereferenced.
// It returns the property flags of the chosen memory type.
func (d *Device) allocate(req *vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, vk.MemoryPropertyFlags, error) {
	var mem vk.DeviceMemory
	idx, ok := d.memoryType(req.MemoryTypeBits, props)
	if !ok {
		if props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
			return mem, 0, fmt.Errorf("vulkan: allocate: %w", native.ErrNotHostVisible)
		}
		return mem, 0, fmt.Errorf("vulkan: allocate: %w", native.ErrOutOfDeviceMemory)
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: idx,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(d.device, &info, nil, &mem)); err != nil {
		return mem, 0, err
	}
	return mem, d.memory.MemoryTypes[idx].PropertyFlags, nil
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

// Submit implements native.Device.
func (d *Device) Submit(cb native.CommandBuffer) (native.Fence, error) {
	rec, ok := cb.(*commandBuffer)
	if !ok || rec.dev != d {
		return native.Null, fmt.Errorf("vulkan: submit: %w", native.ErrInvalidHandle)
	}
	if rec.err != nil {
		d.freeCommandBuffer(rec.cb)
		return native.Null, rec.err
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(rec.cb)); err != nil {
		d.freeCommandBuffer(rec.cb)
		return native.Null, err
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(d.device, &fenceInfo, nil, &fence)); err != nil {
		d.freeCommandBuffer(rec.cb)
		return native.Null, err
	}
	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{rec.cb},
	}}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := check("vkQueueSubmit", vk.QueueSubmit(d.queue, 1, submit, fence)); err != nil {
		vk.DestroyFence(d.device, fence, nil)
		vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{rec.cb})
		return native.Null, err
	}
	h := native.Fence(d.handle())
	d.fences[h] = &submission{fence: fence, cb: rec.cb}
	return h, nil
}

func (d *Device) freeCommandBuffer(cb vk.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{cb})
}

func (d *Device) lookupFence(f native.Fence) (*submission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.fences[f]
	if !ok {
		return nil, fmt.Errorf("vulkan: fence %d: %w", f, native.ErrInvalidHandle)
	}
	return s, nil
}

// FenceSignaled implements native.Device.
func (d *Device) FenceSignaled(f native.Fence) (bool, error) {
	s, err := d.lookupFence(f)
	if err != nil {
		return false, err
	}
	switch ret := vk.GetFenceStatus(d.device, s.fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("vkGetFenceStatus", ret)
	}
}

// WaitFence implements native.Device.
func (d *Device) WaitFence(f native.Fence) error {
	s, err := d.lookupFence(f)
	if err != nil {
		return err
	}
	return check("vkWaitForFences", vk.WaitForFences(d.device, 1, []vk.Fence{s.fence}, vk.True, math.MaxUint64))
}

// DestroyFence implements native.Device. The command buffer of the
// submission is freed with it, so the fence must have signalled.
func (d *Device) DestroyFence(f native.Fence) {
	if f == native.Null {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.fences[f]
	if !ok {
		return
	}
	delete(d.fences, f)
	vk.DestroyFence(d.device, s.fence, nil)
	vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{s.cb})
}

// WaitIdle implements native.Device.
func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// Close waits for the device to go idle and destroys every object it still
// owns, then the device and instance.
func (d *Device) Close() error {
	err := d.WaitIdle()

	d.mu.Lock()
	defer d.mu.Unlock()
	for h, s := range d.fences {
		vk.DestroyFence(d.device, s.fence, nil)
		vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{s.cb})
		delete(d.fences, h)
	}
	for h, fb := range d.fbs {
		vk.DestroyFramebuffer(d.device, fb.handle, nil)
		vk.DestroyRenderPass(d.device, fb.pass, nil)
		delete(d.fbs, h)
	}
	for h, v := range d.views {
		vk.DestroyImageView(d.device, v, nil)
		delete(d.views, h)
	}
	for h, img := range d.images {
		vk.DestroyImage(d.device, img.handle, nil)
		vk.FreeMemory(d.device, img.memory, nil)
		delete(d.images, h)
	}
	for h, buf := range d.buffers {
		if buf.mapped != nil {
			vk.UnmapMemory(d.device, buf.memory)
		}
		vk.DestroyBuffer(d.device, buf.handle, nil)
		vk.FreeMemory(d.device, buf.memory, nil)
		delete(d.buffers, h)
	}
	vk.DestroyCommandPool(d.device, d.pool, nil)
	vk.DestroyDevice(d.device, nil)
	vk.DestroyInstance(d.instance, nil)
	return err
}
