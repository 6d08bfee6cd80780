package texvk

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/internal/ledger"
	"github.com/gogpu/texvk/native"
)

// Bo owns one native buffer.
type Bo struct {
	ledger.Resource

	buffer native.Buffer
	size   uint64
	usage  gputypes.BufferUsage
	memory vk.MemoryPropertyFlags

	// hostSynced buffers are read by the host after GPU writes, so barriers
	// that end a GPU write also make it visible to host reads.
	hostSynced bool

	mapped []byte
}

// Buffer returns the native handle.
func (bo *Bo) Buffer() native.Buffer { return bo.buffer }

// Size returns the buffer size in bytes.
func (bo *Bo) Size() uint64 { return bo.size }

// Usage returns the usage the buffer was created with.
func (bo *Bo) Usage() gputypes.BufferUsage { return bo.usage }

// HostSynced reports whether GPU writes are made visible to host reads.
func (bo *Bo) HostSynced() bool { return bo.hostSynced }

// Address locates linear pixel data: either host memory or a range of a
// buffer object. The address refers to the origin texel of the data.
type Address struct {
	Bo     *Bo
	Offset uint64
	Mem    []byte
}

// HostAddress wraps host memory.
func HostAddress(mem []byte) Address { return Address{Mem: mem} }

// BoAddressOf wraps a buffer object range starting at offset.
func BoAddressOf(bo *Bo, offset uint64) Address { return Address{Bo: bo, Offset: offset} }

const (
	hostVisible  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	hostCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
)

// vkBufferUsage maps buffer usage to native usage flags.
func vkBufferUsage(u gputypes.BufferUsage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if u&gputypes.BufferUsageCopySrc != 0 {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		f |= vk.BufferUsageTransferDstBit
	}
	if u&gputypes.BufferUsageVertex != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u&gputypes.BufferUsageUniform != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u&gputypes.BufferUsageStorage != 0 {
		f |= vk.BufferUsageStorageBufferBit
	}
	return vk.BufferUsageFlags(f)
}

// accessFromBufferUsage returns every access a buffer with usage u may see.
func accessFromBufferUsage(u gputypes.BufferUsage) vk.AccessFlags {
	var f vk.AccessFlagBits
	if u&gputypes.BufferUsageCopySrc != 0 {
		f |= vk.AccessTransferReadBit
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		f |= vk.AccessTransferWriteBit
	}
	if u&gputypes.BufferUsageVertex != 0 {
		f |= vk.AccessVertexAttributeReadBit
	}
	if u&gputypes.BufferUsageUniform != 0 {
		f |= vk.AccessUniformReadBit
	}
	if u&gputypes.BufferUsageStorage != 0 {
		f |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}
	if u&gputypes.BufferUsageMapRead != 0 {
		f |= vk.AccessHostReadBit
	}
	if u&gputypes.BufferUsageMapWrite != 0 {
		f |= vk.AccessHostWriteBit
	}
	return vk.AccessFlags(f)
}

// stagesFromBufferUsage returns the pipeline stages that may access a buffer
// with usage u.
func stagesFromBufferUsage(u gputypes.BufferUsage) vk.PipelineStageFlags {
	var f vk.PipelineStageFlagBits
	if u&(gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst) != 0 {
		f |= vk.PipelineStageTransferBit
	}
	if u&gputypes.BufferUsageVertex != 0 {
		f |= vk.PipelineStageVertexInputBit
	}
	if u&(gputypes.BufferUsageUniform|gputypes.BufferUsageStorage) != 0 {
		f |= shaderStages
	}
	if u&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) != 0 {
		f |= vk.PipelineStageHostBit
	}
	return vk.PipelineStageFlags(f)
}

// createBo creates a buffer object. Host visible memory is always coherent.
func (c *Context) createBo(size uint64, usage gputypes.BufferUsage, memory vk.MemoryPropertyFlags) (*Bo, error) {
	if memory&hostVisible != 0 {
		memory |= hostCoherent
	}
	buf, err := c.dev.CreateBuffer(&native.BufferDesc{
		Size:   size,
		Usage:  vkBufferUsage(usage),
		Memory: memory,
	})
	if err != nil {
		return nil, fmt.Errorf("texvk: create buffer of %d bytes: %w", size, err)
	}
	return &Bo{buffer: buf, size: size, usage: usage, memory: memory}, nil
}

// destroyBo releases bo once every command buffer using it retired.
func (c *Context) destroyBo(bo *Bo) {
	if bo == nil || bo.buffer == native.Null {
		return
	}
	if bo.mapped != nil {
		c.dev.UnmapBuffer(bo.buffer)
		bo.mapped = nil
	}
	buf := bo.buffer
	bo.buffer = native.Null
	c.ledger.Defer(bo.LastUse(), func() { c.dev.DestroyBuffer(buf) })
}

// mapBo maps bo for host access, first waiting for GPU work that uses it.
func (c *Context) mapBo(bo *Bo) ([]byte, error) {
	if err := c.Wait(bo.LastUse()); err != nil {
		return nil, err
	}
	if bo.mapped == nil {
		data, err := c.dev.MapBuffer(bo.buffer)
		if err != nil {
			return nil, fmt.Errorf("texvk: map buffer: %w", err)
		}
		bo.mapped = data
	}
	if err := c.dev.InvalidateMappedRange(bo.buffer, 0, native.WholeSize); err != nil {
		return nil, fmt.Errorf("texvk: invalidate mapped range: %w", err)
	}
	return bo.mapped, nil
}

// unmapBo flushes [offset, offset+size) and unmaps bo. A zero size skips
// the flush.
func (c *Context) unmapBo(bo *Bo, offset, size uint64) error {
	if bo.mapped == nil {
		return nil
	}
	var err error
	if size != 0 {
		err = c.dev.FlushMappedRange(bo.buffer, offset, size)
	}
	c.dev.UnmapBuffer(bo.buffer)
	bo.mapped = nil
	if err != nil {
		return fmt.Errorf("texvk: flush mapped range: %w", err)
	}
	return nil
}
