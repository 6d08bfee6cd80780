//go:build !novulkan

package vulkan

import (
	"bytes"
	"errors"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/texvk/native"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		ret  vk.Result
		want error
	}{
		{"host memory", vk.ErrorOutOfHostMemory, native.ErrOutOfHostMemory},
		{"device memory", vk.ErrorOutOfDeviceMemory, native.ErrOutOfDeviceMemory},
		{"device lost", vk.ErrorDeviceLost, native.ErrDeviceLost},
		{"map failed", vk.ErrorMemoryMapFailed, native.ErrNotHostVisible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := check("op", tt.ret); !errors.Is(err, tt.want) {
				t.Errorf("check() = %v, want %v", err, tt.want)
			}
		})
	}

	if err := check("op", vk.Success); err != nil {
		t.Errorf("check(Success) = %v, want nil", err)
	}

	var re *native.ResultError
	if err := check("vkCreateImage", vk.ErrorFormatNotSupported); !errors.As(err, &re) {
		t.Fatalf("check() = %v, want *native.ResultError", err)
	}
	if re.Op != "vkCreateImage" || re.Code != int32(vk.ErrorFormatNotSupported) {
		t.Errorf("ResultError = %+v", re)
	}
}

// newDevice skips the test on machines without a Vulkan implementation.
func newDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(Options{})
	if err != nil {
		t.Skipf("vulkan not available: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return d
}

func TestBufferImageRoundTrip(t *testing.T) {
	d := newDevice(t)

	const w, h = 4, 2
	img, err := d.CreateImage(&native.ImageDesc{
		Type: vk.ImageType2d, Format: vk.FormatR8g8b8a8Unorm,
		Width: w, Height: h, Depth: 1, MipLevels: 1, ArrayLayers: 1,
		Samples: vk.SampleCount1Bit,
		Usage:   vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	})
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	defer d.DestroyImage(img)

	host := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	newBuffer := func() native.Buffer {
		buf, err := d.CreateBuffer(&native.BufferDesc{
			Size:   w * h * 4,
			Usage:  vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit),
			Memory: host,
		})
		if err != nil {
			t.Fatalf("CreateBuffer() error = %v", err)
		}
		return buf
	}
	src, dst := newBuffer(), newBuffer()
	defer d.DestroyBuffer(src)
	defer d.DestroyBuffer(dst)

	want := make([]byte, w*h*4)
	for i := range want {
		want[i] = byte(i * 7)
	}
	mapped, err := d.MapBuffer(src)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	copy(mapped, want)
	if err := d.FlushMappedRange(src, 0, native.WholeSize); err != nil {
		t.Fatalf("FlushMappedRange() error = %v", err)
	}

	cb, err := d.BeginCommandBuffer()
	if err != nil {
		t.Fatalf("BeginCommandBuffer() error = %v", err)
	}
	rng := vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LevelCount: 1, LayerCount: 1,
	}
	layers := vk.ImageSubresourceLayers{AspectMask: rng.AspectMask, LayerCount: 1}
	region := []vk.BufferImageCopy{{ImageSubresource: layers, ImageExtent: vk.Extent3D{Width: w, Height: h, Depth: 1}}}
	transfer := vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	cb.PipelineBarrier(vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), transfer, nil, []native.ImageBarrier{{
		DstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		OldLayout: vk.ImageLayoutUndefined, NewLayout: vk.ImageLayoutTransferDstOptimal,
		Image: img, Range: rng,
	}})
	cb.CopyBufferToImage(src, img, vk.ImageLayoutTransferDstOptimal, region)
	cb.PipelineBarrier(transfer, transfer, nil, []native.ImageBarrier{{
		SrcAccess: vk.AccessFlags(vk.AccessTransferWriteBit), DstAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferSrcOptimal,
		Image: img, Range: rng,
	}})
	cb.CopyImageToBuffer(img, vk.ImageLayoutTransferSrcOptimal, dst, region)
	cb.PipelineBarrier(transfer, vk.PipelineStageFlags(vk.PipelineStageHostBit), []native.BufferBarrier{{
		SrcAccess: vk.AccessFlags(vk.AccessTransferWriteBit), DstAccess: vk.AccessFlags(vk.AccessHostReadBit),
		Buffer: dst, Size: native.WholeSize,
	}}, nil)

	f, err := d.Submit(cb)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := d.WaitFence(f); err != nil {
		t.Fatalf("WaitFence() error = %v", err)
	}
	if ok, err := d.FenceSignaled(f); !ok || err != nil {
		t.Errorf("FenceSignaled() = %v, %v, want true, nil", ok, err)
	}
	d.DestroyFence(f)

	got, err := d.MapBuffer(dst)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	if err := d.InvalidateMappedRange(dst, 0, native.WholeSize); err != nil {
		t.Fatalf("InvalidateMappedRange() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read back = %v, want %v", got, want)
	}
}

func TestRecordingInvalidHandle(t *testing.T) {
	d := newDevice(t)

	cb, err := d.BeginCommandBuffer()
	if err != nil {
		t.Fatalf("BeginCommandBuffer() error = %v", err)
	}
	cb.CopyBuffer(native.Buffer(1000), native.Buffer(1001), []vk.BufferCopy{{Size: 4}})
	if _, err := d.Submit(cb); !errors.Is(err, native.ErrInvalidHandle) {
		t.Errorf("Submit() error = %v, want %v", err, native.ErrInvalidHandle)
	}
}
