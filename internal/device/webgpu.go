//go:build windows

package device

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// webgpuContext places buffers in real GPU memory through WebGPU.
// Uploads go through a buffer created mapped-at-creation; downloads go
// through a staging buffer and a synchronous map.
type webgpuContext struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string
}

type webgpuHandle struct {
	buffer *wgpu.Buffer
	n      int
	ctx    *webgpuContext
}

func (h *webgpuHandle) Len() int { return h.n }

func (h *webgpuHandle) Release() {
	if h.buffer != nil {
		h.buffer.Release()
		h.buffer = nil
	}
}

// WebGPU returns a context backed by the first available GPU adapter.
// Returns ErrUnavailable when the native WebGPU library or an adapter is
// missing.
func WebGPU() (ctx Context, err error) {
	// The wgpu loader panics when the native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: no adapter: %v", ErrUnavailable, adapterErr)
	}
	info := adapter.GetInfo()

	dev, devErr := adapter.RequestDevice(nil)
	if devErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no device: %v", ErrUnavailable, devErr)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	return &webgpuContext{
		instance: instance,
		adapter:  adapter,
		device:   dev,
		queue:    queue,
		name:     fmt.Sprintf("webgpu (%s)", info.Name),
	}, nil
}

func (c *webgpuContext) Name() string { return c.name }

func (c *webgpuContext) Alloc(n int) (Handle, error) {
	buffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(n) * 4,
	})
	if buffer == nil {
		return nil, fmt.Errorf("CreateBuffer(%d elements) returned nil", n)
	}
	return &webgpuHandle{buffer: buffer, n: n, ctx: c}, nil
}

// Upload recreates the GPU buffer mapped-at-creation and copies src in.
// Storage buffers cannot be mapped after creation, so replacing the buffer
// is the synchronous upload path.
func (c *webgpuContext) Upload(h Handle, src []float32) error {
	wh, ok := h.(*webgpuHandle)
	if !ok || wh.buffer == nil {
		return fmt.Errorf("stale or foreign handle")
	}
	size := uint64(len(src)) * 4

	buffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	if buffer == nil {
		return fmt.Errorf("CreateBuffer(%d bytes) returned nil", size)
	}

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, floatBytes(src))
	buffer.Unmap()

	wh.buffer.Release()
	wh.buffer = buffer
	wh.n = len(src)
	return nil
}

// Download copies the GPU buffer into dst through a staging buffer.
func (c *webgpuContext) Download(h Handle, dst []float32) error {
	wh, ok := h.(*webgpuHandle)
	if !ok || wh.buffer == nil {
		return fmt.Errorf("stale or foreign handle")
	}
	size := uint64(len(dst)) * 4

	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	if staging == nil {
		return fmt.Errorf("CreateBuffer(staging, %d bytes) returned nil", size)
	}
	defer staging.Release()

	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(wh.buffer, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	c.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(c.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(floatBytes(dst), mapped)
	staging.Unmap()

	return nil
}

func (c *webgpuContext) Release() {
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// floatBytes reinterprets a float32 slice as its backing bytes.
func floatBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}
