package device

import (
	"fmt"
	"sync"
)

// cpuContext emulates a device with a second region of host memory. It is
// always available and is the verified path for training; transfers are
// plain copies. An optional element budget lets tests exercise allocation
// failure without exhausting real memory.
type cpuContext struct {
	mu    sync.Mutex
	limit int // max live elements, 0 = unlimited
	used  int
}

// cpuHandle is a device-side allocation backed by a Go slice.
type cpuHandle struct {
	data []float32
	ctx  *cpuContext
}

func (h *cpuHandle) Len() int { return len(h.data) }

func (h *cpuHandle) Release() {
	if h.data == nil {
		return
	}
	h.ctx.mu.Lock()
	h.ctx.used -= len(h.data)
	h.ctx.mu.Unlock()
	h.data = nil
}

// CPU returns a context whose device memory is ordinary host memory.
func CPU() Context {
	return &cpuContext{}
}

// CPUWithLimit returns a CPU context that refuses to hold more than limit
// float32 elements at once.
func CPUWithLimit(limit int) Context {
	return &cpuContext{limit: limit}
}

func (c *cpuContext) Name() string { return "cpu" }

func (c *cpuContext) Alloc(n int) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && c.used+n > c.limit {
		return nil, fmt.Errorf("budget exceeded: %d live + %d requested > %d", c.used, n, c.limit)
	}
	c.used += n
	return &cpuHandle{data: make([]float32, n), ctx: c}, nil
}

func (c *cpuContext) Upload(h Handle, src []float32) error {
	ch, ok := h.(*cpuHandle)
	if !ok || ch.data == nil {
		return fmt.Errorf("stale or foreign handle")
	}
	if len(src) > len(ch.data) {
		return fmt.Errorf("source %d exceeds allocation %d", len(src), len(ch.data))
	}
	copy(ch.data, src)
	return nil
}

func (c *cpuContext) Download(h Handle, dst []float32) error {
	ch, ok := h.(*cpuHandle)
	if !ok || ch.data == nil {
		return fmt.Errorf("stale or foreign handle")
	}
	if len(dst) > len(ch.data) {
		return fmt.Errorf("destination %d exceeds allocation %d", len(dst), len(ch.data))
	}
	copy(dst, ch.data)
	return nil
}

func (c *cpuContext) Release() {}
