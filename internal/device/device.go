// Package device manages named float32 buffers that can live in host
// memory, device memory, or both, together with the context objects that
// own the device side of those buffers.
package device

import "errors"

// Location describes where a buffer's data currently resides.
type Location uint8

const (
	// Nowhere means the buffer has no backing storage yet.
	Nowhere Location = iota
	// Host means the data lives in ordinary Go memory.
	Host
	// Device means the data lives in device memory only.
	Device
	// Both means host and device copies are in sync.
	Both
)

// String returns a human-readable location name.
func (l Location) String() string {
	switch l {
	case Host:
		return "host"
	case Device:
		return "device"
	case Both:
		return "both"
	default:
		return "nowhere"
	}
}

// Sentinel errors for buffer and transfer failures.
var (
	// ErrAllocation indicates host or device memory exhaustion.
	ErrAllocation = errors.New("device: allocation failed")
	// ErrTransfer indicates a failed copy between memory spaces.
	ErrTransfer = errors.New("device: transfer failed")
	// ErrUnavailable indicates the requested device backend cannot be used
	// on this system.
	ErrUnavailable = errors.New("device: backend unavailable")
)

// Handle is an opaque reference to a device-resident allocation.
type Handle interface {
	// Len returns the element count of the allocation.
	Len() int
	// Release frees the allocation. Safe to call more than once.
	Release()
}

// Context owns one compute device and allocates buffers on it.
//
// All operations are synchronous: when Upload or Download returns, the
// destination copy is complete and visible.
type Context interface {
	// Name identifies the device for diagnostics.
	Name() string
	// Alloc reserves n float32 elements of device memory.
	Alloc(n int) (Handle, error)
	// Upload copies src into the allocation.
	Upload(h Handle, src []float32) error
	// Download copies the allocation into dst.
	Download(h Handle, dst []float32) error
	// Release frees all resources owned by the context. Idempotent.
	Release()
}
