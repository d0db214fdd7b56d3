package device

import "fmt"

// Buffer is a named float32 vector that can live on the host, on a device,
// or both. Modules never own buffers; they borrow references into a chain
// of them, so Buffer keeps ownership explicit: storage handed in through
// SetPointer is a borrowed view and is never freed here.
type Buffer struct {
	name     string
	n        int
	loc      Location
	host     []float32
	dev      Handle
	borrowed bool
	ctx      Context
}

// New creates an empty buffer bound to ctx. The buffer has no storage
// until Alloc or SetPointer is called.
func New(ctx Context, name string) *Buffer {
	return &Buffer{name: name, ctx: ctx}
}

// Name returns the diagnostic name of the buffer.
func (b *Buffer) Name() string { return b.name }

// Len returns the element count.
func (b *Buffer) Len() int { return b.n }

// Location reports where the data currently resides.
func (b *Buffer) Location() Location { return b.loc }

// Borrowed reports whether the host storage is an externally owned view.
func (b *Buffer) Borrowed() bool { return b.borrowed }

// Alloc reserves n elements at the given location. Any previously owned
// storage of that location is replaced.
func (b *Buffer) Alloc(n int, loc Location) error {
	if n < 0 {
		return fmt.Errorf("%w: %q: negative size %d", ErrAllocation, b.name, n)
	}
	b.n = n
	if loc == Host || loc == Both {
		b.host = make([]float32, n)
		b.borrowed = false
	}
	if loc == Device || loc == Both {
		h, err := b.ctx.Alloc(n)
		if err != nil {
			return fmt.Errorf("%w: %q: %d elements on %s: %v", ErrAllocation, b.name, n, b.ctx.Name(), err)
		}
		if b.dev != nil {
			b.dev.Release()
		}
		b.dev = h
	}
	b.loc = loc
	return nil
}

// SetPointer re-points the buffer at externally owned host storage.
// The buffer becomes a borrowed view: Release will not free the slice,
// and the caller keeps ownership of it.
func (b *Buffer) SetPointer(data []float32) {
	b.host = data
	b.n = len(data)
	b.borrowed = true
	if b.dev != nil {
		b.loc = Both
	} else {
		b.loc = Host
	}
}

// Data returns the host view of the buffer. The slice is nil when the
// data is device-only.
func (b *Buffer) Data() []float32 { return b.host }

// Fill sets every host element to v.
func (b *Buffer) Fill(v float32) {
	for i := range b.host {
		b.host[i] = v
	}
}

// Move copies the data between memory spaces. After a successful move the
// buffer is resident in both spaces. Moving to a space the data already
// occupies is a no-op.
func (b *Buffer) Move(from, to Location) error {
	if from == to {
		return nil
	}
	switch {
	case from == Host && to == Device:
		if b.host == nil {
			return fmt.Errorf("%w: %q: no host data to upload", ErrTransfer, b.name)
		}
		if b.dev == nil {
			h, err := b.ctx.Alloc(b.n)
			if err != nil {
				return fmt.Errorf("%w: %q: %v", ErrAllocation, b.name, err)
			}
			b.dev = h
		}
		if err := b.ctx.Upload(b.dev, b.host); err != nil {
			return fmt.Errorf("%w: %q upload: %v", ErrTransfer, b.name, err)
		}
	case from == Device && to == Host:
		if b.dev == nil {
			return fmt.Errorf("%w: %q: no device data to download", ErrTransfer, b.name)
		}
		if b.host == nil {
			b.host = make([]float32, b.n)
			b.borrowed = false
		}
		if err := b.ctx.Download(b.dev, b.host); err != nil {
			return fmt.Errorf("%w: %q download: %v", ErrTransfer, b.name, err)
		}
	default:
		return fmt.Errorf("%w: %q: unsupported move %s -> %s", ErrTransfer, b.name, from, to)
	}
	b.loc = Both
	return nil
}

// Sync pushes the host copy to the device when one is attached. Modules
// mutate the host view; Sync is the write-back point after a step.
func (b *Buffer) Sync() error {
	if b.dev == nil {
		return nil
	}
	return b.Move(Host, Device)
}

// Download refreshes dst from the device copy of the buffer.
func (b *Buffer) Download(dst []float32) error {
	if b.dev == nil {
		return fmt.Errorf("%w: %q: not device resident", ErrTransfer, b.name)
	}
	if err := b.ctx.Download(b.dev, dst); err != nil {
		return fmt.Errorf("%w: %q download: %v", ErrTransfer, b.name, err)
	}
	return nil
}

// Release frees owned storage. Borrowed host views are detached, not
// freed. Safe to call more than once.
func (b *Buffer) Release() {
	if b.dev != nil {
		b.dev.Release()
		b.dev = nil
	}
	b.host = nil
	b.borrowed = false
	b.loc = Nowhere
}
