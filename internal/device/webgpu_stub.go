//go:build !windows

package device

// WebGPU is unavailable on platforms where the native wgpu library is not
// shipped; callers fall back to the CPU context.
func WebGPU() (Context, error) {
	return nil, ErrUnavailable
}
