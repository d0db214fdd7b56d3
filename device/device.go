// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device provides the public API for Fuse buffers and device
// contexts.
//
// A Buffer is a named float32 vector that can live in host memory, device
// memory, or both, and a Context owns the device side of those buffers:
//
//	ctx := device.CPU()
//	buf := device.New(ctx, "weights")
//	if err := buf.Alloc(64, device.Host); err != nil { ... }
//	if err := buf.Move(device.Host, device.Device); err != nil { ... }
package device

import (
	"github.com/fuse-ml/fuse/internal/device"
)

// Buffer is a named float32 vector movable between memory spaces.
type Buffer = device.Buffer

// Context owns one compute device.
type Context = device.Context

// Handle is an opaque device allocation.
type Handle = device.Handle

// Location describes where a buffer's data resides.
type Location = device.Location

// Location constants.
const (
	Nowhere = device.Nowhere
	Host    = device.Host
	Device  = device.Device
	Both    = device.Both
)

// Sentinel errors.
var (
	ErrAllocation  = device.ErrAllocation
	ErrTransfer    = device.ErrTransfer
	ErrUnavailable = device.ErrUnavailable
)

// New creates an empty buffer bound to ctx.
func New(ctx Context, name string) *Buffer {
	return device.New(ctx, name)
}

// CPU returns the always-available context whose device memory is a
// second region of host memory.
func CPU() Context {
	return device.CPU()
}

// WebGPU returns a context backed by the first available GPU adapter, or
// ErrUnavailable when the native WebGPU library is missing.
func WebGPU() (Context, error) {
	return device.WebGPU()
}
