// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package topology exposes the declarative layer-list configuration and
// the wired pipeline it builds into.
package topology

import (
	"github.com/fuse-ml/fuse/internal/topology"
)

// LayerSpec describes one layer of the pipeline.
type LayerSpec = topology.LayerSpec

// Network is the fully wired pipeline.
type Network = topology.Network

// Slot is one position of the buffer chain.
type Slot = topology.Slot

// WeightSet is one layer's trainable parameters plus gradient.
type WeightSet = topology.WeightSet

// ErrResolve indicates an invalid or unresolvable layer list.
var ErrResolve = topology.ErrResolve

// Default returns the canonical two-layer graph-convolutional stack.
func Default() []LayerSpec {
	return topology.Default()
}

// LoadFile reads a JSON array of layer specs.
func LoadFile(path string) ([]LayerSpec, error) {
	return topology.LoadFile(path)
}
