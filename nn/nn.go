// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the module abstraction of the Fuse training
// pipeline: one forward/backward unit per configured layer, borrowing its
// buffers from the topology's chain.
package nn

import (
	"github.com/fuse-ml/fuse/internal/nn"
)

// Module is one layer's forward/backward computation unit.
type Module = nn.Module

// Kind identifies a module variant.
type Kind = nn.Kind

// Module variants.
const (
	Dropout       = nn.Dropout
	SparseProject = nn.SparseProject
	Aggregate     = nn.Aggregate
	ReLU          = nn.ReLU
	Dense         = nn.Dense
	CrossEntropy  = nn.CrossEntropy
)

// Timing accumulates per-variant elapsed time across a run.
type Timing = nn.Timing

// CrossEntropyLayer is the split-masked softmax loss; it is exposed so
// callers can read loss and accuracy counters.
type CrossEntropyLayer = nn.CrossEntropyLayer

// Kinds lists every module variant in declaration order.
func Kinds() []Kind {
	return nn.Kinds()
}
