// Copyright 2026 Fuse ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the Adam optimizer driving a replica's weight
// sets.
package optim

import (
	"github.com/fuse-ml/fuse/internal/optim"
)

// Adam maintains one moment pair per registered weight set and a shared
// step counter.
type Adam = optim.Adam

// Config holds the Adam hyperparameters.
type Config = optim.Config

// New creates an optimizer with no registered weights.
func New(cfg Config) *Adam {
	return optim.New(cfg)
}
