// Package nn implements the compute modules of the training pipeline.
//
// A module is one layer's forward/backward unit. Modules do not own their
// buffers: they borrow references into the buffer chain built by the
// topology package, and both passes are callable once per training step
// without re-allocation.
package nn

import "time"

// Kind identifies a module variant.
type Kind uint8

const (
	// Dropout zeroes elements with a fixed probability during training.
	Dropout Kind = iota
	// SparseProject multiplies the sparse feature matrix by a dense weight.
	SparseProject
	// Aggregate sums normalized neighbor features per node.
	Aggregate
	// ReLU clamps negatives to zero in place.
	ReLU
	// Dense is a dense matrix product against a weight.
	Dense
	// CrossEntropy is the split-masked softmax loss.
	CrossEntropy

	numKinds = 6
)

var kindNames = [numKinds]string{"dropout", "sparse_project", "aggregate", "relu", "dense", "cross_entropy"}

// Operator symbols used when deriving diagnostic buffer names.
var kindSymbols = [numKinds]string{"~", "*", "@", "^", "*", "$"}

func (k Kind) String() string { return kindNames[k] }

// Symbol returns the operator glyph appended to buffer names at this kind.
func (k Kind) Symbol() string { return kindSymbols[k] }

// InPlace reports whether the variant writes its output over its input,
// letting the topology alias the two chain positions.
func (k Kind) InPlace() bool {
	return k == Dropout || k == ReLU || k == CrossEntropy
}

// Parameterized reports whether the variant carries a weight set.
func (k Kind) Parameterized() bool {
	return k == SparseProject || k == Dense
}

// Module is one layer's forward/backward computation unit.
type Module interface {
	Kind() Kind
	// Forward reads the module's input buffer and writes its output buffer.
	Forward() error
	// Backward reads the gradient of the loss w.r.t. the module's output
	// and writes the gradient w.r.t. its input, accumulating weight
	// gradients where the module is parameterized.
	Backward() error
}

// Timing accumulates per-variant elapsed time across a run. One Timing
// record is owned by each replica and handed to its modules; there is no
// ambient global accumulator.
type Timing struct {
	Forward  [numKinds]time.Duration
	Backward [numKinds]time.Duration
}

// NewTiming returns an empty timing record.
func NewTiming() *Timing { return &Timing{} }

// Reset zeroes all accumulators.
func (t *Timing) Reset() { *t = Timing{} }

func (t *Timing) observeForward(k Kind, start time.Time) {
	t.Forward[k] += time.Since(start)
}

func (t *Timing) observeBackward(k Kind, start time.Time) {
	t.Backward[k] += time.Since(start)
}

// Kinds lists every module variant in declaration order, for reporting.
func Kinds() []Kind {
	return []Kind{Dropout, SparseProject, Aggregate, ReLU, Dense, CrossEntropy}
}
