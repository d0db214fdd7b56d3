package engine

import (
	"fmt"
	"math/rand"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
	"github.com/fuse-ml/fuse/internal/nn"
	"github.com/fuse-ml/fuse/internal/optim"
	"github.com/fuse-ml/fuse/internal/topology"
)

// State is the lifecycle position of a replica.
type State uint8

const (
	Uninitialized State = iota
	Initialized
	Released
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Released:
		return "released"
	default:
		return "uninitialized"
	}
}

// Replica owns one device's copy of the full pipeline: the graph
// partition, the feature matrix, the label and split vectors, the buffer
// chain with its modules, and the optimizer state. Distinct replicas are
// independent; the ingested inputs they are built from are read-only.
type Replica struct {
	id  int
	ctx device.Context
	cfg Config

	adj      *graph.CSR
	features *graph.CSR // replica-owned value storage
	pristine []float32  // ingested feature values, never written
	labels   []int32
	split    []int32

	rng      *rand.Rand
	training bool
	timing   *nn.Timing
	net      *topology.Network
	adam     *optim.Adam

	state State
	steps int
}

// newReplica stages the shared ingested data into a replica-owned view.
// Row structure is shared read-only; the value array is copied because
// in-place feature dropout writes through the chain's first buffer.
func newReplica(id int, ctx device.Context, cfg Config, adj, features *graph.CSR, labels, split []int32) *Replica {
	own := &graph.CSR{
		Rows:   features.Rows,
		Cols:   features.Cols,
		RowPtr: features.RowPtr,
		ColIdx: features.ColIdx,
		Val:    make([]float32, len(features.Val)),
	}
	copy(own.Val, features.Val)
	return &Replica{
		id:       id,
		ctx:      ctx,
		cfg:      cfg,
		adj:      adj,
		features: own,
		pristine: features.Val,
		labels:   labels,
		split:    split,
		training: cfg.Training,
	}
}

// ID returns the replica's device index.
func (r *Replica) ID() int { return r.id }

// State returns the lifecycle position.
func (r *Replica) State() State { return r.state }

// Timing returns the per-operator accumulators of this replica.
func (r *Replica) Timing() *nn.Timing { return r.timing }

// Steps returns the number of completed training steps.
func (r *Replica) Steps() int { return r.steps }

// Init allocates the buffer chain and weight sets, instantiates the
// modules, wires the optimizer, and moves the staged feature data to the
// device. A failed Init leaves the replica Uninitialized with nothing
// allocated.
func (r *Replica) Init() error {
	if r.state != Uninitialized {
		return fmt.Errorf("engine: replica %d: Init in state %s", r.id, r.state)
	}
	r.rng = rand.New(rand.NewSource(r.cfg.Seed + int64(r.id)))
	r.timing = nn.NewTiming()

	net, err := topology.Build(topology.Params{
		Ctx:       r.ctx,
		Specs:     r.cfg.Topology,
		InDim:     r.cfg.InDim,
		HiddenDim: r.cfg.HiddenDim,
		OutDim:    r.cfg.OutDim,
		Features:  r.features,
		Adjacency: r.adj,
		Labels:    r.labels,
		Split:     r.split,
		RNG:       r.rng,
		Training:  &r.training,
		Timing:    r.timing,
	})
	if err != nil {
		return fmt.Errorf("engine: replica %d: %w", r.id, err)
	}

	// Stage the feature values and weights on the device.
	if err := net.Slots[0].Values.Move(device.Host, device.Device); err != nil {
		net.Release()
		return fmt.Errorf("engine: replica %d: %w", r.id, err)
	}
	for _, ws := range net.Weights {
		if err := ws.Values.Move(device.Host, device.Device); err != nil {
			net.Release()
			return fmt.Errorf("engine: replica %d: %w", r.id, err)
		}
	}

	adam := optim.New(optim.Config{
		LR:          r.cfg.LearningRate,
		WeightDecay: r.cfg.WeightDecay,
	})
	for _, ws := range net.Weights {
		adam.Register(ws.Values, ws.Grads, ws.Decay)
	}

	r.net = net
	r.adam = adam
	r.state = Initialized
	return nil
}

// Step runs one full training cycle: restore the pristine feature values
// (the feature dropout writes through the chain's first buffer), forward
// through every module in order, backward in reverse order, then one
// optimizer pass, ending with the weight write-back to the device.
func (r *Replica) Step() error {
	if r.state != Initialized {
		return fmt.Errorf("engine: replica %d: Step in state %s", r.id, r.state)
	}
	copy(r.features.Val, r.pristine)

	for _, m := range r.net.Modules {
		if err := m.Forward(); err != nil {
			return fmt.Errorf("engine: replica %d: forward %s: %w", r.id, m.Kind(), err)
		}
	}
	for i := len(r.net.Modules) - 1; i >= 0; i-- {
		m := r.net.Modules[i]
		if err := m.Backward(); err != nil {
			return fmt.Errorf("engine: replica %d: backward %s: %w", r.id, m.Kind(), err)
		}
	}
	r.adam.Step()
	for _, ws := range r.net.Weights {
		if err := ws.Values.Sync(); err != nil {
			return fmt.Errorf("engine: replica %d: %w", r.id, err)
		}
	}
	r.steps++
	return nil
}

// Loss returns the mean loss of the most recent forward pass, whether it
// came from a training step or an evaluation; the next Step reports the
// training split again.
func (r *Replica) Loss() float32 {
	if r.net == nil || r.net.Loss == nil {
		return 0
	}
	return r.net.Loss.Loss()
}

// Accuracy returns the accuracy of the most recent forward pass, under
// the same recency rule as Loss.
func (r *Replica) Accuracy() float32 {
	if r.net == nil || r.net.Loss == nil {
		return 0
	}
	return r.net.Loss.Accuracy()
}

// Evaluate runs a forward pass with dropout disabled and the loss counters
// restricted to the given split tag, then restores the training setup.
func (r *Replica) Evaluate(tag int32) (loss, accuracy float32, err error) {
	if r.state != Initialized {
		return 0, 0, fmt.Errorf("engine: replica %d: Evaluate in state %s", r.id, r.state)
	}
	wasTraining := r.training
	r.training = false
	r.net.Loss.SetActiveSplit(tag)
	defer func() {
		r.net.Loss.SetActiveSplit(graph.SplitTrain)
		r.training = wasTraining
	}()

	copy(r.features.Val, r.pristine)
	for _, m := range r.net.Modules {
		if err := m.Forward(); err != nil {
			return 0, 0, fmt.Errorf("engine: replica %d: forward %s: %w", r.id, m.Kind(), err)
		}
	}
	return r.net.Loss.Loss(), r.net.Loss.Accuracy(), nil
}

// Reset re-arms the device placement of the staged buffers and clears the
// transient counters. Weights and optimizer moments persist: Reset is a
// lifecycle checkpoint, not a retrain.
func (r *Replica) Reset() error {
	if r.state != Initialized {
		return fmt.Errorf("engine: replica %d: Reset in state %s", r.id, r.state)
	}
	if err := r.net.Slots[0].Values.Sync(); err != nil {
		return fmt.Errorf("engine: replica %d: %w", r.id, err)
	}
	for _, ws := range r.net.Weights {
		if err := ws.Values.Sync(); err != nil {
			return fmt.Errorf("engine: replica %d: %w", r.id, err)
		}
	}
	r.timing.Reset()
	return nil
}

// Release frees all owned buffers. Idempotent.
func (r *Replica) Release() {
	if r.net != nil {
		r.net.Release()
	}
	r.state = Released
}
