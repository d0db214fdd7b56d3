package topology

import (
	"fmt"
	"math/rand"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
	"github.com/fuse-ml/fuse/internal/nn"
)

// Slot is one position of the buffer chain: a value buffer and its
// gradient. A slot either owns its buffers (AliasOf == -1) or shares the
// buffers of an earlier position, which makes the in-place aliasing of
// dropout/ReLU/loss a checkable relation instead of pointer coincidence.
type Slot struct {
	Values  *device.Buffer
	Grads   *device.Buffer
	AliasOf int
	Dim     int
}

// WeightSet is one layer's trainable parameter buffer plus its gradient.
type WeightSet struct {
	Layer  int
	FanIn  int
	FanOut int
	Values *device.Buffer
	Grads  *device.Buffer
	Decay  bool
}

// Network is the fully wired pipeline: N modules threaded through N+1
// chain slots, plus the weight sets of the parameterized layers.
type Network struct {
	Dims    []int
	Slots   []*Slot
	Modules []nn.Module
	Weights []*WeightSet
	Loss    *nn.CrossEntropyLayer
}

// Params carries everything Build needs. Features and Adjacency stay
// owned by the caller; the chain's first slot borrows the feature value
// storage for zero-copy staging.
type Params struct {
	Ctx       device.Context
	Specs     []LayerSpec
	InDim     int
	HiddenDim int
	OutDim    int
	Features  *graph.CSR
	Adjacency *graph.CSR
	Labels    []int32
	Split     []int32
	RNG       *rand.Rand
	Training  *bool
	Timing    *nn.Timing
}

// Build resolves the layer list into a Network. Any unresolved width,
// dimension mismatch or allocation failure aborts construction; nothing
// of a partially built network is usable afterwards.
func Build(p Params) (_ *Network, err error) {
	if len(p.Specs) == 0 {
		return nil, fmt.Errorf("%w: empty layer list", ErrResolve)
	}
	nodes := p.Adjacency.Rows
	n := len(p.Specs)

	kinds := make([]nn.Kind, n)
	for i, s := range p.Specs {
		if kinds[i], err = ParseKind(s.Kind); err != nil {
			return nil, err
		}
	}
	if kinds[n-1] != nn.CrossEntropy {
		return nil, fmt.Errorf("%w: layer list must end with cross_entropy", ErrResolve)
	}
	for i, k := range kinds[:n-1] {
		if k == nn.CrossEntropy {
			return nil, fmt.Errorf("%w: cross_entropy at layer %d is not last", ErrResolve, i)
		}
	}

	// Resolve per-position dimensions, propagating in_dim forward.
	dims := make([]int, n+1)
	dims[0] = p.InDim
	for i, s := range p.Specs {
		if s.Width == "" {
			if kinds[i].Parameterized() {
				return nil, fmt.Errorf("%w: layer %d (%s): width required", ErrResolve, i, kinds[i])
			}
			dims[i+1] = dims[i]
			continue
		}
		w, err := resolveWidth(s.Width, p.InDim, p.HiddenDim, p.OutDim, nodes)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, kinds[i], err)
		}
		if !kinds[i].Parameterized() && w != dims[i] {
			return nil, fmt.Errorf("%w: layer %d (%s): width %d does not match incoming dimension %d",
				ErrResolve, i, kinds[i], w, dims[i])
		}
		dims[i+1] = w
	}
	if dims[n] != p.OutDim {
		return nil, fmt.Errorf("%w: final dimension %d does not match out_dim %d", ErrResolve, dims[n], p.OutDim)
	}

	// Every return below the chain allocation goes through this cleanup:
	// on error the partially built network frees everything it owns.
	net := &Network{Dims: dims}
	defer func() {
		if err != nil {
			net.Release()
		}
	}()

	// Buffer chain: slot 0 borrows the feature value storage; every
	// in-place layer aliases its input slot; everything else allocates
	// nodes×dim values and gradients.
	names := make([]string, n+1)
	names[0] = "x"
	slot0 := &Slot{
		Values:  device.New(p.Ctx, names[0]),
		Grads:   device.New(p.Ctx, "d("+names[0]+")"),
		AliasOf: -1,
		Dim:     dims[0],
	}
	slot0.Values.SetPointer(p.Features.Val)
	if err = slot0.Grads.Alloc(p.Features.Nnz(), device.Host); err != nil {
		return nil, err
	}
	net.Slots = append(net.Slots, slot0)

	for i := range p.Specs {
		names[i+1] = names[i] + kinds[i].Symbol()
		if kinds[i].InPlace() {
			prev := net.Slots[i]
			root := i
			if prev.AliasOf >= 0 {
				root = prev.AliasOf
			}
			net.Slots = append(net.Slots, &Slot{
				Values:  prev.Values,
				Grads:   prev.Grads,
				AliasOf: root,
				Dim:     dims[i+1],
			})
			continue
		}
		s := &Slot{
			Values:  device.New(p.Ctx, names[i+1]),
			Grads:   device.New(p.Ctx, "d("+names[i+1]+")"),
			AliasOf: -1,
			Dim:     dims[i+1],
		}
		if err = s.Values.Alloc(nodes*dims[i+1], device.Host); err != nil {
			return nil, err
		}
		if err = s.Grads.Alloc(nodes*dims[i+1], device.Host); err != nil {
			return nil, err
		}
		net.Slots = append(net.Slots, s)
	}

	// Weight sets, Xavier-initialized, for the parameterized layers.
	weightByLayer := make(map[int]*WeightSet, 2)
	for i, k := range kinds {
		if !k.Parameterized() {
			continue
		}
		ws := &WeightSet{
			Layer:  i,
			FanIn:  dims[i],
			FanOut: dims[i+1],
			Values: device.New(p.Ctx, fmt.Sprintf("w%d", i)),
			Grads:  device.New(p.Ctx, fmt.Sprintf("d(w%d)", i)),
			Decay:  p.Specs[i].Decay,
		}
		if err = ws.Values.Alloc(dims[i]*dims[i+1], device.Host); err != nil {
			return nil, err
		}
		if err = ws.Grads.Alloc(dims[i]*dims[i+1], device.Host); err != nil {
			return nil, err
		}
		nn.XavierFill(ws.Values, ws.FanIn, ws.FanOut, p.RNG)
		net.Weights = append(net.Weights, ws)
		weightByLayer[i] = ws
	}

	// Instantiate the modules, binding each to its resolved slots.
	rootOf := func(i int) int {
		if net.Slots[i].AliasOf >= 0 {
			return net.Slots[i].AliasOf
		}
		return i
	}
	for i, k := range kinds {
		in, out := net.Slots[i], net.Slots[i+1]
		switch k {
		case nn.Dropout:
			rate := p.Specs[i].Rate
			if rate <= 0 || rate >= 1 {
				return nil, fmt.Errorf("%w: layer %d: dropout rate %v outside (0,1)", ErrResolve, i, rate)
			}
			net.Modules = append(net.Modules,
				nn.NewDropout(in.Values, in.Grads, rate, p.RNG, p.Training, p.Timing))
		case nn.SparseProject:
			if rootOf(i) != 0 {
				return nil, fmt.Errorf("%w: layer %d: sparse projection must consume the feature matrix", ErrResolve, i)
			}
			ws := weightByLayer[i]
			var inGrad *device.Buffer
			if i > 0 {
				inGrad = in.Grads
			}
			net.Modules = append(net.Modules,
				nn.NewSparseProject(p.Features, ws.Values, ws.Grads, out.Values, out.Grads, inGrad, dims[i+1], p.Timing))
		case nn.Aggregate:
			if rootOf(i) == 0 {
				return nil, fmt.Errorf("%w: layer %d: aggregation cannot consume the sparse feature view", ErrResolve, i)
			}
			net.Modules = append(net.Modules,
				nn.NewAggregate(p.Adjacency, in.Values, out.Values, in.Grads, out.Grads, dims[i], p.Timing))
		case nn.ReLU:
			net.Modules = append(net.Modules, nn.NewReLU(in.Values, in.Grads, p.Timing))
		case nn.Dense:
			if rootOf(i) == 0 {
				return nil, fmt.Errorf("%w: layer %d: dense layer cannot consume the sparse feature view", ErrResolve, i)
			}
			ws := weightByLayer[i]
			net.Modules = append(net.Modules,
				nn.NewDense(in.Values, out.Values, in.Grads, out.Grads, ws.Values, ws.Grads, nodes, dims[i], dims[i+1], p.Timing))
		case nn.CrossEntropy:
			if rootOf(i) == 0 {
				return nil, fmt.Errorf("%w: layer %d: loss cannot consume the sparse feature view", ErrResolve, i)
			}
			loss := nn.NewCrossEntropy(in.Values, in.Grads, p.Labels, p.Split, dims[i], p.Timing)
			net.Loss = loss
			net.Modules = append(net.Modules, loss)
		}
	}
	return net, nil
}

// WeightAt returns the weight set of the given layer index, or nil when
// that layer is not parameterized.
func (n *Network) WeightAt(layer int) *WeightSet {
	for _, ws := range n.Weights {
		if ws.Layer == layer {
			return ws
		}
	}
	return nil
}

// Release frees every owned buffer. Aliased slots share storage with
// their root and are skipped. Idempotent.
func (n *Network) Release() {
	for _, s := range n.Slots {
		if s == nil || s.AliasOf >= 0 {
			continue
		}
		s.Values.Release()
		s.Grads.Release()
	}
	n.Slots = nil
	for _, ws := range n.Weights {
		ws.Values.Release()
		ws.Grads.Release()
	}
	n.Weights = nil
	n.Modules = nil
	n.Loss = nil
}
