// Package optim implements the Adam optimizer driving the weight sets of
// a replica.
package optim

import (
	"github.com/chewxy/math32"

	"github.com/fuse-ml/fuse/internal/device"
)

// Config holds the Adam hyperparameters. Zero values fall back to the
// usual defaults; WeightDecay only applies to weight sets registered with
// the decay flag.
type Config struct {
	LR          float32
	Beta1       float32
	Beta2       float32
	Eps         float32
	WeightDecay float32
}

func (c Config) withDefaults() Config {
	if c.LR == 0 {
		c.LR = 0.005
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
	return c
}

// state is the moment pair tied 1:1 to a weight set.
type state struct {
	weights *device.Buffer
	grads   *device.Buffer
	m       []float32
	v       []float32
	decay   bool
}

// Adam maintains one first/second moment pair per registered weight set
// and a single step counter shared by all of them.
type Adam struct {
	cfg    Config
	t      int
	states []*state
}

// New creates an optimizer with no registered weights.
func New(cfg Config) *Adam {
	return &Adam{cfg: cfg.withDefaults()}
}

// Register ties a weight/gradient buffer pair to the optimizer. The
// moment buffers are zero-initialized and sized like the weights.
func (a *Adam) Register(weights, grads *device.Buffer, decay bool) {
	a.states = append(a.states, &state{
		weights: weights,
		grads:   grads,
		m:       make([]float32, weights.Len()),
		v:       make([]float32, weights.Len()),
		decay:   decay,
	})
}

// Step applies one Adam update to every registered weight set. The update
// is elementwise and independent per tensor; the bias corrections use the
// shared step counter.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math32.Pow(a.cfg.Beta1, float32(a.t))
	c2 := 1 - math32.Pow(a.cfg.Beta2, float32(a.t))

	for _, s := range a.states {
		w := s.weights.Data()
		g := s.grads.Data()
		for i := range w {
			grad := g[i]
			if s.decay {
				grad += a.cfg.WeightDecay * w[i]
			}
			s.m[i] = a.cfg.Beta1*s.m[i] + (1-a.cfg.Beta1)*grad
			s.v[i] = a.cfg.Beta2*s.v[i] + (1-a.cfg.Beta2)*grad*grad
			mHat := s.m[i] / c1
			vHat := s.v[i] / c2
			w[i] -= a.cfg.LR * mHat / (math32.Sqrt(vHat) + a.cfg.Eps)
		}
	}
}

// Timestep returns the number of steps taken so far.
func (a *Adam) Timestep() int { return a.t }

// LR returns the configured learning rate.
func (a *Adam) LR() float32 { return a.cfg.LR }
