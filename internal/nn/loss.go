package nn

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/fuse-ml/fuse/internal/device"
	"github.com/fuse-ml/fuse/internal/graph"
)

// CrossEntropyLayer computes the softmax cross-entropy over each node's
// class logits, restricted to the nodes whose split tag matches the active
// split. Nodes outside the active split contribute neither loss nor
// gradient; that masking is how the train/val/test partition is enforced
// without touching the graph.
//
// Forward keeps the per-node probabilities so Backward can emit
// softmax(logits) - one_hot(label) without recomputing. The loss runs in
// place: its chain slot aliases the logits slot.
type CrossEntropyLayer struct {
	logits  *device.Buffer
	grads   *device.Buffer
	labels  []int32
	split   []int32
	active  int32
	classes int
	probs   []float32
	timing  *Timing

	total float32
	wrong int
	cnt   int
}

// NewCrossEntropy builds the loss over n×classes logits. The active split
// defaults to the training tag.
func NewCrossEntropy(logits, grads *device.Buffer, labels, split []int32, classes int, tm *Timing) *CrossEntropyLayer {
	return &CrossEntropyLayer{
		logits:  logits,
		grads:   grads,
		labels:  labels,
		split:   split,
		active:  graph.SplitTrain,
		classes: classes,
		probs:   make([]float32, len(labels)*classes),
		timing:  tm,
	}
}

func (c *CrossEntropyLayer) Kind() Kind { return CrossEntropy }

// SetActiveSplit selects which split tag the loss and accuracy counters
// observe. Gradients are only ever produced for the active split.
func (c *CrossEntropyLayer) SetActiveSplit(tag int32) { c.active = tag }

// Loss returns the mean loss over the counted nodes of the last Forward.
func (c *CrossEntropyLayer) Loss() float32 {
	if c.cnt == 0 {
		return 0
	}
	return c.total / float32(c.cnt)
}

// Accuracy returns the fraction of counted nodes classified correctly.
func (c *CrossEntropyLayer) Accuracy() float32 {
	if c.cnt == 0 {
		return 0
	}
	return 1 - float32(c.wrong)/float32(c.cnt)
}

// Counters returns the raw (wrong, counted) pair of the last Forward.
func (c *CrossEntropyLayer) Counters() (wrong, cnt int) { return c.wrong, c.cnt }

// Probs returns the per-node probability rows of the last Forward.
func (c *CrossEntropyLayer) Probs() []float32 { return c.probs }

func (c *CrossEntropyLayer) Forward() error {
	defer c.timing.observeForward(CrossEntropy, time.Now())
	c.total = 0
	c.wrong = 0
	c.cnt = 0

	logits := c.logits.Data()
	k := c.classes
	for i := range c.labels {
		row := logits[i*k : (i+1)*k]
		probs := c.probs[i*k : (i+1)*k]

		// Max-shifted softmax to keep the exponentials bounded.
		max := row[0]
		argmax := 0
		for j, v := range row {
			if v > max {
				max = v
				argmax = j
			}
		}
		var sum float32
		for j, v := range row {
			e := math32.Exp(v - max)
			probs[j] = e
			sum += e
		}
		for j := range probs {
			probs[j] /= sum
		}

		if c.split[i] != c.active {
			continue
		}
		label := int(c.labels[i])
		c.total += -math32.Log(probs[label])
		c.cnt++
		if argmax != label {
			c.wrong++
		}
	}
	return nil
}

func (c *CrossEntropyLayer) Backward() error {
	defer c.timing.observeBackward(CrossEntropy, time.Now())
	grads := c.grads.Data()
	k := c.classes
	for i := range c.labels {
		grow := grads[i*k : (i+1)*k]
		if c.split[i] != c.active {
			for j := range grow {
				grow[j] = 0
			}
			continue
		}
		label := int(c.labels[i])
		copy(grow, c.probs[i*k:(i+1)*k])
		grow[label] -= 1
	}
	return nil
}
