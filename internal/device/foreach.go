package device

import (
	"runtime"
	"sync"
)

// minParallel is the element count below which the goroutine fan-out costs
// more than it saves.
const minParallel = 4096

// ForEach applies fn to every element of the host view in place. Elements
// are processed in parallel with no ordering guarantee between them, so fn
// must be free of cross-element side effects.
func (b *Buffer) ForEach(fn func(i int, v float32) float32) {
	data := b.host
	parallelRange(len(data), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data[i] = fn(i, data[i])
		}
	})
}

// ForEachPeer applies fn to every element paired with the element at the
// same index of peer, writing the result back into b. The peer must be at
// least as long as b.
func (b *Buffer) ForEachPeer(peer *Buffer, fn func(i int, v, p float32) float32) {
	data := b.host
	pd := peer.host
	parallelRange(len(data), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data[i] = fn(i, data[i], pd[i])
		}
	})
}

// parallelRange splits [0, n) into one chunk per CPU and runs body on each
// chunk concurrently. Small ranges run inline.
func parallelRange(n int, body func(lo, hi int)) {
	if n < minParallel {
		body(0, n)
		return
	}
	workers := runtime.NumCPU()
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			body(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
