// Package compute provides the worker backends used by the physics pass.
//
// The CPU backend splits a slot range into contiguous chunks, one per
// goroutine:
//
//	backend := compute.New(0)
//	backend.ParallelFor(n, func(start, end int) {
//		for i := start; i < end; i++ {
//			out[i] = f(in[i])
//		}
//	})
//
// Loops shorter than the chunk floor run on the calling goroutine. Workers
// never share an output index, so results do not depend on the worker count.
package compute
