// Package compute runs the simulation passes on a backend.
//
// Two backends are provided:
//
//   - CPU: each pass is split into chunks that run on a worker per core,
//     standing in for the per-fragment parallelism of a GPU.
//   - OpenGL: GL 4.3 compute shaders over shader storage buffers. Only
//     compiled with the opengl build tag; otherwise a stub reports itself
//     unavailable.
//
// A backend owns the particle state (double-buffered) and the bin array.
// Callers drive it pass by pass:
//
//	for k := 0; k < binning.Capacity; k++ {
//		backend.BinPass(k)
//	}
//	backend.UpdatePass(dt)
//	backend.Swap()
//
// Build with GPU support:
//
//	go build -tags opengl ./...
package compute
