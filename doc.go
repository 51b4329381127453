// Package photoacoustic is a continuous processing engine for
// dual-channel photoacoustic sensor frames.
//
// Frames flow through a directed acyclic graph of stages: DSP filters,
// channel selection and mixing, differential combination, spectral peak
// finding, gas concentration computation, recording and externally
// visible actions. The graph is described by a declarative configuration
// document and can be reconfigured while running: parameter-only changes
// are hot-swapped onto the live stages, structural changes rebuild the
// graph atomically between frames.
//
// The main packages:
//
//   - graph: descriptors, validation, topological execution and diffing
//   - node: the Stage contract and the signal-plumbing stages
//   - computing: spectral analysis stages publishing shared results
//   - action: threshold monitoring with pluggable delivery drivers
//   - reload: the hot-reload-or-rebuild dispatcher
//   - engine: the single-goroutine pipeline consumer
//   - acquisition: frame sources and the paced producer
//   - gateway: the HTTP/websocket control and introspection surface
//
// The cmd/photoacoustic binary wires these together.
package photoacoustic
