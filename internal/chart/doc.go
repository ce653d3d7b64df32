// Package chart holds the chart domain model and the pure signal-shaping
// steps of the import pipeline: chord grouping, cleanup filtering, beat
// tracking, and grid quantization.
//
// Everything here is deterministic and free of I/O; the stage orchestrator
// wires these functions between the external-tool services.
package chart
