// Package metrics exposes this node's Prometheus instrumentation: a
// leader gauge, quorum write/read latency histograms, a failure-detector
// up/down gauge per peer, the logical clock value, and sequencer queue
// depth per conversation. It runs on its own HTTP server, separate from
// the node's line-oriented data transport.
package metrics
