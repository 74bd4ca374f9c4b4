// Package replication implements the cluster's quorum write/read engine: a
// fixed set of simulated per-replica stores, each write and read fanned out
// in parallel and resolved as soon as a majority of replicas answer, within
// a hard deadline. Individual replica failures are absorbed silently; only
// a missed quorum is surfaced to the caller.
package replication
