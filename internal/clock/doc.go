// Package clock provides the cluster's hybrid time service: a physical
// clock nudged toward peer consensus by periodic synchronization, paired
// with a monotonic logical counter that advances on every local event and
// every message received from a peer. Together they give each node a
// (physicalTs, logicalTs) pair suitable for stamping outgoing messages and
// for detecting a peer whose physical clock has drifted too far to trust.
package clock
